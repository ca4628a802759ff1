package main

import (
	"context"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/dispatch"
	"github.com/nvr-ai/go-detect/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}

// DetectCmd runs detection from the command line.
type DetectCmd struct {
	Backend   string `short:"b" default:"local" help:"Backend: local, remote_vision, remote_generative or an alias"`
	Every     int    `default:"30" help:"Analyze every Nth frame of a video"`
	MaxFrames int    `default:"0" help:"Stop after this many analyzed video frames, 0 for no limit"`
	Path      string `arg:"" type:"existingpath" help:"Image file, directory of images or video file"`
}

// frameResult is one line of output.
type frameResult struct {
	Source         string            `json:"source"`
	Frame          int               `json:"frame,omitempty"`
	ElapsedSeconds float64           `json:"elapsed_seconds"`
	Results        *detection.Result `json:"results"`
}

// Run analyzes the path and writes one JSON line per image or sampled frame.
func (d *DetectCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if _, err := dispatch.ParseSelector(d.Backend); err != nil {
		return err
	}

	dispatcher := dispatch.New(dispatch.NewRegistry(cfg.Backends(), nil))
	out := json.NewEncoder(os.Stdout)
	ctx := context.Background()

	emit := func(source string, frame int, img image.Image) error {
		outcome, err := dispatcher.Dispatch(ctx, d.Backend, img)
		if err != nil {
			return errors.Wrapf(err, "%s", source)
		}
		return out.Encode(frameResult{
			Source:         source,
			Frame:          frame,
			ElapsedSeconds: outcome.Elapsed.Seconds(),
			Results:        outcome.Result,
		})
	}

	info, err := os.Stat(d.Path)
	if err != nil {
		return err
	}

	switch {
	case info.IsDir():
		files, err := images.LoadDirectory(d.Path)
		if err != nil {
			return err
		}
		xlog.Info("Analyzing directory", "path", d.Path, "images", len(files))
		for _, f := range files {
			img, err := images.Decode(f.Data)
			if err != nil {
				xlog.Warn("Skipping undecodable image", "path", f.Path, "error", err)
				continue
			}
			frame := f.Frame
			if frame < 0 {
				frame = 0
			}
			if err := emit(f.Path, frame, img); err != nil {
				return err
			}
		}
		return nil
	case isVideo(d.Path):
		return d.runVideo(emit)
	default:
		data, err := os.ReadFile(d.Path)
		if err != nil {
			return err
		}
		img, err := images.Decode(data)
		if err != nil {
			return err
		}
		return emit(d.Path, 0, img)
	}
}

// runVideo samples every Nth frame of a video file.
func (d *DetectCmd) runVideo(emit func(string, int, image.Image) error) error {
	capture, err := gocv.OpenVideoCapture(d.Path)
	if err != nil {
		return errors.Wrapf(err, "failed to open video %s", d.Path)
	}
	defer capture.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	every := d.Every
	if every <= 0 {
		every = 1
	}

	analyzed := 0
	for index := 0; capture.Read(&frame); index++ {
		if frame.Empty() || index%every != 0 {
			continue
		}
		img, err := frame.ToImage()
		if err != nil {
			xlog.Warn("Skipping unreadable frame", "frame", index, "error", err)
			continue
		}
		if err := emit(d.Path, index, img); err != nil {
			return err
		}
		analyzed++
		if d.MaxFrames > 0 && analyzed >= d.MaxFrames {
			break
		}
	}
	xlog.Info("Video finished", "path", d.Path, "analyzed_frames", analyzed)
	return nil
}

func isVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range videoExtensions {
		if ext == v {
			return true
		}
	}
	return false
}
