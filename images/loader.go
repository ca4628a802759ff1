package images

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// File represents an image file read from disk.
type File struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// Frame is the frame number parsed from "frame-<n>" names, or -1.
	Frame int
}

// IsImageFile reports whether the file extension is one the decoder accepts.
func IsImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}

// LoadDirectory reads all image files from a directory.
//
// Files named "frame-<n>.<ext>" are ordered by frame number and come before any other files,
// which are ordered by name.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []File: The image files with their raw bytes.
//   - error: Error if the directory or a file cannot be read.
func LoadDirectory(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []File
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}

		imgPath := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(imgPath)
		if err != nil {
			return nil, err
		}

		files = append(files, File{
			Path:  imgPath,
			Data:  data,
			Frame: frameNumber(entry.Name()),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		fi, fj := files[i].Frame, files[j].Frame
		switch {
		case fi >= 0 && fj >= 0:
			return fi < fj
		case fi >= 0:
			return true
		case fj >= 0:
			return false
		default:
			return files[i].Path < files[j].Path
		}
	})

	return files, nil
}

func frameNumber(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if !strings.HasPrefix(base, "frame-") {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimPrefix(base, "frame-"))
	if err != nil || n < 0 {
		return -1
	}
	return n
}
