package local

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/yolov8"
	"github.com/pkg/errors"
)

// NativeLoaders returns the loaders backed by ONNX Runtime and OpenCV DNN.
func NativeLoaders() Loaders {
	return Loaders{
		Modern: loadModern,
		Legacy: loadLegacy,
		Raw:    loadRaw,
	}
}

// onnxModel is a modern single-file export run through ONNX Runtime.
type onnxModel struct {
	config   Config
	path     string
	session  *providers.Session
	decoder  model.Decoder
	classify bool
	names    models.ClassNames
}

func sessionOptions(device Device, deviceID int) providers.ProviderOptions {
	if device == DeviceCUDA {
		return providers.OptionsFor(providers.CUDAProviderBackend, deviceID)
	}
	return providers.OptionsFor(providers.CPUProviderBackend, deviceID)
}

func nmsConfig(config Config) *postprocess.NMSConfig {
	nms := postprocess.DefaultNMSConfig()
	nms.ConfidenceThreshold = config.ConfidenceThreshold
	if config.NMSThreshold > 0 {
		nms.IoUThreshold = config.NMSThreshold
	}
	return nms
}

// loadModern creates an ONNX Runtime session for an anchor-free detection head or a classifier.
func loadModern(ctx context.Context, req LoadRequest) (Model, error) {
	if !strings.EqualFold(filepath.Ext(req.Path), ".onnx") {
		return nil, errors.Errorf("%s is not a single-file onnx export", req.Path)
	}

	session, err := providers.NewSession(req.Path, req.Config.SharedLibraryPath, sessionOptions(req.Device, req.Config.CUDADeviceID))
	if err != nil {
		return nil, err
	}

	m := &onnxModel{
		config:  req.Config,
		path:    req.Path,
		session: session,
		names:   req.Names,
	}

	dims := session.Output.Dimensions
	switch len(dims) {
	case 2:
		m.classify = true
	case 3:
		if dims[1] > 0 && dims[2] > 0 {
			layout, err := models.DetectLayout(dims)
			if err != nil || layout != model.ModelNameYOLOv8 {
				session.Close()
				return nil, errors.Errorf("output %v is not an anchor-free detection head", dims)
			}
		}
		m.decoder, err = models.NewDecoder(model.ModelNameYOLOv8, model.Config{
			InputSize: session.InputSize(),
			NMS:       nmsConfig(req.Config),
		})
		if err != nil {
			session.Close()
			return nil, err
		}
	default:
		session.Close()
		return nil, errors.Errorf("unsupported output rank %d", len(dims))
	}

	if m.names == nil {
		m.names = metadataNames(req.Path)
	}

	return m, nil
}

// metadataNames reads the class table Ultralytics writes into the model metadata.
func metadataNames(path string) models.ClassNames {
	raw, ok, err := providers.ReadCustomMetadata(path, "names")
	if err != nil || !ok {
		if err != nil {
			xlog.Debug("No class names in model metadata", "path", path, "error", err)
		}
		return nil
	}
	names, err := models.ParseNames([]byte(raw))
	if err != nil {
		xlog.Warn("Could not parse class names from model metadata", "path", path, "error", err)
		return nil
	}
	return names
}

func (m *onnxModel) Predict(ctx context.Context, img image.Image) (Output, error) {
	data, err := images.NewCHW(img, m.session.InputSize())
	if err != nil {
		return nil, err
	}

	out, shape, err := m.session.Run(data)
	if err != nil {
		return nil, errors.Wrapf(err, "inference on %s failed", m.session.Backend)
	}

	if m.classify {
		top1, conf := yolov8.Classify(out)
		return &ClassificationOutput{Top1: top1, Top1Conf: float64(conf), Names: m.names}, nil
	}

	bounds := img.Bounds()
	results, err := m.decoder.PostProcess(out, shape, image.Pt(bounds.Dx(), bounds.Dy()))
	if err != nil {
		return nil, err
	}

	return &BoxesOutput{Boxes: boxPredictions(results), Names: m.names}, nil
}

func (m *onnxModel) MoveTo(ctx context.Context, device Device) error {
	want := sessionOptions(device, m.config.CUDADeviceID)
	if m.session != nil && m.session.Backend == want.Backend() {
		return nil
	}

	session, err := providers.NewSession(m.path, m.config.SharedLibraryPath, want)
	if err != nil {
		return fmt.Errorf("failed to rebind %s to %s: %w", m.path, device, err)
	}
	if m.session != nil {
		if err := m.session.Close(); err != nil {
			xlog.Warn("Failed to release previous session", "path", m.path, "error", err)
		}
	}
	m.session = session
	return nil
}

func (m *onnxModel) ClassNames() models.ClassNames {
	return m.names
}

func (m *onnxModel) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return err
}
