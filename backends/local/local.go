// Package local - On-host neural network detection backend with accelerator fallback.
package local

import (
	"context"
	"image"
	"sync"

	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/backends"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models"
	"github.com/pkg/errors"
)

// Config configures the local backend.
type Config struct {
	// WeightsPath is the model weights file (.onnx) or a checkpoint manifest.
	WeightsPath string `json:"weights_path" yaml:"weights_path"`
	// NamesPath is an optional sidecar class-name file.
	NamesPath string `json:"names_path" yaml:"names_path"`
	// ClassNames overrides every other class-name source.
	ClassNames []string `json:"class_names" yaml:"class_names"`
	// SharedLibraryPath is the ONNX Runtime shared library.
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path"`
	// InputSize is the square network input edge used when the model does not declare one.
	InputSize int `json:"input_size" yaml:"input_size"`
	// ConfidenceThreshold drops decoded boxes scoring below it.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`
	// NMSThreshold is the IoU above which overlapping boxes are suppressed.
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold"`
	// CUDADeviceID is the accelerator ordinal.
	CUDADeviceID int `json:"cuda_device_id" yaml:"cuda_device_id"`
	// GuessOnUnrecognized emits one fabricated detection when an output cannot be decoded.
	GuessOnUnrecognized bool `json:"guess_on_unrecognized" yaml:"guess_on_unrecognized"`
}

// DefaultConfig returns the default local backend configuration.
func DefaultConfig() Config {
	return Config{
		WeightsPath:         "yolov8n.onnx",
		InputSize:           providers.DefaultInputSize,
		ConfidenceThreshold: 0.25,
		NMSThreshold:        0.45,
	}
}

// Option configures a Backend.
type Option func(*Backend)

// WithProber replaces the accelerator probe.
func WithProber(p Prober) Option {
	return func(b *Backend) {
		b.prober = p
	}
}

// WithLoaders replaces the loader implementations.
func WithLoaders(l Loaders) Option {
	return func(b *Backend) {
		b.loaders = l
	}
}

// Backend is the local inference backend. One instance serves one request.
type Backend struct {
	config  Config
	prober  Prober
	loaders Loaders
	devices *deviceSelector

	mu       sync.Mutex
	model    Model
	strategy string
	names    models.ClassNames
}

// New creates a local backend and selects its device.
//
// Arguments:
//   - config: The backend configuration.
//   - opts: Optional overrides of the probe and loaders.
//
// Returns:
//   - *Backend: The backend.
func New(config Config, opts ...Option) *Backend {
	if config.InputSize <= 0 {
		config.InputSize = providers.DefaultInputSize
	}

	b := &Backend{
		config:  config,
		devices: newDeviceSelector(),
	}
	b.prober = func() error {
		return providers.ProbeCUDA(config.SharedLibraryPath, config.CUDADeviceID)
	}
	b.loaders = NativeLoaders()
	for _, opt := range opts {
		opt(b)
	}

	b.devices.probe(b.prober)
	return b
}

// Kind returns the local backend kind.
func (b *Backend) Kind() detection.BackendKind {
	return detection.BackendLocal
}

// DeviceState returns the current device selection state.
func (b *Backend) DeviceState() DeviceState {
	return b.devices.State()
}

// Device returns the currently selected device.
func (b *Backend) Device() Device {
	return b.devices.Device()
}

// Load runs the loader chain once. Later calls return nil without reloading.
//
// Arguments:
//   - ctx: The context.
//
// Returns:
//   - error: A *detection.ModelLoadFailure when every loader fails.
func (b *Backend) Load(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.loadLocked(ctx)
}

func (b *Backend) loadLocked(ctx context.Context) error {
	if b.model != nil {
		return nil
	}

	names, err := b.configuredNames()
	if err != nil {
		return err
	}

	m, strategy, err := runChain(ctx, b.loaders.chain(), b.devices, LoadRequest{
		Path:   b.config.WeightsPath,
		Names:  names,
		Config: b.config,
	})
	if err != nil {
		return err
	}

	if names == nil {
		if provider, ok := m.(interface{ ClassNames() models.ClassNames }); ok {
			names = provider.ClassNames()
		}
	}
	if names == nil {
		names = models.COCO()
	}

	b.model = m
	b.strategy = strategy
	b.names = names

	xlog.Info("Local model ready", "path", b.config.WeightsPath, "loader", strategy, "device", b.devices.Device())
	return nil
}

// configuredNames returns the class table from configuration, or nil when the model provides it.
func (b *Backend) configuredNames() (models.ClassNames, error) {
	if len(b.config.ClassNames) > 0 {
		return models.FromList(b.config.ClassNames), nil
	}
	if b.config.NamesPath != "" {
		names, err := models.LoadNamesFile(b.config.NamesPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load class names")
		}
		return names, nil
	}
	return nil, nil
}

// Process runs detection on img, loading the model first when needed.
//
// Arguments:
//   - ctx: The context.
//   - img: The decoded image.
//
// Returns:
//   - *detection.Result: The normalized result.
//   - error: A load failure, or a *detection.ProcessingFailure when inference fails.
func (b *Backend) Process(ctx context.Context, img image.Image) (*detection.Result, error) {
	if img == nil {
		return nil, &detection.ValidationFailure{Field: "image", Reason: "no image"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.loadLocked(ctx); err != nil {
		return nil, err
	}

	out, err := infer(ctx, b.model, b.devices, img)
	if err != nil {
		return nil, detection.NewProcessingFailure(detection.BackendLocal, err)
	}

	dets := normalize(out, normalizeOptions{
		Names:               b.names,
		GuessOnUnrecognized: b.config.GuessOnUnrecognized,
	})

	return detection.NewResult(detection.BackendLocal, dets, map[string]any{
		"model_type": "yolo",
		"model_path": b.config.WeightsPath,
		"device":     string(b.devices.Device()),
		"loader":     b.strategy,
	}), nil
}

// Describe returns static metadata without loading the model.
func (b *Backend) Describe() backends.Info {
	return backends.Info{
		Kind:       detection.BackendLocal,
		Model:      b.config.WeightsPath,
		Device:     string(b.devices.Device()),
		Configured: b.config.WeightsPath != "",
		Details: map[string]any{
			"device_state":          b.devices.State().String(),
			"input_size":            b.config.InputSize,
			"confidence_threshold":  b.config.ConfidenceThreshold,
			"nms_threshold":         b.config.NMSThreshold,
			"guess_on_unrecognized": b.config.GuessOnUnrecognized,
		},
	}
}

// Close releases the loaded model.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.model == nil {
		return nil
	}
	err := b.model.Close()
	b.model = nil
	return err
}
