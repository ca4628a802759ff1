// Package providers - ONNX Runtime execution providers and sessions.
package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents the ONNX Runtime execution provider a session runs on.
type ProviderBackend string

const (
	// CPUProviderBackend runs inference on the general processor.
	CPUProviderBackend ProviderBackend = "cpu"
	// CUDAProviderBackend uses NVIDIA CUDA for inference.
	CUDAProviderBackend ProviderBackend = "cuda"
)

// ProviderOptions is a marker interface for provider-specific config.
type ProviderOptions interface {
	Backend() ProviderBackend
	isProviderOptions()
}

// NewSessionOptions creates ONNX Runtime session options with the execution provider appended.
//
// Arguments:
//   - options: The provider options (CPUOptions or CUDAOptions).
//
// Returns:
//   - *ort.SessionOptions: The session options. The caller must destroy them.
//   - error: An error if the provider cannot be enabled.
func NewSessionOptions(options ProviderOptions) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}

	switch o := options.(type) {
	case CPUOptions:
		err = o.apply(opts)
	case CUDAOptions:
		err = o.apply(opts)
	default:
		err = fmt.Errorf("unsupported provider options type: %T", options)
	}
	if err != nil {
		opts.Destroy()
		return nil, err
	}

	return opts, nil
}

// OptionsFor returns the provider options for a backend.
//
// Arguments:
//   - backend: The execution provider backend.
//   - deviceID: The accelerator ordinal, ignored for the CPU.
//
// Returns:
//   - ProviderOptions: The provider options.
func OptionsFor(backend ProviderBackend, deviceID int) ProviderOptions {
	if backend == CUDAProviderBackend {
		return CUDAOptions{DeviceID: deviceID}
	}
	return CPUOptions{}
}
