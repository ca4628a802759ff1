package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// CPUOptions contains arguments for the default CPU provider.
type CPUOptions struct {
	// Threads used inside a single operator. Zero lets the runtime decide.
	IntraOpThreads int `json:"intraOpThreads" yaml:"intraOpThreads"`
	// Threads used across independent graph nodes. Zero lets the runtime decide.
	InterOpThreads int `json:"interOpThreads" yaml:"interOpThreads"`
}

// Backend returns the CPU backend.
func (CPUOptions) Backend() ProviderBackend {
	return CPUProviderBackend
}

func (CPUOptions) isProviderOptions() {}

func (o CPUOptions) apply(opts *ort.SessionOptions) error {
	if err := opts.SetIntraOpNumThreads(o.IntraOpThreads); err != nil {
		return fmt.Errorf("error setting intra-op threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(o.InterOpThreads); err != nil {
		return fmt.Errorf("error setting inter-op threads: %w", err)
	}
	return nil
}
