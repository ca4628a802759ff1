package local

import (
	"context"

	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/nvr-ai/go-detect/models"
	"github.com/pkg/errors"
)

// LoadRequest describes what a loader step should load.
type LoadRequest struct {
	// Path is the weights path.
	Path string
	// Device is the device to bind the network to.
	Device Device
	// Names is the configured class table, nil when the model should provide one.
	Names models.ClassNames
	// Config is the backend configuration.
	Config Config
}

// LoadFunc loads a model for one strategy.
type LoadFunc func(ctx context.Context, req LoadRequest) (Model, error)

// Loaders holds the three loader implementations the strategy chain is built from.
type Loaders struct {
	// Modern loads single-file exports of the current generation.
	Modern LoadFunc
	// Legacy loads exports of the previous generation.
	Legacy LoadFunc
	// Raw reads the weights file directly.
	Raw LoadFunc
}

// Strategy names, reported in result metadata.
const (
	StrategyModern = "modern"
	StrategyLegacy = "legacy"
	StrategyRaw    = "raw"
	StrategyRawCPU = "raw_cpu"
)

type loadStrategy struct {
	name     string
	load     LoadFunc
	forceCPU bool
}

// chain returns the ordered load strategies.
func (l Loaders) chain() []loadStrategy {
	return []loadStrategy{
		{name: StrategyModern, load: l.Modern},
		{name: StrategyLegacy, load: l.Legacy},
		{name: StrategyRaw, load: l.Raw},
		{name: StrategyRawCPU, load: l.Raw, forceCPU: true},
	}
}

// runChain tries each strategy in order and stops at the first success.
//
// A success of a step forced to the general processor permanently downgrades the device.
//
// Returns:
//   - Model: The loaded model.
//   - string: The strategy that succeeded.
//   - error: A *detection.ModelLoadFailure with every step's cause when all steps fail.
func runChain(ctx context.Context, chain []loadStrategy, devices *deviceSelector, req LoadRequest) (Model, string, error) {
	var causes []error

	for _, step := range chain {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		if step.load == nil {
			causes = append(causes, errors.Errorf("%s: no loader", step.name))
			continue
		}

		stepReq := req
		stepReq.Device = devices.Device()
		if step.forceCPU {
			stepReq.Device = DeviceCPU
		}

		m, err := step.load(ctx, stepReq)
		if err != nil {
			xlog.Warn("Loader step failed", "step", step.name, "path", req.Path, "device", stepReq.Device, "error", err)
			causes = append(causes, errors.Wrap(err, step.name))
			continue
		}

		if step.forceCPU {
			devices.downgrade("model only loads on the general processor")
		}
		xlog.Debug("Model loaded", "step", step.name, "path", req.Path, "device", stepReq.Device)
		return m, step.name, nil
	}

	return nil, "", &detection.ModelLoadFailure{Path: req.Path, Causes: causes}
}
