package local

import (
	"context"
	"image"

	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/pkg/errors"
)

// infer runs the model once and, on an accelerator fault, moves it to the general processor and
// retries exactly once.
func infer(ctx context.Context, m Model, devices *deviceSelector, img image.Image) (Output, error) {
	out, err := invoke(ctx, m, img)
	if err == nil {
		return out, nil
	}
	if devices.Device() != DeviceCUDA || !detection.IsDeviceError(err) {
		return nil, err
	}

	xlog.Warn("Accelerator failed during inference, retrying on the general processor", "error", err)
	if moveErr := m.MoveTo(ctx, DeviceCPU); moveErr != nil {
		return nil, errors.Wrapf(moveErr, "failed to move model to the general processor after %v", err)
	}
	devices.downgrade("accelerator failed during inference")

	out, err = invoke(ctx, m, img)
	if err != nil {
		return nil, errors.Wrap(err, "retry on the general processor failed")
	}
	return out, nil
}
