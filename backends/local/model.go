package local

import (
	"context"
	"fmt"
	"image"
)

// Model is a loaded network bound to a device.
type Model interface {
	// MoveTo rebinds the network to another device.
	MoveTo(ctx context.Context, device Device) error
	// Close releases native resources.
	Close() error
}

// Predictor is a modern model returning boxes or classifications.
type Predictor interface {
	Model
	Predict(ctx context.Context, img image.Image) (Output, error)
}

// Caller is a legacy model returning a results table.
type Caller interface {
	Model
	Call(ctx context.Context, img image.Image) (Output, error)
}

// Nested is a wrapper whose callable network sits inside it.
type Nested interface {
	Model
	Inner() Forwarder
}

// Forwarder is a raw network exposing only its forward computation.
type Forwarder interface {
	Model
	Forward(ctx context.Context, img image.Image) (Output, error)
}

// invoke runs one inference call through the capability the model exposes.
func invoke(ctx context.Context, m Model, img image.Image) (Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch t := m.(type) {
	case Predictor:
		return t.Predict(ctx, img)
	case Caller:
		return t.Call(ctx, img)
	case Nested:
		inner := t.Inner()
		if inner == nil {
			return nil, fmt.Errorf("nested model %T has no inner network", m)
		}
		return inner.Forward(ctx, img)
	case Forwarder:
		return t.Forward(ctx, img)
	default:
		return nil, fmt.Errorf("model %T exposes no inference capability", m)
	}
}
