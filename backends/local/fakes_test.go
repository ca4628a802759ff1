package local

import (
	"context"
	"image"

	"github.com/nvr-ai/go-detect/models"
)

// fakeModel records calls and replays scripted errors before returning out.
type fakeModel struct {
	out    Output
	errs   []error
	calls  int
	moved  []Device
	closed bool
	names  models.ClassNames
}

func (f *fakeModel) next() (Output, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.out, nil
}

func (f *fakeModel) MoveTo(ctx context.Context, device Device) error {
	f.moved = append(f.moved, device)
	return nil
}

func (f *fakeModel) Close() error {
	f.closed = true
	return nil
}

func (f *fakeModel) ClassNames() models.ClassNames {
	return f.names
}

type fakePredictor struct{ fakeModel }

func (f *fakePredictor) Predict(ctx context.Context, img image.Image) (Output, error) {
	return f.next()
}

type fakeCaller struct{ fakeModel }

func (f *fakeCaller) Call(ctx context.Context, img image.Image) (Output, error) {
	return f.next()
}

type fakeForwarder struct{ fakeModel }

func (f *fakeForwarder) Forward(ctx context.Context, img image.Image) (Output, error) {
	return f.next()
}

type fakeNested struct {
	fakeModel
	inner *fakeForwarder
}

func (f *fakeNested) Inner() Forwarder {
	return f.inner
}

// inert has no inference capability.
type inert struct{ fakeModel }

// loaderCall records one loader invocation.
type loaderCall struct {
	step   string
	device Device
}

// scriptedLoaders builds loaders that record calls and return the scripted outcome per step.
func scriptedLoaders(calls *[]loaderCall, modern, legacy Model, raw func(device Device) Model) Loaders {
	step := func(name string, m Model) LoadFunc {
		return func(ctx context.Context, req LoadRequest) (Model, error) {
			*calls = append(*calls, loaderCall{step: name, device: req.Device})
			if m == nil {
				return nil, errFakeLoad(name)
			}
			return m, nil
		}
	}
	return Loaders{
		Modern: step(StrategyModern, modern),
		Legacy: step(StrategyLegacy, legacy),
		Raw: func(ctx context.Context, req LoadRequest) (Model, error) {
			*calls = append(*calls, loaderCall{step: StrategyRaw, device: req.Device})
			if m := raw(req.Device); m != nil {
				return m, nil
			}
			return nil, errFakeLoad(StrategyRaw)
		},
	}
}

type errFakeLoad string

func (e errFakeLoad) Error() string {
	return string(e) + " loader rejected the weights"
}

func acceleratorOK() error { return nil }

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 8, 8))
}
