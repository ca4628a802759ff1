// Package dispatch - Backend selection, timing and the request service in front of persistence.
package dispatch

import (
	"context"
	"image"
	"time"

	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/backends"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/pkg/errors"
)

// Outcome is a result together with the time it took to produce it.
type Outcome struct {
	// Result is the canonical result.
	Result *detection.Result
	// Elapsed covers load and processing. Constructing the backend, which may probe the device,
	// is not included.
	Elapsed time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records dispatch durations and failures.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Dispatcher routes requests to a fresh backend instance selected by name.
type Dispatcher struct {
	registry Registry
	metrics  *Metrics
	now      func() time.Time
}

// New creates a dispatcher over registry.
//
// Arguments:
//   - registry: The backend constructors.
//   - opts: Optional settings.
//
// Returns:
//   - *Dispatcher: The dispatcher.
func New(registry Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// construct resolves selector and builds its backend.
func (d *Dispatcher) construct(selector string) (backends.Backend, error) {
	kind, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	ctor, ok := d.registry[kind]
	if !ok || ctor == nil {
		return nil, &detection.ValidationFailure{Field: "backend", Reason: "backend " + string(kind) + " is not available"}
	}
	b, err := ctor()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to construct %s backend", kind)
	}
	return b, nil
}

// Dispatch runs img through the backend named by selector.
//
// Backend errors are returned untouched and never retried here.
//
// Arguments:
//   - ctx: The context.
//   - selector: The backend name or alias.
//   - img: The decoded image.
//
// Returns:
//   - *Outcome: The result and elapsed time.
//   - error: A *detection.ValidationFailure for an unknown selector, or the backend's error.
func (d *Dispatcher) Dispatch(ctx context.Context, selector string, img image.Image) (*Outcome, error) {
	b, err := d.construct(selector)
	if err != nil {
		return nil, err
	}
	kind := b.Kind()
	defer func() {
		if cerr := b.Close(); cerr != nil {
			xlog.Warn("Failed to close backend", "backend", kind, "error", cerr)
		}
	}()

	start := d.now()

	if err := b.Load(ctx); err != nil {
		d.metrics.fail(kind, err)
		return nil, err
	}

	res, err := b.Process(ctx, img)
	if err != nil {
		d.metrics.fail(kind, err)
		return nil, err
	}

	elapsed := d.now().Sub(start)
	d.metrics.observe(kind, elapsed)
	xlog.Debug("Dispatch finished", "backend", kind, "count", res.Count, "elapsed", elapsed)

	return &Outcome{Result: res, Elapsed: elapsed}, nil
}

// Describe returns the static metadata of the backend named by selector without loading it.
//
// Arguments:
//   - selector: The backend name or alias.
//
// Returns:
//   - backends.Info: The backend description.
//   - error: A *detection.ValidationFailure for an unknown selector.
func (d *Dispatcher) Describe(selector string) (backends.Info, error) {
	b, err := d.construct(selector)
	if err != nil {
		return backends.Info{}, err
	}
	defer b.Close()
	return b.Describe(), nil
}
