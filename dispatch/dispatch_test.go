package dispatch

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/nvr-ai/go-detect/backends"
	"github.com/nvr-ai/go-detect/detection"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	kind       detection.BackendKind
	loadErr    error
	processErr error
	loads      int
	processed  int
	closed     bool
}

func (f *fakeBackend) Kind() detection.BackendKind { return f.kind }

func (f *fakeBackend) Load(ctx context.Context) error {
	f.loads++
	return f.loadErr
}

func (f *fakeBackend) Process(ctx context.Context, img image.Image) (*detection.Result, error) {
	f.processed++
	if f.processErr != nil {
		return nil, f.processErr
	}
	return detection.NewResult(f.kind, []detection.Detection{
		detection.NewDetection("pallet", 0, 0.9, detection.Box{X2: 4, Y2: 4}),
	}, nil), nil
}

func (f *fakeBackend) Describe() backends.Info {
	return backends.Info{Kind: f.kind, Model: "fake", Configured: true}
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

// countingRegistry builds one fake per kind and counts constructor calls.
func countingRegistry(fakes map[detection.BackendKind]*fakeBackend, calls *int) Registry {
	reg := Registry{}
	for kind, fb := range fakes {
		fb := fb
		reg[kind] = func() (backends.Backend, error) {
			*calls++
			return fb, nil
		}
	}
	return reg
}

func allFakes() map[detection.BackendKind]*fakeBackend {
	return map[detection.BackendKind]*fakeBackend{
		detection.BackendLocal:            {kind: detection.BackendLocal},
		detection.BackendRemoteVision:     {kind: detection.BackendRemoteVision},
		detection.BackendRemoteGenerative: {kind: detection.BackendRemoteGenerative},
	}
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		selector string
		want     detection.BackendKind
		wantErr  bool
	}{
		{selector: "local", want: detection.BackendLocal},
		{selector: "remote_vision", want: detection.BackendRemoteVision},
		{selector: "remote_generative", want: detection.BackendRemoteGenerative},
		{selector: "yolo", want: detection.BackendLocal},
		{selector: "Roboflow", want: detection.BackendRemoteVision},
		{selector: " claude ", want: detection.BackendRemoteGenerative},
		{selector: "unknown_backend", wantErr: true},
		{selector: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.selector, func(t *testing.T) {
			kind, err := ParseSelector(tc.selector)
			if tc.wantErr {
				var vf *detection.ValidationFailure
				assert.ErrorAs(t, err, &vf)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, kind)
		})
	}
}

func TestDispatchUnknownSelector(t *testing.T) {
	calls := 0
	d := New(countingRegistry(allFakes(), &calls))

	_, err := d.Dispatch(context.Background(), "unknown_backend", testImage())
	var vf *detection.ValidationFailure
	require.ErrorAs(t, err, &vf)
	assert.Equal(t, "backend", vf.Field)
	assert.Zero(t, calls, "no constructor may run for an unknown selector")
}

func TestDispatchRunsLifecycle(t *testing.T) {
	calls := 0
	fakes := allFakes()
	d := New(countingRegistry(fakes, &calls))

	out, err := d.Dispatch(context.Background(), "roboflow", testImage())
	require.NoError(t, err)

	fb := fakes[detection.BackendRemoteVision]
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, fb.loads)
	assert.Equal(t, 1, fb.processed)
	assert.True(t, fb.closed)
	assert.Equal(t, detection.BackendRemoteVision, out.Result.Backend)
	assert.Equal(t, out.Result.Count, len(out.Result.Detections))
	assert.GreaterOrEqual(t, out.Elapsed, time.Duration(0))
}

func TestDispatchPropagatesErrorsUntouched(t *testing.T) {
	loadErr := &detection.ModelLoadFailure{Path: "w.onnx", Causes: []error{errors.New("modern: bad")}}
	procErr := detection.NewProcessingFailure(detection.BackendRemoteGenerative, errors.New("timeout"))

	fakes := allFakes()
	fakes[detection.BackendLocal].loadErr = loadErr
	fakes[detection.BackendRemoteGenerative].processErr = procErr

	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	calls := 0
	d := New(countingRegistry(fakes, &calls), WithMetrics(metrics))

	_, err = d.Dispatch(context.Background(), "local", testImage())
	assert.Same(t, loadErr, err)
	assert.Zero(t, fakes[detection.BackendLocal].processed)
	assert.True(t, fakes[detection.BackendLocal].closed)

	_, err = d.Dispatch(context.Background(), "claude", testImage())
	assert.Same(t, procErr, err)
	assert.Equal(t, 1, fakes[detection.BackendRemoteGenerative].processed, "no retry")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("local", "load")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("remote_generative", "processing")))
}

func TestDescribeDoesNotLoad(t *testing.T) {
	calls := 0
	fakes := allFakes()
	d := New(countingRegistry(fakes, &calls))

	info, err := d.Describe("yolo")
	require.NoError(t, err)
	assert.Equal(t, detection.BackendLocal, info.Kind)
	assert.Zero(t, fakes[detection.BackendLocal].loads)

	_, err = d.Describe("nope")
	assert.Error(t, err)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, "", FailureReason(nil))
	assert.Equal(t, "validation", FailureReason(&detection.ValidationFailure{}))
	assert.Equal(t, "configuration", FailureReason(errors.Wrap(&detection.ConfigurationError{}, "ctx")))
	assert.Equal(t, "load", FailureReason(&detection.ModelLoadFailure{}))
	assert.Equal(t, "processing", FailureReason(&detection.ProcessingFailure{}))
	assert.Equal(t, "other", FailureReason(errors.New("x")))
}

func TestMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestDispatchTimesLoadAndProcessOnly(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fb := &fakeBackend{kind: detection.BackendLocal}
	registry := Registry{
		detection.BackendLocal: func() (backends.Backend, error) {
			clock = clock.Add(time.Minute)
			return fb, nil
		},
	}
	d := New(registry)
	d.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	out, err := d.Dispatch(context.Background(), "local", testImage())
	require.NoError(t, err)
	assert.Equal(t, time.Second, out.Elapsed, "construction time must not be counted")
}
