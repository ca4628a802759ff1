package dispatch

import (
	"time"

	"github.com/nvr-ai/go-detect/detection"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the dispatcher collectors.
type Metrics struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewMetrics creates the dispatcher collectors and registers them with reg.
//
// Arguments:
//   - reg: The registerer, nil to leave the collectors unregistered.
//
// Returns:
//   - *Metrics: The collectors.
//   - error: An error when registration fails.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "detect_dispatch_duration_seconds",
			Help:    "Wall clock time of one detection dispatch, load included.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"backend"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detect_dispatch_failures_total",
			Help: "Failed detection dispatches by backend and failure class.",
		}, []string{"backend", "reason"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.duration, m.failures} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register dispatch metrics")
		}
	}
	return m, nil
}

func (m *Metrics) observe(kind detection.BackendKind, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

func (m *Metrics) fail(kind detection.BackendKind, err error) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(kind), FailureReason(err)).Inc()
}

// FailureReason classifies err for metrics and status mapping.
func FailureReason(err error) string {
	var (
		vf *detection.ValidationFailure
		ce *detection.ConfigurationError
		lf *detection.ModelLoadFailure
		pf *detection.ProcessingFailure
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &vf):
		return "validation"
	case errors.As(err, &ce):
		return "configuration"
	case errors.As(err, &lf):
		return "load"
	case errors.As(err, &pf):
		return "processing"
	default:
		return "other"
	}
}
