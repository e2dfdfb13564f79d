// Package metrics exposes ledger operation counters to Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/debt-ledger/ledger"
)

// Outcome labels.
const (
	OutcomeOK             = "ok"
	OutcomeInvalid        = "invalid_request"
	OutcomeBadIdentifier  = "invalid_identifier"
	OutcomeNotFound       = "not_found"
	OutcomeStorageFailure = "storage_failure"
	OutcomeError          = "error"
)

var _ ledger.Observer = (*Recorder)(nil)

// Recorder implements ledger.Observer.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New registers the ledger metrics on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "debt_ledger",
			Name:      "operations_total",
			Help:      "Ledger facade operations by outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "debt_ledger",
			Name:      "operation_duration_seconds",
			Help:      "Latency of ledger facade operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(r.operations, r.duration)
	return r
}

// Observe records one operation.
func (r *Recorder) Observe(op string, err error, elapsed time.Duration) {
	r.operations.WithLabelValues(op, Outcome(err)).Inc()
	r.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Outcome classifies err into a label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ledger.ErrInvalidIdentifier):
		return OutcomeBadIdentifier
	case errors.Is(err, ledger.ErrInvalidRequest):
		return OutcomeInvalid
	case errors.Is(err, ledger.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ledger.ErrStorageFailure):
		return OutcomeStorageFailure
	default:
		return OutcomeError
	}
}
