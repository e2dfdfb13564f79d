package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/warp/debt-ledger/ledger"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{&ledger.RequestError{Field: "amount", Reason: "must be positive"}, OutcomeInvalid},
		{&ledger.IdentifierError{Username: "bob", Err: errors.New("checksum")}, OutcomeBadIdentifier},
		{ledger.ErrNotFound, OutcomeNotFound},
		{ledger.NewStorageError("append batch", 1, errors.New("disk full")), OutcomeStorageFailure},
		{errors.New("boom"), OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.err))
		})
	}
}

func TestRecorder_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Observe("record_split", nil, 3*time.Millisecond)
	r.Observe("record_split", nil, 5*time.Millisecond)
	r.Observe("record_split", ledger.ErrInvalidRequest, time.Millisecond)
	r.Observe("lookup_payment_identifier", ledger.ErrNotFound, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.operations.WithLabelValues("record_split", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("record_split", OutcomeInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("lookup_payment_identifier", OutcomeNotFound)))
	assert.Equal(t, 3, testutil.CollectAndCount(r.operations))
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}
