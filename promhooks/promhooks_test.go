package promhooks

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/telepeer"
)

// counterValue sums every series of the named counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		return sum
	}
	return 0
}

func TestCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg, "json")
	if err != nil {
		t.Fatal(err)
	}

	h.StepCompleted(0, telepeer.RequestSent, time.Millisecond)
	h.ExchangeCompleted(0, 2*time.Millisecond, 120)
	h.ExchangeCompleted(1, 2*time.Millisecond, 120)
	h.ExchangeFailed(2, telepeer.RequestSent, errors.New("boom"))
	h.SequenceReused("s", 2)
	h.JournalSetRejected("k")

	if got := counterValue(t, reg, "telepeer_exchange_total"); got != 3 {
		t.Fatalf("exchange_total=%v want 3", got)
	}
	if got := counterValue(t, reg, "telepeer_journal_sequence_reused_total"); got != 1 {
		t.Fatalf("sequence_reused_total=%v", got)
	}
	if got := counterValue(t, reg, "telepeer_journal_set_rejected_total"); got != 1 {
		t.Fatalf("set_rejected_total=%v", got)
	}
}

func TestDoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg, "json"); err != nil {
		t.Fatal(err)
	}
	if _, err := New(reg, "json"); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
