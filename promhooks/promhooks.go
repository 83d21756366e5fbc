// Package promhooks exports exchange events as Prometheus metrics.
package promhooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/telepeer"
)

type Hooks struct {
	steps         *prometheus.HistogramVec
	exchanges     *prometheus.CounterVec
	exchangeTime  prometheus.Histogram
	requestBytes  prometheus.Histogram
	reused        prometheus.Counter
	journalReject prometheus.Counter
}

var _ telepeer.Hooks = (*Hooks)(nil)

// New creates the collectors and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer, codec string) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	constLabels := prometheus.Labels{"codec": codec}
	h := &Hooks{
		steps: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "telepeer",
				Subsystem:   "exchange",
				Name:        "step_duration_seconds",
				Help:        "Duration of one exchange step, by the state it reached.",
				Buckets:     prometheus.ExponentialBuckets(0.00005, 2, 16),
				ConstLabels: constLabels,
			},
			[]string{"state"},
		),
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "telepeer",
				Subsystem:   "exchange",
				Name:        "total",
				Help:        "Exchanges by outcome and, for failures, the last state reached.",
				ConstLabels: constLabels,
			},
			[]string{"outcome", "state"},
		),
		exchangeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "telepeer",
			Subsystem:   "exchange",
			Name:        "duration_seconds",
			Help:        "Duration of a completed four-step exchange.",
			Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 16),
			ConstLabels: constLabels,
		}),
		requestBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "telepeer",
			Subsystem:   "exchange",
			Name:        "request_bytes",
			Help:        "Encoded request size.",
			Buckets:     prometheus.ExponentialBuckets(16, 2, 14),
			ConstLabels: constLabels,
		}),
		reused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "telepeer",
			Subsystem:   "journal",
			Name:        "sequence_reused_total",
			Help:        "Requests rejected because their sequence was already journaled.",
			ConstLabels: constLabels,
		}),
		journalReject: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "telepeer",
			Subsystem:   "journal",
			Name:        "set_rejected_total",
			Help:        "Journal writes the provider refused.",
			ConstLabels: constLabels,
		}),
	}
	for _, c := range []prometheus.Collector{h.steps, h.exchanges, h.exchangeTime, h.requestBytes, h.reused, h.journalReject} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) StepCompleted(_ uint64, state telepeer.State, took time.Duration) {
	h.steps.WithLabelValues(state.String()).Observe(took.Seconds())
}

func (h *Hooks) ExchangeCompleted(_ uint64, took time.Duration, requestBytes int) {
	h.exchanges.WithLabelValues("ok", telepeer.AckReceived.String()).Inc()
	h.exchangeTime.Observe(took.Seconds())
	h.requestBytes.Observe(float64(requestBytes))
}

func (h *Hooks) ExchangeFailed(_ uint64, state telepeer.State, _ error) {
	h.exchanges.WithLabelValues("failed", state.String()).Inc()
}

func (h *Hooks) SequenceReused(string, uint64) { h.reused.Inc() }

func (h *Hooks) JournalSetRejected(string) { h.journalReject.Inc() }
