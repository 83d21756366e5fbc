package main

import (
	"time"

	"github.com/unkn0wn-root/telepeer"
)

// fanout forwards every event to each sink in order.
type fanout []telepeer.Hooks

func (f fanout) StepCompleted(seq uint64, s telepeer.State, d time.Duration) {
	for _, h := range f {
		h.StepCompleted(seq, s, d)
	}
}

func (f fanout) ExchangeCompleted(seq uint64, d time.Duration, n int) {
	for _, h := range f {
		h.ExchangeCompleted(seq, d, n)
	}
}

func (f fanout) ExchangeFailed(seq uint64, s telepeer.State, err error) {
	for _, h := range f {
		h.ExchangeFailed(seq, s, err)
	}
}

func (f fanout) SequenceReused(session string, seq uint64) {
	for _, h := range f {
		h.SequenceReused(session, seq)
	}
}

func (f fanout) JournalSetRejected(key string) {
	for _, h := range f {
		h.JournalSetRejected(key)
	}
}
