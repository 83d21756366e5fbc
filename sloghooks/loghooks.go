package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/telepeer"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	StepEvery     uint64
	CompleteEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	stepCtr     atomic.Uint64
	completeCtr atomic.Uint64
}

var _ telepeer.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) StepCompleted(seq uint64, state telepeer.State, took time.Duration) {
	if h.l == nil || !sample(h.opts.StepEvery, &h.stepCtr) {
		return
	}
	h.l.Debug("telepeer.step",
		"seq", seq,
		"state", state.String(),
		"took", took)
}

func (h *Hooks) ExchangeCompleted(seq uint64, took time.Duration, requestBytes int) {
	if h.l == nil || !sample(h.opts.CompleteEvery, &h.completeCtr) {
		return
	}
	h.l.Info("telepeer.exchange_completed",
		"seq", seq,
		"took", took,
		"bytes", requestBytes)
}

func (h *Hooks) ExchangeFailed(seq uint64, state telepeer.State, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("telepeer.exchange_failed",
		"seq", seq,
		"state", state.String(),
		"err", err)
}

func (h *Hooks) SequenceReused(session string, seq uint64) {
	if h.l == nil {
		return
	}
	h.l.Warn("telepeer.sequence_reused",
		"session", h.redact(session),
		"seq", seq)
}

func (h *Hooks) JournalSetRejected(key string) {
	if h.l == nil {
		return
	}
	h.l.Warn("telepeer.journal_set_rejected",
		"key", h.redact(key))
}
