// Package seqstore hands out per-session sequence numbers.
//
// Within one session, Next never returns the same value twice and values
// only grow. The first value of a fresh session is 0.
package seqstore

import (
	"context"
	"errors"
	"time"
)

// ErrExhausted is returned once a session has used every uint64.
var ErrExhausted = errors.New("seqstore: sequence space exhausted")

// Store abstracts where sequence counters live.
// Use Local (default) for in-process counters, or Redis to share a session
// between processes.
type Store interface {
	// Next reserves and returns the next sequence of session.
	Next(ctx context.Context, session string) (uint64, error)
	// Issued returns how many sequences session has handed out; missing => 0.
	Issued(ctx context.Context, session string) (uint64, error)
	// Cleanup prunes idle sessions if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
