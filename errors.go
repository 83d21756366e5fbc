package telepeer

import (
	"errors"
	"fmt"
)

var (
	ErrSequenceReused = errors.New("telepeer: sequence already used in this session")
	ErrNoJournal      = errors.New("telepeer: no journal configured")
	ErrClosed         = errors.New("telepeer: peer closed")
	// ErrBroken is returned by Exchange after an earlier exchange failed
	// midway and its open turns could not be finished.
	ErrBroken = errors.New("telepeer: peer left mid-exchange by an earlier failure")
)

// ExchangeError reports the exchange that failed, the last state it reached
// and the cause.
type ExchangeError struct {
	Sequence uint64
	State    State
	Err      error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("telepeer: exchange seq=%d failed after %s: %v", e.Sequence, e.State, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }
