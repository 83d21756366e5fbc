package telepeer

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The peer calls them inline on every exchange.
type Hooks interface {
	// One protocol step finished; state is the state it reached.
	StepCompleted(seq uint64, state State, took time.Duration)

	// All four steps finished. requestBytes is the encoded request size.
	ExchangeCompleted(seq uint64, took time.Duration, requestBytes int)

	// An exchange was aborted; state is the last state it reached.
	ExchangeFailed(seq uint64, state State, err error)

	// The journal already held this sequence for the session.
	SequenceReused(session string, seq uint64)

	// Provider returned ok=false on a journal Set (backpressure/eviction).
	JournalSetRejected(key string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) StepCompleted(uint64, State, time.Duration)   {}
func (NopHooks) ExchangeCompleted(uint64, time.Duration, int) {}
func (NopHooks) ExchangeFailed(uint64, State, error)          {}
func (NopHooks) SequenceReused(string, uint64)                {}
func (NopHooks) JournalSetRejected(string)                    {}
