package telepeer

import (
	"fmt"
	"time"

	"github.com/unkn0wn-root/telepeer/packet"
)

// AckToken is the reply the responder sends for every accepted request.
// The requester accepts any reply bytes as an acknowledgment.
var AckToken = []byte("ACK")

// NakToken is what the responder replies with when it gives up on a request
// it already received, so the requester is not left waiting.
var NakToken = []byte("NAK")

// State is where an exchange stands.
type State uint8

const (
	Idle State = iota
	RequestSent
	RequestReceived
	AckSent
	AckReceived
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case RequestSent:
		return "request_sent"
	case RequestReceived:
		return "request_received"
	case AckSent:
		return "ack_sent"
	case AckReceived:
		return "ack_received"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Timings holds how long each step took, keyed by the state it reached.
type Timings struct {
	RequestSent     time.Duration // encode + send
	RequestReceived time.Duration // receive + decode + journal + handler
	AckSent         time.Duration
	AckReceived     time.Duration
	Total           time.Duration
}

func (t *Timings) set(s State, d time.Duration) {
	switch s {
	case RequestSent:
		t.RequestSent = d
	case RequestReceived:
		t.RequestReceived = d
	case AckSent:
		t.AckSent = d
	case AckReceived:
		t.AckReceived = d
	}
}

// Result is a completed exchange.
type Result struct {
	// Request is the record as the responder decoded it.
	Request      packet.Record
	RequestBytes int
	Ack          []byte
	Timings      Timings
}

// exchange tracks one run through the states.
type exchange struct {
	p       *peer
	seq     uint64
	state   State
	start   time.Time
	mark    time.Time
	timings Timings

	// channel turn bookkeeping for resync
	outstanding bool // requester sent, reply not yet received
	received    bool // responder took the request
	owed        bool // responder took the request, reply not yet sent
}

func (p *peer) begin(seq uint64) *exchange {
	now := time.Now()
	return &exchange{p: p, seq: seq, state: Idle, start: now, mark: now}
}

// advance records reaching s.
func (x *exchange) advance(s State) {
	now := time.Now()
	took := now.Sub(x.mark)
	x.mark = now
	x.state = s
	x.timings.set(s, took)
	x.p.hooks.StepCompleted(x.seq, s, took)
}

func (x *exchange) fail(err error) error {
	x.p.hooks.ExchangeFailed(x.seq, x.state, err)
	x.p.log.Warn("exchange failed", Fields{"seq": x.seq, "state": x.state.String(), "err": err})
	return &ExchangeError{Sequence: x.seq, State: x.state, Err: err}
}

func (x *exchange) done() Timings {
	x.timings.Total = time.Since(x.start)
	return x.timings
}
