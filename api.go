package telepeer

import (
	"context"
	"time"

	"github.com/unkn0wn-root/telepeer/channel"
	c "github.com/unkn0wn-root/telepeer/codec"
	"github.com/unkn0wn-root/telepeer/packet"
	pr "github.com/unkn0wn-root/telepeer/provider"
)

// Peer owns one bound responder and one requester connected to it, and runs
// exchanges between them. Exchange calls are serialized; Close may be called
// from any goroutine and unblocks a running exchange.
type Peer interface {
	// Addr is the responder's bound address.
	Addr() string
	// Exchange runs the four steps for r and returns what the responder
	// received. Failures come back as *ExchangeError.
	Exchange(ctx context.Context, r packet.Record) (Result, error)
	// Lookup returns the journaled request for seq in this peer's session.
	Lookup(ctx context.Context, seq uint64) (packet.Record, bool, error)
	Close() error
}

// Handler runs on the responder side once a request has been decoded. An
// error aborts the exchange before the ack is sent.
type Handler func(ctx context.Context, r packet.Record) error

// Options configure a Peer.
// Only Address and Codec are required; others have sensible defaults.
type Options struct {
	// Required
	Address string // responder bind URL. e.g. "tcp://*:5555", "udp://127.0.0.1:0"
	Codec   c.Codec[packet.Record]

	Connect    string          // requester target; "" => bound address with wildcard host -> localhost
	Channel    channel.Options // zero fields => channel.DefaultOptions
	Logger     Logger          // if nil, NopLogger is used
	Hooks      Hooks           // if nil, NopHooks is used
	Handler    Handler         // optional
	Journal    pr.Provider     // nil => no journal, no duplicate detection
	JournalTTL time.Duration   // 0 => 10m
	Session    string          // journal namespace; "" => "default"

	// ResyncTimeout bounds how long a failed exchange may spend finishing
	// its open channel turns. 0 => 5s.
	ResyncTimeout time.Duration
}

func New(ctx context.Context, opts Options) (Peer, error) {
	return newPeer(ctx, opts)
}
