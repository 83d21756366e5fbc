package telepeer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/telepeer/channel"
	c "github.com/unkn0wn-root/telepeer/codec"
	"github.com/unkn0wn-root/telepeer/internal/util"
	"github.com/unkn0wn-root/telepeer/packet"
	pr "github.com/unkn0wn-root/telepeer/provider"
)

const (
	defaultJournalTTL    = 10 * time.Minute
	defaultResyncTimeout = 5 * time.Second
	defaultSession       = "default"
	journalPrefix        = "journal"
)

type peer struct {
	req     channel.Requester
	rep     channel.Responder
	codec   c.Codec[packet.Record]
	frames  c.Frames[packet.Record]
	log     Logger
	hooks   Hooks
	handler Handler
	journal pr.Provider
	ttl     time.Duration
	session string
	resync  time.Duration

	mu     sync.Mutex // one exchange at a time
	broken error
	closed atomic.Bool
	once   sync.Once
	err    error
}

func newPeer(ctx context.Context, opts Options) (*peer, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("telepeer: address is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("telepeer: codec is required")
	}

	p := &peer{
		codec:   opts.Codec,
		frames:  c.Frames[packet.Record]{Inner: opts.Codec},
		handler: opts.Handler,
		journal: opts.Journal,
	}

	// defaults
	p.log = coalesce[Logger](opts.Logger, NopLogger{})
	p.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	p.ttl = coalesce[time.Duration](opts.JournalTTL, defaultJournalTTL)
	p.session = coalesce[string](opts.Session, defaultSession)
	p.resync = coalesce[time.Duration](opts.ResyncTimeout, defaultResyncTimeout)

	rep, err := channel.Listen(ctx, opts.Address, opts.Channel)
	if err != nil {
		return nil, err
	}
	target := opts.Connect
	if target == "" {
		if target, err = channel.Dialable(rep.Addr()); err != nil {
			_ = rep.Close()
			return nil, err
		}
	}
	req, err := channel.Dial(ctx, target, opts.Channel)
	if err != nil {
		_ = rep.Close()
		return nil, err
	}
	p.req, p.rep = req, rep

	p.log.Info("peer ready", Fields{"bind": rep.Addr(), "connect": target, "session": p.session})
	return p, nil
}

func (p *peer) Addr() string { return p.rep.Addr() }

func (p *peer) Exchange(ctx context.Context, r packet.Record) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	x := p.begin(r.Sequence)
	if p.closed.Load() {
		return Result{}, &ExchangeError{Sequence: r.Sequence, State: Idle, Err: ErrClosed}
	}
	if p.broken != nil {
		return Result{}, &ExchangeError{Sequence: r.Sequence, State: Idle, Err: fmt.Errorf("%w: %v", ErrBroken, p.broken)}
	}

	res, err := p.run(ctx, x, r)
	if err != nil {
		xerr := x.fail(err)
		if rerr := p.realign(x); rerr != nil {
			p.broken = rerr
			p.log.Error("peer out of step after failed exchange", Fields{"seq": x.seq, "state": x.state.String(), "err": rerr})
		}
		return Result{}, xerr
	}
	return res, nil
}

// realign finishes the turns a failed exchange left open so the next one
// starts from Idle on both channels: the responder takes the request if it
// has not yet, replies NakToken, and the requester drains that reply (or a
// late ack).
func (p *peer) realign(x *exchange) error {
	if !x.outstanding && !x.owed {
		return nil
	}
	if p.closed.Load() {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.resync)
	defer cancel()

	if x.outstanding && !x.received {
		if _, err := p.rep.Receive(ctx); err != nil {
			return fmt.Errorf("take pending request: %w", err)
		}
		x.received, x.owed = true, true
	}
	if x.owed {
		if err := p.rep.Send(ctx, NakToken); err != nil {
			return fmt.Errorf("send nak: %w", err)
		}
		x.owed = false
	}
	if x.outstanding {
		if _, err := p.req.Receive(ctx); err != nil {
			return fmt.Errorf("drain reply: %w", err)
		}
		x.outstanding = false
	}
	p.log.Debug("channels realigned after failed exchange", Fields{"seq": x.seq})
	return nil
}

func (p *peer) run(ctx context.Context, x *exchange, r packet.Record) (Result, error) {
	// 1. Idle -> RequestSent
	out, err := p.frames.EncodeFrames(r)
	if err != nil {
		return Result{}, err
	}
	if err := p.req.Send(ctx, out...); err != nil {
		return Result{}, err
	}
	x.outstanding = true
	x.advance(RequestSent)

	// 2. RequestSent -> RequestReceived
	in, err := p.rep.Receive(ctx)
	if err != nil {
		return Result{}, err
	}
	x.received, x.owed = true, true
	got, err := p.frames.DecodeFrames(in)
	if err != nil {
		return Result{}, err
	}
	if err := p.record(ctx, got.Sequence, in[0]); err != nil {
		return Result{}, err
	}
	if p.handler != nil {
		if err := p.handler(ctx, got); err != nil {
			return Result{}, fmt.Errorf("handler: %w", err)
		}
	}
	x.advance(RequestReceived)

	// 3. RequestReceived -> AckSent
	if err := p.rep.Send(ctx, AckToken); err != nil {
		return Result{}, err
	}
	x.owed = false
	x.advance(AckSent)

	// 4. AckSent -> AckReceived
	ack, err := p.req.Receive(ctx)
	if err != nil {
		return Result{}, err
	}
	x.outstanding = false
	x.advance(AckReceived)

	var ackBytes []byte
	if len(ack) > 0 {
		ackBytes = ack[0]
	}
	if len(ack) != 1 || !bytes.Equal(ackBytes, AckToken) {
		p.log.Debug("unexpected ack accepted", Fields{"seq": x.seq, "frames": len(ack)})
	}

	// 5. AckReceived -> Idle
	t := x.done()
	p.hooks.ExchangeCompleted(x.seq, t.Total, len(in[0]))
	p.log.Debug("exchange completed", Fields{"seq": x.seq, "bytes": len(in[0]), "took": t.Total})
	return Result{Request: got, RequestBytes: len(in[0]), Ack: ackBytes, Timings: t}, nil
}

// record journals a received request and rejects a sequence seen before.
func (p *peer) record(ctx context.Context, seq uint64, raw []byte) error {
	if p.journal == nil {
		return nil
	}
	k := util.JournalKey(journalPrefix, p.session, seq)
	_, hit, err := p.journal.Get(ctx, k)
	if err != nil {
		return fmt.Errorf("journal get: %w", err)
	}
	if hit {
		p.hooks.SequenceReused(p.session, seq)
		return ErrSequenceReused
	}
	ok, err := p.journal.Set(ctx, k, append([]byte(nil), raw...), int64(len(raw)), p.ttl)
	if err != nil {
		return fmt.Errorf("journal set: %w", err)
	}
	if !ok {
		p.hooks.JournalSetRejected(k)
		p.log.Debug("journal Set rejected by provider (pressure)", Fields{"seq": seq})
	}
	return nil
}

func (p *peer) Lookup(ctx context.Context, seq uint64) (packet.Record, bool, error) {
	if p.journal == nil {
		return packet.Record{}, false, ErrNoJournal
	}
	raw, ok, err := p.journal.Get(ctx, util.JournalKey(journalPrefix, p.session, seq))
	if err != nil || !ok {
		return packet.Record{}, false, err
	}
	r, err := p.codec.Decode(raw)
	if err != nil {
		return packet.Record{}, false, err
	}
	return r, true, nil
}

// Close releases both channels and the journal. Safe to call multiple times.
func (p *peer) Close() error {
	p.once.Do(func() {
		p.closed.Store(true)
		errs := []error{p.req.Close(), p.rep.Close()}
		if p.journal != nil {
			errs = append(errs, p.journal.Close(context.Background()))
		}
		p.err = errors.Join(errs...)
	})
	return p.err
}
