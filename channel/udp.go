package channel

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/unkn0wn-root/telepeer/internal/wire"
)

// Datagram transport: one message per datagram. Datagrams that do not
// decode, or carry the wrong kind, are dropped.

func (e *endpoint[R]) datagramSize() int {
	return wire.HeaderLen + e.opt.MaxMessageBytes + 1
}

type udpResponder struct {
	endpoint[net.Addr]
	turn replyTurn[net.Addr]

	bindMu sync.Mutex
	pc     net.PacketConn
}

var _ Responder = (*udpResponder)(nil)

func newUDPResponder(opt Options) *udpResponder {
	return &udpResponder{endpoint: newEndpoint[net.Addr](opt)}
}

func (r *udpResponder) Bind(ctx context.Context, addr string) error {
	_, hostport, err := ParseAddr(addr)
	if err != nil {
		return &TransportError{Op: "bind", Addr: addr, Err: err}
	}
	r.bindMu.Lock()
	defer r.bindMu.Unlock()
	if r.pc != nil {
		return &TransportError{Op: "bind", Addr: addr, Err: errors.New("already bound")}
	}
	if r.closed() {
		return ErrClosed
	}
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", hostport)
	if err != nil {
		return &TransportError{Op: "bind", Addr: addr, Err: err}
	}
	if !r.track(pc) {
		return ErrClosed
	}
	r.pc = pc
	r.wg.Add(1)
	go r.readLoop(pc)
	return nil
}

func (r *udpResponder) Addr() string {
	r.bindMu.Lock()
	defer r.bindMu.Unlock()
	if r.pc == nil {
		return ""
	}
	return formatAddr("udp", r.pc.LocalAddr())
}

func (r *udpResponder) conn() net.PacketConn {
	r.bindMu.Lock()
	defer r.bindMu.Unlock()
	return r.pc
}

func (r *udpResponder) readLoop(pc net.PacketConn) {
	defer r.wg.Done()
	buf := make([]byte, r.datagramSize())
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if r.closed() || isClosedErr(err) {
				return
			}
			continue
		}
		msg := append([]byte(nil), buf[:n]...)
		kind, frames, err := wire.Decode(msg)
		if err != nil || kind != wire.KindRequest {
			continue
		}
		if !r.deliver(envelope[net.Addr]{frames: frames, from: from}) {
			return
		}
	}
}

func (r *udpResponder) Receive(ctx context.Context) ([][]byte, error) {
	if r.closed() {
		return nil, ErrClosed
	}
	if err := r.turn.checkReceive(); err != nil {
		return nil, err
	}
	if r.conn() == nil {
		return nil, &TransportError{Op: "receive", Err: errNotReady}
	}
	env, err := r.take(ctx, "receive")
	if err != nil {
		return nil, err
	}
	r.turn.received(env.from)
	return env.frames, nil
}

func (r *udpResponder) Send(ctx context.Context, frames ...[]byte) error {
	if r.closed() {
		return ErrClosed
	}
	to, err := r.turn.checkSend()
	if err != nil {
		return err
	}
	msg, err := wire.Encode(wire.KindReply, frames)
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	pc := r.conn()
	if err := pc.SetWriteDeadline(r.writeDeadline(ctx)); err != nil {
		return ioErr("send", to.String(), r.closed(), err)
	}
	if _, err := pc.WriteTo(msg, to); err != nil {
		return ioErr("send", to.String(), r.closed(), err)
	}
	r.turn.sent()
	return nil
}

func (r *udpResponder) Close() error { return r.shutdown() }

type udpRequester struct {
	endpoint[struct{}]
	turn requestTurn

	connMu sync.Mutex
	conn   net.Conn
	addr   string
}

var _ Requester = (*udpRequester)(nil)

func newUDPRequester(opt Options) *udpRequester {
	return &udpRequester{endpoint: newEndpoint[struct{}](opt)}
}

func (r *udpRequester) Connect(ctx context.Context, addr string) error {
	_, hostport, err := ParseAddr(addr)
	if err != nil {
		return &TransportError{Op: "connect", Addr: addr, Err: err}
	}
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != nil {
		return &TransportError{Op: "connect", Addr: addr, Err: errors.New("already connected")}
	}
	if r.closed() {
		return ErrClosed
	}
	d := net.Dialer{}
	if r.opt.ConnectTimeout > 0 {
		d.Timeout = r.opt.ConnectTimeout
	}
	c, err := d.DialContext(ctx, "udp", hostport)
	if err != nil {
		return &TransportError{Op: "connect", Addr: addr, Err: err}
	}
	if !r.track(c) {
		return ErrClosed
	}
	r.conn, r.addr = c, addr
	r.wg.Add(1)
	go r.readLoop(c)
	return nil
}

func (r *udpRequester) readLoop(c net.Conn) {
	defer r.wg.Done()
	buf := make([]byte, r.datagramSize())
	for {
		n, err := c.Read(buf)
		if err != nil {
			// ICMP port unreachable surfaces here; keep listening
			if r.closed() || isClosedErr(err) {
				return
			}
			continue
		}
		msg := append([]byte(nil), buf[:n]...)
		kind, frames, err := wire.Decode(msg)
		if err != nil || kind != wire.KindReply {
			continue
		}
		if !r.deliver(envelope[struct{}]{frames: frames}) {
			return
		}
	}
}

func (r *udpRequester) Send(ctx context.Context, frames ...[]byte) error {
	if r.closed() {
		return ErrClosed
	}
	if err := r.turn.checkSend(); err != nil {
		return err
	}
	r.connMu.Lock()
	c, addr := r.conn, r.addr
	r.connMu.Unlock()
	if c == nil {
		return &TransportError{Op: "send", Err: errNotReady}
	}
	msg, err := wire.Encode(wire.KindRequest, frames)
	if err != nil {
		return &TransportError{Op: "send", Addr: addr, Err: err}
	}
	if err := c.SetWriteDeadline(r.writeDeadline(ctx)); err != nil {
		return ioErr("send", addr, r.closed(), err)
	}
	if _, err := c.Write(msg); err != nil {
		return ioErr("send", addr, r.closed(), err)
	}
	r.turn.set(true)
	return nil
}

func (r *udpRequester) Receive(ctx context.Context) ([][]byte, error) {
	if r.closed() {
		return nil, ErrClosed
	}
	if err := r.turn.checkReceive(); err != nil {
		return nil, err
	}
	env, err := r.take(ctx, "receive")
	if err != nil {
		return nil, err
	}
	r.turn.set(false)
	return env.frames, nil
}

func (r *udpRequester) Close() error { return r.shutdown() }
