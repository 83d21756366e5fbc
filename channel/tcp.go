package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/unkn0wn-root/telepeer/internal/wire"
)

// streamConn is one TCP connection with its buffered reader.
type streamConn struct {
	net.Conn
	r   *bufio.Reader
	wmu sync.Mutex
}

func newStreamConn(c net.Conn) *streamConn {
	if tcp, ok := c.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetReadBuffer(16 << 10)
		_ = tcp.SetWriteBuffer(16 << 10)
	}
	return &streamConn{Conn: c, r: bufio.NewReaderSize(c, 16<<10)}
}

// write sends one framed message. Encoding failures surface as
// wire.ErrCorrupt or wire.ErrTooLarge.
func (c *streamConn) write(deadline time.Time, kind wire.Kind, frames [][]byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return wire.WriteMessage(c.Conn, kind, frames)
}

// readLoop decodes messages of kind from c until it fails or the endpoint
// closes. A read error is delivered once when report is set.
func readLoop[R any](e *endpoint[R], c *streamConn, kind wire.Kind, from R, report bool) {
	defer e.wg.Done()
	for {
		msg, err := wire.ReadMessage(c.r, e.opt.MaxMessageBytes)
		if err == nil {
			var k wire.Kind
			var frames [][]byte
			k, frames, err = wire.Decode(msg)
			if err == nil && k != kind {
				err = fmt.Errorf("%w: got %s message, want %s", wire.ErrCorrupt, k, kind)
			}
			if err == nil {
				if !e.deliver(envelope[R]{frames: frames, from: from}) {
					return
				}
				continue
			}
		}
		// the stream cannot be resynchronised after a bad message
		_ = c.Close()
		e.untrack(c)
		if report && !e.closed() {
			e.deliver(envelope[R]{err: &TransportError{Op: "receive", Addr: c.RemoteAddr().String(), Err: err}})
		}
		return
	}
}

type tcpResponder struct {
	endpoint[*streamConn]
	turn replyTurn[*streamConn]

	bindMu sync.Mutex
	ln     net.Listener
}

var _ Responder = (*tcpResponder)(nil)

func newTCPResponder(opt Options) *tcpResponder {
	return &tcpResponder{endpoint: newEndpoint[*streamConn](opt)}
}

func (r *tcpResponder) Bind(ctx context.Context, addr string) error {
	_, hostport, err := ParseAddr(addr)
	if err != nil {
		return &TransportError{Op: "bind", Addr: addr, Err: err}
	}
	r.bindMu.Lock()
	defer r.bindMu.Unlock()
	if r.ln != nil {
		return &TransportError{Op: "bind", Addr: addr, Err: errors.New("already bound")}
	}
	if r.closed() {
		return ErrClosed
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", hostport)
	if err != nil {
		return &TransportError{Op: "bind", Addr: addr, Err: err}
	}
	if !r.track(ln) {
		return ErrClosed
	}
	r.ln = ln
	r.wg.Add(1)
	go r.acceptLoop(ln)
	return nil
}

func (r *tcpResponder) Addr() string {
	r.bindMu.Lock()
	defer r.bindMu.Unlock()
	if r.ln == nil {
		return ""
	}
	return formatAddr("tcp", r.ln.Addr())
}

func (r *tcpResponder) acceptLoop(ln net.Listener) {
	defer r.wg.Done()
	for {
		c, err := ln.Accept()
		if err != nil {
			if r.closed() || isClosedErr(err) {
				return
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		sc := newStreamConn(c)
		if !r.track(sc) {
			return
		}
		r.wg.Add(1)
		go readLoop[*streamConn](&r.endpoint, sc, wire.KindRequest, sc, false)
	}
}

func (r *tcpResponder) Receive(ctx context.Context) ([][]byte, error) {
	if r.closed() {
		return nil, ErrClosed
	}
	if err := r.turn.checkReceive(); err != nil {
		return nil, err
	}
	if r.Addr() == "" {
		return nil, &TransportError{Op: "receive", Err: errNotReady}
	}
	env, err := r.take(ctx, "receive")
	if err != nil {
		return nil, err
	}
	r.turn.received(env.from)
	return env.frames, nil
}

func (r *tcpResponder) Send(ctx context.Context, frames ...[]byte) error {
	if r.closed() {
		return ErrClosed
	}
	to, err := r.turn.checkSend()
	if err != nil {
		return err
	}
	if err := to.write(r.writeDeadline(ctx), wire.KindReply, frames); err != nil {
		return ioErr("send", to.RemoteAddr().String(), r.closed(), err)
	}
	r.turn.sent()
	return nil
}

func (r *tcpResponder) Close() error { return r.shutdown() }

type tcpRequester struct {
	endpoint[struct{}]
	turn requestTurn

	connMu sync.Mutex
	conn   *streamConn
	addr   string
}

var _ Requester = (*tcpRequester)(nil)

func newTCPRequester(opt Options) *tcpRequester {
	return &tcpRequester{endpoint: newEndpoint[struct{}](opt)}
}

func (r *tcpRequester) Connect(ctx context.Context, addr string) error {
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
	c, err := d.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return &TransportError{Op: "connect", Addr: addr, Err: err}
	}
	sc := newStreamConn(c)
	if !r.track(sc) {
		return ErrClosed
	}
	r.conn, r.addr = sc, addr
	r.wg.Add(1)
	go readLoop[struct{}](&r.endpoint, sc, wire.KindReply, struct{}{}, true)
	return nil
}

func (r *tcpRequester) connected() (*streamConn, string) {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	return r.conn, r.addr
}

func (r *tcpRequester) Send(ctx context.Context, frames ...[]byte) error {
	if r.closed() {
		return ErrClosed
	}
	if err := r.turn.checkSend(); err != nil {
		return err
	}
	conn, addr := r.connected()
	if conn == nil {
		return &TransportError{Op: "send", Err: errNotReady}
	}
	if err := conn.write(r.writeDeadline(ctx), wire.KindRequest, frames); err != nil {
		return ioErr("send", addr, r.closed(), err)
	}
	r.turn.set(true)
	return nil
}

func (r *tcpRequester) Receive(ctx context.Context) ([][]byte, error) {
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

func (r *tcpRequester) Close() error { return r.shutdown() }
