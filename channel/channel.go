// Package channel provides the request/reply messaging used by a peer.
//
// A Responder binds an address and answers each request it receives with
// exactly one reply, routed back to whoever sent the request. A Requester
// connects to a responder and alternates strictly between Send and Receive.
// Out-of-turn calls fail with *ProtocolViolationError and leave the channel
// untouched.
//
// Messages are sequences of frames. Addresses are URLs: tcp://host:port or
// udp://host:port, where host "*" binds every interface.
package channel

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Channel is the part shared by both roles.
type Channel interface {
	// Send transmits one message made of frames.
	Send(ctx context.Context, frames ...[]byte) error
	// Receive blocks until a message arrives, the receive timeout or ctx
	// deadline passes (*TimeoutError) or the channel is closed (ErrClosed).
	Receive(ctx context.Context) ([][]byte, error)
	// Close releases every socket. Safe to call more than once.
	Close() error
}

// Requester is the sending side of a request/reply pair.
type Requester interface {
	Channel
	Connect(ctx context.Context, addr string) error
}

// Responder is the answering side of a request/reply pair.
type Responder interface {
	Channel
	Bind(ctx context.Context, addr string) error
	// Addr is the bound address as a URL, empty before Bind.
	Addr() string
}

// Options tune a channel. Zero fields take their DefaultOptions value.
type Options struct {
	// ReceiveTimeout bounds every Receive. Negative disables it.
	ReceiveTimeout time.Duration
	// SendTimeout bounds every socket write. Negative disables it.
	SendTimeout time.Duration
	// ConnectTimeout bounds Connect. Negative disables it.
	ConnectTimeout time.Duration
	// MaxMessageBytes bounds the body of one incoming message.
	MaxMessageBytes int
	// InboxSize is how many received messages may wait for Receive.
	InboxSize int
}

func DefaultOptions() Options {
	return Options{
		ReceiveTimeout:  10 * time.Second,
		SendTimeout:     5 * time.Second,
		ConnectTimeout:  5 * time.Second,
		MaxMessageBytes: 64 << 10,
		InboxSize:       16,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReceiveTimeout == 0 {
		o.ReceiveTimeout = d.ReceiveTimeout
	}
	if o.SendTimeout == 0 {
		o.SendTimeout = d.SendTimeout
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = d.ConnectTimeout
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = d.MaxMessageBytes
	}
	if o.InboxSize <= 0 {
		o.InboxSize = d.InboxSize
	}
	return o
}

// NewRequester returns an unconnected requester for scheme ("tcp" or "udp").
func NewRequester(scheme string, opt Options) (Requester, error) {
	switch scheme {
	case "tcp":
		return newTCPRequester(opt), nil
	case "udp":
		return newUDPRequester(opt), nil
	}
	return nil, fmt.Errorf("channel: unsupported scheme %q", scheme)
}

// NewResponder returns an unbound responder for scheme ("tcp" or "udp").
func NewResponder(scheme string, opt Options) (Responder, error) {
	switch scheme {
	case "tcp":
		return newTCPResponder(opt), nil
	case "udp":
		return newUDPResponder(opt), nil
	}
	return nil, fmt.Errorf("channel: unsupported scheme %q", scheme)
}

// Listen creates a responder for addr's scheme and binds it.
// Nothing stays open when it fails.
func Listen(ctx context.Context, addr string, opt Options) (Responder, error) {
	scheme, _, err := ParseAddr(addr)
	if err != nil {
		return nil, &TransportError{Op: "bind", Addr: addr, Err: err}
	}
	r, err := NewResponder(scheme, opt)
	if err != nil {
		return nil, &TransportError{Op: "bind", Addr: addr, Err: err}
	}
	if err := r.Bind(ctx, addr); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// Dial creates a requester for addr's scheme and connects it.
// Nothing stays open when it fails.
func Dial(ctx context.Context, addr string, opt Options) (Requester, error) {
	scheme, _, err := ParseAddr(addr)
	if err != nil {
		return nil, &TransportError{Op: "connect", Addr: addr, Err: err}
	}
	r, err := NewRequester(scheme, opt)
	if err != nil {
		return nil, &TransportError{Op: "connect", Addr: addr, Err: err}
	}
	if err := r.Connect(ctx, addr); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// ParseAddr splits a channel URL into scheme and a host:port usable by the
// net package. Host "*" becomes the empty host.
func ParseAddr(addr string) (scheme, hostport string, err error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("address %q: want scheme://host:port", addr)
	}
	host, port := u.Hostname(), u.Port()
	if port == "" {
		return "", "", fmt.Errorf("address %q: missing port", addr)
	}
	if host == "*" {
		host = ""
	}
	return u.Scheme, net.JoinHostPort(host, port), nil
}

// Dialable rewrites a bound address so a local requester can reach it:
// wildcard and unspecified hosts become localhost.
func Dialable(addr string) (string, error) {
	scheme, hostport, err := ParseAddr(addr)
	if err != nil {
		return "", err
	}
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", err
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return scheme + "://" + net.JoinHostPort(host, port), nil
}

func formatAddr(scheme string, a net.Addr) string {
	if a == nil {
		return ""
	}
	return scheme + "://" + a.String()
}
