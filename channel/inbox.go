package channel

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// envelope is one received message, or a terminal read error.
type envelope[R any] struct {
	frames [][]byte
	from   R
	err    error
}

// endpoint is the lifecycle shared by every transport: socket readers push
// into inbox, Receive takes from it, Close stops both.
type endpoint[R any] struct {
	opt   Options
	inbox chan envelope[R]
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	mu      sync.Mutex
	closers []io.Closer
}

func newEndpoint[R any](opt Options) endpoint[R] {
	opt = opt.withDefaults()
	return endpoint[R]{
		opt:   opt,
		inbox: make(chan envelope[R], opt.InboxSize),
		done:  make(chan struct{}),
	}
}

func (e *endpoint[R]) closed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// track registers c to be closed with the endpoint. It reports false, after
// closing c, when the endpoint is already closed.
func (e *endpoint[R]) track(c io.Closer) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed() {
		_ = c.Close()
		return false
	}
	e.closers = append(e.closers, c)
	return true
}

func (e *endpoint[R]) untrack(c io.Closer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, x := range e.closers {
		if x == c {
			e.closers = append(e.closers[:i], e.closers[i+1:]...)
			return
		}
	}
}

// deliver hands env to Receive. False means the endpoint closed first.
func (e *endpoint[R]) deliver(env envelope[R]) bool {
	select {
	case e.inbox <- env:
		return true
	case <-e.done:
		return false
	}
}

// take waits for the next envelope.
func (e *endpoint[R]) take(ctx context.Context, op string) (envelope[R], error) {
	if e.closed() {
		return envelope[R]{}, ErrClosed
	}
	var expire <-chan time.Time
	if d := e.opt.ReceiveTimeout; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		expire = t.C
	}
	select {
	case env := <-e.inbox:
		if env.err != nil {
			return env, env.err
		}
		return env, nil
	case <-expire:
		return envelope[R]{}, &TimeoutError{Op: op, After: e.opt.ReceiveTimeout}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return envelope[R]{}, &TimeoutError{Op: op, Err: ctx.Err()}
		}
		return envelope[R]{}, ctx.Err()
	case <-e.done:
		return envelope[R]{}, ErrClosed
	}
}

// writeDeadline is the earlier of ctx's deadline and now+SendTimeout.
func (e *endpoint[R]) writeDeadline(ctx context.Context) time.Time {
	dl, ok := ctx.Deadline()
	if d := e.opt.SendTimeout; d > 0 {
		if t := time.Now().Add(d); !ok || t.Before(dl) {
			return t
		}
	}
	if ok {
		return dl
	}
	return time.Time{}
}

// shutdown closes every tracked socket once and waits for the readers.
func (e *endpoint[R]) shutdown() error {
	var errs []error
	e.once.Do(func() {
		e.mu.Lock()
		close(e.done)
		closers := e.closers
		e.closers = nil
		e.mu.Unlock()

		for _, c := range closers {
			if err := c.Close(); err != nil && !isClosedErr(err) {
				errs = append(errs, err)
			}
		}
		e.wg.Wait()
	})
	return errors.Join(errs...)
}
