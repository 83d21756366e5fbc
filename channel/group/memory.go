package group

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrBusClosed = errors.New("group: bus closed")

// MemoryBus is an in-process Bus. Slow subscribers drop messages once their
// buffer is full.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	buffer int
	closed bool
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus returns a bus whose subscribers buffer up to buffer messages.
func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &MemoryBus{subs: make(map[string]map[*memorySub]struct{}), buffer: buffer}
}

func (b *MemoryBus) Publish(_ context.Context, group string, msg []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	for s := range b.subs[group] {
		cp := append([]byte(nil), msg...)
		select {
		case s.ch <- cp:
		default: // drop
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, group string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	s := &memorySub{bus: b, group: group, ch: make(chan []byte, b.buffer), done: make(chan struct{})}
	if b.subs[group] == nil {
		b.subs[group] = make(map[*memorySub]struct{})
	}
	b.subs[group][s] = struct{}{}
	return s, nil
}

func (b *MemoryBus) remove(s *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[s.group], s)
	if len(b.subs[s.group]) == 0 {
		delete(b.subs, s.group)
	}
}

// Close ends every subscription.
func (b *MemoryBus) Close(context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*memorySub
	for _, m := range b.subs {
		for s := range m {
			subs = append(subs, s)
		}
	}
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.once.Do(func() { close(s.done) })
	}
	return nil
}

type memorySub struct {
	bus   *MemoryBus
	group string
	ch    chan []byte
	done  chan struct{}
	once  sync.Once
}

func (s *memorySub) Next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var expire <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}
	select {
	case b := <-s.ch:
		return b, nil
	case <-expire:
		return nil, ErrNoMessage
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrBusClosed
	}
}

func (s *memorySub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.bus.remove(s)
	})
	return nil
}
