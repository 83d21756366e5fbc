package asynchook

import (
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/telepeer"
)

type countHooks struct {
	telepeer.NopHooks
	mu    sync.Mutex
	steps int
	block chan struct{}
}

func (h *countHooks) StepCompleted(uint64, telepeer.State, time.Duration) {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	h.steps++
	h.mu.Unlock()
}

func TestForwardsAndDrainsOnClose(t *testing.T) {
	inner := &countHooks{}
	h := New(inner, 2, 64)
	for i := 0; i < 50; i++ {
		h.StepCompleted(uint64(i), telepeer.RequestSent, time.Millisecond)
	}
	h.Close()
	if inner.steps != 50 {
		t.Fatalf("steps=%d want 50", inner.steps)
	}
	h.Close() // idempotent
}

func TestDropsWhenFull(t *testing.T) {
	inner := &countHooks{block: make(chan struct{})}
	h := New(inner, 1, 1)
	for i := 0; i < 10; i++ {
		h.StepCompleted(uint64(i), telepeer.AckSent, 0)
	}
	close(inner.block)
	h.Close()
	if h.Dropped() == 0 {
		t.Fatalf("expected drops with a blocked worker and queue of 1")
	}
	if got := uint64(inner.steps) + h.Dropped(); got != 10 {
		t.Fatalf("delivered+dropped=%d want 10", got)
	}

	h.ExchangeFailed(1, telepeer.Idle, nil) // after Close: dropped, no panic
	if h.Dropped() == 0 {
		t.Fatalf("post-Close events must count as dropped")
	}
}
