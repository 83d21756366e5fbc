// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/telepeer"
//	"github.com/unkn0wn-root/telepeer/codec"
//	asynchook "github.com/unkn0wn-root/telepeer/hooks/async"
//	"github.com/unkn0wn-root/telepeer/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    StepEvery: 100, // sample logs: ~every 100th step
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	peer, _ := telepeer.New(ctx, telepeer.Options{
//	    Address: "tcp://*:5555",
//	    Codec:   codec.FlatBuffers{},
//	    Hooks:   hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/telepeer"
)

// Hooks forwards events to inner on worker goroutines. When the queue is
// full the event is dropped and counted.
type Hooks struct {
	inner   telepeer.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ telepeer.Hooks = (*Hooks)(nil)

func New(inner telepeer.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains the queue and stops the workers. Events sent after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	defer func() {
		// send on closed queue after Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) StepCompleted(seq uint64, s telepeer.State, d time.Duration) {
	h.try(func() { h.inner.StepCompleted(seq, s, d) })
}
func (h *Hooks) ExchangeCompleted(seq uint64, d time.Duration, n int) {
	h.try(func() { h.inner.ExchangeCompleted(seq, d, n) })
}
func (h *Hooks) ExchangeFailed(seq uint64, s telepeer.State, err error) {
	h.try(func() { h.inner.ExchangeFailed(seq, s, err) })
}
func (h *Hooks) SequenceReused(session string, seq uint64) {
	h.try(func() { h.inner.SequenceReused(session, seq) })
}
func (h *Hooks) JournalSetRejected(k string) { h.try(func() { h.inner.JournalSetRejected(k) }) }
