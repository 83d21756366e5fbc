package seqstore

import (
	"context"
	"math"
	"sync"
	"time"
)

type localEntry struct {
	Issued    uint64
	UpdatedAt time.Time
}

// Local keeps counters in-process (default).
// Optional cleanup loop to prune long-idle sessions. A pruned session starts
// over at 0, so only enable retention for sessions that will not come back.
type Local struct {
	mu       sync.Mutex
	sessions map[string]localEntry
	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

var _ Store = (*Local)(nil)

func NewLocal(cleanupInterval, retention time.Duration) *Local {
	s := &Local{sessions: make(map[string]localEntry)}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *Local) Next(_ context.Context, session string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.sessions[session]
	if e.Issued == math.MaxUint64 {
		return 0, ErrExhausted
	}
	seq := e.Issued
	e.Issued++
	e.UpdatedAt = now
	s.sessions[session] = e
	return seq, nil
}

func (s *Local) Issued(_ context.Context, session string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[session].Issued, nil
}

func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	for k, e := range s.sessions {
		if !e.UpdatedAt.IsZero() && e.UpdatedAt.Before(cutoff) {
			delete(s.sessions, k)
		}
	}
	s.mu.Unlock()
}

func (s *Local) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop() // stop ticker before waiting
			s.wg.Wait()
		}
	})
	return nil
}
