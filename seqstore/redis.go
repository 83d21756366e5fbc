package seqstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares session counters across processes. Every session is one
// INCR counter; the sequence handed out is the counter value minus one.
// Optionally, a TTL is refreshed on every Next so idle sessions expire.
type Redis struct {
	rdb         redis.UniversalClient
	ns          string
	ttl         time.Duration
	closeClient bool
}

var _ Store = (*Redis)(nil)

type RedisConfig struct {
	Client      redis.UniversalClient
	Namespace   string
	TTL         time.Duration // 0 disables expiry
	CloseClient bool          // set true only if this store exclusively owns the client
}

func NewRedis(cfg RedisConfig) *Redis {
	return &Redis{rdb: cfg.Client, ns: cfg.Namespace, ttl: cfg.TTL, closeClient: cfg.CloseClient}
}

func (s *Redis) key(session string) string { return "seq:" + s.ns + ":" + session }

// Next atomically increments the counter and (optionally) refreshes TTL.
// When ttl > 0, INCR + EXPIRE are pipelined in a single round-trip.
func (s *Redis) Next(ctx context.Context, session string) (uint64, error) {
	k := s.key(session)

	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return issuedToSeq(v)
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return issuedToSeq(incr.Val())
}

// INCR works on signed 64-bit integers, so Redis sessions top out at MaxInt64.
func issuedToSeq(v int64) (uint64, error) {
	if v <= 0 {
		return 0, ErrExhausted
	}
	return uint64(v - 1), nil
}

// Issued returns the counter; missing keys are treated as 0.
func (s *Redis) Issued(ctx context.Context, session string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(session)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(res, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis seq parse: %w", err)
	}
	return u, nil
}

// Cleanup is not applicable for Redis (Redis handles expiry if TTL is set).
func (s *Redis) Cleanup(time.Duration) {}

// Close closes the underlying Redis client when this store owns it.
func (s *Redis) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	return s.rdb.Close()
}
