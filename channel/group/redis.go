package group

import (
	"context"
	"errors"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var ErrNilClient = errors.New("redis bus: nil client")

const defaultPrefix = "telepeer:group:"

// RedisBus carries groups over Redis pub/sub. Every group maps to one
// channel named Prefix+group.
type RedisBus struct {
	rdb         goredis.UniversalClient
	prefix      string
	closeClient bool
}

var _ Bus = (*RedisBus)(nil)

type RedisConfig struct {
	Client      goredis.UniversalClient
	Prefix      string // default "telepeer:group:"
	CloseClient bool   // set true only if this bus exclusively owns the client
}

func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	return &RedisBus{rdb: cfg.Client, prefix: cfg.Prefix, closeClient: cfg.CloseClient}, nil
}

func (b *RedisBus) Publish(ctx context.Context, group string, msg []byte) error {
	return b.rdb.Publish(ctx, b.prefix+group, msg).Err()
}

// Subscribe returns once Redis confirmed the subscription.
func (b *RedisBus) Subscribe(ctx context.Context, group string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, b.prefix+group)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return &redisSub{ps: ps}, nil
}

// Close releases the underlying redis client only when this bus owns it.
func (b *RedisBus) Close(context.Context) error {
	if b.closeClient {
		if err := b.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

type redisSub struct {
	ps *goredis.PubSub
}

func (s *redisSub) Next(ctx context.Context, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if timeout > 0 && left <= 0 {
			return nil, ErrNoMessage
		}
		if timeout <= 0 {
			left = 0
		}
		v, err := s.ps.ReceiveTimeout(ctx, left)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() && ctx.Err() == nil {
				return nil, ErrNoMessage
			}
			return nil, err
		}
		switch m := v.(type) {
		case *goredis.Message:
			return []byte(m.Payload), nil
		default:
			// subscription confirmations and pongs
		}
	}
}

func (s *redisSub) Close() error { return s.ps.Close() }
