// Package group delivers messages from one Radio to every Dish that joined
// the same group.
//
// Delivery is best effort: a dish that is not joined, or falls behind, misses
// messages. Dish.Receive treats a poll that returns nothing as a missed
// message and polls again.
package group

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/telepeer/channel"
	"github.com/unkn0wn-root/telepeer/internal/wire"
)

// ErrNoMessage is returned by Subscription.Next when a poll times out.
var ErrNoMessage = errors.New("group: no message")

var ErrInvalidGroup = errors.New("group: empty group name")

// Bus moves opaque messages between publishers and subscribers of a group.
type Bus interface {
	Publish(ctx context.Context, group string, msg []byte) error
	Subscribe(ctx context.Context, group string) (Subscription, error)
	Close(ctx context.Context) error
}

// Subscription is one joined group.
type Subscription interface {
	// Next waits up to timeout for a message. It returns ErrNoMessage when
	// the timeout passes first.
	Next(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
}

// Radio publishes framed messages to one group.
type Radio struct {
	bus   Bus
	group string
}

func NewRadio(bus Bus, group string) (*Radio, error) {
	if group == "" {
		return nil, ErrInvalidGroup
	}
	return &Radio{bus: bus, group: group}, nil
}

func (r *Radio) Group() string { return r.group }

// Send publishes frames as one message.
func (r *Radio) Send(ctx context.Context, frames ...[]byte) error {
	msg, err := wire.Encode(wire.KindGroup, frames)
	if err != nil {
		return &channel.TransportError{Op: "publish", Addr: r.group, Err: err}
	}
	if err := r.bus.Publish(ctx, r.group, msg); err != nil {
		return &channel.TransportError{Op: "publish", Addr: r.group, Err: err}
	}
	return nil
}

// DishOptions tune Dish.Receive.
type DishOptions struct {
	// PollTimeout is how long one poll waits. Default 10s.
	PollTimeout time.Duration
	// MaxMissed is how many empty polls in a row Receive tolerates before
	// giving up with *channel.TimeoutError. Zero keeps polling until ctx ends.
	MaxMissed int
	// OnMiss, if set, is called after every empty poll with the running count.
	OnMiss func(missed int)
}

const defaultPollTimeout = 10 * time.Second

// Dish receives what radios publish to its group.
type Dish struct {
	sub   Subscription
	group string
	opt   DishOptions
}

// Join subscribes to group. Messages published before Join returns are not
// delivered.
func Join(ctx context.Context, bus Bus, group string, opt DishOptions) (*Dish, error) {
	if group == "" {
		return nil, ErrInvalidGroup
	}
	if opt.PollTimeout <= 0 {
		opt.PollTimeout = defaultPollTimeout
	}
	sub, err := bus.Subscribe(ctx, group)
	if err != nil {
		return nil, &channel.TransportError{Op: "join", Addr: group, Err: err}
	}
	return &Dish{sub: sub, group: group, opt: opt}, nil
}

func (d *Dish) Group() string { return d.group }

// Receive returns the frames of the next well-formed group message.
// Malformed messages are skipped.
func (d *Dish) Receive(ctx context.Context) ([][]byte, error) {
	missed := 0
	for {
		b, err := d.sub.Next(ctx, d.opt.PollTimeout)
		switch {
		case err == nil:
			kind, frames, err := wire.Decode(b)
			if err != nil || kind != wire.KindGroup {
				continue
			}
			return frames, nil

		case errors.Is(err, ErrNoMessage):
			missed++
			if d.opt.OnMiss != nil {
				d.opt.OnMiss(missed)
			}
			if d.opt.MaxMissed > 0 && missed >= d.opt.MaxMissed {
				return nil, &channel.TimeoutError{
					Op:  fmt.Sprintf("dish receive (%d polls missed)", missed),
					Err: ErrNoMessage,
				}
			}

		case ctx.Err() != nil:
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &channel.TimeoutError{Op: "dish receive", Err: ctx.Err()}
			}
			return nil, ctx.Err()

		default:
			return nil, &channel.TransportError{Op: "receive", Addr: d.group, Err: err}
		}
	}
}

func (d *Dish) Close() error { return d.sub.Close() }
