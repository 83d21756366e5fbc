package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/telepeer"
	"github.com/unkn0wn-root/telepeer/channel/group"
	"github.com/unkn0wn-root/telepeer/codec"
	"github.com/unkn0wn-root/telepeer/packet"
	"github.com/unkn0wn-root/telepeer/seqstore"
)

type groupFlags struct {
	redis      string
	group      string
	codec      string
	logBackend string
	logLevel   string
}

func (g *groupFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&g.redis, "redis", "a", "localhost:6379", "redis address")
	f.StringVarP(&g.group, "group", "g", "demo", "group name")
	f.StringVar(&g.codec, "codec", "flatbuffers", fmt.Sprintf("one of %v", codec.Names()))
	f.StringVar(&g.logBackend, "log-backend", "zap", "zap, logrus or slog")
	f.StringVar(&g.logLevel, "log-level", "info", "debug, info, warn, error or off")
}

func (g *groupFlags) open() (*group.RedisBus, codec.Frames[packet.Record], error) {
	cd, err := codec.ByName(g.codec, codec.Config{})
	if err != nil {
		return nil, codec.Frames[packet.Record]{}, err
	}
	bus, err := group.NewRedisBus(group.RedisConfig{
		Client:      redis.NewClient(&redis.Options{Addr: g.redis}),
		CloseClient: true,
	})
	if err != nil {
		return nil, codec.Frames[packet.Record]{}, err
	}
	return bus, codec.Frames[packet.Record]{Inner: cd}, nil
}

func newRadioCmd() *cobra.Command {
	var (
		g        groupFlags
		iters    int
		veclen   int
		name     string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "radio",
		Short: "Publish telemetry records to a group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, flush, err := newLogger(g.logBackend, g.logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = flush() }()

			bus, fr, err := g.open()
			if err != nil {
				return err
			}
			defer func() { _ = bus.Close(context.Background()) }()

			radio, err := group.NewRadio(bus, g.group)
			if err != nil {
				return err
			}
			return runRadio(cmd.Context(), radio, fr, radioOptions{
				iters: iters, veclen: veclen, name: name, interval: interval,
			}, log)
		},
	}
	g.bind(cmd)
	f := cmd.Flags()
	f.IntVarP(&iters, "iters", "i", 10, "records to publish")
	f.IntVarP(&veclen, "veclen", "l", 20, "samples per record")
	f.StringVarP(&name, "name", "n", "telepeer demo", "record label")
	f.DurationVar(&interval, "interval", time.Second, "delay between records")
	return cmd
}

type radioOptions struct {
	iters    int
	veclen   int
	name     string
	interval time.Duration
}

func runRadio(ctx context.Context, radio *group.Radio, fr codec.Frames[packet.Record], opt radioOptions, log telepeer.Logger) error {
	seq := seqstore.NewLocal(0, 0)
	defer func() { _ = seq.Close(context.Background()) }()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 0; i < opt.iters; i++ {
		n, err := seq.Next(ctx, radio.Group())
		if err != nil {
			return err
		}
		rec := packet.New(n, packet.Timestamp(time.Now()), opt.name, packet.Samples(rng, opt.veclen))
		frames, err := fr.EncodeFrames(rec)
		if err != nil {
			return err
		}
		if err := radio.Send(ctx, frames...); err != nil {
			return err
		}
		log.Info("published", telepeer.Fields{"group": radio.Group(), "seq": n})

		if i+1 < opt.iters && opt.interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opt.interval):
			}
		}
	}
	return nil
}

func newDishCmd() *cobra.Command {
	var (
		g         groupFlags
		poll      time.Duration
		maxMissed int
		opt       dishOptions
	)
	cmd := &cobra.Command{
		Use:   "dish",
		Short: "Join a group and print the records it receives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, flush, err := newLogger(g.logBackend, g.logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = flush() }()

			bus, fr, err := g.open()
			if err != nil {
				return err
			}
			defer func() { _ = bus.Close(context.Background()) }()

			dish, err := group.Join(cmd.Context(), bus, g.group, group.DishOptions{
				PollTimeout: poll,
				MaxMissed:   maxMissed,
				OnMiss: func(missed int) {
					log.Warn("missed poll", telepeer.Fields{"group": g.group, "missed": missed})
				},
			})
			if err != nil {
				return err
			}
			defer dish.Close()
			_, err = runDish(cmd.Context(), dish, fr, opt, cmd.OutOrStdout(), log)
			return err
		},
	}
	g.bind(cmd)
	f := cmd.Flags()
	f.DurationVar(&poll, "poll", 10*time.Second, "how long one poll waits")
	f.IntVar(&maxMissed, "max-missed", 0, "give up after this many empty polls in a row (0 = never)")
	f.IntVarP(&opt.count, "count", "c", 0, "stop after this many records (0 = until interrupted)")
	f.IntVar(&opt.maxBad, "max-bad", 0, "fail after this many undecodable records (0 = drop and count them)")
	return cmd
}

type dishOptions struct {
	count  int // stop after this many records, 0 = until cancelled
	maxBad int // fail after this many undecodable records, 0 = drop them all
}

type dishStats struct {
	received int
	dropped  int
}

func runDish(ctx context.Context, dish *group.Dish, fr codec.Frames[packet.Record], opt dishOptions, out io.Writer, log telepeer.Logger) (dishStats, error) {
	var st dishStats
	defer func() {
		log.Info("dish stopped", telepeer.Fields{"group": dish.Group(), "received": st.received, "dropped": st.dropped})
	}()
	for opt.count == 0 || st.received < opt.count {
		frames, err := dish.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return st, nil
			}
			return st, err
		}
		rec, err := fr.DecodeFrames(frames)
		if err != nil {
			st.dropped++
			if opt.maxBad > 0 && st.dropped >= opt.maxBad {
				return st, fmt.Errorf("dish %s: %d undecodable records, last: %w", dish.Group(), st.dropped, err)
			}
			log.Warn("dropping undecodable record", telepeer.Fields{"group": dish.Group(), "dropped": st.dropped, "err": err})
			continue
		}
		st.received++
		if err := rec.Dump(out); err != nil {
			return st, err
		}
	}
	return st, nil
}
