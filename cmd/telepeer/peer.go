package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/telepeer"
	"github.com/unkn0wn-root/telepeer/channel"
	"github.com/unkn0wn-root/telepeer/codec"
	asynchook "github.com/unkn0wn-root/telepeer/hooks/async"
	"github.com/unkn0wn-root/telepeer/internal/wire"
	"github.com/unkn0wn-root/telepeer/logging"
	"github.com/unkn0wn-root/telepeer/promhooks"
	pr "github.com/unkn0wn-root/telepeer/provider"
	bcp "github.com/unkn0wn-root/telepeer/provider/bigcache"
	rdp "github.com/unkn0wn-root/telepeer/provider/redis"
	rp "github.com/unkn0wn-root/telepeer/provider/ristretto"
	"github.com/unkn0wn-root/telepeer/seqstore"
	"github.com/unkn0wn-root/telepeer/sloghooks"
)

func newPeerCmd() *cobra.Command {
	cfg := defaultPeerConfig()
	var configPath string

	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Run request/ack exchanges between a local requester and responder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := cfg
			if configPath != "" {
				if err := loadPeerConfig(configPath, &c, cmd.Flags().Changed); err != nil {
					return err
				}
			}
			if err := c.validate(); err != nil {
				return err
			}
			return runPeer(cmd.Context(), c, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.IntVarP(&cfg.Iterations, "iters", "i", cfg.Iterations, "number of exchanges")
	f.IntVarP(&cfg.VectorLen, "veclen", "l", cfg.VectorLen, "samples per record")
	f.StringVarP(&cfg.Name, "name", "n", cfg.Name, "record label")
	f.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port the responder binds (0 picks one)")
	f.StringVarP(&cfg.Addr, "addr", "a", cfg.Addr, "host the requester connects to")
	f.StringVar(&cfg.Transport, "transport", cfg.Transport, "tcp or udp")
	f.StringVar(&cfg.Codec, "codec", cfg.Codec, fmt.Sprintf("one of %v", codec.Names()))
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "receive timeout per step")
	f.DurationVar(&cfg.Pause, "pause", cfg.Pause, "pause between exchanges")
	f.StringVar(&cfg.Journal, "journal", cfg.Journal, "request journal: none, ristretto, bigcache or redis")
	f.BoolVar(&cfg.Dump, "dump", cfg.Dump, "print every received record")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus /metrics on this address")
	f.Uint64Var(&cfg.StepLogEvery, "step-log-every", cfg.StepLogEvery, "log every Nth exchange step via slog (0 disables)")
	f.StringVar(&cfg.Session, "session", cfg.Session, "sequence and journal namespace")
	f.StringVar(&cfg.SeqStore, "seq-store", cfg.SeqStore, "sequence store: local or redis")
	f.StringVar(&cfg.Redis, "redis", cfg.Redis, "redis address for --seq-store=redis and --journal=redis")
	f.StringVar(&cfg.LogBackend, "log-backend", cfg.LogBackend, "zap, logrus or slog")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn, error or off")
	f.StringVar(&configPath, "config", "", "TOML config file; flags set on the command line win")
	return cmd
}

func newLogger(backend, level string) (telepeer.Logger, func() error, error) {
	lc := logging.DefaultConfig()
	lc.Backend = backend
	if lvl, ok := logging.ParseLevel(level); ok {
		lc.Level = lvl
	} else if level != "" {
		return nil, nil, fmt.Errorf("unknown log level %q", level)
	}
	logging.ApplyEnv(&lc)
	return logging.New(lc)
}

func runPeer(ctx context.Context, cfg peerConfig, out io.Writer) (err error) {
	log, flush, err := newLogger(cfg.LogBackend, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = flush() }()

	chOpt := channel.DefaultOptions()
	chOpt.ReceiveTimeout = cfg.Timeout

	cd, err := codec.ByName(cfg.Codec, codec.Config{MaxMessageBytes: chOpt.MaxMessageBytes - wire.FrameOverhead})
	if err != nil {
		return err
	}

	journal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	// the peer owns the journal once telepeer.New succeeds
	peerOwnsJournal := false
	defer func() {
		if journal != nil && !peerOwnsJournal {
			_ = journal.Close(context.Background())
		}
	}()

	var sinks fanout
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		ph, err := promhooks.New(reg, cfg.Codec)
		if err != nil {
			return err
		}
		sinks = append(sinks, ph)
		stop := serveMetrics(cfg.MetricsAddr, reg, log)
		defer stop()
	}
	if cfg.StepLogEvery > 0 {
		sl := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		ah := asynchook.New(sloghooks.New(sl, sloghooks.Options{StepEvery: cfg.StepLogEvery}), 1, 1024)
		defer ah.Close()
		sinks = append(sinks, ah)
	}
	var hooks telepeer.Hooks
	if len(sinks) > 0 {
		hooks = sinks
	}

	seq, err := newSequencer(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = seq.Close(context.Background()) }()

	connect := ""
	if cfg.Port != 0 {
		connect = cfg.connectAddr()
	}
	p, err := telepeer.New(ctx, telepeer.Options{
		Address: cfg.bindAddr(),
		Connect: connect,
		Codec:   cd,
		Channel: chOpt,
		Logger:  log,
		Hooks:   hooks,
		Journal: journal,
		Session: cfg.Session,
	})
	if err != nil {
		return err
	}
	peerOwnsJournal = true
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ro := telepeer.RunOptions{
		Iterations: cfg.Iterations,
		VectorLen:  cfg.VectorLen,
		Label:      cfg.Name,
		Pause:      cfg.Pause,
		Session:    cfg.Session,
		Sequencer:  seq,
		Logger:     log,
	}
	if cfg.VectorLen == 0 {
		ro.VectorLen = -1
	}
	if cfg.Pause == 0 {
		ro.Pause = -1
	}
	if cfg.Iterations == 0 {
		fmt.Fprintln(out, "nothing to do: 0 iterations")
		return nil
	}
	if cfg.Dump {
		ro.OnResult = func(i int, res telepeer.Result) {
			fmt.Fprintf(out, "iteration %d (%d bytes, %s)\n", i, res.RequestBytes, res.Timings.Total)
			_ = res.Request.Dump(out)
		}
	}

	sum, err := telepeer.Run(ctx, p, ro)
	fmt.Fprintf(out, "%s over %s: %d exchanges, mean %s, slowest %s, %d request bytes\n",
		cfg.Codec, cfg.Transport, sum.Completed, sum.Mean(), sum.Slowest, sum.RequestBytes)
	return err
}

// openJournal is swapped in tests.
var openJournal = newJournal

func newJournal(cfg peerConfig) (pr.Provider, error) {
	switch cfg.Journal {
	case "", "none":
		return nil, nil
	case "ristretto":
		return rp.New(rp.DefaultConfig())
	case "bigcache":
		return bcp.New(bcp.DefaultConfig())
	case "redis":
		return rdp.New(rdp.Config{
			Client:      redis.NewClient(&redis.Options{Addr: cfg.Redis}),
			CloseClient: true,
		})
	default:
		return nil, fmt.Errorf("unknown journal %q", cfg.Journal)
	}
}

func newSequencer(cfg peerConfig) (seqstore.Store, error) {
	switch cfg.SeqStore {
	case "", "local":
		return seqstore.NewLocal(time.Minute, time.Hour), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis})
		return seqstore.NewRedis(seqstore.RedisConfig{
			Client:      rdb,
			Namespace:   "telepeer",
			CloseClient: true,
		}), nil
	default:
		return nil, fmt.Errorf("unknown seq store %q", cfg.SeqStore)
	}
}

// serveMetrics exposes reg on addr until the returned stop is called.
func serveMetrics(addr string, reg *prometheus.Registry, log telepeer.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", telepeer.Fields{"addr": addr, "err": err})
		}
	}()
	log.Info("serving metrics", telepeer.Fields{"addr": addr})
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
