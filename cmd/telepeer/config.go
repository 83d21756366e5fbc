package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// peerConfig is everything the peer command needs. Flags and the TOML file
// both land here; a flag the user set wins over the file.
type peerConfig struct {
	Iterations   int
	VectorLen    int
	Name         string
	Port         int
	Addr         string
	Transport    string
	Codec        string
	Timeout      time.Duration
	Pause        time.Duration
	Journal      string
	Dump         bool
	MetricsAddr  string
	StepLogEvery uint64
	Session      string
	SeqStore     string
	Redis        string
	LogBackend   string
	LogLevel     string
}

func defaultPeerConfig() peerConfig {
	return peerConfig{
		Iterations: 10,
		VectorLen:  20,
		Name:       "telepeer demo",
		Port:       5555,
		Addr:       "localhost",
		Transport:  "tcp",
		Codec:      "flatbuffers",
		Timeout:    5 * time.Second,
		Pause:      50 * time.Millisecond,
		Journal:    "none",
		Session:    "default",
		SeqStore:   "local",
		Redis:      "localhost:6379",
		LogBackend: "zap",
		LogLevel:   "info",
	}
}

type fileConfig struct {
	Iterations   int    `toml:"iterations"`
	VectorLen    int    `toml:"vector_len"`
	Name         string `toml:"name"`
	Port         int    `toml:"port"`
	Addr         string `toml:"addr"`
	Transport    string `toml:"transport"`
	Codec        string `toml:"codec"`
	Timeout      string `toml:"timeout"`
	Pause        string `toml:"pause"`
	Journal      string `toml:"journal"`
	Dump         bool   `toml:"dump"`
	MetricsAddr  string `toml:"metrics_addr"`
	StepLogEvery uint64 `toml:"step_log_every"`
	Session      string `toml:"session"`
	SeqStore     string `toml:"seq_store"`
	Redis        string `toml:"redis"`
	Log          struct {
		Backend string `toml:"backend"`
		Level   string `toml:"level"`
	} `toml:"log"`
}

// loadPeerConfig applies the file at path onto cfg. Keys whose flag was set
// on the command line (changed reports it) are left alone.
func loadPeerConfig(path string, cfg *peerConfig, changed func(flag string) bool) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load peer config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load peer config: unknown key %q", undecoded[0].String())
	}

	use := func(key, flag string) bool { return meta.IsDefined(key) && !changed(flag) }
	str := func(s string) string { return strings.TrimSpace(s) }

	if use("iterations", "iters") {
		cfg.Iterations = raw.Iterations
	}
	if use("vector_len", "veclen") {
		cfg.VectorLen = raw.VectorLen
	}
	if use("name", "name") {
		cfg.Name = raw.Name
	}
	if use("port", "port") {
		cfg.Port = raw.Port
	}
	if use("addr", "addr") {
		cfg.Addr = str(raw.Addr)
	}
	if use("transport", "transport") {
		cfg.Transport = str(raw.Transport)
	}
	if use("codec", "codec") {
		cfg.Codec = str(raw.Codec)
	}
	if use("timeout", "timeout") {
		d, err := time.ParseDuration(str(raw.Timeout))
		if err != nil {
			return fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if use("pause", "pause") {
		d, err := time.ParseDuration(str(raw.Pause))
		if err != nil {
			return fmt.Errorf("parse pause: %w", err)
		}
		cfg.Pause = d
	}
	if use("journal", "journal") {
		cfg.Journal = str(raw.Journal)
	}
	if use("dump", "dump") {
		cfg.Dump = raw.Dump
	}
	if use("metrics_addr", "metrics-addr") {
		cfg.MetricsAddr = str(raw.MetricsAddr)
	}
	if use("step_log_every", "step-log-every") {
		cfg.StepLogEvery = raw.StepLogEvery
	}
	if use("session", "session") {
		cfg.Session = str(raw.Session)
	}
	if use("seq_store", "seq-store") {
		cfg.SeqStore = str(raw.SeqStore)
	}
	if use("redis", "redis") {
		cfg.Redis = str(raw.Redis)
	}
	if use("log.backend", "log-backend") {
		cfg.LogBackend = str(raw.Log.Backend)
	}
	if use("log.level", "log-level") {
		cfg.LogLevel = str(raw.Log.Level)
	}
	return nil
}

func (c peerConfig) validate() error {
	if c.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0, got %d", c.Iterations)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	switch c.Transport {
	case "tcp", "udp":
	default:
		return fmt.Errorf("unknown transport %q (want tcp or udp)", c.Transport)
	}
	switch c.Journal {
	case "none", "ristretto", "bigcache", "redis":
	default:
		return fmt.Errorf("unknown journal %q (want none, ristretto, bigcache or redis)", c.Journal)
	}
	switch c.SeqStore {
	case "local", "redis":
	default:
		return fmt.Errorf("unknown seq store %q (want local or redis)", c.SeqStore)
	}
	return nil
}

// bindAddr is where the responder listens; connectAddr is what the
// requester dials.
func (c peerConfig) bindAddr() string {
	return fmt.Sprintf("%s://*:%d", c.Transport, c.Port)
}

func (c peerConfig) connectAddr() string {
	return fmt.Sprintf("%s://%s:%d", c.Transport, c.Addr, c.Port)
}
