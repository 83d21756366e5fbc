// Package logging builds a telepeer.Logger on top of zap, logrus or log/slog.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/telepeer"
)

const (
	EnvLogLevel   = "TELEPEER_LOG_LEVEL"
	EnvLogBackend = "TELEPEER_LOG_BACKEND"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	Disabled
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case Disabled:
		return "off"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

const (
	BackendZap    = "zap"
	BackendLogrus = "logrus"
	BackendSlog   = "slog"
)

type Config struct {
	Backend string // zap (default), logrus or slog
	Level   Level
	Output  io.Writer // default os.Stderr
}

func DefaultConfig() Config {
	return Config{Backend: BackendZap, Level: InfoLevel, Output: os.Stderr}
}

// ParseLevel accepts the usual level names; ok is false for an empty or
// unknown value.
func ParseLevel(raw string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return InfoLevel, false
	case "debug", "trace":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return Disabled, true
	default:
		return InfoLevel, false
	}
}

// ApplyEnv overrides cfg from TELEPEER_LOG_LEVEL and TELEPEER_LOG_BACKEND.
func ApplyEnv(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if b := strings.TrimSpace(os.Getenv(EnvLogBackend)); b != "" {
		cfg.Backend = strings.ToLower(b)
	}
}

// New returns the logger and a flush func to call before exit.
func New(cfg Config) (telepeer.Logger, func() error, error) {
	noop := func() error { return nil }
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Level == Disabled {
		return telepeer.NopLogger{}, noop, nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendZap:
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(cfg.Output), zapLevel(cfg.Level))
		l := zap.New(core)
		return Zap{L: l}, func() error { _ = l.Sync(); return nil }, nil

	case BackendLogrus:
		l := logrus.New()
		l.SetOutput(cfg.Output)
		l.SetLevel(logrusLevel(cfg.Level))
		l.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
		return Logrus{E: logrus.NewEntry(l)}, noop, nil

	case BackendSlog:
		h := slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{Level: slogLevel(cfg.Level)})
		return Slog{L: slog.New(h)}, noop, nil

	default:
		return nil, nil, fmt.Errorf("logging: unknown backend %q", cfg.Backend)
	}
}

func zapLevel(l Level) zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func logrusLevel(l Level) logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func slogLevel(l Level) slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
