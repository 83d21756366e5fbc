package logging

import (
	"context"
	"log/slog"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/telepeer"
)

var (
	_ telepeer.Logger = Zap{}
	_ telepeer.Logger = Logrus{}
	_ telepeer.Logger = Slog{}
)

type Zap struct{ L *zap.Logger }

func (z Zap) Debug(msg string, f telepeer.Fields) { z.L.Debug(msg, zf(f)...) }
func (z Zap) Info(msg string, f telepeer.Fields)  { z.L.Info(msg, zf(f)...) }
func (z Zap) Warn(msg string, f telepeer.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z Zap) Error(msg string, f telepeer.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f telepeer.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

type Logrus struct{ E *logrus.Entry }

func (l Logrus) Debug(msg string, f telepeer.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logrus) Info(msg string, f telepeer.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logrus) Warn(msg string, f telepeer.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logrus) Error(msg string, f telepeer.Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }

type Slog struct{ L *slog.Logger }

func (s Slog) Debug(msg string, f telepeer.Fields) { s.log(slog.LevelDebug, msg, f) }
func (s Slog) Info(msg string, f telepeer.Fields)  { s.log(slog.LevelInfo, msg, f) }
func (s Slog) Warn(msg string, f telepeer.Fields)  { s.log(slog.LevelWarn, msg, f) }
func (s Slog) Error(msg string, f telepeer.Fields) { s.log(slog.LevelError, msg, f) }

func (s Slog) log(lvl slog.Level, msg string, f telepeer.Fields) {
	s.L.LogAttrs(context.Background(), lvl, msg, attrs(f)...)
}

func attrs(f telepeer.Fields) []slog.Attr {
	if len(f) == 0 {
		return nil
	}
	out := make([]slog.Attr, 0, len(f))
	for k, v := range f {
		out = append(out, slog.Any(k, v))
	}
	return out
}
