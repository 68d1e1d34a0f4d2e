// Package logging adapts common structured loggers to flash.Logger.
//
// Every driver and the programmer accept a flash.Logger. Pick the adapter
// for the logger the application already uses:
//
//	sugar := zap.Must(zap.NewDevelopment()).Sugar()
//	drv := m25q.New(m25q.WithLogger(logging.Zap(sugar)))
//
// Key-value pairs are passed through unchanged where the backend accepts
// them, and converted to fields otherwise.
package logging

import (
	"fmt"

	gokitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-logr/logr"
	"github.com/moffa90/go-snor/flash"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"golang.org/x/exp/slog"
)

// badKey names a trailing value that has no key.
const badKey = "!BADKEY"

// Nop returns a logger that discards everything.
func Nop() flash.Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Zap adapts a sugared zap logger.
func Zap(l *zap.SugaredLogger) flash.Logger {
	if l == nil {
		panic("logger cannot be nil")
	}
	return zapLogger{l}
}

type zapLogger struct{ l *zap.SugaredLogger }

func (z zapLogger) Debug(msg string, kv ...interface{}) { z.l.Debugw(msg, kv...) }
func (z zapLogger) Info(msg string, kv ...interface{})  { z.l.Infow(msg, kv...) }
func (z zapLogger) Error(msg string, kv ...interface{}) { z.l.Errorw(msg, kv...) }

// Slog adapts a slog logger. Debug messages use slog.LevelDebug.
func Slog(l *slog.Logger) flash.Logger {
	if l == nil {
		panic("logger cannot be nil")
	}
	return slogLogger{l}
}

type slogLogger struct{ l *slog.Logger }

func (s slogLogger) Debug(msg string, kv ...interface{}) { s.l.Debug(msg, kv...) }
func (s slogLogger) Info(msg string, kv ...interface{})  { s.l.Info(msg, kv...) }
func (s slogLogger) Error(msg string, kv ...interface{}) { s.l.Error(msg, kv...) }

// Logr adapts a logr logger. Debug messages are logged at V(1). An "error"
// key holding an error value becomes the err argument of logr's Error.
func Logr(l logr.Logger) flash.Logger {
	return logrLogger{l}
}

type logrLogger struct{ l logr.Logger }

func (g logrLogger) Debug(msg string, kv ...interface{}) { g.l.V(1).Info(msg, kv...) }
func (g logrLogger) Info(msg string, kv ...interface{})  { g.l.Info(msg, kv...) }

func (g logrLogger) Error(msg string, kv ...interface{}) {
	rest, err := splitError(kv)
	g.l.Error(err, msg, rest...)
}

// Logrus adapts a logrus logger or entry.
func Logrus(l logrus.FieldLogger) flash.Logger {
	if l == nil {
		panic("logger cannot be nil")
	}
	return logrusLogger{l}
}

type logrusLogger struct{ l logrus.FieldLogger }

func (r logrusLogger) Debug(msg string, kv ...interface{}) {
	r.l.WithFields(logrus.Fields(fields(kv))).Debug(msg)
}

func (r logrusLogger) Info(msg string, kv ...interface{}) {
	r.l.WithFields(logrus.Fields(fields(kv))).Info(msg)
}

func (r logrusLogger) Error(msg string, kv ...interface{}) {
	r.l.WithFields(logrus.Fields(fields(kv))).Error(msg)
}

// Zerolog adapts a zerolog logger.
func Zerolog(l zerolog.Logger) flash.Logger {
	return zerologLogger{l}
}

type zerologLogger struct{ l zerolog.Logger }

func (z zerologLogger) Debug(msg string, kv ...interface{}) { z.l.Debug().Fields(fields(kv)).Msg(msg) }
func (z zerologLogger) Info(msg string, kv ...interface{})  { z.l.Info().Fields(fields(kv)).Msg(msg) }
func (z zerologLogger) Error(msg string, kv ...interface{}) { z.l.Error().Fields(fields(kv)).Msg(msg) }

// GoKit adapts a go-kit logger, tagging records with go-kit levels.
func GoKit(l gokitlog.Logger) flash.Logger {
	if l == nil {
		panic("logger cannot be nil")
	}
	return gokitLogger{l}
}

type gokitLogger struct{ l gokitlog.Logger }

func (k gokitLogger) Debug(msg string, kv ...interface{}) { _ = level.Debug(k.l).Log(keyvals(msg, kv)...) }
func (k gokitLogger) Info(msg string, kv ...interface{})  { _ = level.Info(k.l).Log(keyvals(msg, kv)...) }
func (k gokitLogger) Error(msg string, kv ...interface{}) { _ = level.Error(k.l).Log(keyvals(msg, kv)...) }

func keyvals(msg string, kv []interface{}) []interface{} {
	out := make([]interface{}, 0, len(kv)+3)
	out = append(out, "msg", msg)
	out = append(out, kv...)
	if len(kv)%2 != 0 {
		out = append(out, nil)
	}
	return out
}

// fields converts key-value pairs to a map. Non-string keys are formatted
// with fmt.Sprint.
func fields(kv []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			m[badKey] = kv[i]
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		m[key] = kv[i+1]
	}
	return m
}

// splitError removes the first "error" pair holding an error value.
func splitError(kv []interface{}) ([]interface{}, error) {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i] != "error" {
			continue
		}
		if err, ok := kv[i+1].(error); ok {
			rest := make([]interface{}, 0, len(kv)-2)
			rest = append(rest, kv[:i]...)
			rest = append(rest, kv[i+2:]...)
			return rest, err
		}
	}
	return kv, nil
}
