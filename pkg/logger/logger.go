// Package logger wraps zerolog with the fields used across the canary.
package logger

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Log field names shared by the router, sessions and the stream.
const (
	ModField  = "mod"
	PeerField = "peer"
	SidField  = "sid"
	tagField  = "s"
	pidField  = "pid"
)

type Logger struct {
	logger *zerolog.Logger
}

// NewConsole makes a human-readable logger tagged with the process role.
func NewConsole(isDebug bool, tag string, noColor bool) *Logger {
	zerolog.SetGlobalLevel(level(isDebug))
	zerolog.TimeFieldFormat = time.RFC3339Nano
	out := zerolog.ConsoleWriter{
		Out:           os.Stdout,
		TimeFormat:    "15:04:05.000",
		NoColor:       noColor,
		PartsOrder:    []string{zerolog.TimestampFieldName, pidField, zerolog.LevelFieldName, tagField, ModField, PeerField, zerolog.MessageFieldName},
		FieldsExclude: []string{tagField, pidField, ModField, PeerField},
	}
	if noColor {
		out.FormatMessage = func(i any) string {
			if i == nil {
				return ""
			}
			return fmt.Sprint(i)
		}
	}
	l := zerolog.New(out).With().
		Str(pidField, fmt.Sprintf("%4x", os.Getpid())).
		Str(tagField, tag).
		Timestamp().Logger()
	return &Logger{logger: &l}
}

// Nop returns a disabled logger.
func Nop() *Logger { l := zerolog.Nop(); return &Logger{logger: &l} }

func level(isDebug bool) zerolog.Level {
	if isDebug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func (l *Logger) With() zerolog.Context { return l.logger.With() }

// Level makes a child logger that drops events below lv.
func (l *Logger) Level(lv zerolog.Level) *Logger {
	child := l.logger.Level(lv)
	return &Logger{logger: &child}
}

func (l *Logger) Trace() *zerolog.Event { return l.logger.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// Extend makes a child logger from the context.
func (l *Logger) Extend(ctx zerolog.Context) *Logger {
	child := ctx.Logger()
	return &Logger{logger: &child}
}

// Mod tags the child logger with a module name.
func (l *Logger) Mod(name string) *Logger { return l.Extend(l.With().Str(ModField, name)) }

// Peer tags the child logger with a remote peer and its session.
func (l *Logger) Peer(peerId, sid string) *Logger {
	return l.Extend(l.With().Str(PeerField, peerId).Str(SidField, sid))
}
