package client

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// EnvLogLevel names the environment variable consulted once by [New]
// when no explicit level is supplied with [WithLogLevel].
const EnvLogLevel = "FASTCLIENT_LOG"

// Level is the verbosity of the client's diagnostic output. A message is
// emitted only when the active Level is at or above the message's Level.
type Level uint32

const (
	LevelOff Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// slogLevelTrace sits below slog.LevelDebug so trace output can be
// filtered separately by the handler.
const slogLevelTrace = slog.LevelDebug - 4

// ParseLevel maps a case-insensitive level name to a Level.
// "silent" is accepted for "off" and "warning" for "warn".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "silent":
		return LevelOff, nil
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "trace":
		return LevelTrace, nil
	}

	return LevelOff, fmt.Errorf("%w: invalid log level %q", ErrInvalidConfig, s)
}

func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return fmt.Sprintf("level(%d)", uint32(l))
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelInfo:
		return slog.LevelInfo
	case LevelDebug:
		return slog.LevelDebug
	default:
		return slogLevelTrace
	}
}

// envLevel resolves the process default from EnvLogLevel.
func envLevel() Level {
	lvl, err := ParseLevel(os.Getenv(EnvLogLevel))
	if err != nil {
		return LevelOff
	}

	return lvl
}

// logger gates slog output on a level shared by a Client and every
// Response, ChunkStream and Session created from it.
type logger struct {
	level *atomic.Uint32
	sl    *slog.Logger
}

func newLogger(sl *slog.Logger, lvl Level) logger {
	l := logger{level: new(atomic.Uint32), sl: sl}
	l.level.Store(uint32(lvl))

	return l
}

func (l logger) enabled(want Level) bool {
	return want != LevelOff && Level(l.level.Load()) >= want
}

func (l logger) log(ctx context.Context, want Level, msg string, args ...any) {
	if !l.enabled(want) {
		return
	}
	l.sl.Log(ctx, want.slog(), msg, args...)
}

func (l logger) with(args ...any) logger {
	return logger{level: l.level, sl: l.sl.With(args...)}
}
