package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Level is the minimum severity a Logger emits.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel maps a config string to a Level. Empty means info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger is the leveled logger every symphony component takes. Pool,
// listener and admin server default to NewDefaultLogger when none is given.
type Logger interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
}

// levelLogger implements Logger on the standard log package, one
// *log.Logger per level so each line carries its [LEVEL] prefix.
type levelLogger struct {
	minLevel atomic.Int32
	out      [LevelError + 1]*log.Logger
}

func newLevelLogger(level Level, flags int, writerFor func(Level) io.Writer) *levelLogger {
	l := &levelLogger{}
	for lv := LevelDebug; lv <= LevelError; lv++ {
		prefix := "[" + strings.ToUpper(lv.String()) + "] "
		l.out[lv] = log.New(writerFor(lv), prefix, flags)
	}
	l.minLevel.Store(int32(level))
	return l
}

// NewDefaultLogger creates an info level logger writing warnings and errors
// to stderr and everything else to stdout.
func NewDefaultLogger() Logger {
	return newLevelLogger(LevelInfo, log.LstdFlags|log.Lshortfile, func(lv Level) io.Writer {
		if lv >= LevelWarn {
			return os.Stderr
		}
		return os.Stdout
	})
}

// NewLogger creates a logger that writes every level at or above level to w.
func NewLogger(w io.Writer, level Level) Logger {
	return newLevelLogger(level, log.LstdFlags|log.Lmicroseconds, func(Level) io.Writer { return w })
}

// NopLogger discards everything.
func NopLogger() Logger {
	return NewLogger(io.Discard, LevelError+1)
}

// emit formats and writes msg only when level is enabled. calldepth 3 points
// Lshortfile at the caller of the exported method.
func (l *levelLogger) emit(level Level, format func() string) {
	if level < Level(l.minLevel.Load()) {
		return
	}
	l.out[level].Output(3, format())
}

func (l *levelLogger) Error(args ...interface{}) {
	l.emit(LevelError, func() string { return fmt.Sprint(args...) })
}

func (l *levelLogger) Errorf(format string, args ...interface{}) {
	l.emit(LevelError, func() string { return fmt.Sprintf(format, args...) })
}

func (l *levelLogger) Warn(args ...interface{}) {
	l.emit(LevelWarn, func() string { return fmt.Sprint(args...) })
}

func (l *levelLogger) Warnf(format string, args ...interface{}) {
	l.emit(LevelWarn, func() string { return fmt.Sprintf(format, args...) })
}

func (l *levelLogger) Info(args ...interface{}) {
	l.emit(LevelInfo, func() string { return fmt.Sprint(args...) })
}

func (l *levelLogger) Infof(format string, args ...interface{}) {
	l.emit(LevelInfo, func() string { return fmt.Sprintf(format, args...) })
}

func (l *levelLogger) Debug(args ...interface{}) {
	l.emit(LevelDebug, func() string { return fmt.Sprint(args...) })
}

func (l *levelLogger) Debugf(format string, args ...interface{}) {
	l.emit(LevelDebug, func() string { return fmt.Sprintf(format, args...) })
}
