// Package indexlog is the small leveled-logging wrapper shared by every
// component of the pipeline. It builds on the standard library's log
// package, with fatih/color only for the warning tag, letting the CLI gate
// per-archive detail behind -v/-vv without reaching for a third-party
// logging framework.
package indexlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"

	"github.com/fatih/color"
)

// Level controls how much detail is emitted.
type Level int32

const (
	// LevelWarn logs only problems that affect the run's outcome.
	LevelWarn Level = iota
	// LevelInfo additionally logs per-subdir progress.
	LevelInfo
	// LevelDebug additionally logs per-archive detail.
	LevelDebug
)

// Logger wraps a standard library logger with a verbosity gate.
type Logger struct {
	level atomic.Int32
	std   *log.Logger
	warn  *color.Color
}

// New constructs a Logger writing to w at the given level.
func New(w io.Writer, level Level) *Logger {
	l := &Logger{std: log.New(w, "", log.LstdFlags)}
	l.level.Store(int32(level))
	l.warn = color.New(color.FgYellow)
	return l
}

// Default returns a Logger writing to stderr at LevelInfo.
func Default() *Logger {
	return New(os.Stderr, LevelInfo)
}

// SetLevel adjusts the verbosity at runtime (e.g. from a -v flag count).
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) enabled(level Level) bool {
	return Level(l.level.Load()) >= level
}

// Debugf logs per-archive detail, gated on LevelDebug.
func (l *Logger) Debugf(format string, args ...any) {
	if l.enabled(LevelDebug) {
		l.std.Printf("[debug] "+format, args...)
	}
}

// Infof logs per-subdir progress, gated on LevelInfo.
func (l *Logger) Infof(format string, args ...any) {
	if l.enabled(LevelInfo) {
		l.std.Printf(format, args...)
	}
}

// Warnf logs recoverable problems unconditionally. The "[warn] " tag is
// colorized whenever fatih/color has color enabled, which it decides from
// whether stdout (not the writer passed to New) is a terminal.
func (l *Logger) Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.std.Print(l.warn.Sprint("[warn] ") + msg)
}

// Errorf logs a failure that aborted a subdir or the whole run.
func (l *Logger) Errorf(format string, args ...any) {
	l.std.Printf("[error] "+format, args...)
}
