// Package logging provides the levelled logger used across bluetooth-chat.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level controls output verbosity.
type Level int

const (
	LevelQuiet   Level = 0
	LevelNormal  Level = 1
	LevelVerbose Level = 2
	LevelDebug   Level = 3
)

// Logger writes levelled lines to an output (stderr by default). Each role
// of the chat core logs through its own Named child, so a line reads
// "[DBG] chat/listener: gen 3: bound BluetoothChat". Children share their
// parent's output: SetOutput and SetTimestamps on any of them apply to all.
type Logger struct {
	level  Level
	prefix string

	out *output
}

// output is the writer and time-prefix switch shared by a Logger family.
type output struct {
	mu         sync.Mutex
	w          io.Writer
	timestamps bool
}

// New returns a Logger that prints messages at or below verbosity
// (0 = quiet, 1 = normal, 2 = verbose, 3 = debug). Timestamps are on in
// debug mode.
func New(verbosity int) *Logger {
	return &Logger{
		level: Level(verbosity),
		out:   &output{w: os.Stderr, timestamps: verbosity >= int(LevelDebug)},
	}
}

// Nop returns a Logger that discards everything, including errors.
func Nop() *Logger {
	return &Logger{level: LevelQuiet, out: &output{w: io.Discard}}
}

// SetOutput overrides the output writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.out.mu.Lock()
	l.out.w = w
	l.out.mu.Unlock()
}

// SetTimestamps enables or disables the time prefix.
func (l *Logger) SetTimestamps(on bool) {
	l.out.mu.Lock()
	l.out.timestamps = on
	l.out.mu.Unlock()
}

// Level returns the configured verbosity.
func (l *Logger) Level() Level { return l.level }

// Named returns a child logger whose lines carry "name: " after the level
// tag. Nested names are joined with "/".
func (l *Logger) Named(name string) *Logger {
	child := *l
	if l.prefix != "" {
		child.prefix = l.prefix + "/" + name
	} else {
		child.prefix = name
	}
	return &child
}

// Error always prints.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("ERR", format, args...)
}

// Warn prints at verbosity >= 1.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LevelNormal {
		l.write("WRN", format, args...)
	}
}

// Info prints at verbosity >= 1.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LevelNormal {
		l.write("INF", format, args...)
	}
}

// Verbose prints at verbosity >= 2.
func (l *Logger) Verbose(format string, args ...interface{}) {
	if l.level >= LevelVerbose {
		l.write("VRB", format, args...)
	}
}

// Debug prints at verbosity >= 3.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LevelDebug {
		l.write("DBG", format, args...)
	}
}

func (l *Logger) write(tag, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		msg = l.prefix + ": " + msg
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.timestamps {
		fmt.Fprintf(l.out.w, "%s [%s] %s\n", time.Now().Format("15:04:05.000"), tag, msg)
	} else {
		fmt.Fprintf(l.out.w, "[%s] %s\n", tag, msg)
	}
}
