// Package logging provides leveled, prefixed diagnostic output on top of the
// standard log package. The sink can be replaced so tests can mute or capture
// messages.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Level orders message severities.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the configuration name of the level.
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
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// ParseLevel converts a configuration string into a Level.
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
	}
	return LevelInfo, fmt.Errorf("invalid log level %q (must be debug, info, warn or error)", s)
}

// Logf is the process-wide sink. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

var minLevel atomic.Int32

func init() {
	minLevel.Store(int32(LevelInfo))
}

// SetLogger replaces the sink. Passing nil mutes all output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetLevel drops messages below l.
func SetLevel(l Level) {
	minLevel.Store(int32(l))
}

// Enabled reports whether messages at l are emitted.
func Enabled(l Level) bool {
	return int32(l) >= minLevel.Load()
}

// Setup applies a level name and, when file is not empty, mirrors the
// standard logger into that file. The returned closer releases the file.
func Setup(level, file string) (io.Closer, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	SetLevel(l)

	if file == "" {
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", file, err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

// Logger tags messages with a subsystem name, e.g. "CAPTURE: ...".
type Logger struct {
	prefix string
}

// New returns a logger for the named subsystem.
func New(subsystem string) *Logger {
	return &Logger{prefix: strings.ToUpper(subsystem) + ": "}
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if !Enabled(level) {
		return
	}
	Logf(l.prefix+format, args...)
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(LevelDebug, format, args...) }

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...interface{}) { l.logf(LevelInfo, format, args...) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.logf(LevelWarn, format, args...) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(LevelError, format, args...) }
