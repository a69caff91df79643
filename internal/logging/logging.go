// Package logging provides a small leveled logging interface and an adapter
// over the stdlib log package. The engine packages do not log; the daemon
// entrypoint (cmd/audiomuxd) is the one user.
package logging

import (
	"fmt"
	"log"
	"os"
)

// Logger is satisfied by anything that can format and emit leveled lines.
// StdLogger in this package is the adapter over stdlib log.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StdLogger adapts the standard library's *log.Logger to Logger, tagging
// every line with a subsystem name.
type StdLogger struct {
	tag     string
	verbose bool
	out     *log.Logger
}

// New returns a StdLogger writing to stderr, prefixed with tag.
// Debugf is a no-op unless verbose is true.
func New(tag string, verbose bool) *StdLogger {
	return &StdLogger{
		tag:     tag,
		verbose: verbose,
		out:     log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *StdLogger) Debugf(format string, args ...any) {
	if !l.verbose {
		return
	}
	l.out.Printf("[%s] DEBUG %s", l.tag, fmt.Sprintf(format, args...))
}

func (l *StdLogger) Infof(format string, args ...any) {
	l.out.Printf("[%s] %s", l.tag, fmt.Sprintf(format, args...))
}

func (l *StdLogger) Warnf(format string, args ...any) {
	l.out.Printf("[%s] WARN %s", l.tag, fmt.Sprintf(format, args...))
}

func (l *StdLogger) Errorf(format string, args ...any) {
	l.out.Printf("[%s] ERROR %s", l.tag, fmt.Sprintf(format, args...))
}

// Nop discards everything; useful for tests that don't care about log output.
type Nop struct{}

func (Nop) Debugf(string, ...any) {}
func (Nop) Infof(string, ...any)  {}
func (Nop) Warnf(string, ...any)  {}
func (Nop) Errorf(string, ...any) {}
