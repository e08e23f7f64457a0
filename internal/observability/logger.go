// Package observability carries the runtime's ambient stack: structured
// logging, Prometheus metrics, and OpenTelemetry tracing spans around
// dispatch — all optional and off the scheduler's hot path when disabled.
package observability

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Logger is the structured-logging abstraction the runtime depends on,
// narrowed from the teacher's pkg/core.Logger (Error/Warn/Info/Debug
// plus WithFields) down to what the scheduler, reactor, and command
// dispatcher actually call — this module has no per-request context to
// propagate, so WithContext was dropped.
type Logger interface {
	Errorf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	WithFields(fields map[string]interface{}) Logger
}

// stdLogger implements Logger over the standard library's log package,
// grounded on the teacher's defaultLogger (pkg/core/logger.go): a single
// *log.Logger shared by all levels, each line tagged with its level,
// fields rendered as "key=value" pairs prefixed to the message.
type stdLogger struct {
	mu     *sync.Mutex
	out    *log.Logger
	fields map[string]interface{}
}

// NewStdLogger returns a Logger that writes level-tagged lines to os.Stderr.
func NewStdLogger() Logger {
	return &stdLogger{
		mu:  &sync.Mutex{},
		out: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *stdLogger) format(level, msg string) string {
	if len(l.fields) == 0 {
		return fmt.Sprintf("[%s] %s", level, msg)
	}
	b := fmt.Sprintf("[%s] %s", level, msg)
	for k, v := range l.fields {
		b += fmt.Sprintf(" %s=%v", k, v)
	}
	return b
}

func (l *stdLogger) Errorf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Print(l.format("ERROR", fmt.Sprintf(format, args...)))
}

func (l *stdLogger) Warnf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Print(l.format("WARN", fmt.Sprintf(format, args...)))
}

func (l *stdLogger) Infof(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Print(l.format("INFO", fmt.Sprintf(format, args...)))
}

func (l *stdLogger) Debugf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Print(l.format("DEBUG", fmt.Sprintf(format, args...)))
}

func (l *stdLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &stdLogger{mu: l.mu, out: l.out, fields: merged}
}
