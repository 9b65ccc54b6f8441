package ivsweep

import (
	"io"
	"log"
	"sync"
)

// streams is one snapshot of the package loggers; a nil field is a disabled
// stream.
type streams struct {
	ops, diag, trace *log.Logger
}

var (
	logMu sync.RWMutex
	logs  streams
)

// SetLogWriters configures the three logging streams for the ivsweep package.
// Pass nil for any writer to disable that stream. It is safe to call while
// sweeps are being classified.
func SetLogWriters(ops, diag, trace io.Writer) {
	next := streams{
		ops:   newLogger(ops),
		diag:  newLogger(diag),
		trace: newLogger(trace),
	}
	logMu.Lock()
	logs = next
	logMu.Unlock()
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[ivsweep] ", log.LstdFlags|log.Lmicroseconds)
}

func loggers() streams {
	logMu.RLock()
	defer logMu.RUnlock()
	return logs
}

// opsf logs to the ops stream (rejected sweeps, configuration problems).
func opsf(format string, args ...interface{}) {
	if l := loggers().ops; l != nil {
		l.Printf(format, args...)
	}
}

// diagf logs to the diag stream (per-sweep outcome and degraded features).
func diagf(format string, args ...interface{}) {
	if l := loggers().diag; l != nil {
		l.Printf(format, args...)
	}
}

// tracef logs to the trace stream (per-rule scoring detail).
func tracef(format string, args ...interface{}) {
	if l := loggers().trace; l != nil {
		l.Printf(format, args...)
	}
}
