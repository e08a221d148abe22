// Package goroutine runs background work with panic recovery.
package goroutine

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// StackTraceBufferSize is the buffer size for stack trace collection
const StackTraceBufferSize = 4096

// Recover logs a panic instead of crashing the process. Call it deferred.
// If logger is nil the panic goes to stderr.
func Recover(name string, logger *zap.SugaredLogger) {
	if r := recover(); r != nil {
		report(name, logger, r)
	}
}

// RecoverWith is Recover plus onPanic, called with the recovered value after
// it is logged. Call it deferred.
func RecoverWith(name string, logger *zap.SugaredLogger, onPanic func(r interface{})) {
	if r := recover(); r != nil {
		report(name, logger, r)
		if onPanic != nil {
			onPanic(r)
		}
	}
}

func report(name string, logger *zap.SugaredLogger, r interface{}) {
	buf := make([]byte, StackTraceBufferSize)
	n := runtime.Stack(buf, false)

	if logger != nil {
		logger.Errorw("Goroutine panic recovered",
			"goroutine", name,
			"panic", r,
			"stack", string(buf[:n]))
		return
	}
	fmt.Fprintf(os.Stderr, "PANIC in goroutine %s (no logger): %v\n%s\n",
		name, r, string(buf[:n]))
}

// Go runs fn in a new goroutine guarded by Recover. The returned channel is
// closed when fn returns or panics.
func Go(name string, logger *zap.SugaredLogger, fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer Recover(name, logger)
		fn()
	}()
	return done
}
