package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers a panic in a defer statement and logs it with the
// panic value, the stack trace, and where it happened. The panic is not
// re-raised. Used on the daemon's background goroutines (gateway waiters,
// the stale-session sweep) so one bad checkout never takes the process down.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", where).
			Error("PANIC recovered")
	}
}

// RecoverPanicWithCallback recovers and logs a panic, then runs the cleanup
// callback. The callback only runs when a panic actually occurred; typical
// cleanup closes channels or marks the attempt failed so waiters unblock.
func RecoverPanicWithCallback(logger *Logger, where string, callback func()) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", where).
			Error("PANIC recovered")
		if callback != nil {
			callback()
		}
	}
}

// MustRecover converts a recovered panic value into an error, nil when no
// panic occurred
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
