package goroutine

import (
	"runtime"
	"testing"
	"time"
)

// AssertNoLeaks fails t if more goroutines are running at cleanup than when
// it was called, after allowing a few seconds for them to wind down.
func AssertNoLeaks(t testing.TB) {
	t.Helper()
	AssertNoLeaksWithTimeout(t, 5*time.Second, 50*time.Millisecond)
}

// AssertNoLeaksWithTimeout is like AssertNoLeaks with a custom timeout and polling interval.
func AssertNoLeaksWithTimeout(t testing.TB, timeout, pollInterval time.Duration) {
	t.Helper()
	before := runtime.NumGoroutine()

	t.Cleanup(func() {
		deadline := time.Now().Add(timeout)
		for time.Now().Before(deadline) {
			if runtime.NumGoroutine() <= before {
				return
			}
			time.Sleep(pollInterval)
		}

		current := runtime.NumGoroutine()
		if current > before {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			t.Errorf("goroutine leak detected: started with %d goroutines, ended with %d\n%s",
				before, current, string(buf[:n]))
		}
	})
}
