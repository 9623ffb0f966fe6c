package utils

import (
	"runtime"
	"time"
)

// Reporter is the subset of testing.TB used by the leak detector
type Reporter interface {
	Helper()
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// GoroutineLeakDetector helps detect goroutine leaks in tests
type GoroutineLeakDetector struct {
	t              Reporter
	initialCount   int
	allowedGrowth  int
	checkInterval  time.Duration
	stabilizeDelay time.Duration
	settleTimeout  time.Duration
}

// NewGoroutineLeakDetector creates a new goroutine leak detector
func NewGoroutineLeakDetector(t Reporter) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		t:              t,
		checkInterval:  20 * time.Millisecond,
		stabilizeDelay: 50 * time.Millisecond,
		settleTimeout:  2 * time.Second,
	}
}

// Start records the initial goroutine count
func (d *GoroutineLeakDetector) Start() {
	time.Sleep(d.stabilizeDelay)
	d.initialCount = runtime.NumGoroutine()
	d.t.Logf("Starting goroutine count: %d", d.initialCount)
}

// Check waits up to the settle timeout for the goroutine count to fall back
// within the allowed growth, and fails the test if it never does.
func (d *GoroutineLeakDetector) Check() bool {
	d.t.Helper()

	deadline := time.Now().Add(d.settleTimeout)
	count := runtime.NumGoroutine()
	for count-d.initialCount > d.allowedGrowth && time.Now().Before(deadline) {
		time.Sleep(d.checkInterval)
		count = runtime.NumGoroutine()
	}

	leaked := count - d.initialCount
	if leaked > d.allowedGrowth {
		d.t.Errorf("Goroutine leak detected: started with %d, ended with %d (leaked: %d, allowed: %d)",
			d.initialCount, count, leaked, d.allowedGrowth)

		buf := make([]byte, 1<<20)
		stackLen := runtime.Stack(buf, true)
		d.t.Logf("Current goroutine stack traces:\n%s", buf[:stackLen])
		return false
	}

	d.t.Logf("No goroutine leak: started with %d, ended with %d", d.initialCount, count)
	return true
}

// SetAllowedGrowth sets the number of goroutines allowed to grow
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetSettleTimeout bounds how long Check waits for goroutines to exit
func (d *GoroutineLeakDetector) SetSettleTimeout(timeout time.Duration) *GoroutineLeakDetector {
	d.settleTimeout = timeout
	return d
}
