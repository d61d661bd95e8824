// Package utils holds test helpers shared by the engine's packages.
package utils

import (
	"bytes"
	"runtime"
	"testing"
	"time"
)

// GoroutineLeakDetector fails a test whose goroutine count does not return
// to the baseline taken by Start. The Set methods chain:
//
//	d := utils.NewGoroutineLeakDetector(t).SetAllowedGrowth(1)
//	d.Start()
//	defer d.Check()
type GoroutineLeakDetector struct {
	tb       testing.TB
	baseline int
	slack    int
	settle   time.Duration
	wait     time.Duration
	poll     time.Duration
}

// NewGoroutineLeakDetector creates a detector reporting to tb.
func NewGoroutineLeakDetector(tb testing.TB) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		tb:     tb,
		settle: 100 * time.Millisecond,
		wait:   2 * time.Second,
		poll:   20 * time.Millisecond,
	}
}

// SetAllowedGrowth tolerates n goroutines above the baseline.
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.slack = n
	return d
}

// SetStabilizeDelay sets how long Start waits before counting.
func (d *GoroutineLeakDetector) SetStabilizeDelay(delay time.Duration) *GoroutineLeakDetector {
	d.settle = delay
	return d
}

// SetTimeout bounds how long Check waits for goroutines to exit.
func (d *GoroutineLeakDetector) SetTimeout(timeout time.Duration) *GoroutineLeakDetector {
	d.wait = timeout
	return d
}

// Start takes the baseline.
func (d *GoroutineLeakDetector) Start() {
	time.Sleep(d.settle)
	d.baseline = runtime.NumGoroutine()
}

// Check polls until the count is back within the allowed growth. On timeout
// it fails the test and dumps every goroutine's stack.
func (d *GoroutineLeakDetector) Check() {
	d.tb.Helper()

	limit := d.baseline + d.slack
	deadline := time.Now().Add(d.wait)
	n := runtime.NumGoroutine()
	for n > limit && time.Now().Before(deadline) {
		time.Sleep(d.poll)
		n = runtime.NumGoroutine()
	}
	if n <= limit {
		return
	}
	d.tb.Errorf("%d goroutines leaked (baseline %d, now %d, allowed %d)\n%s",
		n-d.baseline, d.baseline, n, d.slack, stacks())
}

func stacks() []byte {
	buf := make([]byte, 64<<10)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return bytes.TrimSpace(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}
