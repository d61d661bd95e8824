package benchmarks

import (
	"bytes"
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSessionChurnDoesNotLeak opens and closes many sessions against one
// server and checks that goroutines and heap return to their baseline.
func TestSessionChurnDoesNotLeak(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping leak test in short mode")
	}

	s, err := NewFixtureServer(10)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runtime.GC()
	baseGoroutines := runtime.NumGoroutine()
	var initialMem runtime.MemStats
	runtime.ReadMemStats(&initialMem)

	const sessions = 500
	for i := 0; i < sessions; i++ {
		c, err := Connect(ctx, s)
		require.NoError(t, err)
		_, err = c.CallTool(ctx, "echo", map[string]string{"text": "churn"})
		require.NoError(t, err)
		_, err = c.ListAllTools(ctx)
		require.NoError(t, err)
		require.NoError(t, c.Close())
	}

	require.Eventually(t, func() bool {
		return s.Connections() == 0
	}, 5*time.Second, 10*time.Millisecond, "server still tracks closed sessions")

	require.Eventually(t, func() bool {
		runtime.GC()
		return runtime.NumGoroutine() <= baseGoroutines+2
	}, 5*time.Second, 20*time.Millisecond, "goroutines left behind: %d, baseline %d", runtime.NumGoroutine(), baseGoroutines)

	runtime.GC()
	var finalMem runtime.MemStats
	runtime.ReadMemStats(&finalMem)
	growthMB := float64(int64(finalMem.HeapAlloc)-int64(initialMem.HeapAlloc)) / (1024 * 1024)
	t.Logf("heap growth after %d sessions: %.2f MB", sessions, growthMB)
	if growthMB > 20 {
		t.Errorf("Excessive memory growth detected: %.2f MB", growthMB)
	}
}

func TestLoadTester(t *testing.T) {
	s, err := NewFixtureServer(5)
	require.NoError(t, err)

	lt := NewLoadTester(s, LoadTestConfig{
		Clients:           8,
		RequestsPerClient: 50,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := lt.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(400), result.TotalRequests)
	assert.Equal(t, int64(400), result.SuccessfulRequests)
	assert.Zero(t, result.FailedRequests)
	assert.Empty(t, result.ErrorCounts)
	assert.LessOrEqual(t, result.MinLatency, result.P50Latency)
	assert.LessOrEqual(t, result.P50Latency, result.P99Latency)
	assert.LessOrEqual(t, result.P99Latency, result.MaxLatency)

	var out bytes.Buffer
	result.PrintResults(&out)
	assert.Contains(t, out.String(), "400 total, 400 ok, 0 failed")
}

func TestLoadTesterStopsAtDuration(t *testing.T) {
	s, err := NewFixtureServer(0)
	require.NoError(t, err)

	lt := NewLoadTester(s, LoadTestConfig{
		Clients:   2,
		RateLimit: 200,
		Duration:  300 * time.Millisecond,
	})

	started := time.Now()
	result, err := lt.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Positive(t, result.TotalRequests)
	assert.Zero(t, result.FailedRequests)
	// 200 req/s for 0.3s plus the initial burst
	assert.Less(t, result.TotalRequests, int64(150))
}
