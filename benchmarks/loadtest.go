// Package benchmarks provides performance and load testing for the MCP engine
package benchmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/mcp-engine/pkg/client"
	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/logging"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
	"github.com/ajitpratap0/mcp-engine/pkg/registry"
	"github.com/ajitpratap0/mcp-engine/pkg/server"
	"github.com/ajitpratap0/mcp-engine/pkg/transport"
)

// LoadTestConfig configures load testing parameters
type LoadTestConfig struct {
	// Number of concurrent clients
	Clients int

	// Number of requests per client
	RequestsPerClient int

	// Request rate across all clients (requests per second, 0 = unlimited)
	RateLimit float64

	// Test duration (0 = run until all requests complete)
	Duration time.Duration

	// Mix of operations to perform
	OperationMix OperationMix
}

// OperationMix weighs the operations each client picks from
type OperationMix struct {
	CallTool     float64
	ReadResource float64
	ListTools    float64
	GetPrompt    float64
}

// LoadTestResult contains the results of a load test
type LoadTestResult struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	TotalDuration      time.Duration

	MinLatency time.Duration
	MaxLatency time.Duration
	AvgLatency time.Duration
	P50Latency time.Duration
	P95Latency time.Duration
	P99Latency time.Duration

	RequestsPerSecond float64

	// Failures keyed by error code name
	ErrorCounts map[string]int64
}

// LoadTester drives concurrent clients against one in-process server.
type LoadTester struct {
	server *server.Server
	config LoadTestConfig

	total     int64
	succeeded int64
	failed    int64

	mu        sync.Mutex
	latencies []time.Duration
	errors    map[string]int64
}

// NewLoadTester creates a load tester for s.
func NewLoadTester(s *server.Server, config LoadTestConfig) *LoadTester {
	if config.Clients <= 0 {
		config.Clients = 1
	}
	mix := config.OperationMix
	if mix.CallTool+mix.ReadResource+mix.ListTools+mix.GetPrompt <= 0 {
		config.OperationMix = OperationMix{CallTool: 50, ReadResource: 25, ListTools: 15, GetPrompt: 10}
	}
	return &LoadTester{server: s, config: config, errors: make(map[string]int64)}
}

// Run connects the clients, runs the load and returns the collected figures.
// Connection failures abort the run; request failures are counted.
func (lt *LoadTester) Run(ctx context.Context) (*LoadTestResult, error) {
	if lt.config.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, lt.config.Duration)
		defer cancel()
	}

	var limiter *rate.Limiter
	if lt.config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(lt.config.RateLimit), lt.config.Clients)
	}

	clients := make([]*client.Client, 0, lt.config.Clients)
	defer func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}()
	for i := 0; i < lt.config.Clients; i++ {
		c, err := Connect(ctx, lt.server, client.WithName(fmt.Sprintf("load-%d", i)))
		if err != nil {
			return nil, fmt.Errorf("failed to connect client %d: %w", i, err)
		}
		clients = append(clients, c)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range clients {
		c := c
		rng := rand.New(rand.NewSource(int64(i) + 1))
		g.Go(func() error {
			return lt.runClient(gctx, c, limiter, rng)
		})
	}
	err := g.Wait()
	if err != nil && ctx.Err() == nil {
		return nil, err
	}
	return lt.results(time.Since(start)), nil
}

func (lt *LoadTester) runClient(ctx context.Context, c *client.Client, limiter *rate.Limiter, rng *rand.Rand) error {
	for n := 0; lt.config.RequestsPerClient <= 0 || n < lt.config.RequestsPerClient; n++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		begin := time.Now()
		err := lt.operation(ctx, c, rng)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		lt.record(time.Since(begin), err)
	}
	return nil
}

func (lt *LoadTester) operation(ctx context.Context, c *client.Client, rng *rand.Rand) error {
	mix := lt.config.OperationMix
	pick := rng.Float64() * (mix.CallTool + mix.ReadResource + mix.ListTools + mix.GetPrompt)
	switch {
	case pick < mix.CallTool:
		result, err := c.CallTool(ctx, "echo", map[string]string{"text": "load"})
		if err == nil && result.IsError {
			err = fmt.Errorf("echo failed: %s", result.Text())
		}
		return err
	case pick < mix.CallTool+mix.ReadResource:
		_, err := c.ReadResource(ctx, FixtureResourceURI)
		return err
	case pick < mix.CallTool+mix.ReadResource+mix.ListTools:
		_, err := c.ListAllTools(ctx)
		return err
	default:
		_, err := c.GetPrompt(ctx, "greeting", map[string]string{"name": "load"})
		return err
	}
}

func (lt *LoadTester) record(latency time.Duration, err error) {
	atomic.AddInt64(&lt.total, 1)
	if err == nil {
		atomic.AddInt64(&lt.succeeded, 1)
	} else {
		atomic.AddInt64(&lt.failed, 1)
	}

	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.latencies = append(lt.latencies, latency)
	if err != nil {
		lt.errors[errorName(err)]++
	}
}

func errorName(err error) string {
	if mcpErr, ok := mcperrors.AsMCPError(err); ok {
		return mcperrors.GetErrorCodeName(mcpErr.Code())
	}
	return "UnknownError"
}

func (lt *LoadTester) results(elapsed time.Duration) *LoadTestResult {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	res := &LoadTestResult{
		TotalRequests:      atomic.LoadInt64(&lt.total),
		SuccessfulRequests: atomic.LoadInt64(&lt.succeeded),
		FailedRequests:     atomic.LoadInt64(&lt.failed),
		TotalDuration:      elapsed,
		ErrorCounts:        make(map[string]int64, len(lt.errors)),
	}
	for k, v := range lt.errors {
		res.ErrorCounts[k] = v
	}
	if elapsed > 0 {
		res.RequestsPerSecond = float64(res.TotalRequests) / elapsed.Seconds()
	}
	if len(lt.latencies) == 0 {
		return res
	}

	sorted := append([]time.Duration(nil), lt.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	res.MinLatency = sorted[0]
	res.MaxLatency = sorted[len(sorted)-1]
	res.AvgLatency = sum / time.Duration(len(sorted))
	res.P50Latency = percentile(sorted, 0.50)
	res.P95Latency = percentile(sorted, 0.95)
	res.P99Latency = percentile(sorted, 0.99)
	return res
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// PrintResults writes a human readable report to w.
func (r *LoadTestResult) PrintResults(w io.Writer) {
	fmt.Fprintf(w, "requests:   %d total, %d ok, %d failed\n", r.TotalRequests, r.SuccessfulRequests, r.FailedRequests)
	fmt.Fprintf(w, "duration:   %s (%.0f req/s)\n", r.TotalDuration.Round(time.Millisecond), r.RequestsPerSecond)
	fmt.Fprintf(w, "latency:    min %s avg %s max %s\n", r.MinLatency, r.AvgLatency, r.MaxLatency)
	fmt.Fprintf(w, "percentile: p50 %s p95 %s p99 %s\n", r.P50Latency, r.P95Latency, r.P99Latency)
	names := make([]string, 0, len(r.ErrorCounts))
	for name := range r.ErrorCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "error:      %s x%d\n", name, r.ErrorCounts[name])
	}
}

// FixtureResourceURI is the resource registered by NewFixtureServer.
const FixtureResourceURI = "bench://fixture"

type echoArgs struct {
	Text string `json:"text"`
}

// NewFixtureServer returns a server with an echo tool, a static resource, a
// greeting prompt and extraTools filler tools for list benchmarks.
func NewFixtureServer(extraTools int, opts ...server.ServerOption) (*server.Server, error) {
	s := server.New(append([]server.ServerOption{
		server.WithName("bench-server"),
		server.WithLogger(logging.NewNop()),
	}, opts...)...)

	tool, handler := registry.Tool("echo", "Echo the text back", func(_ context.Context, in echoArgs) (*protocol.CallToolResult, error) {
		return protocol.TextResult("%s", in.Text), nil
	})
	if err := s.AddTool(tool, handler); err != nil {
		return nil, err
	}
	for i := 0; i < extraTools; i++ {
		filler := protocol.Tool{
			Name:        fmt.Sprintf("tool_%04d", i),
			Description: "Filler tool",
			InputSchema: json.RawMessage(`{"type":"object"}`),
		}
		noop := func(context.Context, json.RawMessage) (*protocol.CallToolResult, error) {
			return protocol.TextResult("ok"), nil
		}
		if err := s.AddTool(filler, noop); err != nil {
			return nil, err
		}
	}
	if err := s.AddResource(protocol.Resource{URI: FixtureResourceURI, Name: "fixture", MimeType: "text/plain"},
		registry.StaticResource("text/plain", "fixture contents")); err != nil {
		return nil, err
	}
	err := s.AddPrompt(protocol.Prompt{
		Name:      "greeting",
		Arguments: []protocol.PromptArgument{{Name: "name", Required: true}},
	}, func(_ context.Context, args map[string]string) (*protocol.GetPromptResult, error) {
		return &protocol.GetPromptResult{
			Messages: []protocol.PromptMessage{{Role: "user", Content: protocol.TextContent("Hello " + args["name"])}},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Connect serves s over an in-memory pipe and returns an initialized client
// on the other end. Closing the client ends the server side too.
func Connect(ctx context.Context, s *server.Server, opts ...client.ClientOption) (*client.Client, error) {
	serverEnd, clientEnd := transport.NewPipe()
	go func() { _ = s.Serve(context.Background(), serverEnd) }()

	c := client.New(clientEnd, append([]client.ClientOption{client.WithLogger(logging.NewNop())}, opts...)...)
	if err := c.InitializeAndStart(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}
