package benchmarks

import (
	"context"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/mcp-engine/pkg/client"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
	"github.com/ajitpratap0/mcp-engine/pkg/server"
)

// BenchmarkClientOperations benchmarks round trips through a full server
func BenchmarkClientOperations(b *testing.B) {
	b.Run("CallTool", benchmarkCallTool)
	b.Run("ReadResource", benchmarkReadResource)
	b.Run("GetPrompt", benchmarkGetPrompt)
	b.Run("Ping", benchmarkPing)

	for _, concurrency := range []int{10, 100} {
		b.Run(fmt.Sprintf("ConcurrentToolCalls/%d", concurrency), func(b *testing.B) {
			benchmarkConcurrentToolCalls(b, concurrency)
		})
	}
}

func benchClient(b *testing.B, extraTools int, opts ...server.ServerOption) *client.Client {
	b.Helper()
	s, err := NewFixtureServer(extraTools, opts...)
	if err != nil {
		b.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Connect(ctx, s)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = c.Close() })
	return c
}

func benchmarkCallTool(b *testing.B) {
	ctx := context.Background()
	c := benchClient(b, 0)
	args := map[string]string{"text": "benchmark"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result, err := c.CallTool(ctx, "echo", args)
		if err != nil {
			b.Fatal(err)
		}
		if result.IsError {
			b.Fatal(result.Text())
		}
	}
}

func benchmarkReadResource(b *testing.B) {
	ctx := context.Background()
	c := benchClient(b, 0)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.ReadResource(ctx, FixtureResourceURI); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkGetPrompt(b *testing.B) {
	ctx := context.Background()
	c := benchClient(b, 0)
	args := map[string]string{"name": "bench"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.GetPrompt(ctx, "greeting", args); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkPing(b *testing.B) {
	ctx := context.Background()
	c := benchClient(b, 0)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Ping(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkConcurrentToolCalls(b *testing.B, concurrency int) {
	ctx := context.Background()
	c := benchClient(b, 0)
	args := map[string]string{"text": "concurrent"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g, gctx := errgroup.WithContext(ctx)
		for j := 0; j < concurrency; j++ {
			g.Go(func() error {
				_, err := c.CallTool(gctx, "echo", args)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkPaginatedOperations benchmarks walking a long tool list page by page
func BenchmarkPaginatedOperations(b *testing.B) {
	for _, pageSize := range []int{10, 50, 200} {
		b.Run(fmt.Sprintf("ListAllTools/1000/page%d", pageSize), func(b *testing.B) {
			benchmarkListAllTools(b, 1000, pageSize)
		})
	}
}

func benchmarkListAllTools(b *testing.B, tools, pageSize int) {
	ctx := context.Background()
	c := benchClient(b, tools, server.WithPageSize(pageSize))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		all, err := c.ListAllTools(ctx)
		if err != nil {
			b.Fatal(err)
		}
		if len(all) != tools+1 {
			b.Fatalf("listed %d tools, want %d", len(all), tools+1)
		}
	}
}

// BenchmarkProtocolDecode benchmarks classifying inbound frames
func BenchmarkProtocolDecode(b *testing.B) {
	frames := map[string][]byte{
		"Request":      []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`),
		"Notification": []byte(`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":7}}`),
		"Response":     []byte(`{"jsonrpc":"2.0","id":"abc","result":{"content":[{"type":"text","text":"hi"}]}}`),
		"Error":        []byte(`{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"Method not found"}}`),
	}
	for name, frame := range frames {
		frame := frame
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(frame)))
			for i := 0; i < b.N; i++ {
				if _, err := protocol.Decode(frame); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkProtocolEncode benchmarks serializing a tool call request
func BenchmarkProtocolEncode(b *testing.B) {
	req, err := protocol.NewRequest(protocol.IntID(1), protocol.MethodCallTool,
		protocol.CallToolParams{Name: "echo", Arguments: []byte(`{"text":"hi"}`)})
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := protocol.Encode(req); err != nil {
			b.Fatal(err)
		}
	}
}
