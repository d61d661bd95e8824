package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func newRequest(t *testing.T, method string, params interface{}) *protocol.Request {
	t.Helper()
	req, err := protocol.NewRequest(protocol.IntID(7), method, params)
	require.NoError(t, err)
	return req
}

func TestMetricsRecordRequests(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{ServiceName: "weather"})
	require.NoError(t, err)

	m.RecordRequest("tools/list", StatusOK, 3*time.Millisecond)
	m.RecordToolCall("get_weather", StatusError, time.Millisecond)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.RecordCancellation()

	body := scrape(t, m)
	assert.Contains(t, body, `mcp_request_total{method="tools/list",service="weather",status="ok"} 1`)
	assert.Contains(t, body, `mcp_tool_call_total{service="weather",status="error",tool="get_weather"} 1`)
	assert.Contains(t, body, `mcp_active_sessions{service="weather"} 1`)
	assert.Contains(t, body, `mcp_cancellations_total{service="weather"} 1`)
	assert.Contains(t, body, "mcp_request_duration_milliseconds_bucket")
}

func TestMetricsShareRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewMetrics(MetricsConfig{Registerer: reg})
	require.NoError(t, err)
	b, err := NewMetrics(MetricsConfig{Registerer: reg})
	require.NoError(t, err, "second registration should reuse collectors")

	a.RecordRequest("ping", StatusOK, 0)
	b.RecordRequest("ping", StatusOK, 0)

	assert.Contains(t, scrape(t, a), `mcp_request_total{method="ping",status="ok"} 2`)
}

func TestMiddlewareRecordsOutcomes(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	require.NoError(t, err)
	mw := NewMiddleware(MiddlewareConfig{Metrics: m})

	ok := mw(func(ctx context.Context, req *protocol.Request) (interface{}, error) {
		return protocol.ErrorResult("station offline"), nil
	})
	_, err = ok(context.Background(), newRequest(t, protocol.MethodCallTool, protocol.CallToolParams{Name: "get_weather"}))
	require.NoError(t, err)

	cancelled := mw(func(ctx context.Context, req *protocol.Request) (interface{}, error) {
		return nil, mcperrors.RequestCancelled(req.Method)
	})
	_, err = cancelled(context.Background(), newRequest(t, protocol.MethodCallTool, protocol.CallToolParams{Name: "slow_echo"}))
	require.Error(t, err)

	failed := mw(func(ctx context.Context, req *protocol.Request) (interface{}, error) {
		return nil, mcperrors.ResourceNotFound("weather://nowhere")
	})
	_, err = failed(context.Background(), newRequest(t, protocol.MethodReadResource, nil))
	require.Error(t, err)

	body := scrape(t, m)
	assert.Contains(t, body, `mcp_request_total{method="tools/call",status="ok"} 1`)
	assert.Contains(t, body, `mcp_tool_call_total{status="error",tool="get_weather"} 1`)
	assert.Contains(t, body, `mcp_tool_call_total{status="cancelled",tool="slow_echo"} 1`)
	assert.Contains(t, body, `mcp_request_total{method="resources/read",status="error"} 1`)
	assert.Contains(t, body, `mcp_cancellations_total 1`)
	assert.Contains(t, body, `mcp_inflight_requests 0`)
}

func TestMiddlewareSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracingProvider(context.Background(), TracingConfig{
		ServiceName: "weather",
		Exporter:    exporter,
	})
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	mw := NewMiddleware(MiddlewareConfig{Tracing: tp, CaptureRequestPayload: true})
	handler := mw(func(ctx context.Context, req *protocol.Request) (interface{}, error) {
		if req.Method == protocol.MethodReadResource {
			return nil, mcperrors.ResourceNotFound("weather://nowhere")
		}
		return protocol.PingResult{}, nil
	})

	params := map[string]interface{}{
		"_meta": map[string]string{
			"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		},
	}
	_, err = handler(context.Background(), newRequest(t, protocol.MethodPing, params))
	require.NoError(t, err)
	_, err = handler(context.Background(), newRequest(t, protocol.MethodReadResource, protocol.ReadResourceParams{URI: "weather://nowhere"}))
	require.Error(t, err)

	require.NoError(t, tp.tracerProvider.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	ping := spans[0]
	assert.Equal(t, "mcp.ping", ping.Name)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", ping.Parent.TraceID().String(), "parent comes from _meta")
	assert.True(t, ping.Parent.IsRemote())

	read := spans[1]
	assert.Equal(t, "mcp.resources/read", read.Name)
	attrs := map[string]string{}
	for _, kv := range read.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "ResourceNotFound", attrs["mcp.error.type"])
	assert.Equal(t, "-32005", attrs["rpc.jsonrpc.error_code"])
	assert.True(t, strings.Contains(attrs["mcp.request.params"], "weather://nowhere"))
}

func TestRequestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, StatusOK},
		{mcperrors.RequestCancelled("tools/call"), StatusCancelled},
		{context.DeadlineExceeded, StatusCancelled},
		{mcperrors.InvalidParams("bad"), StatusError},
		{errors.New("boom"), StatusError},
	}
	for _, tt := range tests {
		if got := requestStatus(tt.err); got != tt.want {
			t.Errorf("requestStatus(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMetaCarrierIgnoresJunk(t *testing.T) {
	assert.Empty(t, metaCarrier(nil))
	assert.Empty(t, metaCarrier(json.RawMessage(`[1,2]`)))

	c := metaCarrier(json.RawMessage(`{"_meta":{"traceparent":"x","n":3}}`))
	assert.Equal(t, "x", c.Get("traceparent"))
	assert.Empty(t, c.Get("n"))
}

func TestUnsupportedExporter(t *testing.T) {
	_, err := NewTracingProvider(context.Background(), TracingConfig{ExporterType: "jaeger"})
	require.Error(t, err)
}

func TestMethodSampler(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracingProvider(context.Background(), TracingConfig{
		Exporter:    exporter,
		NeverSample: []string{protocol.MethodPing},
	})
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	_, span := tp.StartMethodSpan(context.Background(), protocol.MethodPing, 0)
	span.End()
	_, span = tp.StartMethodSpan(context.Background(), protocol.MethodListTools, 0)
	span.End()

	require.NoError(t, tp.tracerProvider.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "mcp.tools/list", spans[0].Name)
}

func TestAlwaysSampleOverridesRate(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracingProvider(context.Background(), TracingConfig{
		Exporter:     exporter,
		SampleRate:   -1,
		AlwaysSample: []string{protocol.MethodCallTool},
		NeverSample:  []string{protocol.MethodCallTool},
	})
	require.NoError(t, err)

	_, span := tp.StartMethodSpan(context.Background(), protocol.MethodCallTool, 0)
	span.End()
	_, span = tp.StartMethodSpan(context.Background(), protocol.MethodListTools, 0)
	span.End()

	require.NoError(t, tp.tracerProvider.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "mcp.tools/call", spans[0].Name)

	require.NoError(t, tp.Shutdown(context.Background()))
	require.NoError(t, tp.Shutdown(context.Background()), "second shutdown is a no-op")
}
