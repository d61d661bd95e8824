package observability

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/mcp-engine/pkg/engine"
	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
)

const maxCapturedParams = 1024

// MiddlewareConfig selects what the engine middleware records. Either
// provider may be nil.
type MiddlewareConfig struct {
	Metrics *Metrics
	Tracing *TracingProvider

	// CaptureRequestPayload adds the (truncated) params to each span.
	CaptureRequestPayload bool
}

// NewMiddleware returns an engine middleware that wraps every inbound
// request in a server span and records its outcome. Trace context sent by
// the peer in params._meta (traceparent, tracestate) becomes the span's
// parent.
func NewMiddleware(config MiddlewareConfig) engine.Middleware {
	return func(next engine.HandlerFunc) engine.HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (interface{}, error) {
			if config.Tracing != nil {
				ctx = config.Tracing.Extract(ctx, metaCarrier(req.Params))

				var span trace.Span
				ctx, span = config.Tracing.StartMethodSpan(ctx, req.Method, trace.SpanKindServer)
				defer span.End()

				span.SetAttributes(attribute.String("rpc.jsonrpc.request_id", req.ID.String()))
				if conn, ok := engine.FromContext(ctx); ok {
					span.SetAttributes(attribute.String("mcp.session.id", conn.Session().ID()))
				}
				if config.CaptureRequestPayload && len(req.Params) > 0 {
					span.SetAttributes(attribute.String("mcp.request.params", truncate(string(req.Params), maxCapturedParams)))
				}
			}

			if config.Metrics != nil {
				config.Metrics.requestStarted()
				defer config.Metrics.requestFinished()
			}

			start := time.Now()
			result, err := next(ctx, req)
			duration := time.Since(start)

			status := requestStatus(err)
			if config.Metrics != nil {
				config.Metrics.RecordRequest(req.Method, status, duration)
				if status == StatusCancelled {
					config.Metrics.RecordCancellation()
				}
				if req.Method == protocol.MethodCallTool {
					if name := toolName(req.Params); name != "" {
						config.Metrics.RecordToolCall(name, toolStatus(result, status), duration)
					}
				}
			}

			if config.Tracing != nil {
				span := trace.SpanFromContext(ctx)
				span.SetAttributes(attribute.Float64("rpc.duration_ms", milliseconds(duration)))
				if err != nil {
					span.SetAttributes(attribute.String("mcp.error.type", errorType(err)))
					if mcpErr, ok := mcperrors.AsMCPError(err); ok {
						span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", mcpErr.Code()))
					}
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				} else if r, ok := result.(*protocol.CallToolResult); ok && r.IsError {
					span.SetAttributes(attribute.Bool("mcp.tool.is_error", true))
				}
			}

			return result, err
		}
	}
}

func requestStatus(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case mcperrors.IsCode(err, mcperrors.CodeRequestCancelled),
		mcperrors.IsCode(err, mcperrors.CodeRequestTimeout),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusError
	}
}

func toolStatus(result interface{}, status string) string {
	if r, ok := result.(*protocol.CallToolResult); ok && status == StatusOK && r.IsError {
		return StatusError
	}
	return status
}

// errorType names an error by its code for span attributes.
func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "RequestCancelled"
	}
	if mcpErr, ok := mcperrors.AsMCPError(err); ok {
		return mcperrors.GetErrorCodeName(mcpErr.Code())
	}
	return "UnknownError"
}

func toolName(params json.RawMessage) string {
	var p struct {
		Name string `json:"name"`
	}
	if len(params) == 0 || json.Unmarshal(params, &p) != nil {
		return ""
	}
	return p.Name
}

// metaCarrier collects the string entries of params._meta.
func metaCarrier(params json.RawMessage) propagation.MapCarrier {
	carrier := propagation.MapCarrier{}
	if len(params) == 0 {
		return carrier
	}
	var p struct {
		Meta map[string]interface{} `json:"_meta"`
	}
	if json.Unmarshal(params, &p) != nil {
		return carrier
	}
	for k, v := range p.Meta {
		if s, ok := v.(string); ok {
			carrier[k] = s
		}
	}
	return carrier
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
