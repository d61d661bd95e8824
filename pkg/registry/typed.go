package registry

import (
	"context"
	"encoding/json"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
	"github.com/ajitpratap0/mcp-engine/pkg/schema"
)

// Tool builds a descriptor and handler for a function over a typed argument
// struct. The input schema is reflected from In and arguments are decoded
// into it before fn runs.
//
//	reg.RegisterTool(registry.Tool("get_weather", "Current weather",
//		func(ctx context.Context, in WeatherArgs) (*protocol.CallToolResult, error) { ... }))
func Tool[In any](name, description string, fn func(ctx context.Context, in In) (*protocol.CallToolResult, error)) (protocol.Tool, ToolHandler) {
	desc := protocol.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema.Reflect[In](),
	}

	handler := func(ctx context.Context, args json.RawMessage) (*protocol.CallToolResult, error) {
		in, err := schema.Decode[In](args)
		if err != nil {
			return nil, mcperrors.InvalidParams(err.Error())
		}
		return fn(ctx, in)
	}
	return desc, handler
}

// StaticResource returns a handler that always serves text.
func StaticResource(mimeType, text string) ResourceHandler {
	return func(ctx context.Context, uri string) ([]protocol.ResourceContents, error) {
		return []protocol.ResourceContents{{URI: uri, MimeType: mimeType, Text: text}}, nil
	}
}
