package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	mcperrors "github.com/ajitpratap0/mcp-engine/pkg/errors"
	"github.com/ajitpratap0/mcp-engine/pkg/inflight"
	"github.com/ajitpratap0/mcp-engine/pkg/logging"
	"github.com/ajitpratap0/mcp-engine/pkg/pagination"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
)

func (c *Conn) serverRoutes() map[string]route {
	return map[string]route{
		protocol.MethodInitialize:    {handle: c.handleInitialize},
		protocol.MethodPing:          {handle: handlePing},
		protocol.MethodListResources: {category: protocol.CapabilityResources, handle: c.handleListResources},
		protocol.MethodReadResource:  {category: protocol.CapabilityResources, handle: c.handleReadResource},
		protocol.MethodListTools:     {category: protocol.CapabilityTools, handle: c.handleListTools},
		protocol.MethodCallTool:      {category: protocol.CapabilityTools, handle: c.handleCallTool},
		protocol.MethodListPrompts:   {category: protocol.CapabilityPrompts, handle: c.handleListPrompts},
		protocol.MethodGetPrompt:     {category: protocol.CapabilityPrompts, handle: c.handleGetPrompt},
	}
}

func (c *Conn) clientRoutes() map[string]route {
	return map[string]route{
		protocol.MethodPing: {handle: handlePing},
	}
}

// decodeParams unmarshals params into target. Absent params leave target at
// its zero value; required members are checked by the caller.
func decodeParams(params json.RawMessage, target interface{}) error {
	if len(bytes.TrimSpace(params)) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return mcperrors.InvalidParamsf("%s must be of type %s", typeErr.Field, typeErr.Type)
		}
		return mcperrors.InvalidParams(err.Error())
	}
	return nil
}

func (c *Conn) handleInitialize(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.InitializeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	result, err := c.session.HandleInitialize(p)
	if err != nil {
		if mcperrors.IsCode(err, mcperrors.CodeVersionMismatch) {
			c.logger.WithError(err).Warn("handshake failed")
		}
		return nil, err
	}

	client := "unknown"
	if p.ClientInfo != nil {
		client = p.ClientInfo.Name
	}
	c.logger.Info("negotiated protocol version",
		logging.String("version", result.ProtocolVersion),
		logging.String("client", client))
	return result, nil
}

func handlePing(ctx context.Context, params json.RawMessage) (interface{}, error) {
	return protocol.PingResult{}, nil
}

func (c *Conn) listParams(params json.RawMessage) (protocol.ListParams, error) {
	var p protocol.ListParams
	err := decodeParams(params, &p)
	return p, err
}

func (c *Conn) handleListResources(ctx context.Context, params json.RawMessage) (interface{}, error) {
	p, err := c.listParams(params)
	if err != nil {
		return nil, err
	}
	page, next, err := pagination.Page(c.opts.Registry.Resources(), p.Cursor, c.opts.PageSize)
	if err != nil {
		return nil, err
	}
	return &protocol.ListResourcesResult{Resources: page, NextCursor: next}, nil
}

func (c *Conn) handleReadResource(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.ReadResourceParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.URI == "" {
		return nil, mcperrors.MissingParameter("uri")
	}

	entry, err := c.opts.Registry.ResolveResource(p.URI)
	if err != nil {
		return nil, mcperrors.ResourceNotFound(p.URI)
	}

	contents, err := entry.Handler(ctx, p.URI)
	if err != nil {
		return nil, err
	}
	if contents == nil {
		contents = []protocol.ResourceContents{}
	}
	return &protocol.ReadResourceResult{Contents: contents}, nil
}

func (c *Conn) handleListTools(ctx context.Context, params json.RawMessage) (interface{}, error) {
	p, err := c.listParams(params)
	if err != nil {
		return nil, err
	}
	page, next, err := pagination.Page(c.opts.Registry.Tools(), p.Cursor, c.opts.PageSize)
	if err != nil {
		return nil, err
	}
	return &protocol.ListToolsResult{Tools: page, NextCursor: next}, nil
}

// handleCallTool reports a failure of the tool itself as an IsError result.
// MCPErrors returned by the tool, and cancellation, stay protocol errors.
func (c *Conn) handleCallTool(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.CallToolParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, mcperrors.MissingParameter("name")
	}

	entry, err := c.opts.Registry.ResolveTool(p.Name)
	if err != nil {
		return nil, mcperrors.ToolNotFound(p.Name)
	}
	if err := entry.Validate(p.Arguments); err != nil {
		return nil, mcperrors.InvalidParams(err.Error())
	}

	result, err := entry.Handler(ctx, p.Arguments)
	switch {
	case err == nil:
	case mcperrors.IsMCPError(err):
		return nil, err
	case isContextError(err) && ctx.Err() != nil:
		return nil, err
	default:
		c.logger.WithContext(ctx).WithError(err).Debug("tool reported failure", logging.String("tool", p.Name))
		return protocol.ErrorResult(err.Error()), nil
	}

	if result == nil {
		result = &protocol.CallToolResult{}
	}
	if result.Content == nil {
		result.Content = []protocol.Content{}
	}
	return result, nil
}

func (c *Conn) handleListPrompts(ctx context.Context, params json.RawMessage) (interface{}, error) {
	p, err := c.listParams(params)
	if err != nil {
		return nil, err
	}
	page, next, err := pagination.Page(c.opts.Registry.Prompts(), p.Cursor, c.opts.PageSize)
	if err != nil {
		return nil, err
	}
	return &protocol.ListPromptsResult{Prompts: page, NextCursor: next}, nil
}

func (c *Conn) handleGetPrompt(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p protocol.GetPromptParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, mcperrors.MissingParameter("name")
	}

	entry, err := c.opts.Registry.ResolvePrompt(p.Name)
	if err != nil {
		return nil, mcperrors.PromptNotFound(p.Name)
	}
	if missing := entry.Descriptor.MissingArguments(p.Arguments); len(missing) > 0 {
		sort.Strings(missing)
		return nil, mcperrors.InvalidParamsf("missing required arguments: %s", strings.Join(missing, ", "))
	}
	if p.Arguments == nil {
		p.Arguments = map[string]string{}
	}

	result, err := entry.Handler(ctx, p.Arguments)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &protocol.GetPromptResult{}
	}
	if result.Messages == nil {
		result.Messages = []protocol.PromptMessage{}
	}
	return result, nil
}

// CancellationRequested reports whether the peer cancelled the request being
// served under ctx.
func CancellationRequested(ctx context.Context) bool {
	return inflight.CancellationRequested(ctx)
}
