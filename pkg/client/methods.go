package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ajitpratap0/mcp-engine/pkg/engine"
	"github.com/ajitpratap0/mcp-engine/pkg/pagination"
	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
)

// maxPages bounds ListAll* against a server that never stops paging.
const maxPages = 10000

// ListTools fetches one page of tools. An empty cursor asks for the first
// page; the returned cursor is empty on the last page.
func (c *Client) ListTools(ctx context.Context, cursor string) ([]protocol.Tool, string, error) {
	var result protocol.ListToolsResult
	if err := c.call(ctx, protocol.MethodListTools, protocol.ListParams{Cursor: cursor}, &result); err != nil {
		return nil, "", err
	}
	return result.Tools, result.NextCursor, nil
}

// ListAllTools follows the cursor until the last page.
func (c *Client) ListAllTools(ctx context.Context) ([]protocol.Tool, error) {
	return fetchAll(ctx, c.ListTools)
}

// CallTool invokes a tool. args is marshaled as the tool's arguments; it may
// be nil, a json.RawMessage or any value encoding to a JSON object. A tool
// that fails in its own domain returns a result with IsError set and a nil
// error.
func (c *Client) CallTool(ctx context.Context, name string, args interface{}) (*protocol.CallToolResult, error) {
	params, err := callToolParams(name, args)
	if err != nil {
		return nil, err
	}
	var result protocol.CallToolResult
	if err := c.call(ctx, protocol.MethodCallTool, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CallToolAsync sends a tools/call and returns without waiting. The caller
// waits on the returned call and may Cancel it meanwhile.
func (c *Client) CallToolAsync(ctx context.Context, name string, args interface{}) (*engine.PendingCall, error) {
	if !c.isStarted() {
		return nil, ErrNotStarted
	}
	params, err := callToolParams(name, args)
	if err != nil {
		return nil, err
	}
	return c.conn.Go(ctx, protocol.MethodCallTool, params)
}

func callToolParams(name string, args interface{}) (protocol.CallToolParams, error) {
	params := protocol.CallToolParams{Name: name}
	switch a := args.(type) {
	case nil:
	case json.RawMessage:
		params.Arguments = a
	default:
		raw, err := json.Marshal(a)
		if err != nil {
			return params, fmt.Errorf("failed to marshal arguments: %w", err)
		}
		params.Arguments = raw
	}
	return params, nil
}

// ListResources fetches one page of resources.
func (c *Client) ListResources(ctx context.Context, cursor string) ([]protocol.Resource, string, error) {
	var result protocol.ListResourcesResult
	if err := c.call(ctx, protocol.MethodListResources, protocol.ListParams{Cursor: cursor}, &result); err != nil {
		return nil, "", err
	}
	return result.Resources, result.NextCursor, nil
}

// ListAllResources follows the cursor until the last page.
func (c *Client) ListAllResources(ctx context.Context) ([]protocol.Resource, error) {
	return fetchAll(ctx, c.ListResources)
}

// ReadResource reads the contents of one resource.
func (c *Client) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	var result protocol.ReadResourceResult
	if err := c.call(ctx, protocol.MethodReadResource, protocol.ReadResourceParams{URI: uri}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListPrompts fetches one page of prompts.
func (c *Client) ListPrompts(ctx context.Context, cursor string) ([]protocol.Prompt, string, error) {
	var result protocol.ListPromptsResult
	if err := c.call(ctx, protocol.MethodListPrompts, protocol.ListParams{Cursor: cursor}, &result); err != nil {
		return nil, "", err
	}
	return result.Prompts, result.NextCursor, nil
}

// ListAllPrompts follows the cursor until the last page.
func (c *Client) ListAllPrompts(ctx context.Context) ([]protocol.Prompt, error) {
	return fetchAll(ctx, c.ListPrompts)
}

// GetPrompt renders a prompt with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	var result protocol.GetPromptResult
	params := protocol.GetPromptParams{Name: name, Arguments: args}
	if err := c.call(ctx, protocol.MethodGetPrompt, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func fetchAll[T any](ctx context.Context, fetch func(context.Context, string) ([]T, string, error)) ([]T, error) {
	collector := pagination.NewCollector()
	var all []T
	for collector.HasMore {
		if collector.Pages >= maxPages {
			return nil, fmt.Errorf("listing exceeded %d pages", maxPages)
		}
		items, next, err := fetch(ctx, collector.NextCursor)
		if err != nil {
			return nil, err
		}
		if next != "" && next == collector.NextCursor {
			return nil, fmt.Errorf("server repeated cursor %q", next)
		}
		all = append(all, items...)
		collector.Update(len(items), next)
	}
	return all, nil
}
