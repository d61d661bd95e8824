package protocol

import (
	"encoding/json"
	"fmt"
)

// Tool describes an invocable function. InputSchema is a JSON Schema object
// the arguments of tools/call must satisfy.
type Tool struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema,omitempty"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// ListToolsResult defines the response for listing tools
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// CallToolParams defines parameters for calling a tool
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult defines the response for tool calls. IsError marks a
// failure of the tool itself; the protocol call still succeeded.
type CallToolResult struct {
	Content           []Content       `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

// TextResult builds a successful single-text tool result.
func TextResult(format string, args ...interface{}) *CallToolResult {
	return &CallToolResult{Content: []Content{TextContent(fmt.Sprintf(format, args...))}}
}

// ErrorResult builds a tool-level failure carrying msg.
func ErrorResult(msg string) *CallToolResult {
	return &CallToolResult{Content: []Content{TextContent(msg)}, IsError: true}
}

// Text concatenates the text parts of the result.
func (r *CallToolResult) Text() string {
	if r == nil {
		return ""
	}
	var out string
	for _, c := range r.Content {
		if c.Type == ContentTypeText {
			out += c.Text
		}
	}
	return out
}
