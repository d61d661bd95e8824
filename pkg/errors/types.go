// Package errors provides structured error handling for the MCP engine.
// Every error the dispatcher can turn into a Response is an MCPError whose
// code belongs to the closed taxonomy in codes.go.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"strings"
)

// Category groups codes by what went wrong
type Category string

const (
	CategoryValidation  Category = "validation"
	CategoryNotFound    Category = "not_found"
	CategoryTransport   Category = "transport"
	CategoryInternal    Category = "internal"
	CategoryCancelled   Category = "cancelled"
	CategoryProtocol    Category = "protocol"
	CategoryApplication Category = "application"
)

// Severity is the level an error is logged at
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Context locates an error within a connection. It is for logs only and is
// never sent to the peer.
type Context struct {
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// MCPError is an error with a JSON-RPC code. Message and Data are what the
// peer sees; detail and cause stay local.
type MCPError interface {
	error

	// Code returns the JSON-RPC error code
	Code() int

	// Message returns the short message put on the wire
	Message() string

	// Data returns the structured data put on the wire, or nil
	Data() interface{}

	Category() Category
	Severity() Severity

	// Context never returns nil
	Context() *Context

	// WithContext, WithDetail and WithData return modified copies
	WithContext(ctx *Context) MCPError
	WithDetail(detail string) MCPError
	WithData(data interface{}) MCPError

	// Unwrap returns the wrapped cause, if any
	Unwrap() error

	// ToJSON returns the error as a JSON-serializable map
	ToJSON() map[string]interface{}
}

type mcpError struct {
	code     int
	message  string
	detail   string
	data     interface{}
	category Category
	severity Severity
	ctx      *Context
	cause    error
}

// NewError creates an MCPError
func NewError(code int, message string, category Category, severity Severity) MCPError {
	return &mcpError{code: code, message: message, category: category, severity: severity}
}

// WrapError creates an MCPError caused by err. errors.Is and errors.As see
// through it.
func WrapError(err error, code int, message string, category Category, severity Severity) MCPError {
	return &mcpError{code: code, message: message, category: category, severity: severity, cause: err}
}

// Error joins message, detail and cause with ": ".
func (e *mcpError) Error() string {
	parts := make([]string, 0, 3)
	parts = append(parts, e.message)
	if e.detail != "" {
		parts = append(parts, e.detail)
	}
	if e.cause != nil {
		parts = append(parts, e.cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *mcpError) Code() int          { return e.code }
func (e *mcpError) Message() string    { return e.message }
func (e *mcpError) Data() interface{}  { return e.data }
func (e *mcpError) Category() Category { return e.category }
func (e *mcpError) Severity() Severity { return e.severity }
func (e *mcpError) Unwrap() error      { return e.cause }

func (e *mcpError) Context() *Context {
	if e.ctx == nil {
		return &Context{}
	}
	return e.ctx
}

func (e *mcpError) WithContext(ctx *Context) MCPError {
	c := *e
	c.ctx = ctx
	return &c
}

// WithDetail appends to the local detail, separating entries with "; ".
func (e *mcpError) WithDetail(detail string) MCPError {
	c := *e
	if c.detail != "" {
		c.detail += "; " + detail
	} else {
		c.detail = detail
	}
	return &c
}

func (e *mcpError) WithData(data interface{}) MCPError {
	c := *e
	c.data = data
	return &c
}

type errorJSON struct {
	Code     int         `json:"code"`
	Message  string      `json:"message"`
	Category Category    `json:"category"`
	Severity Severity    `json:"severity"`
	Detail   string      `json:"detail,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Context  *Context    `json:"context,omitempty"`
	Cause    string      `json:"cause,omitempty"`
}

func (e *mcpError) toJSON() errorJSON {
	out := errorJSON{
		Code:     e.code,
		Message:  e.message,
		Category: e.category,
		Severity: e.severity,
		Detail:   e.detail,
		Data:     e.data,
		Context:  e.ctx,
	}
	if e.cause != nil {
		out.Cause = e.cause.Error()
	}
	return out
}

func (e *mcpError) ToJSON() map[string]interface{} {
	j := e.toJSON()
	m := map[string]interface{}{
		"code":     j.Code,
		"message":  j.Message,
		"category": string(j.Category),
		"severity": string(j.Severity),
	}
	if j.Detail != "" {
		m["detail"] = j.Detail
	}
	if j.Data != nil {
		m["data"] = j.Data
	}
	if j.Context != nil {
		m["context"] = j.Context
	}
	if j.Cause != "" {
		m["cause"] = j.Cause
	}
	return m
}

// MarshalJSON is used when an error is logged as a JSON field
func (e *mcpError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.toJSON())
}

// AsMCPError finds the first MCPError in err's chain
func AsMCPError(err error) (MCPError, bool) {
	var mcpErr MCPError
	if err != nil && stderrors.As(err, &mcpErr) {
		return mcpErr, true
	}
	return nil, false
}

// IsMCPError checks if an error is an MCPError
func IsMCPError(err error) bool {
	_, ok := AsMCPError(err)
	return ok
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code int) bool {
	mcpErr, ok := AsMCPError(err)
	return ok && mcpErr.Code() == code
}
