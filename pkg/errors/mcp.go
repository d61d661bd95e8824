package errors

import (
	"fmt"
	"strings"
	"time"
)

// Protocol errors

// ParseError reports bytes that could not be decoded as JSON.
func ParseError(reason string) MCPError {
	return NewError(CodeParseError, "parse error", CategoryProtocol, SeverityError).
		WithDetail(reason)
}

// InvalidRequest reports a well-formed message that breaks the envelope rules.
func InvalidRequest(reason string) MCPError {
	return NewError(CodeInvalidRequest, "invalid request", CategoryProtocol, SeverityError).
		WithDetail(reason)
}

// MethodNotFound reports an unknown method.
func MethodNotFound(method string) MCPError {
	return NewError(CodeMethodNotFound, "method not found", CategoryNotFound, SeverityError).
		WithData(map[string]interface{}{"method": method})
}

// ToolNotFound reports tools/call for a name that is not registered.
func ToolNotFound(name string) MCPError {
	return NewError(CodeMethodNotFound, "tool not found", CategoryNotFound, SeverityError).
		WithData(map[string]interface{}{"name": name})
}

// PromptNotFound reports prompts/get for a name that is not registered.
func PromptNotFound(name string) MCPError {
	return NewError(CodeMethodNotFound, "prompt not found", CategoryNotFound, SeverityError).
		WithData(map[string]interface{}{"name": name})
}

// ResourceNotFound reports resources/read for a URI that is not registered.
func ResourceNotFound(uri string) MCPError {
	return NewError(CodeResourceNotFound, "resource not found", CategoryNotFound, SeverityError).
		WithData(map[string]interface{}{"uri": uri})
}

// InvalidParams reports params that do not match the method's expected shape.
// The reason is sent to the peer as error data.
func InvalidParams(reason string) MCPError {
	return NewError(CodeInvalidParams, "invalid params", CategoryValidation, SeverityError).
		WithDetail(reason).
		WithData(map[string]interface{}{"reason": reason})
}

// InvalidParamsf is InvalidParams with a formatted reason.
func InvalidParamsf(format string, args ...interface{}) MCPError {
	return InvalidParams(fmt.Sprintf(format, args...))
}

// MissingParameter reports a required parameter that is absent.
func MissingParameter(param string) MCPError {
	return InvalidParamsf("missing required parameter %q", param)
}

// Session errors

// NotInitialized reports a functional method received before the handshake
// reached the ready state.
func NotInitialized(method string) MCPError {
	return NewError(CodeNotInitialized, "session not initialized", CategoryProtocol, SeverityWarning).
		WithData(map[string]interface{}{"method": method})
}

// AlreadyInitialized reports a second initialize on a session.
func AlreadyInitialized() MCPError {
	return NewError(CodeAlreadyInitialized, "session already initialized", CategoryProtocol, SeverityWarning)
}

// VersionMismatch reports that no protocol version is shared.
func VersionMismatch(requested []string, supported []string) MCPError {
	return NewError(CodeVersionMismatch, "unsupported protocol version", CategoryProtocol, SeverityError).
		WithDetail(fmt.Sprintf("requested %s, supported %s",
			strings.Join(requested, ","), strings.Join(supported, ","))).
		WithData(map[string]interface{}{
			"requested": requested,
			"supported": supported,
		})
}

// InternalError is the only form in which a handler fault reaches a peer.
func InternalError() MCPError {
	return NewError(CodeInternalError, "internal error", CategoryInternal, SeverityError)
}

// RequestCancelled reports that a handler stopped because cancellation was
// requested.
func RequestCancelled(method string) MCPError {
	return NewError(CodeRequestCancelled, "request cancelled", CategoryCancelled, SeverityInfo).
		WithData(map[string]interface{}{"method": method})
}

// RequestTimeout reports that a handler stopped because the request deadline
// passed.
func RequestTimeout(method string, limit time.Duration) MCPError {
	data := map[string]interface{}{"method": method}
	if limit > 0 {
		data["timeout"] = limit.String()
	}
	return NewError(CodeRequestTimeout, "request timed out", CategoryCancelled, SeverityWarning).WithData(data)
}

// Application returns a handler-defined error. Codes outside the
// application range are clamped to CodeApplicationMin.
func Application(code int, message string, data interface{}) MCPError {
	if !IsApplicationCode(code) {
		code = CodeApplicationMin
	}
	err := NewError(code, message, CategoryApplication, SeverityError)
	if data != nil {
		err = err.WithData(data)
	}
	return err
}
