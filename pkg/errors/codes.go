package errors

import "github.com/ajitpratap0/mcp-engine/pkg/protocol"

// JSON-RPC 2.0 Standard Error Codes
const (
	// ParseError indicates invalid JSON was received
	CodeParseError = int(protocol.ParseError)

	// InvalidRequest indicates a well-formed message that violates the envelope rules
	CodeInvalidRequest = int(protocol.InvalidRequest)

	// MethodNotFound indicates the method, tool or prompt does not exist
	CodeMethodNotFound = int(protocol.MethodNotFound)

	// InvalidParams indicates invalid method parameter(s)
	CodeInvalidParams = int(protocol.InvalidParams)

	// InternalError indicates a handler fault
	CodeInternalError = int(protocol.InternalError)
)

// MCP engine error codes. The range -32000 to -32099 mirrors the JSON-RPC
// server error block; -32800 is kept for cancellation.
const (
	CodeRequestTimeout     = int(protocol.RequestTimeout)     // handler outlived the request deadline
	CodeNotInitialized     = int(protocol.NotInitialized)     // functional call before the handshake completed
	CodeAlreadyInitialized = int(protocol.AlreadyInitialized) // second initialize on a session
	CodeVersionMismatch    = int(protocol.VersionMismatch)    // no common protocol version
	CodeResourceNotFound   = int(protocol.ResourceNotFound)   // resources/read on an unknown URI
	CodeRequestCancelled   = int(protocol.RequestCancelled)   // handler stopped after cancellation

	// Application errors (-31999 to -31000) are defined by handlers.
	CodeApplicationMin = int(protocol.ApplicationErrorMin)
	CodeApplicationMax = int(protocol.ApplicationErrorMax)

	// Local-only codes, never put on the wire by the engine.
	CodeTransportError  = -32500
	CodeTransportClosed = -32501
	CodeMessageTooLarge = -32502
)

// ErrorCodeInfo provides human-readable information about error codes
type ErrorCodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

// errorCodeRegistry maps error codes to their information
var errorCodeRegistry = map[int]ErrorCodeInfo{
	CodeParseError:     {CodeParseError, "ParseError", "Invalid JSON was received", CategoryProtocol, SeverityError},
	CodeInvalidRequest: {CodeInvalidRequest, "InvalidRequest", "Invalid Request object", CategoryProtocol, SeverityError},
	CodeMethodNotFound: {CodeMethodNotFound, "MethodNotFound", "Method does not exist", CategoryNotFound, SeverityError},
	CodeInvalidParams:  {CodeInvalidParams, "InvalidParams", "Invalid method parameters", CategoryValidation, SeverityError},
	CodeInternalError:  {CodeInternalError, "InternalError", "Internal error", CategoryInternal, SeverityError},

	CodeNotInitialized:     {CodeNotInitialized, "NotInitialized", "Session not initialized", CategoryProtocol, SeverityWarning},
	CodeAlreadyInitialized: {CodeAlreadyInitialized, "AlreadyInitialized", "Session already initialized", CategoryProtocol, SeverityWarning},
	CodeVersionMismatch:    {CodeVersionMismatch, "VersionMismatch", "No compatible protocol version", CategoryProtocol, SeverityError},
	CodeResourceNotFound:   {CodeResourceNotFound, "ResourceNotFound", "Resource not found", CategoryNotFound, SeverityError},
	CodeRequestCancelled:   {CodeRequestCancelled, "RequestCancelled", "Request cancelled", CategoryCancelled, SeverityInfo},
	CodeRequestTimeout:     {CodeRequestTimeout, "RequestTimeout", "Request deadline exceeded", CategoryCancelled, SeverityWarning},

	CodeTransportError:  {CodeTransportError, "TransportError", "Transport error", CategoryTransport, SeverityError},
	CodeTransportClosed: {CodeTransportClosed, "TransportClosed", "Transport closed", CategoryTransport, SeverityWarning},
	CodeMessageTooLarge: {CodeMessageTooLarge, "MessageTooLarge", "Frame exceeds the size limit", CategoryTransport, SeverityError},
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, exists := errorCodeRegistry[code]
	return info, exists
}

// GetErrorCodeName returns the name of an error code
func GetErrorCodeName(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Name
	}
	if IsApplicationCode(code) {
		return "ApplicationError"
	}
	return "UnknownError"
}

// GetErrorCodeCategory returns the category of an error code
func GetErrorCodeCategory(code int) Category {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Category
	}
	if IsApplicationCode(code) {
		return CategoryApplication
	}
	return CategoryInternal
}

// GetErrorCodeSeverity returns the severity of an error code
func GetErrorCodeSeverity(code int) Severity {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Severity
	}
	return SeverityError
}

// IsApplicationCode reports whether code is in the handler-defined range.
func IsApplicationCode(code int) bool {
	return code >= CodeApplicationMin && code <= CodeApplicationMax
}

// IsWireCode reports whether the engine may send code to a peer.
func IsWireCode(code int) bool {
	if IsApplicationCode(code) {
		return true
	}
	switch code {
	case CodeTransportError, CodeTransportClosed, CodeMessageTooLarge:
		return false
	}
	_, ok := errorCodeRegistry[code]
	return ok
}
