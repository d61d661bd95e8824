package errors

import (
	"encoding/json"

	"github.com/ajitpratap0/mcp-engine/pkg/protocol"
)

// ToJSONRPCError converts any error to a JSON-RPC error object. Errors that
// are not MCPErrors, and MCPErrors carrying a local-only code, become a bare
// InternalError so handler internals never reach the peer.
func ToJSONRPCError(err error) *protocol.Error {
	if err == nil {
		return nil
	}

	mcpErr, ok := AsMCPError(err)
	if !ok || !IsWireCode(mcpErr.Code()) {
		return &protocol.Error{
			Code:    protocol.InternalError,
			Message: InternalError().Message(),
		}
	}

	out := &protocol.Error{
		Code:    protocol.ErrorCode(mcpErr.Code()),
		Message: mcpErr.Message(),
	}
	if data := mcpErr.Data(); data != nil {
		if raw, err := json.Marshal(data); err == nil {
			out.Data = raw
		}
	}
	return out
}

// ToJSONRPCResponse converts any error to an error Response for id.
func ToJSONRPCResponse(err error, id protocol.ID) *protocol.Response {
	return &protocol.Response{
		JSONRPCMessage: protocol.JSONRPCMessage{JSONRPC: protocol.JSONRPCVersion},
		ID:             id,
		Error:          ToJSONRPCError(err),
	}
}

// FromJSONRPCError converts a JSON-RPC error received from a peer into an
// MCPError. Data is kept in its raw form.
func FromJSONRPCError(rpcErr *protocol.Error) MCPError {
	if rpcErr == nil {
		return nil
	}

	code := int(rpcErr.Code)
	err := NewError(code, rpcErr.Message, GetErrorCodeCategory(code), GetErrorCodeSeverity(code))
	if len(rpcErr.Data) > 0 {
		err = err.WithData(rpcErr.Data)
	}
	return err
}
