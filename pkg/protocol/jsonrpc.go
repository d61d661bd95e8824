package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// JSONRPCVersion is the supported JSON-RPC version
	JSONRPCVersion = "2.0"
)

// ErrorCode is the integer carried in error.code.
type ErrorCode int

// Standard JSON-RPC 2.0 error codes
const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

// MCP engine error codes. Handler-defined application errors use
// ApplicationErrorMin through ApplicationErrorMax.
const (
	RequestTimeout     ErrorCode = -32001
	NotInitialized     ErrorCode = -32002
	AlreadyInitialized ErrorCode = -32003
	VersionMismatch    ErrorCode = -32004
	ResourceNotFound   ErrorCode = -32005
	RequestCancelled   ErrorCode = -32800

	ApplicationErrorMin ErrorCode = -31999
	ApplicationErrorMax ErrorCode = -31000
)

// Message is one of *Request, *Response or *Notification.
type Message interface {
	isMessage()
}

// JSONRPCMessage represents a JSON-RPC 2.0 message
type JSONRPCMessage struct {
	JSONRPC string `json:"jsonrpc"`
}

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPCMessage
	ID     ID              `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// NewRequest creates a new JSON-RPC 2.0 request
func NewRequest(id ID, method string, params interface{}) (*Request, error) {
	paramsJSON, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	return &Request{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Method:         method,
		Params:         paramsJSON,
	}, nil
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPCMessage
	ID     ID              `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// NewResponse creates a new JSON-RPC 2.0 success response
func NewResponse(id ID, result interface{}) (*Response, error) {
	resultJSON, err := marshalOptional(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	if resultJSON == nil {
		resultJSON = json.RawMessage("null")
	}

	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Result:         resultJSON,
	}, nil
}

// NewErrorResponse creates a new JSON-RPC 2.0 error response
func NewErrorResponse(id ID, code ErrorCode, message string, data interface{}) (*Response, error) {
	dataJSON, err := marshalOptional(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error data: %w", err)
	}

	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    dataJSON,
		},
	}, nil
}

// MarshalJSON writes "result": null for a success response without a result.
func (r Response) MarshalJSON() ([]byte, error) {
	type wire Response
	w := wire(r)
	if w.JSONRPC == "" {
		w.JSONRPC = JSONRPCVersion
	}
	if w.Error == nil && w.Result == nil {
		w.Result = json.RawMessage("null")
	}
	if w.Error != nil {
		w.Result = nil
	}
	return marshalNoEscape(w)
}

// Notification represents a JSON-RPC 2.0 notification
type Notification struct {
	JSONRPCMessage
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// NewNotification creates a new JSON-RPC 2.0 notification
func NewNotification(method string, params interface{}) (*Notification, error) {
	paramsJSON, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	return &Notification{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		Method:         method,
		Params:         paramsJSON,
	}, nil
}

func (*Request) isMessage()      {}
func (*Response) isMessage()     {}
func (*Notification) isMessage() {}

// Error represents a JSON-RPC 2.0 error object
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// DecodeKind classifies a decode failure.
type DecodeKind int

const (
	// DecodeParse means the bytes were not valid JSON.
	DecodeParse DecodeKind = iota
	// DecodeInvalid means valid JSON that is not a well-formed envelope.
	DecodeInvalid
)

// DecodeError is returned by Decode. ID is set when the envelope carried a
// usable id, so the receiver can still answer with InvalidRequest.
type DecodeError struct {
	Kind   DecodeKind
	ID     ID
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Code maps the failure onto the error taxonomy.
func (e *DecodeError) Code() ErrorCode {
	if e.Kind == DecodeParse {
		return ParseError
	}
	return InvalidRequest
}

// envelope captures every top-level member raw so presence can be tested
// independently of type; unknown members are dropped by encoding/json.
type envelope struct {
	JSONRPC json.RawMessage `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  json.RawMessage `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

var nullLiteral = []byte("null")

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), nullLiteral)
}

// Decode parses one envelope. The variant is chosen from which of id, method,
// result and error are present.
func Decode(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &DecodeError{Kind: DecodeParse, Reason: "empty message"}
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		if trimmed[0] == '[' && json.Valid(trimmed) {
			return nil, &DecodeError{Kind: DecodeInvalid, Reason: "batch messages are not supported"}
		}
		if trimmed[0] != '{' && json.Valid(trimmed) {
			return nil, &DecodeError{Kind: DecodeInvalid, Reason: "message must be a JSON object"}
		}
		return nil, &DecodeError{Kind: DecodeParse, Reason: "malformed JSON", Err: err}
	}

	var id ID
	hasID := env.ID != nil && !isNull(env.ID)
	if hasID {
		if err := json.Unmarshal(env.ID, &id); err != nil {
			return nil, &DecodeError{Kind: DecodeInvalid, Reason: "invalid id", Err: err}
		}
	}

	invalid := func(reason string) error {
		return &DecodeError{Kind: DecodeInvalid, ID: id, Reason: reason}
	}

	if env.JSONRPC != nil {
		var version string
		if err := json.Unmarshal(env.JSONRPC, &version); err != nil || version != JSONRPCVersion {
			return nil, invalid(`jsonrpc must be "2.0"`)
		}
	}

	params := env.Params
	if params != nil && isNull(params) {
		params = nil
	}
	if params != nil {
		if c := bytes.TrimSpace(params)[0]; c != '{' && c != '[' {
			return nil, invalid("params must be an object or array")
		}
	}

	if env.Method != nil {
		var method string
		if err := json.Unmarshal(env.Method, &method); err != nil {
			return nil, invalid("method must be a string")
		}
		if method == "" {
			return nil, invalid("method must not be empty")
		}
		if env.Result != nil || env.Error != nil {
			return nil, invalid("request must not carry result or error")
		}
		if env.ID != nil && !hasID {
			return nil, invalid("request id must not be null")
		}
		if !hasID {
			return &Notification{
				JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
				Method:         method,
				Params:         params,
			}, nil
		}
		return &Request{
			JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
			ID:             id,
			Method:         method,
			Params:         params,
		}, nil
	}

	if env.ID == nil {
		return nil, invalid("message has neither id nor method")
	}

	hasError := env.Error != nil && !isNull(env.Error)
	hasResult := env.Result != nil && !(hasError && isNull(env.Result))
	switch {
	case hasError && hasResult:
		return nil, invalid("response carries both result and error")
	case !hasError && !hasResult:
		return nil, invalid("response carries neither result nor error")
	}

	resp := &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
	}
	if hasError {
		var rpcErr Error
		if err := json.Unmarshal(env.Error, &rpcErr); err != nil {
			return nil, invalid("malformed error object")
		}
		resp.Error = &rpcErr
	} else {
		resp.Result = env.Result
	}
	if !hasID && !hasError {
		return nil, invalid("success response id must not be null")
	}
	return resp, nil
}

// Encode serializes a message compactly, without HTML escaping.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("cannot encode nil message")
	}
	switch m := msg.(type) {
	case *Request:
		if m.ID.IsZero() {
			return nil, fmt.Errorf("request %q has no id", m.Method)
		}
		if m.JSONRPC == "" {
			c := *m
			c.JSONRPC = JSONRPCVersion
			msg = &c
		}
	case *Notification:
		if m.JSONRPC == "" {
			c := *m
			c.JSONRPC = JSONRPCVersion
			msg = &c
		}
	case *Response:
	default:
		return nil, fmt.Errorf("unsupported message type %T", msg)
	}

	data, err := marshalNoEscape(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

func marshalNoEscape(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

func marshalOptional(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
