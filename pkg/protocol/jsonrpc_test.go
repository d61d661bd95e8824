package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(StringID("req-1"), "test.method", nil)
	if err != nil {
		t.Fatalf("Expected NewRequest with nil params to succeed, got error: %v", err)
	}

	if req.JSONRPC != JSONRPCVersion {
		t.Errorf("Expected JSONRPC version to be %q, got %q", JSONRPCVersion, req.JSONRPC)
	}
	if req.ID != StringID("req-1") {
		t.Errorf("Expected ID to be 'req-1', got %v", req.ID)
	}
	if len(req.Params) != 0 {
		t.Errorf("Expected Params to be empty, got %s", string(req.Params))
	}

	req, err = NewRequest(IntID(2), "test.method", map[string]interface{}{"key": "value"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"value"}`, string(req.Params))

	_, err = NewRequest(IntID(3), "test.method", make(chan int))
	assert.Error(t, err)
}

func TestNewResponseWritesNullResult(t *testing.T) {
	resp, err := NewResponse(IntID(1), nil)
	require.NoError(t, err)

	data, err := Encode(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"result":null}`, string(data))
}

func TestNewErrorResponse(t *testing.T) {
	resp, err := NewErrorResponse(StringID("x"), MethodNotFound, "tool not found", map[string]string{"name": "nope"})
	require.NoError(t, err)

	data, err := Encode(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","id":"x","error":{"code":-32601,"message":"tool not found","data":{"name":"nope"}}}`, string(data))
}

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want interface{}
	}{
		{"request with int id", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, &Request{}},
		{"request with string id", `{"jsonrpc":"2.0","id":"a","method":"tools/list","params":{}}`, &Request{}},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, &Notification{}},
		{"success response", `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`, &Response{}},
		{"null result response", `{"jsonrpc":"2.0","id":1,"result":null}`, &Response{}},
		{"error response", `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"nope"}}`, &Response{}},
		{"error response with null id", `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse"}}`, &Response{}},
		{"missing jsonrpc member is tolerated", `{"id":1,"method":"ping"}`, &Request{}},
		{"unknown members ignored", `{"jsonrpc":"2.0","id":1,"method":"ping","extra":{"a":1}}`, &Request{}},
		{"unknown method decodes", `{"jsonrpc":"2.0","id":1,"method":"no/such"}`, &Request{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.in))
			require.NoError(t, err)
			assert.IsType(t, tt.want, msg)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		kind     DecodeKind
		keepsID  bool
		wantCode ErrorCode
	}{
		{"malformed json", `{"jsonrpc":"2.0","id":1,`, DecodeParse, false, ParseError},
		{"empty", `   `, DecodeParse, false, ParseError},
		{"not an object", `"hello"`, DecodeInvalid, false, InvalidRequest},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, DecodeInvalid, false, InvalidRequest},
		{"neither id nor method", `{"jsonrpc":"2.0","result":1}`, DecodeInvalid, false, InvalidRequest},
		{"both result and error", `{"jsonrpc":"2.0","id":4,"result":1,"error":{"code":1,"message":"x"}}`, DecodeInvalid, true, InvalidRequest},
		{"neither result nor error", `{"jsonrpc":"2.0","id":4}`, DecodeInvalid, true, InvalidRequest},
		{"method not a string", `{"jsonrpc":"2.0","id":5,"method":12}`, DecodeInvalid, true, InvalidRequest},
		{"request with result", `{"jsonrpc":"2.0","id":5,"method":"ping","result":1}`, DecodeInvalid, true, InvalidRequest},
		{"fractional id", `{"jsonrpc":"2.0","id":1.5,"method":"ping"}`, DecodeInvalid, false, InvalidRequest},
		{"object id", `{"jsonrpc":"2.0","id":{},"method":"ping"}`, DecodeInvalid, false, InvalidRequest},
		{"wrong version", `{"jsonrpc":"1.0","id":6,"method":"ping"}`, DecodeInvalid, true, InvalidRequest},
		{"scalar params", `{"jsonrpc":"2.0","id":7,"method":"ping","params":3}`, DecodeInvalid, true, InvalidRequest},
		{"null request id", `{"jsonrpc":"2.0","id":null,"method":"ping"}`, DecodeInvalid, false, InvalidRequest},
		{"success with null id", `{"jsonrpc":"2.0","id":null,"result":1}`, DecodeInvalid, false, InvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			require.Error(t, err)

			var decErr *DecodeError
			require.True(t, errors.As(err, &decErr), "expected *DecodeError, got %T", err)
			assert.Equal(t, tt.kind, decErr.Kind)
			assert.Equal(t, tt.keepsID, !decErr.ID.IsZero())
			assert.Equal(t, tt.wantCode, decErr.Code())
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	canonical := []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"1.0","capabilities":{}}}`,
		`{"jsonrpc":"2.0","id":"abc","method":"tools/call","params":{"name":"get_weather","arguments":{"location":"Seattle"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":3}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"result":{"content":[{"type":"text","text":"<b>Seattle</b> & co"}]}}`,
		`{"jsonrpc":"2.0","id":-9,"result":null}`,
		`{"jsonrpc":"2.0","id":"e","error":{"code":-32602,"message":"bad","data":[1,2]}}`,
		`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`,
	}

	for _, in := range canonical {
		msg, err := Decode([]byte(in))
		require.NoError(t, err, in)

		out, err := Encode(msg)
		require.NoError(t, err, in)
		if string(out) != in {
			t.Errorf("round trip mismatch:\n got: %s\nwant: %s", out, in)
		}

		again, err := Decode(out)
		require.NoError(t, err)
		assert.Equal(t, msg, again)
	}
}

func TestDecodeEncodeConstructedMessages(t *testing.T) {
	req, err := NewRequest(IntID(42), MethodCallTool, CallToolParams{Name: "get_weather", Arguments: json.RawMessage(`{"location":"Seattle"}`)})
	require.NoError(t, err)
	note, err := NewNotification(MethodToolsListChanged, nil)
	require.NoError(t, err)
	resp, err := NewResponse(StringID("r"), ListToolsResult{Tools: []Tool{{Name: "get_weather"}}})
	require.NoError(t, err)
	errResp, err := NewErrorResponse(IntID(7), InvalidParams, "bad", nil)
	require.NoError(t, err)

	for _, msg := range []Message{req, note, resp, errResp} {
		data, err := Encode(msg)
		require.NoError(t, err)

		decoded, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, msg, decoded)
	}
}

func TestEncodeRejectsRequestWithoutID(t *testing.T) {
	_, err := Encode(&Request{Method: "ping"})
	assert.Error(t, err)

	_, err = Encode(nil)
	assert.Error(t, err)
}

func TestErrorImplementsError(t *testing.T) {
	var err error = &Error{Code: InternalError, Message: "internal error"}
	assert.Contains(t, err.Error(), "-32603")
}
