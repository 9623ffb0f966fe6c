package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRPCMessage(t *testing.T) {
	msg := JSONRPCMessage{
		JSONRPC: JSONRPCVersion,
	}

	if msg.JSONRPC != "2.0" {
		t.Errorf("Expected JSONRPC version to be '2.0', got %q", msg.JSONRPC)
	}
}

func TestIDUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantRaw string
		isNull  bool
		wantErr bool
	}{
		{name: "string", input: `"abc"`, wantRaw: `"abc"`},
		{name: "integer", input: `7`, wantRaw: `7`},
		{name: "negative", input: `-3`, wantRaw: `-3`},
		{name: "float kept verbatim", input: `1.50`, wantRaw: `1.50`},
		{name: "null", input: `null`, wantRaw: `null`, isNull: true},
		{name: "object rejected", input: `{"a":1}`, wantErr: true},
		{name: "array rejected", input: `[1]`, wantErr: true},
		{name: "bool rejected", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.isNull, id.IsNull())
			assert.Equal(t, tt.wantRaw, string(id.Raw()))
		})
	}
}

func TestIDHelpers(t *testing.T) {
	assert.True(t, NullID().IsNull())
	assert.Equal(t, "null", NullID().String())

	s := StringID("req-1")
	assert.False(t, s.IsNull())
	assert.Equal(t, "req-1", s.String())
	assert.Equal(t, `"req-1"`, string(s.Raw()))

	n := NumberID(42)
	assert.Equal(t, "42", n.String())
	assert.True(t, n.Equal(NumberID(42)))
	assert.False(t, n.Equal(StringID("42")))
}

func TestNewRequest(t *testing.T) {
	// Test with nil params
	req, err := NewRequest(StringID("req-1"), "test.method", nil)
	if err != nil {
		t.Fatalf("Expected NewRequest with nil params to succeed, got error: %v", err)
	}

	if req.JSONRPC != JSONRPCVersion {
		t.Errorf("Expected JSONRPC version to be %q, got %q", JSONRPCVersion, req.JSONRPC)
	}

	if req.Method != "test.method" {
		t.Errorf("Expected Method to be 'test.method', got %q", req.Method)
	}

	if len(req.Params) != 0 {
		t.Errorf("Expected Params to be empty, got %v", req.Params)
	}

	// Test with params
	req, err = NewRequest(NumberID(2), "test.method", map[string]interface{}{
		"key": "value",
		"num": 42,
	})
	require.NoError(t, err)

	var key string
	found, err := req.Param("key", &key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", key)

	var missing string
	found, err = req.Param("missing", &missing)
	require.NoError(t, err)
	assert.False(t, found)

	// Params must be an object
	_, err = NewRequest(NumberID(3), "test.method", []int{1, 2})
	assert.Error(t, err)
}

func TestNewResponse(t *testing.T) {
	resp, err := NewResponse(StringID("resp-1"), map[string]interface{}{"key": "value"})
	require.NoError(t, err)

	assert.Equal(t, JSONRPCVersion, resp.JSONRPC)
	assert.False(t, resp.IsError())

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Result, &decoded))
	assert.Equal(t, "value", decoded["key"])
}

func TestNewResponseNilResultIsNull(t *testing.T) {
	resp, err := NewResponse(NumberID(1), nil)
	require.NoError(t, err)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"result":null}`, string(data))
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(StringID("err-1"), InvalidRequest, "Invalid request", nil)

	if resp.Error == nil {
		t.Fatal("Expected Error to not be nil")
	}
	if resp.Error.Code != InvalidRequest {
		t.Errorf("Expected Error.Code to be %d, got %d", InvalidRequest, resp.Error.Code)
	}
	if resp.Result != nil {
		t.Errorf("Expected Result to be nil, got %s", string(resp.Result))
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"err-1","error":{"code":-32600,"message":"Invalid request"}}`, string(data))
}

func TestResponseMarshalNeverCarriesBoth(t *testing.T) {
	resp := &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             NumberID(9),
		Result:         json.RawMessage(`{"ok":true}`),
		Error:          &Error{Code: InternalError, Message: "boom"},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var probe map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &probe))
	_, hasResult := probe["result"]
	_, hasError := probe["error"]
	assert.False(t, hasResult)
	assert.True(t, hasError)
}

func TestResponseRoundTrip(t *testing.T) {
	ids := []ID{NullID(), StringID("abc"), NumberID(0), NumberID(-12)}

	for _, id := range ids {
		t.Run(id.String(), func(t *testing.T) {
			ok, err := NewResponse(id, map[string]string{"a": "b"})
			require.NoError(t, err)
			failed := NewErrorResponse(id, MethodNotFound, "Method not found", "nope")

			for _, resp := range []*Response{ok, failed} {
				data, err := json.Marshal(resp)
				require.NoError(t, err)

				decoded, err := ParseResponse(data)
				require.NoError(t, err)

				assert.True(t, id.Equal(decoded.ID), "id %s != %s", id.Raw(), decoded.ID.Raw())
				assert.NotEqual(t, decoded.Result != nil, decoded.Error != nil, "exactly one of result/error")
				assert.Equal(t, resp.IsError(), decoded.IsError())
			}
		})
	}
}

func TestParseResponseRejectsAmbiguousEnvelope(t *testing.T) {
	_, err := ParseResponse([]byte(`{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`))
	assert.Error(t, err)

	_, err = ParseResponse([]byte(`{"jsonrpc":"2.0","id":1}`))
	assert.Error(t, err)
}

func TestNewNotification(t *testing.T) {
	notif, err := NewNotification(NotificationInitialized, nil)
	require.NoError(t, err)

	data, err := json.Marshal(notif)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"notification/initialized"}`, string(data))

	var probe map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &probe))
	_, hasID := probe["id"]
	assert.False(t, hasID, "notifications never carry an id")
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "ParseError", ParseError.String())
	assert.Equal(t, "MethodNotFound", MethodNotFound.String())
	assert.Equal(t, "ErrorCode(-1)", ErrorCode(-1).String())

	rpcErr := &Error{Code: InternalError, Message: "boom"}
	var target *Error
	assert.True(t, errors.As(error(rpcErr), &target))
	assert.Contains(t, rpcErr.Error(), "-32603")
}
