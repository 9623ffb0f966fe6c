package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// JSONRPCVersion is the supported JSON-RPC version
	JSONRPCVersion = "2.0"
)

// ErrorCode represents standard JSON-RPC 2.0 error codes
type ErrorCode int

// Standard error codes as per JSON-RPC 2.0 specification
const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

// String returns the JSON-RPC name of the code
func (c ErrorCode) String() string {
	switch c {
	case ParseError:
		return "ParseError"
	case InvalidRequest:
		return "InvalidRequest"
	case MethodNotFound:
		return "MethodNotFound"
	case InvalidParams:
		return "InvalidParams"
	case InternalError:
		return "InternalError"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// JSONRPCMessage represents a JSON-RPC 2.0 message
type JSONRPCMessage struct {
	JSONRPC string `json:"jsonrpc"`
}

// ID is a JSON-RPC request identifier: a string, a number, or null.
// The raw token is kept so that it can be echoed back verbatim.
type ID struct {
	raw json.RawMessage
}

var nullToken = json.RawMessage("null")

// NullID returns the null identifier
func NullID() ID {
	return ID{}
}

// StringID creates a string identifier
func StringID(s string) ID {
	data, _ := json.Marshal(s)
	return ID{raw: data}
}

// NumberID creates a numeric identifier
func NumberID(n int64) ID {
	return ID{raw: json.RawMessage(fmt.Sprintf("%d", n))}
}

// IsNull reports whether the identifier is null or absent
func (id ID) IsNull() bool {
	return len(id.raw) == 0 || bytes.Equal(id.raw, nullToken)
}

// Raw returns the identifier's JSON token
func (id ID) Raw() json.RawMessage {
	if id.IsNull() {
		return nullToken
	}
	return id.raw
}

// String returns a printable form of the identifier
func (id ID) String() string {
	if id.IsNull() {
		return "null"
	}
	var s string
	if err := json.Unmarshal(id.raw, &s); err == nil {
		return s
	}
	return string(id.raw)
}

// Equal reports whether two identifiers carry the same token
func (id ID) Equal(other ID) bool {
	return bytes.Equal(id.Raw(), other.Raw())
}

// MarshalJSON implements json.Marshaler
func (id ID) MarshalJSON() ([]byte, error) {
	return id.Raw(), nil
}

// UnmarshalJSON implements json.Unmarshaler and accepts only strings, numbers and null
func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errors.New("empty id")
	}
	switch trimmed[0] {
	case 'n':
		if !bytes.Equal(trimmed, nullToken) {
			return fmt.Errorf("invalid id %s", trimmed)
		}
		id.raw = nil
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
	default:
		return fmt.Errorf("id must be a string, number or null, got %s", trimmed)
	}
	id.raw = append(json.RawMessage(nil), trimmed...)
	return nil
}

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPCMessage
	ID     ID                         `json:"id"`
	Method string                     `json:"method"`
	Params map[string]json.RawMessage `json:"params,omitempty"`
}

// NewRequest creates a new JSON-RPC 2.0 request
func NewRequest(id ID, method string, params interface{}) (*Request, error) {
	req := &Request{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Method:         method,
	}

	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		if err := json.Unmarshal(data, &req.Params); err != nil {
			return nil, fmt.Errorf("params must encode to a JSON object: %w", err)
		}
	}

	return req, nil
}

// Param decodes a single named parameter into target.
// It reports false if the parameter is absent.
func (r *Request) Param(name string, target interface{}) (bool, error) {
	raw, ok := r.Params[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return true, fmt.Errorf("invalid %q parameter: %w", name, err)
	}
	return true, nil
}

// Response represents a JSON-RPC 2.0 response.
// Exactly one of Result and Error is set.
type Response struct {
	JSONRPCMessage
	ID     ID
	Result json.RawMessage
	Error  *Error
}

// NewResponse creates a new JSON-RPC 2.0 success response.
// A nil result is encoded as JSON null.
func NewResponse(id ID, result interface{}) (*Response, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Result:         resultJSON,
	}, nil
}

// NewErrorResponse creates a new JSON-RPC 2.0 error response
func NewErrorResponse(id ID, code ErrorCode, message string, data interface{}) *Response {
	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// IsError reports whether the response carries an error object
func (r *Response) IsError() bool {
	return r.Error != nil
}

type responseWire struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler. The error member wins if both are set.
func (r Response) MarshalJSON() ([]byte, error) {
	wire := responseWire{
		JSONRPC: r.JSONRPC,
		ID:      r.ID,
	}
	if wire.JSONRPC == "" {
		wire.JSONRPC = JSONRPCVersion
	}

	if r.Error != nil {
		wire.Error = r.Error
	} else {
		wire.Result = r.Result
		if len(wire.Result) == 0 {
			wire.Result = nullToken
		}
	}

	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler
func (r *Response) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	_, hasResult := probe["result"]
	_, hasError := probe["error"]
	if hasResult == hasError {
		return errors.New("response must carry exactly one of result or error")
	}

	var wire responseWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	r.JSONRPC = wire.JSONRPC
	r.ID = wire.ID
	r.Result = nil
	r.Error = nil
	if hasError {
		if wire.Error == nil {
			return errors.New("error member must be an object")
		}
		r.Error = wire.Error
	} else {
		r.Result = probe["result"]
	}
	return nil
}

// Notification represents a JSON-RPC 2.0 notification
type Notification struct {
	JSONRPCMessage
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// NewNotification creates a new JSON-RPC 2.0 notification
func NewNotification(method string, params interface{}) (*Notification, error) {
	var paramsJSON json.RawMessage
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	return &Notification{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		Method:         method,
		Params:         paramsJSON,
	}, nil
}

// Error represents a JSON-RPC 2.0 error object
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error: code = %d desc = %s", e.Code, e.Message)
}
