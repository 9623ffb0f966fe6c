package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeError describes why an inbound payload could not be decoded into a Request.
// Code is ParseError for malformed JSON and InvalidRequest for well-formed JSON
// that is not a request object.
type DecodeError struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Parse decodes a JSON-RPC request envelope.
// The jsonrpc version member is decoded but not checked here.
func Parse(data []byte) (*Request, error) {
	if !json.Valid(data) {
		var v interface{}
		err := json.Unmarshal(data, &v)
		return nil, &DecodeError{Code: ParseError, Reason: "payload is not valid JSON", Err: err}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Code: InvalidRequest, Reason: "request must be a JSON object", Err: err}
	}

	req := &Request{}

	if raw, ok := fields["jsonrpc"]; ok {
		// A non-string version is kept empty and rejected by the version check.
		_ = json.Unmarshal(raw, &req.JSONRPC)
	}

	if raw, ok := fields["id"]; ok {
		if err := req.ID.UnmarshalJSON(raw); err != nil {
			return nil, &DecodeError{Code: InvalidRequest, Reason: "invalid id", Err: err}
		}
	}

	raw, ok := fields["method"]
	if !ok {
		return req, &DecodeError{Code: InvalidRequest, Reason: "missing method"}
	}
	if err := json.Unmarshal(raw, &req.Method); err != nil {
		return req, &DecodeError{Code: InvalidRequest, Reason: "method must be a string", Err: err}
	}

	if raw, ok := fields["params"]; ok && !bytes.Equal(bytes.TrimSpace(raw), nullToken) {
		if err := json.Unmarshal(raw, &req.Params); err != nil {
			return req, &DecodeError{Code: InvalidRequest, Reason: "params must be an object", Err: err}
		}
	}

	return req, nil
}

// ParseResponse decodes a JSON-RPC response envelope
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid response: %w", err)
	}
	return &resp, nil
}

// Envelope is the decoded form of any JSON-RPC message read off a stream:
// exactly one of Request, Response and Notification is set.
type Envelope struct {
	Request      *Request
	Response     *Response
	Notification *Notification
}

// Decode classifies and decodes any JSON-RPC message
func Decode(data []byte) (*Envelope, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	_, hasID := probe["id"]
	_, hasMethod := probe["method"]
	_, hasResult := probe["result"]
	_, hasError := probe["error"]

	switch {
	case hasMethod && hasID:
		req, err := Parse(data)
		if err != nil {
			return nil, err
		}
		return &Envelope{Request: req}, nil
	case hasMethod:
		var n Notification
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("invalid notification: %w", err)
		}
		return &Envelope{Notification: &n}, nil
	case hasResult || hasError:
		resp, err := ParseResponse(data)
		if err != nil {
			return nil, err
		}
		return &Envelope{Response: resp}, nil
	default:
		return nil, fmt.Errorf("message is neither a request, a response nor a notification")
	}
}
