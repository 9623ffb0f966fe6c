// Package errors provides structured error handling for the tool server.
// Errors carry a JSON-RPC error code together with a category, a severity and
// request context so that handlers, logs and metrics agree on what went wrong.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"
)

// Category classifies an error for logs and metrics
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryTransport  Category = "transport"
	CategoryProvider   Category = "provider"
	CategoryInternal   Category = "internal"
	CategoryCancelled  Category = "cancelled"
	CategoryProtocol   Category = "protocol"
)

// Severity indicates how critical an error is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Context records where an error happened. Every field except Timestamp is optional.
type Context struct {
	RequestID string    `json:"request_id,omitempty"`
	Method    string    `json:"method,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// MCPError is the error type shared by the dispatcher, the transport and the
// client. Code is a JSON-RPC code for errors that reach the wire, or one of the
// transport-internal codes otherwise. Errors are immutable; the With methods
// return modified copies.
type MCPError interface {
	error

	Code() int
	// Message is the JSON-RPC error message
	Message() string
	// Details accumulates technical detail for logs; it never reaches the wire
	Details() string
	// Data is sent as error.data
	Data() interface{}
	Category() Category
	Severity() Severity
	// Context is never nil
	Context() *Context

	WithContext(ctx *Context) MCPError
	WithDetail(detail string) MCPError
	WithData(data interface{}) MCPError

	Unwrap() error
}

type mcpError struct {
	code     int
	message  string
	details  []string
	data     interface{}
	category Category
	severity Severity
	context  *Context
	cause    error
}

func newError(cause error, code int, message string, category Category, severity Severity) *mcpError {
	return &mcpError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		cause:    cause,
		context:  &Context{Timestamp: time.Now()},
	}
}

// NewError creates an MCPError
func NewError(code int, message string, category Category, severity Severity) MCPError {
	return newError(nil, code, message, category, severity)
}

// WrapError creates an MCPError whose Unwrap returns err
func WrapError(err error, code int, message string, category Category, severity Severity) MCPError {
	return newError(err, code, message, category, severity)
}

func (e *mcpError) Error() string {
	if len(e.details) == 0 {
		return e.message
	}
	return e.message + ": " + e.Details()
}

func (e *mcpError) Code() int          { return e.code }
func (e *mcpError) Message() string    { return e.message }
func (e *mcpError) Details() string    { return strings.Join(e.details, "; ") }
func (e *mcpError) Data() interface{}  { return e.data }
func (e *mcpError) Category() Category { return e.category }
func (e *mcpError) Severity() Severity { return e.severity }
func (e *mcpError) Context() *Context  { return e.context }
func (e *mcpError) Unwrap() error      { return e.cause }

func (e *mcpError) clone() *mcpError {
	c := *e
	return &c
}

func (e *mcpError) WithContext(ctx *Context) MCPError {
	c := e.clone()
	if ctx == nil {
		ctx = &Context{Timestamp: time.Now()}
	}
	c.context = ctx
	return c
}

func (e *mcpError) WithDetail(detail string) MCPError {
	if detail == "" {
		return e
	}
	c := e.clone()
	c.details = append(append([]string(nil), e.details...), detail)
	return c
}

func (e *mcpError) WithData(data interface{}) MCPError {
	c := e.clone()
	c.data = data
	return c
}

// errorJSON is the log and debug encoding of an MCPError
type errorJSON struct {
	Code     int         `json:"code"`
	Message  string      `json:"message"`
	Category Category    `json:"category"`
	Severity Severity    `json:"severity"`
	Details  string      `json:"details,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Context  *Context    `json:"context,omitempty"`
	Cause    string      `json:"cause,omitempty"`
}

// MarshalJSON encodes the full error, including details and cause, for logs
func (e *mcpError) MarshalJSON() ([]byte, error) {
	out := errorJSON{
		Code:     e.code,
		Message:  e.message,
		Category: e.category,
		Severity: e.severity,
		Details:  e.Details(),
		Data:     e.data,
		Context:  e.context,
	}
	if e.cause != nil {
		out.Cause = e.cause.Error()
	}
	return json.Marshal(out)
}

// AsMCPError extracts the first MCPError in err's chain
func AsMCPError(err error) (MCPError, bool) {
	var mcpErr MCPError
	if err != nil && stderrors.As(err, &mcpErr) {
		return mcpErr, true
	}
	return nil, false
}

// IsCategory reports whether err's chain holds an MCPError of category
func IsCategory(err error, category Category) bool {
	mcpErr, ok := AsMCPError(err)
	return ok && mcpErr.Category() == category
}

// IsCode reports whether err's chain holds an MCPError with code
func IsCode(err error, code int) bool {
	mcpErr, ok := AsMCPError(err)
	return ok && mcpErr.Code() == code
}
