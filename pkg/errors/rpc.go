package errors

import (
	"fmt"
)

// ToolErrorData contains structured data for tool-related errors
type ToolErrorData struct {
	Tool       string   `json:"tool"`
	Violations []string `json:"violations,omitempty"`
}

// ParseFailure creates an error for payloads that are not well-formed JSON
func ParseFailure(cause error) MCPError {
	err := WrapError(cause, CodeParseError, "Parse error", CategoryProtocol, SeverityError)
	if cause != nil {
		err = err.WithDetail(cause.Error()).WithData(cause.Error())
	}
	return err
}

// InvalidEnvelope creates an error for well-formed JSON that is not a request object
func InvalidEnvelope(reason string) MCPError {
	return NewError(
		CodeInvalidRequest,
		"Invalid Request",
		CategoryProtocol,
		SeverityError,
	).WithDetail(reason).WithData(reason)
}

// UnsupportedVersion creates an error for requests whose jsonrpc member is not "2.0"
func UnsupportedVersion(version string) MCPError {
	reason := fmt.Sprintf("unsupported jsonrpc version %q", version)
	return NewError(
		CodeInvalidRequest,
		"Invalid Request",
		CategoryProtocol,
		SeverityError,
	).WithDetail(reason).WithData(reason)
}

// MethodNotFound creates an error for methods the server does not route
func MethodNotFound(method string) MCPError {
	return NewError(
		CodeMethodNotFound,
		"Method not found",
		CategoryNotFound,
		SeverityError,
	).WithDetail(method).WithData(method)
}

// ToolNotFound creates an error for tools/call on a name missing from the registry
func ToolNotFound(name string) MCPError {
	detail := fmt.Sprintf("tool %q not found", name)
	if name == "" {
		detail = "tool name is missing"
	}
	return NewError(
		CodeMethodNotFound,
		"Method not found",
		CategoryNotFound,
		SeverityError,
	).WithDetail(detail).WithData(&ToolErrorData{Tool: name})
}

// InvalidArguments creates an error for tool arguments rejected by strict
// validation. InvalidParams is answered in strict mode only.
func InvalidArguments(tool string, violations []string) MCPError {
	err := NewError(
		CodeInvalidParams,
		"Invalid params",
		CategoryValidation,
		SeverityWarning,
	).WithData(&ToolErrorData{Tool: tool, Violations: violations})
	for _, v := range violations {
		err = err.WithDetail(v)
	}
	return err
}

// ProviderFailure creates an error for a data provider that failed to serve a tool call.
// The failure description is carried in the error data.
func ProviderFailure(tool string, cause error) MCPError {
	description := "provider failed"
	if cause != nil {
		description = cause.Error()
	}
	return WrapError(
		cause,
		CodeInternalError,
		"Internal error",
		CategoryProvider,
		SeverityError,
	).WithDetail(fmt.Sprintf("tool %s: %s", tool, description)).WithData(description)
}

// PanicRecovered creates an error for a handler that panicked
func PanicRecovered(method string, recovered interface{}) MCPError {
	description := fmt.Sprintf("panic in %s: %v", method, recovered)
	return NewError(
		CodeInternalError,
		"Internal error",
		CategoryInternal,
		SeverityCritical,
	).WithDetail(description).WithData(description)
}

// InternalFailure creates an error for an unexpected failure during an operation
func InternalFailure(operation string, cause error) MCPError {
	description := operation
	if cause != nil {
		description = fmt.Sprintf("%s: %s", operation, cause.Error())
	}
	return WrapError(
		cause,
		CodeInternalError,
		"Internal error",
		CategoryInternal,
		SeverityError,
	).WithDetail(description).WithData(description)
}
