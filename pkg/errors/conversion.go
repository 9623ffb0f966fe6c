package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
)

// ToJSONRPCError converts any error to a JSON-RPC error object.
// Errors that are not MCPErrors, or that carry a transport code, become InternalError.
func ToJSONRPCError(err error) *protocol.Error {
	if err == nil {
		return nil
	}

	mcpErr, ok := AsMCPError(err)
	if !ok {
		return &protocol.Error{
			Code:    protocol.InternalError,
			Message: "Internal error",
			Data:    err.Error(),
		}
	}

	if !IsWireCode(mcpErr.Code()) {
		return &protocol.Error{
			Code:    protocol.InternalError,
			Message: "Internal error",
			Data:    mcpErr.Error(),
		}
	}

	return &protocol.Error{
		Code:    protocol.ErrorCode(mcpErr.Code()),
		Message: mcpErr.Message(),
		Data:    mcpErr.Data(),
	}
}

// ToJSONRPCResponse converts any error to a JSON-RPC error response for id
func ToJSONRPCResponse(err error, id protocol.ID) *protocol.Response {
	rpcErr := ToJSONRPCError(err)
	if rpcErr == nil {
		rpcErr = &protocol.Error{Code: protocol.InternalError, Message: "Internal error"}
	}
	return protocol.NewErrorResponse(id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
}

// FromJSONRPCError converts a JSON-RPC error to an MCPError
func FromJSONRPCError(rpcErr *protocol.Error) MCPError {
	if rpcErr == nil {
		return nil
	}

	code := int(rpcErr.Code)
	info, _ := LookupCode(code)
	err := NewError(code, rpcErr.Message, info.Category, info.Severity)
	if rpcErr.Data != nil {
		err = err.WithData(rpcErr.Data)
	}

	return err
}

// FromDecodeError converts a codec failure into the matching protocol error
func FromDecodeError(err error) MCPError {
	var decodeErr *protocol.DecodeError
	if !stderrors.As(err, &decodeErr) {
		return InternalFailure("decode", err)
	}

	if decodeErr.Code == protocol.ParseError {
		return ParseFailure(decodeErr.Err)
	}
	return InvalidEnvelope(decodeErr.Reason)
}

// WithRequestContext attaches method and request identifiers to err,
// wrapping it as an InternalError first if it is not already an MCPError.
func WithRequestContext(err error, method string, id protocol.ID) MCPError {
	if err == nil {
		return nil
	}

	ctx := &Context{
		Method:    method,
		RequestID: id.String(),
		Timestamp: time.Now(),
	}

	if mcpErr, ok := AsMCPError(err); ok {
		if existing := mcpErr.Context(); existing != nil {
			ctx.Timestamp = existing.Timestamp
			ctx.SessionID = existing.SessionID
			ctx.Tool = existing.Tool
		}
		return mcpErr.WithContext(ctx)
	}

	return InternalFailure(fmt.Sprintf("processing %s", method), err).WithContext(ctx)
}

// ConvertStandardError converts common Go errors to MCPErrors
func ConvertStandardError(err error) MCPError {
	if err == nil {
		return nil
	}

	if mcpErr, ok := AsMCPError(err); ok {
		return mcpErr
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return WrapError(err, CodeInternalError, "Internal error", CategoryCancelled, SeverityInfo).
			WithData("request cancelled")
	case stderrors.Is(err, context.DeadlineExceeded):
		return WrapError(err, CodeInternalError, "Internal error", CategoryInternal, SeverityError).
			WithData("request deadline exceeded")
	}

	return InternalFailure("request", err)
}
