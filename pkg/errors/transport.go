package errors

import (
	"fmt"
)

// StreamErrorData contains structured data for stream session errors
type StreamErrorData struct {
	SessionID string `json:"session_id"`
	Operation string `json:"operation,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// StreamingUnsupported creates an error for response writers that cannot flush frames
func StreamingUnsupported(sessionID string, cause error) MCPError {
	return WrapError(
		cause,
		CodeStreamingUnsupported,
		"Streaming unsupported",
		CategoryTransport,
		SeverityCritical,
	).WithData(&StreamErrorData{
		SessionID: sessionID,
		Operation: "upgrade",
		Reason:    causeText(cause),
	})
}

// StreamWriteFailed creates an error for a frame that could not be written or flushed
func StreamWriteFailed(sessionID, frame string, cause error) MCPError {
	return WrapError(
		cause,
		CodeStreamWriteFailed,
		fmt.Sprintf("Failed to write %s frame", frame),
		CategoryTransport,
		SeverityWarning,
	).WithData(&StreamErrorData{
		SessionID: sessionID,
		Operation: "write",
		Reason:    causeText(cause),
	})
}

// SessionClosed creates an error for operations on a session that has been torn down
func SessionClosed(sessionID string) MCPError {
	return NewError(
		CodeSessionClosed,
		"Session closed",
		CategoryTransport,
		SeverityInfo,
	).WithData(&StreamErrorData{SessionID: sessionID})
}

func causeText(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

// ListenFailed creates an error for a listener that could not be opened
func ListenFailed(addr string, cause error) MCPError {
	return WrapError(
		cause,
		CodeTransportError,
		fmt.Sprintf("Failed to listen on %s", addr),
		CategoryTransport,
		SeverityCritical,
	).WithData(&StreamErrorData{
		Operation: "listen",
		Reason:    causeText(cause),
	})
}
