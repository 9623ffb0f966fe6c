package transport

import (
	"encoding/json"
	"fmt"

	sse "github.com/tmaxmax/go-sse"

	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
)

// FrameKind labels a frame for logs and metrics
type FrameKind string

const (
	FrameNotification FrameKind = "notification"
	FrameResponse     FrameKind = "response"
	FrameHeartbeat    FrameKind = "heartbeat"
)

// heartbeatComment is the comment text of keep-alive frames
const heartbeatComment = "heartbeat"

// Frame is one event written to a stream: either a data event carrying a
// single JSON-RPC message, or a comment line used as a heartbeat.
type Frame struct {
	Kind    FrameKind
	message *sse.Message
}

// NewDataFrame wraps an encoded JSON message as "data: <json>\n\n"
func NewDataFrame(kind FrameKind, payload []byte) *Frame {
	m := &sse.Message{}
	m.AppendData(string(payload))
	return &Frame{Kind: kind, message: m}
}

// NotificationFrame encodes a notification with the given method and params
func NotificationFrame(method string, params interface{}) (*Frame, error) {
	n, err := protocol.NewNotification(method, params)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification %s: %w", method, err)
	}
	return NewDataFrame(FrameNotification, payload), nil
}

// ResponseFrame encodes a response
func ResponseFrame(resp *protocol.Response) (*Frame, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil response")
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return NewDataFrame(FrameResponse, payload), nil
}

// HeartbeatFrame returns the keep-alive comment frame ": heartbeat\n\n"
func HeartbeatFrame() *Frame {
	m := &sse.Message{}
	m.AppendComment(heartbeatComment)
	return &Frame{Kind: FrameHeartbeat, message: m}
}

// String returns the wire form of the frame
func (f *Frame) String() string {
	return f.message.String()
}

// Bytes returns the wire form of the frame
func (f *Frame) Bytes() []byte {
	return []byte(f.message.String())
}

// mustNotificationFrame is for notifications without params, which always encode
func mustNotificationFrame(method string) *Frame {
	f, err := NotificationFrame(method, nil)
	if err != nil {
		panic(err)
	}
	return f
}
