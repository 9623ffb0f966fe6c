package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	sse "github.com/tmaxmax/go-sse"

	mcperrors "github.com/ajitpratap0/mcp-sse-server/pkg/errors"
	"github.com/ajitpratap0/mcp-sse-server/pkg/logging"
	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
)

// ErrNoResponse is returned when an exchange stream ends without a response frame
var ErrNoResponse = errors.New("stream closed without a response frame")

// Client issues requests as POST exchanges and subscribes to GET streams.
// It is safe for concurrent use.
type Client struct {
	endpoint     string
	httpClient   *http.Client
	logger       logging.Logger
	clientInfo   protocol.ClientInfo
	maxEventSize int

	nextID atomic.Int64
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client. It must not set a total timeout if
// Subscribe is used, since streams stay open for a long time.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClientInfo sets the name and version sent by Initialize
func WithClientInfo(name, version string) Option {
	return func(c *Client) {
		c.clientInfo = protocol.ClientInfo{Name: name, Version: version}
	}
}

// WithMaxEventSize limits the size of a single received frame
func WithMaxEventSize(n int) Option {
	return func(c *Client) {
		c.maxEventSize = n
	}
}

// New creates a client for the stream endpoint URL, e.g. http://localhost:8080/sse
func New(endpoint string, options ...Option) *Client {
	c := &Client{
		endpoint:     endpoint,
		httpClient:   http.DefaultClient,
		logger:       logging.Nop(),
		clientInfo:   protocol.ClientInfo{Name: "mcp-sse-client", Version: "1.0.0"},
		maxEventSize: 1 << 20,
	}
	for _, option := range options {
		option(c)
	}
	c.logger = c.logger.WithFields(logging.String("component", "client"))
	return c
}

// Call sends one request and returns its response. A JSON-RPC error is
// returned as the response's Error, not as a Go error.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (*protocol.Response, error) {
	req, err := protocol.NewRequest(protocol.NumberID(c.nextID.Add(1)), method, params)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.Send(ctx, payload)
}

// Send posts a raw payload and returns the single response frame. The
// exchange is closed as soon as the frame arrived.
func (c *Client) Send(ctx context.Context, payload []byte) (*protocol.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.open(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	for ev, err := range sse.Read(resp.Body, &sse.ReadConfig{MaxEventSize: c.maxEventSize}) {
		if err != nil {
			return nil, fmt.Errorf("failed to read response frame: %w", err)
		}
		var out protocol.Response
		if err := json.Unmarshal([]byte(ev.Data), &out); err != nil {
			return nil, fmt.Errorf("failed to decode response frame: %w", err)
		}
		return &out, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, ErrNoResponse
}

// Subscribe opens a stream and calls handle for every notification until
// the server closes the stream (nil error) or ctx is canceled (ctx.Err()).
// Heartbeat comments are consumed silently.
func (c *Client) Subscribe(ctx context.Context, handle func(*protocol.Notification)) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.open(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	logger := c.logger.WithFields(logging.String("session_id", resp.Header.Get("Mcp-Session-Id")))
	logger.Debug("Subscribed")

	for ev, err := range sse.Read(resp.Body, &sse.ReadConfig{MaxEventSize: c.maxEventSize}) {
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		var n protocol.Notification
		if err := json.Unmarshal([]byte(ev.Data), &n); err != nil || n.Method == "" {
			logger.Warn("Skipping frame that is not a notification", logging.Int("bytes", len(ev.Data)))
			continue
		}
		handle(&n)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	logger.Debug("Stream closed by server")
	return nil
}

func (c *Client) open(httpReq *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return resp, nil
}

// Initialize performs the initialize handshake
func (c *Client) Initialize(ctx context.Context) (*protocol.InitializeResult, error) {
	info := c.clientInfo
	var result protocol.InitializeResult
	err := c.callInto(ctx, protocol.MethodInitialize, &protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolRevision,
		ClientInfo:      &info,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTools returns the server's tools
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	var result protocol.ListToolsResult
	if err := c.callInto(ctx, protocol.MethodListTools, nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool and returns its content
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	var result protocol.CallToolResult
	err := c.callInto(ctx, protocol.MethodCallTool, &protocol.CallToolParams{Name: name, Arguments: args}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping checks that the server answers
func (c *Client) Ping(ctx context.Context) error {
	return c.callInto(ctx, protocol.MethodPing, nil, nil)
}

// callInto calls method and decodes the result into out. JSON-RPC errors
// come back as MCPErrors carrying the server's code.
func (c *Client) callInto(ctx context.Context, method string, params, out interface{}) error {
	resp, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return mcperrors.FromJSONRPCError(resp.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
