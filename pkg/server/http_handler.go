package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	mcperrors "github.com/ajitpratap0/mcp-sse-server/pkg/errors"
	"github.com/ajitpratap0/mcp-sse-server/pkg/logging"
	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
	"github.com/ajitpratap0/mcp-sse-server/pkg/transport"
)

const (
	allowedMethods = "GET, POST, OPTIONS"
	allowedHeaders = "Content-Type, Accept, Last-Event-ID, X-Request-ID, " + transport.SessionIDHeader

	defaultMaxBodyBytes int64 = 1 << 20
)

// HTTPHandler serves the event stream endpoint. GET opens a stream session,
// POST delivers one request and answers it on an exchange session, OPTIONS
// answers CORS preflights.
type HTTPHandler struct {
	dispatcher   *Dispatcher
	sessions     *transport.Manager
	logger       logging.Logger
	maxBodyBytes int64

	mu             sync.RWMutex
	allowedOrigins []string
}

// HTTPHandlerOption configures an HTTPHandler
type HTTPHandlerOption func(*HTTPHandler)

// WithAllowedOrigins restricts browser origins. "*" allows any origin;
// requests without an Origin header are always accepted.
func WithAllowedOrigins(origins ...string) HTTPHandlerOption {
	return func(h *HTTPHandler) {
		h.allowedOrigins = append([]string(nil), origins...)
	}
}

// WithMaxBodyBytes limits the size of POSTed requests
func WithMaxBodyBytes(n int64) HTTPHandlerOption {
	return func(h *HTTPHandler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithHandlerLogger sets the logger
func WithHandlerLogger(logger logging.Logger) HTTPHandlerOption {
	return func(h *HTTPHandler) {
		h.logger = logger
	}
}

// NewHTTPHandler creates a handler answering requests with dispatcher over
// sessions created by manager
func NewHTTPHandler(dispatcher *Dispatcher, manager *transport.Manager, options ...HTTPHandlerOption) *HTTPHandler {
	h := &HTTPHandler{
		dispatcher:     dispatcher,
		sessions:       manager,
		logger:         logging.Nop(),
		maxBodyBytes:   defaultMaxBodyBytes,
		allowedOrigins: []string{"*"},
	}
	for _, option := range options {
		option(h)
	}
	h.logger = h.logger.WithFields(logging.String("component", "http"))
	return h
}

// SetAllowedOrigins replaces the allowed origins
func (h *HTTPHandler) SetAllowedOrigins(origins []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allowedOrigins = append([]string(nil), origins...)
}

// ServeHTTP implements http.Handler
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && !h.isOriginAllowed(origin) {
		h.logger.WithContext(r.Context()).Warn("Rejected origin", logging.String("origin", origin))
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}
	h.setCORSHeaders(w, origin)

	switch r.Method {
	case http.MethodGet:
		h.handleGetRequest(w, r)
	case http.MethodPost:
		h.handlePostRequest(w, r)
	case http.MethodOptions:
		h.handleOptionsRequest(w, r)
	default:
		w.Header().Set("Allow", allowedMethods)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetRequest holds the connection open as a stream session until it closes
func (h *HTTPHandler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	reason, err := h.sessions.ServeStream(w, r)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("Failed to open stream session")
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	h.logger.WithContext(r.Context()).Debug("Stream request finished", logging.String("reason", string(reason)))
}

// handlePostRequest answers one JSON-RPC request with a single response frame.
// Undecodable or oversized bodies are still answered with an error frame.
func (h *HTTPHandler) handlePostRequest(w http.ResponseWriter, r *http.Request) {
	body, readErr := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))

	respond := func(ctx context.Context) *protocol.Response {
		if readErr != nil {
			err := h.bodyError(readErr)
			h.logger.WithContext(ctx).WithError(err).Warn("Rejected request body")
			return mcperrors.ToJSONRPCResponse(err, protocol.NullID())
		}
		return h.dispatcher.HandleRaw(ctx, body)
	}

	if _, err := h.sessions.ServeExchange(w, r, respond); err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("Failed to open exchange session")
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
	}
}

func (h *HTTPHandler) bodyError(err error) mcperrors.MCPError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return mcperrors.InvalidEnvelope(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	}
	return mcperrors.ParseFailure(fmt.Errorf("read request body: %w", err))
}

func (h *HTTPHandler) handleOptionsRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) setCORSHeaders(w http.ResponseWriter, origin string) {
	header := w.Header()
	if origin == "" {
		h.mu.RLock()
		wildcard := containsString(h.allowedOrigins, "*")
		h.mu.RUnlock()
		if !wildcard {
			return
		}
		origin = "*"
	} else {
		header.Add("Vary", "Origin")
	}
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Access-Control-Allow-Methods", allowedMethods)
	header.Set("Access-Control-Allow-Headers", allowedHeaders)
	header.Set("Access-Control-Expose-Headers", transport.SessionIDHeader)
}

func (h *HTTPHandler) isOriginAllowed(origin string) bool {
	h.mu.RLock()
	origins := h.allowedOrigins
	h.mu.RUnlock()

	for _, allowed := range origins {
		if allowed == "*" || allowed == origin {
			return true
		}
		if isLocalhostPattern(allowed) && isLocalhostOrigin(origin) {
			return true
		}
	}
	return false
}

var localhostOrigins = []string{
	"http://localhost",
	"https://localhost",
	"http://127.0.0.1",
	"https://127.0.0.1",
	"http://[::1]",
	"https://[::1]",
}

func isLocalhostPattern(allowed string) bool {
	return containsString(localhostOrigins, allowed)
}

// isLocalhostOrigin matches any loopback origin, with or without a port
func isLocalhostOrigin(origin string) bool {
	for _, pattern := range localhostOrigins {
		if origin == pattern || strings.HasPrefix(origin, pattern+":") {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
