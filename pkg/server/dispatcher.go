package server

import (
	"context"
	"errors"
	"sort"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-sse-server/pkg/errors"
	"github.com/ajitpratap0/mcp-sse-server/pkg/logging"
	"github.com/ajitpratap0/mcp-sse-server/pkg/observability"
	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
	"github.com/ajitpratap0/mcp-sse-server/pkg/tools"
)

// RequestHandler produces the result of one request, or an error that is
// converted into a JSON-RPC error object.
type RequestHandler func(ctx context.Context, req *protocol.Request) (interface{}, error)

// Dispatcher routes decoded requests to their handlers. Every request yields
// exactly one response carrying the request id.
type Dispatcher struct {
	registry        *tools.Registry
	provider        tools.DataProvider
	info            protocol.ServerInfo
	protocolVersion string
	strict          bool

	logger          logging.Logger
	instrumentation *observability.Instrumentation

	handlers map[string]RequestHandler
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithServerInfo sets the name and version announced by initialize
func WithServerInfo(name, version string) DispatcherOption {
	return func(d *Dispatcher) {
		d.info = protocol.ServerInfo{Name: name, Version: version}
	}
}

// WithProtocolVersion overrides the protocol revision announced by initialize
func WithProtocolVersion(version string) DispatcherOption {
	return func(d *Dispatcher) {
		d.protocolVersion = version
	}
}

// WithStrictValidation checks tools/call arguments against the tool's input
// schema and answers InvalidParams (-32602) on violations. Without it the only
// error codes answered are ParseError, InvalidRequest, MethodNotFound and
// InternalError; strict mode adds InvalidParams to that set.
func WithStrictValidation(strict bool) DispatcherOption {
	return func(d *Dispatcher) {
		d.strict = strict
	}
}

// WithDispatcherLogger sets the logger
func WithDispatcherLogger(logger logging.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithInstrumentation sets the tracer and metrics recorded around each request
func WithInstrumentation(in *observability.Instrumentation) DispatcherOption {
	return func(d *Dispatcher) {
		d.instrumentation = in
	}
}

// NewDispatcher creates a dispatcher serving registry's tools through provider
func NewDispatcher(registry *tools.Registry, provider tools.DataProvider, options ...DispatcherOption) *Dispatcher {
	if registry == nil {
		registry = tools.MustNewRegistry()
	}

	d := &Dispatcher{
		registry:        registry,
		provider:        provider,
		info:            protocol.ServerInfo{Name: "mcp-sse-server", Version: "1.0.0"},
		protocolVersion: protocol.ProtocolRevision,
		logger:          logging.Nop(),
		handlers:        make(map[string]RequestHandler),
	}

	for _, option := range options {
		option(d)
	}

	d.logger = d.logger.WithFields(logging.String("component", "dispatcher"))

	d.Register(protocol.MethodInitialize, d.handleInitialize)
	d.Register(protocol.MethodListTools, d.handleListTools)
	d.Register(protocol.MethodCallTool, d.handleCallTool)
	d.Register(protocol.MethodPing, d.handlePing)

	return d
}

// Register installs handler for method, replacing any previous handler.
// It must not be called once the dispatcher is serving requests.
func (d *Dispatcher) Register(method string, handler RequestHandler) {
	d.handlers[method] = handler
}

// Methods returns the routed method names in sorted order
func (d *Dispatcher) Methods() []string {
	methods := make([]string, 0, len(d.handlers))
	for method := range d.handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}

// Registry returns the tool registry served by the dispatcher
func (d *Dispatcher) Registry() *tools.Registry {
	return d.registry
}

// HandleRaw decodes payload and dispatches it. Malformed JSON is answered with
// ParseError and a null id; other envelope failures with InvalidRequest.
func (d *Dispatcher) HandleRaw(ctx context.Context, payload []byte) *protocol.Response {
	req, err := protocol.Parse(payload)
	if err == nil {
		return d.Handle(ctx, req)
	}

	id := protocol.NullID()
	mcpErr := mcperrors.FromDecodeError(err)
	if mcpErr.Code() == mcperrors.CodeInvalidRequest && req != nil {
		id = req.ID
	}

	return d.instrumentation.ObserveRequest(ctx, "", id, func(ctx context.Context) *protocol.Response {
		d.logger.WithContext(ctx).WithError(mcpErr).Warn("Rejected undecodable payload",
			logging.Int("bytes", len(payload)))
		return mcperrors.ToJSONRPCResponse(mcpErr, id)
	})
}

// Handle dispatches one decoded request. It never returns nil and never panics.
func (d *Dispatcher) Handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	if req == nil {
		return mcperrors.ToJSONRPCResponse(mcperrors.InvalidEnvelope("empty request"), protocol.NullID())
	}

	return d.instrumentation.ObserveRequest(ctx, req.Method, req.ID, func(ctx context.Context) *protocol.Response {
		return d.dispatch(ctx, req)
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, req *protocol.Request) (resp *protocol.Response) {
	start := time.Now()
	logger := d.logger.WithContext(ctx).WithFields(
		logging.String("rpc_method", req.Method),
		logging.String("rpc_id", req.ID.String()),
	)

	defer func() {
		if r := recover(); r != nil {
			err := mcperrors.WithRequestContext(mcperrors.PanicRecovered(req.Method, r), req.Method, req.ID)
			logger.WithError(err).Error("Recovered from handler panic")
			observability.RecordError(ctx, err)
			resp = mcperrors.ToJSONRPCResponse(err, req.ID)
		}
	}()

	if req.JSONRPC != protocol.JSONRPCVersion {
		err := mcperrors.UnsupportedVersion(req.JSONRPC)
		logger.WithError(err).Warn("Rejected request")
		return mcperrors.ToJSONRPCResponse(err, req.ID)
	}

	handler, ok := d.handlers[req.Method]
	if !ok {
		err := mcperrors.MethodNotFound(req.Method)
		logger.WithError(err).Warn("Rejected request")
		return mcperrors.ToJSONRPCResponse(err, req.ID)
	}

	result, err := handler(ctx, req)
	if err != nil {
		err = mcperrors.WithRequestContext(err, req.Method, req.ID)
		logger.WithError(err).Warn("Request failed", logging.Duration("duration", time.Since(start)))
		return mcperrors.ToJSONRPCResponse(err, req.ID)
	}

	resp, err = protocol.NewResponse(req.ID, result)
	if err != nil {
		err = mcperrors.WithRequestContext(mcperrors.InternalFailure("encode result", err), req.Method, req.ID)
		logger.WithError(err).Error("Failed to encode result")
		return mcperrors.ToJSONRPCResponse(err, req.ID)
	}

	logger.Debug("Request handled", logging.Duration("duration", time.Since(start)))
	return resp
}

func (d *Dispatcher) handleInitialize(ctx context.Context, req *protocol.Request) (interface{}, error) {
	// Client parameters are informational only; a malformed clientInfo is not an error.
	var clientInfo protocol.ClientInfo
	if found, err := req.Param("clientInfo", &clientInfo); found && err == nil {
		d.logger.WithContext(ctx).Info("Client initializing",
			logging.String("client_name", clientInfo.Name),
			logging.String("client_version", clientInfo.Version))
	}

	return &protocol.InitializeResult{
		ProtocolVersion: d.protocolVersion,
		Capabilities: protocol.ServerCapabilities{
			Tools: &protocol.ToolsCapability{},
		},
		ServerInfo: d.info,
	}, nil
}

func (d *Dispatcher) handleListTools(ctx context.Context, req *protocol.Request) (interface{}, error) {
	return &protocol.ListToolsResult{Tools: d.registry.List()}, nil
}

func (d *Dispatcher) handlePing(ctx context.Context, req *protocol.Request) (interface{}, error) {
	return &protocol.PingResult{}, nil
}

func (d *Dispatcher) handleCallTool(ctx context.Context, req *protocol.Request) (interface{}, error) {
	var name string
	if _, err := req.Param("name", &name); err != nil {
		name = ""
	}

	tool, ok := d.registry.Lookup(name)
	if !ok {
		return nil, mcperrors.ToolNotFound(name)
	}

	var args map[string]interface{}
	if _, err := req.Param("arguments", &args); err != nil {
		if d.strict {
			return nil, mcperrors.InvalidArguments(name, []string{"arguments must be an object"})
		}
		args = nil
	}

	if d.strict {
		violations, err := d.registry.ValidateArguments(ctx, tool.Name, args)
		if err != nil {
			return nil, mcperrors.InternalFailure("validate arguments", err)
		}
		if len(violations) > 0 {
			return nil, mcperrors.InvalidArguments(name, violations)
		}
	}

	if d.provider == nil {
		return nil, mcperrors.ProviderFailure(name, errNoProvider)
	}

	text, err := d.instrumentation.ObserveToolCall(ctx, name, func(ctx context.Context) (string, error) {
		return d.provider.Invoke(ctx, name, args)
	})
	if err != nil {
		return nil, mcperrors.ProviderFailure(name, err).WithContext(&mcperrors.Context{
			Tool:      name,
			Component: "dispatcher",
			Operation: protocol.MethodCallTool,
			Timestamp: time.Now(),
		})
	}

	return protocol.TextResult(text), nil
}

var errNoProvider = errors.New("no data provider configured")
