package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	sse "github.com/tmaxmax/go-sse"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-sse-server/pkg/errors"
	"github.com/ajitpratap0/mcp-sse-server/pkg/logging"
	"github.com/ajitpratap0/mcp-sse-server/pkg/observability"
	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
)

// SessionIDHeader carries the session id on every stream response
const SessionIDHeader = "Mcp-Session-Id"

// Phase is the lifecycle state of a session
type Phase int32

const (
	PhaseConnecting Phase = iota
	PhaseOpen
	PhaseClosing
	PhaseClosed
)

var phaseNames = [...]string{"connecting", "open", "closing", "closed"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int32(p))
	}
	return phaseNames[p]
}

// Mode selects how a session uses its stream
type Mode string

const (
	// ModeStream is a long-lived GET stream carrying notifications and heartbeats
	ModeStream Mode = "stream"
	// ModeExchange carries the single response to a POSTed request
	ModeExchange Mode = "exchange"
)

// CloseReason records why a session ended
type CloseReason string

const (
	ReasonClientDisconnect CloseReason = "client_disconnect"
	ReasonWriteError       CloseReason = "write_error"
	ReasonAutoClose        CloseReason = "auto_close"
	ReasonDrained          CloseReason = "drained"
	ReasonServerShutdown   CloseReason = "server_shutdown"
)

// Config holds the session timings
type Config struct {
	// ListChangedDelay is the delay between notification/initialized and
	// notification/tools/list_changed on stream sessions
	ListChangedDelay time.Duration
	// HeartbeatInterval spaces the keep-alive comment frames
	HeartbeatInterval time.Duration
	// AutoCloseAfter closes a stream session this long after it opened, regardless of activity
	AutoCloseAfter time.Duration
	// DrainDelay keeps an exchange open after its response was written
	DrainDelay time.Duration
	// PushBuffer is the number of pushed frames queued per stream session
	PushBuffer int
}

// DefaultConfig returns the standard session timings
func DefaultConfig() Config {
	return Config{
		ListChangedDelay:  100 * time.Millisecond,
		HeartbeatInterval: 25 * time.Second,
		AutoCloseAfter:    50 * time.Second,
		DrainDelay:        2500 * time.Millisecond,
		PushBuffer:        16,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ListChangedDelay <= 0 {
		c.ListChangedDelay = d.ListChangedDelay
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.AutoCloseAfter <= 0 {
		c.AutoCloseAfter = d.AutoCloseAfter
	}
	if c.DrainDelay <= 0 {
		c.DrainDelay = d.DrainDelay
	}
	if c.PushBuffer <= 0 {
		c.PushBuffer = d.PushBuffer
	}
	return c
}

var (
	initializedFrame = mustNotificationFrame(protocol.NotificationInitialized)
	listChangedFrame = mustNotificationFrame(protocol.NotificationToolsListChanged)

	errPushUnsupported = errors.New("exchange sessions do not accept pushed frames")
)

// Session is one event stream. All writes to the stream happen on the
// goroutine running Serve or Exchange, which also owns every timer.
type Session struct {
	id      string
	mode    Mode
	config  Config
	stream  *sse.Session
	manager *Manager
	logger  logging.Logger

	phase   atomic.Int32
	started atomic.Bool
	frames  atomic.Int64

	outbox  chan *Frame
	closing chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	reason    CloseReason
	cancel    context.CancelFunc
	openedAt  time.Time
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Mode returns the session mode
func (s *Session) Mode() Mode { return s.mode }

// Phase returns the current lifecycle phase
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

// Done is closed once the session reached PhaseClosed
func (s *Session) Done() <-chan struct{} { return s.done }

// Reason returns why the session closed, or "" while it is open
func (s *Session) Reason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Close asks the session to stop and cancels the context Serve or Exchange
// runs with. The first reason wins; later calls are no-ops.
func (s *Session) Close(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()

		for {
			p := s.phase.Load()
			if Phase(p) >= PhaseClosing || s.phase.CompareAndSwap(p, int32(PhaseClosing)) {
				break
			}
		}
		close(s.closing)

		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}

func (s *Session) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// Push queues a frame for the stream. Frames are written in the order they
// were pushed, after notification/tools/list_changed. It blocks while the
// queue is full and fails once the session is closing.
func (s *Session) Push(f *Frame) error {
	if f == nil {
		return errors.New("nil frame")
	}
	if s.mode != ModeStream {
		return errPushUnsupported
	}
	if s.isClosing() {
		return mcperrors.SessionClosed(s.id)
	}

	select {
	case s.outbox <- f:
		return nil
	case <-s.closing:
		return mcperrors.SessionClosed(s.id)
	}
}

// offer queues f without blocking
func (s *Session) offer(f *Frame) bool {
	if s.mode != ModeStream || s.isClosing() {
		return false
	}
	select {
	case s.outbox <- f:
		return true
	default:
		return false
	}
}

// Serve runs a stream session until it closes and returns the close reason.
// It writes notification/initialized at once, notification/tools/list_changed
// after the list-changed delay, then pushed frames and heartbeats until the
// client leaves, a write fails, the auto-close timer fires or Close is called.
func (s *Session) Serve(ctx context.Context) CloseReason {
	return s.run(ctx, func(ctx context.Context) {
		autoClose := time.NewTimer(s.config.AutoCloseAfter)
		defer autoClose.Stop()
		closeAt := time.Now().Add(s.config.AutoCloseAfter)
		listChanged := time.NewTimer(s.config.ListChangedDelay)
		defer listChanged.Stop()
		// Created after closeAt, so a tick due together with the auto-close
		// carries a time at or after closeAt.
		heartbeat := time.NewTicker(s.config.HeartbeatInterval)
		defer heartbeat.Stop()

		if !s.write(ctx, initializedFrame) {
			return
		}

		// Pushed frames wait until list_changed went out.
		var outbox chan *Frame

		for {
			select {
			case <-ctx.Done():
				s.Close(ReasonClientDisconnect)
				return
			case <-s.closing:
				return
			case <-autoClose.C:
				s.Close(ReasonAutoClose)
				return
			case <-listChanged.C:
				if !s.write(ctx, listChangedFrame) {
					return
				}
				outbox = s.outbox
			case tick := <-heartbeat.C:
				if !tick.Before(closeAt) {
					s.Close(ReasonAutoClose)
					return
				}
				if !s.write(ctx, HeartbeatFrame()) {
					return
				}
			case f := <-outbox:
				if !s.write(ctx, f) {
					return
				}
			}
		}
	})
}

// Exchange runs an exchange session: respond produces the response, which is
// written as a single frame. The session then stays open for the drain delay,
// or until the client leaves or Close is called.
func (s *Session) Exchange(ctx context.Context, respond func(context.Context) *protocol.Response) CloseReason {
	return s.run(ctx, func(ctx context.Context) {
		frame, err := ResponseFrame(respond(ctx))
		if err != nil {
			s.logger.WithError(err).Error("Failed to encode response frame")
			s.Close(ReasonWriteError)
			return
		}
		if !s.write(ctx, frame) {
			return
		}

		drain := time.NewTimer(s.config.DrainDelay)
		defer drain.Stop()

		select {
		case <-drain.C:
			s.Close(ReasonDrained)
		case <-ctx.Done():
			s.Close(ReasonClientDisconnect)
		case <-s.closing:
		}
	})
}

func (s *Session) run(ctx context.Context, body func(context.Context)) CloseReason {
	if !s.started.CompareAndSwap(false, true) {
		<-s.done
		return s.Reason()
	}

	ctx, span := s.manager.instrumentation.StartSession(ctx, s.id, string(s.mode))
	s.openedAt = time.Now()

	// Closing the session cancels whatever the body is waiting on,
	// including an exchange's in-flight tool call.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	if s.isClosing() {
		cancel()
	}

	registered := s.manager.register(s)
	if registered {
		s.phase.CompareAndSwap(int32(PhaseConnecting), int32(PhaseOpen))
		s.manager.instrumentation.Recorder().RecordSessionOpened(ctx, string(s.mode))
		s.logger.Debug("Session opened")
		body(ctx)
	} else {
		s.Close(ReasonServerShutdown)
	}

	s.finish(ctx, span, registered)
	return s.Reason()
}

func (s *Session) finish(ctx context.Context, span trace.Span, registered bool) {
	// body always closes with a reason; this covers a handler that returned early
	s.Close(ReasonClientDisconnect)
	s.phase.Store(int32(PhaseClosed))

	reason := s.Reason()
	lifetime := time.Since(s.openedAt)
	frames := s.frames.Load()

	if registered {
		s.manager.unregister(s)
		s.manager.instrumentation.Recorder().RecordSessionClosed(ctx, string(s.mode), string(reason), lifetime)
	}

	span.SetAttributes(
		attribute.String("mcp.session.close_reason", string(reason)),
		attribute.Int64("mcp.session.frames", frames),
	)
	span.End()

	logger := s.logger.WithFields(
		logging.String("reason", string(reason)),
		logging.Duration("lifetime", lifetime),
		logging.Int64("frames", frames),
	)
	if s.mode == ModeStream {
		logger.Info("Session closed")
	} else {
		logger.Debug("Session closed")
	}

	close(s.done)
}

// write sends one frame and flushes it. On failure the session closes with
// ReasonWriteError; nothing is written once the session is closing.
func (s *Session) write(ctx context.Context, f *Frame) bool {
	if s.isClosing() {
		return false
	}

	err := s.stream.Send(f.message)
	if err == nil {
		err = s.stream.Flush()
	}
	if err != nil {
		werr := mcperrors.StreamWriteFailed(s.id, string(f.Kind), err)
		s.logger.WithError(werr).Warn("Stream write failed")
		observability.RecordError(ctx, werr)
		s.manager.instrumentation.Recorder().RecordWriteError(ctx, string(f.Kind))
		s.Close(ReasonWriteError)
		return false
	}

	s.frames.Add(1)
	s.manager.instrumentation.Recorder().RecordFrame(ctx, string(f.Kind))
	if f.Kind != FrameHeartbeat {
		observability.AddEvent(ctx, "mcp.frame", attribute.String("mcp.frame.kind", string(f.Kind)))
	}
	return true
}

// Manager creates sessions and keeps the table used for broadcast and shutdown
type Manager struct {
	config          Config
	logger          logging.Logger
	instrumentation *observability.Instrumentation

	mu           sync.Mutex
	sessions     map[string]*Session
	shuttingDown bool
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithConfig sets the session timings; zero fields keep their defaults
func WithConfig(config Config) ManagerOption {
	return func(m *Manager) {
		m.config = config
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithInstrumentation sets the tracer and metrics used for sessions
func WithInstrumentation(in *observability.Instrumentation) ManagerOption {
	return func(m *Manager) {
		m.instrumentation = in
	}
}

// NewManager creates a session manager
func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		config:   DefaultConfig(),
		logger:   logging.Nop(),
		sessions: make(map[string]*Session),
	}
	for _, option := range options {
		option(m)
	}
	m.config = m.config.withDefaults()
	m.logger = m.logger.WithFields(logging.String("component", "transport"))
	return m
}

// Config returns the effective session timings
func (m *Manager) Config() Config {
	return m.config
}

// Open upgrades w to an event stream and returns the new session in
// PhaseConnecting. Nothing is written until Serve or Exchange runs, so the
// caller may still answer with a plain HTTP error if it does not proceed.
func (m *Manager) Open(w http.ResponseWriter, r *http.Request, mode Mode) (*Session, error) {
	id := uuid.NewString()

	stream, err := sse.Upgrade(w, r)
	if err != nil {
		return nil, mcperrors.StreamingUnsupported(id, err)
	}

	h := stream.Res.Header()
	h.Set(SessionIDHeader, id)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	s := &Session{
		id:      id,
		mode:    mode,
		config:  m.config,
		stream:  stream,
		manager: m,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		logger: m.logger.WithContext(r.Context()).WithFields(
			logging.String("session_id", id),
			logging.String("mode", string(mode)),
		),
	}
	if mode == ModeStream {
		s.outbox = make(chan *Frame, m.config.PushBuffer)
	}
	s.phase.Store(int32(PhaseConnecting))
	return s, nil
}

// ServeStream opens a stream session on w and serves it until it closes
func (m *Manager) ServeStream(w http.ResponseWriter, r *http.Request) (CloseReason, error) {
	s, err := m.Open(w, r, ModeStream)
	if err != nil {
		return "", err
	}
	return s.Serve(r.Context()), nil
}

// ServeExchange opens an exchange session on w and writes the response produced by respond
func (m *Manager) ServeExchange(w http.ResponseWriter, r *http.Request, respond func(context.Context) *protocol.Response) (CloseReason, error) {
	s, err := m.Open(w, r, ModeExchange)
	if err != nil {
		return "", err
	}
	return s.Exchange(r.Context(), respond), nil
}

func (m *Manager) register(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shuttingDown {
		return false
	}
	m.sessions[s.id] = s
	return true
}

func (m *Manager) unregister(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, s.id)
}

func (m *Manager) snapshot(mode Mode) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if mode == "" || s.mode == mode {
			out = append(out, s)
		}
	}
	return out
}

// Lookup returns the registered session with the given id
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count returns the number of registered sessions
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Broadcast queues f on every open stream session and returns how many
// accepted it. Sessions whose queue is full are skipped.
func (m *Manager) Broadcast(f *Frame) int {
	delivered := 0
	for _, s := range m.snapshot(ModeStream) {
		if s.offer(f) {
			delivered++
			continue
		}
		if !s.isClosing() {
			m.logger.Warn("Dropped broadcast frame for slow session",
				logging.String("session_id", s.id),
				logging.String("frame", string(f.Kind)))
		}
	}
	return delivered
}

// Shutdown refuses new sessions, closes every open one with
// ReasonServerShutdown and waits for them to finish or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shuttingDown = true
	m.mu.Unlock()

	sessions := m.snapshot("")
	for _, s := range sessions {
		s.Close(ReasonServerShutdown)
	}

	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d sessions: %w", m.Count(), ctx.Err())
		}
	}

	m.logger.Info("Session manager stopped", logging.Int("closed_sessions", len(sessions)))
	return nil
}
