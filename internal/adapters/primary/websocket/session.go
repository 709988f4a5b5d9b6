package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lorrc/service-desk-realtime/internal/core/domain"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/logging"
	"github.com/lorrc/service-desk-realtime/internal/infrastructure/metrics"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	defaultPingPeriod = (defaultPongWait * 9) / 10

	// Maximum message size allowed from peer.
	defaultMaxMessageSize = 64 * 1024
)

var (
	// ErrManagerClosed is returned by Serve once Shutdown has started.
	ErrManagerClosed = errors.New("session manager is shut down")

	// ErrDecode marks an inbound frame that could not be decoded as an event.
	ErrDecode = errors.New("undecodable frame")

	errPeerGone           = errors.New("peer connection closed")
	errSubscriptionClosed = errors.New("subscription closed")
	errSessionPanic       = errors.New("session panicked")
)

// State is the lifecycle stage of a session.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options tune session I/O.
type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	InboundRPS     float64
	InboundBurst   int
}

// DefaultOptions returns the stock keep-alive and inbound limits.
func DefaultOptions() Options {
	return Options{
		WriteWait:      defaultWriteWait,
		PongWait:       defaultPongWait,
		PingPeriod:     defaultPingPeriod,
		MaxMessageSize: defaultMaxMessageSize,
		InboundRPS:     20,
		InboundBurst:   40,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.InboundRPS <= 0 {
		o.InboundRPS = d.InboundRPS
	}
	if o.InboundBurst < 1 {
		o.InboundBurst = d.InboundBurst
	}
	return o
}

// Manager owns every live session and bridges each one to the bus.
type Manager struct {
	bus     *Bus
	opts    Options
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// NewManager creates a session manager publishing to and subscribing from bus.
func NewManager(bus *Bus, opts Options, logger *slog.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		bus:      bus,
		opts:     opts.withDefaults(),
		metrics:  m,
		logger:   logger.With("component", "session_manager"),
		sessions: make(map[*Session]struct{}),
	}
}

// Serve runs a session for an upgraded connection on behalf of userID and
// blocks until the session is closed. The connection is always closed on return.
func (m *Manager) Serve(ctx context.Context, conn *websocket.Conn, userID uuid.UUID) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &Session{
		ID:      uuid.New(),
		UserID:  userID,
		conn:    conn,
		bus:     m.bus,
		opts:    m.opts,
		limiter: rate.NewLimiter(rate.Limit(m.opts.InboundRPS), m.opts.InboundBurst),
		metrics: m.metrics,
		logger:  m.logger,
		cancel:  cancel,
	}

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		_ = conn.Close()
		return ErrManagerClosed
	}
	m.sessions[s] = struct{}{}
	m.wg.Add(1)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.sessions, s)
		m.mu.Unlock()
		m.wg.Done()
	}()

	sessCtx = logging.WithSessionID(logging.WithUserID(sessCtx, userID.String()), s.ID.String())
	return s.run(sessCtx)
}

// ActiveSessions returns the number of sessions that have not yet closed.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown stops accepting sessions, cancels every live one and waits for
// them to close or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	for s := range m.sessions {
		s.cancel()
	}
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "closing websocket sessions", "sessions", count)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions to close: %w", ctx.Err())
	}
}

// Session bridges one WebSocket connection to the bus.
type Session struct {
	ID     uuid.UUID
	UserID uuid.UUID

	conn    *websocket.Conn
	bus     *Bus
	sub     *Subscription
	opts    Options
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger
	cancel  context.CancelFunc
	state   atomic.Int32
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Session) run(ctx context.Context) error {
	s.setState(StateConnecting)
	s.sub = s.bus.Subscribe()
	started := time.Now()
	s.metrics.SessionOpened()

	s.setState(StateActive)
	s.logger.InfoContext(ctx, "websocket session active")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(s.recovered(func() error { return s.readLoop(gctx) }))
	g.Go(s.recovered(func() error { return s.writeLoop(gctx) }))
	g.Go(func() error {
		<-gctx.Done()
		s.setState(StateClosing)
		if ctx.Err() != nil {
			// Closed from our side; tell the peer before dropping the socket.
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		_ = s.conn.Close()
		return nil
	})

	err := g.Wait()

	s.sub.Close()
	s.setState(StateClosed)
	lifetime := time.Since(started)
	s.metrics.SessionClosed(lifetime)
	s.logger.InfoContext(ctx, "websocket session closed",
		"reason", err,
		"duration_ms", lifetime.Milliseconds(),
		"dropped_events", s.sub.Dropped(),
	)

	if errors.Is(err, errPeerGone) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// recovered turns a panic in fn into an error so it ends only this session.
func (s *Session) recovered(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				logging.LogPanic(s.logger, p)
				err = fmt.Errorf("%w: %v", errSessionPanic, p)
			}
		}()
		return fn()
	}
}

// readLoop decodes inbound frames and publishes them. It only returns once
// the connection fails, always with a non-nil error.
func (s *Session) readLoop(ctx context.Context) error {
	s.conn.SetReadLimit(s.opts.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait)); err != nil {
		return fmt.Errorf("%w: %v", errPeerGone, err)
	}

	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.DebugContext(ctx, "websocket read error", "error", err)
			}
			return fmt.Errorf("%w: %v", errPeerGone, err)
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))

		if err := s.handleFrame(msgType, data); err != nil {
			s.logger.DebugContext(ctx, "inbound frame discarded", "error", err)
		}
	}
}

// handleFrame publishes one inbound frame. A returned error never ends the session.
func (s *Session) handleFrame(msgType int, data []byte) error {
	if msgType != websocket.TextMessage {
		s.metrics.InboundFrame(metrics.FrameBinary)
		return fmt.Errorf("%w: non-text frame type %d", ErrDecode, msgType)
	}

	if !s.limiter.Allow() {
		s.metrics.InboundFrame(metrics.FrameRateLimited)
		return errors.New("inbound rate limit exceeded")
	}

	ev, err := domain.UnmarshalEvent(data)
	if err != nil {
		s.metrics.InboundFrame(metrics.FrameMalformed)
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if typing, ok := ev.(domain.TypingIndicator); ok {
		typing.UserID = s.UserID
		ev = typing
	}

	s.metrics.InboundFrame(metrics.FrameAccepted)
	s.bus.Publish(ev)
	return nil
}

// writeLoop writes every event from the subscription as a text frame and
// keeps the connection alive with pings. It always returns a non-nil error.
func (s *Session) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-s.sub.C():
			if !ok {
				return errSubscriptionClosed
			}

			data, err := domain.MarshalEvent(ev)
			if err != nil {
				s.logger.ErrorContext(ctx, "failed to encode event", "event_type", ev.Type(), "error", err)
				continue
			}

			if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait)); err != nil {
				return fmt.Errorf("set write deadline: %w", err)
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("write event: %w", err)
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait)); err != nil {
				return fmt.Errorf("set write deadline: %w", err)
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}
