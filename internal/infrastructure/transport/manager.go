// Package transport owns the authenticated persistent connection to the
// POS server: one websocket session at a time, bounded reconnection with
// capped exponential backoff, lifecycle callbacks and a readiness flag.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jerson21/santitelas-frontend-sub003/internal/infrastructure/logger"
)

// State is the connectivity state of the transport
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Message is the wire envelope for both directions
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Credentials authenticate the connection
type Credentials struct {
	Token string
}

// Handler processes the payload of one inbound event
type Handler func(ctx context.Context, data json.RawMessage)

// Config holds connection settings
type Config struct {
	URL                  string
	ConnectTimeout       time.Duration
	MaxReconnectAttempts int
	InitialDelay         time.Duration
	MaxDelay             time.Duration
	Multiplier           float64
	PongWait             time.Duration
	WriteWait            time.Duration
	MaxMessageBytes      int64
	SendBuffer           int
}

// DefaultConfig returns the reference connection settings for url
func DefaultConfig(url string) Config {
	return Config{
		URL:                  url,
		ConnectTimeout:       10 * time.Second,
		MaxReconnectAttempts: 5,
		InitialDelay:         time.Second,
		MaxDelay:             5 * time.Second,
		Multiplier:           2,
		PongWait:             60 * time.Second,
		WriteWait:            10 * time.Second,
		MaxMessageBytes:      1 << 20,
		SendBuffer:           64,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if c.ConnectTimeout <= 0 || c.InitialDelay <= 0 || c.MaxDelay <= 0 {
		return fmt.Errorf("%w: timeouts and delays must be positive", ErrInvalidConfig)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: max reconnect attempts cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// Stats is a point-in-time view of the transport
type Stats struct {
	State             State     `json:"-"`
	StateName         string    `json:"state"`
	Ready             bool      `json:"ready"`
	SessionID         string    `json:"session_id,omitempty"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	GaveUp            bool      `json:"gave_up"`
	LastError         string    `json:"last_error,omitempty"`
	ConnectedAt       time.Time `json:"connected_at,omitempty"`
}

// Option configures a Manager
type Option func(*Manager)

// WithDialer overrides the websocket dialer
func WithDialer(d *websocket.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithReconnectHook is invoked before each reconnection attempt
func WithReconnectHook(fn func(attempt int, delay time.Duration)) Option {
	return func(m *Manager) { m.onAttempt = fn }
}

// WithStateHook is invoked on every state change
func WithStateHook(fn func(State)) Option {
	return func(m *Manager) { m.onState = fn }
}

// Manager owns one persistent connection. It is safe for concurrent use.
type Manager struct {
	cfg    Config
	logger *zap.Logger
	dialer *websocket.Dialer

	state    atomic.Int32
	ready    atomic.Bool
	attempts atomic.Int32
	gaveUp   atomic.Bool

	mu          sync.Mutex
	creds       Credentials
	cancel      context.CancelFunc
	done        chan struct{}
	current     *session
	lastErr     error
	connectedAt time.Time
	handlers    map[string]*registry[Handler]

	connected    registry[func(ctx context.Context)]
	disconnected registry[func(err error)]

	onAttempt func(attempt int, delay time.Duration)
	onState   func(State)
}

// NewManager creates a disconnected transport
func NewManager(cfg Config, zl *zap.Logger, opts ...Option) (*Manager, error) {
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:      cfg,
		logger:   logger.Component(zl, "transport"),
		handlers: make(map[string]*registry[Handler]),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Connect starts the managed connection loop. It returns once the first
// attempt succeeded or failed; a failed first attempt is retried in the
// background with backoff and only surfaces through State and Stats.
func (m *Manager) Connect(ctx context.Context, creds Credentials) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.creds = creds
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	m.attempts.Store(0)
	m.gaveUp.Store(false)

	conn, err := m.dial(ctx)
	go m.run(runCtx, conn, done)
	if err != nil {
		return fmt.Errorf("initial connect: %w", err)
	}
	return nil
}

// Reconnect restarts the connection loop, typically after it gave up
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	m.Disconnect()
	return m.Connect(ctx, creds)
}

// Disconnect closes the session, cancels any pending reconnection and waits
// for the connection loop to exit. It is idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// OnConnected registers fn to run after each successful connection, before
// inbound events are read
func (m *Manager) OnConnected(fn func(ctx context.Context)) (dispose func()) {
	return m.connected.add(fn)
}

// OnDisconnected registers fn to run after each session ends
func (m *Manager) OnDisconnected(fn func(err error)) (dispose func()) {
	return m.disconnected.add(fn)
}

// Subscribe registers h for inbound events named event
func (m *Manager) Subscribe(event string, h Handler) (dispose func()) {
	m.mu.Lock()
	reg, ok := m.handlers[event]
	if !ok {
		reg = &registry[Handler]{}
		m.handlers[event] = reg
	}
	m.mu.Unlock()
	return reg.add(h)
}

// SubscriberCount returns the number of live subscriptions
func (m *Manager) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.connected.len() + m.disconnected.len()
	for _, reg := range m.handlers {
		n += reg.len()
	}
	return n
}

// Emit queues an outbound event on the current session
func (m *Manager) Emit(ctx context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event, err)
	}

	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	if sess == nil || m.State() != StateConnected {
		return ErrNotConnected
	}

	select {
	case sess.send <- frame:
		return nil
	case <-sess.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current connectivity state
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsConnected reports whether a session is open
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// IsReady reports whether the session completed its handshake and received
// its initial snapshot
func (m *Manager) IsReady() bool {
	return m.IsConnected() && m.ready.Load()
}

// MarkReady flags the current session as ready. It is a no-op while
// disconnected.
func (m *Manager) MarkReady() {
	if m.IsConnected() {
		m.ready.Store(true)
	}
}

// Stats returns a snapshot of the transport status
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{
		State:             m.State(),
		StateName:         m.State().String(),
		Ready:             m.IsReady(),
		ReconnectAttempts: int(m.attempts.Load()),
		GaveUp:            m.gaveUp.Load(),
	}
	if m.current != nil {
		st.SessionID = m.current.id
		st.ConnectedAt = m.connectedAt
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

func (m *Manager) setState(s State) {
	if State(m.state.Swap(int32(s))) == s {
		return
	}
	if m.onState != nil {
		m.onState(s)
	}
}

func (m *Manager) setLastErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	m.setState(StateConnecting)

	m.mu.Lock()
	token := m.creds.Token
	m.mu.Unlock()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	conn, resp, err := m.dialer.DialContext(dialCtx, m.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		m.setState(StateDisconnected)
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			err = fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
		}
		m.setLastErr(err)
		m.logger.Warn("connection attempt failed", zap.String("url", m.cfg.URL), zap.Error(err))
		return nil, err
	}
	m.setLastErr(nil)
	return conn, nil
}

func (m *Manager) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		if conn != nil {
			err := m.serve(ctx, conn)
			m.fireDisconnected(err)
		}
		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return
		}
		conn = m.reconnect(ctx)
		if conn == nil {
			return
		}
	}
}

// reconnect dials with capped exponential backoff. It returns nil when the
// attempt budget is spent or ctx is cancelled, leaving the transport
// passively disconnected.
func (m *Manager) reconnect(ctx context.Context) *websocket.Conn {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.InitialDelay
	b.MaxInterval = m.cfg.MaxDelay
	b.Multiplier = m.cfg.Multiplier
	b.RandomizationFactor = 0
	b.Reset()

	for attempt := 1; attempt <= m.cfg.MaxReconnectAttempts; attempt++ {
		delay := b.NextBackOff()
		m.attempts.Store(int32(attempt))
		if m.onAttempt != nil {
			m.onAttempt(attempt, delay)
		}
		m.logger.Info("reconnecting",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.cfg.MaxReconnectAttempts),
			zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := m.dial(ctx)
		if err == nil {
			return conn
		}
		if ctx.Err() != nil {
			return nil
		}
	}

	m.gaveUp.Store(true)
	m.setState(StateDisconnected)
	m.logger.Warn("reconnection attempts exhausted, staying disconnected",
		zap.Int("attempts", m.cfg.MaxReconnectAttempts))
	return nil
}

func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) error {
	sess := newSession(conn, m.cfg.SendBuffer)
	sctx, slog := logger.WithSessionID(ctx, m.logger, sess.id)

	m.mu.Lock()
	m.current = sess
	m.connectedAt = time.Now()
	m.mu.Unlock()

	m.attempts.Store(0)
	m.gaveUp.Store(false)
	m.ready.Store(false)
	m.setState(StateConnected)
	slog.Info("connected", zap.String("url", m.cfg.URL))

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		m.writePump(sctx, sess, slog)
	}()

	for _, fn := range m.connected.list() {
		m.safeCall(slog, "connected callback", func() { fn(sctx) })
	}

	err := m.readPump(sctx, sess, slog)
	sess.close()
	<-writeDone

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.ready.Store(false)
	m.setState(StateDisconnected)

	if ctx.Err() != nil {
		slog.Info("disconnected on teardown")
		return nil
	}
	m.setLastErr(err)
	slog.Warn("connection lost", zap.Error(err))
	return err
}

func (m *Manager) readPump(ctx context.Context, sess *session, slog *zap.Logger) error {
	conn := sess.conn
	conn.SetReadLimit(m.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
	})
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(m.cfg.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(m.cfg.PongWait))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			slog.Warn("dropping malformed frame", zap.Int("bytes", len(data)), zap.Error(err))
			continue
		}
		m.dispatch(ctx, slog, msg)
	}
}

func (m *Manager) dispatch(ctx context.Context, slog *zap.Logger, msg Message) {
	m.mu.Lock()
	reg := m.handlers[msg.Event]
	m.mu.Unlock()
	if reg == nil {
		slog.Debug("no subscriber for event", zap.String("event", msg.Event))
		return
	}
	for _, h := range reg.list() {
		m.safeCall(slog, msg.Event, func() { h(ctx, msg.Data) })
	}
}

func (m *Manager) writePump(ctx context.Context, sess *session, slog *zap.Logger) {
	pingPeriod := m.cfg.PongWait * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	conn := sess.conn
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown"),
				time.Now().Add(m.cfg.WriteWait))
			sess.close()
			return
		case <-sess.done:
			return
		case frame := <-sess.send:
			_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Warn("write failed", zap.Error(err))
				sess.close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.cfg.WriteWait)); err != nil {
				slog.Warn("ping failed", zap.Error(err))
				sess.close()
				return
			}
		}
	}
}

func (m *Manager) fireDisconnected(err error) {
	for _, fn := range m.disconnected.list() {
		m.safeCall(m.logger, "disconnected callback", func() { fn(err) })
	}
}

func (m *Manager) safeCall(slog *zap.Logger, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("transport callback panicked",
				zap.String("callback", what),
				zap.Any("panic", r),
				zap.Stack("stacktrace"))
		}
	}()
	fn()
}

type session struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, buffer int) *session {
	return &session{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
