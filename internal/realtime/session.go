package realtime

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/user/choresync/internal/notify"
	"github.com/user/choresync/internal/types"
)

// Sentinel errors reported by Connect.
var (
	// ErrCircuitOpen means the breaker is rejecting connects until the
	// cooldown elapses.
	ErrCircuitOpen = errors.New("connection temporarily disabled")
	// ErrTooManyAttempts means this call hit the breaker threshold and
	// opened the circuit.
	ErrTooManyAttempts = errors.New("maximum connection attempts reached")
)

// EventHandler consumes decoded inbound events in delivery order.
type EventHandler interface {
	HandleEvent(ev *types.Event)
}

// URLResolver produces the endpoint and token for a connection attempt.
// ok is false when no valid credential exists, which aborts the attempt
// silently.
type URLResolver func() (url, token string, ok bool)

// Status is a point-in-time snapshot of a session for UI indicators.
type Status struct {
	State         types.ConnectionState
	Attempts      int
	CircuitOpen   bool
	LastHeartbeat time.Time
	LastError     string
}

// Session owns one transport connection at a time and runs the
// connect/retry state machine. All transitions happen under one mutex;
// transport callbacks arrive serialized on the connection's event channel.
type Session struct {
	kind      types.TransportKind
	transport Transport
	policy    *ReconnectPolicy
	heartbeat *HeartbeatMonitor
	handler   EventHandler
	notifier  notify.Notifier
	resolve   URLResolver

	mu         sync.Mutex
	state      types.ConnectionState
	conn       Conn
	manual     bool
	retryTimer *time.Timer
	lastErr    string
	lastEvent  *types.Event
}

// NewSession creates a session for the given transport. The stream kind gets
// a heartbeat monitor; the socket kind relies on transport-level liveness.
func NewSession(transport Transport, resolve URLResolver, handler EventHandler, notifier notify.Notifier) *Session {
	s := &Session{
		kind:      transport.Kind(),
		transport: transport,
		policy:    NewReconnectPolicy(transport.Kind()),
		handler:   handler,
		notifier:  notifier,
		resolve:   resolve,
		state:     types.StateIdle,
	}
	if s.kind == types.TransportStream {
		s.heartbeat = NewHeartbeatMonitor(HeartbeatCheckInterval, HeartbeatStaleAfter, s.onStale)
	}
	return s
}

// Policy exposes the reconnect policy, mainly so tests and embedding
// applications can tighten its limits.
func (s *Session) Policy() *ReconnectPolicy {
	return s.policy
}

// SetHeartbeatLimits replaces the stream heartbeat monitor's intervals.
// Must be called before Connect.
func (s *Session) SetHeartbeatLimits(interval, staleness time.Duration) {
	if s.heartbeat != nil {
		s.heartbeat = NewHeartbeatMonitor(interval, staleness, s.onStale)
	}
}

// Connect starts a connection attempt. It is a no-op when the circuit is
// open, when the breaker threshold is hit (which opens the circuit), when a
// session is already connecting or open, and when no valid credential
// resolves.
func (s *Session) Connect() error {
	if s.policy.CircuitOpen() {
		slog.Info("connect rejected, circuit open", "transport", s.kind)
		s.notifier.Error("Connection Temporarily Disabled",
			"Connection blocked due to repeated failures. Please try again later.")
		return ErrCircuitOpen
	}
	if s.policy.Exhausted() {
		slog.Error("maximum reconnection attempts reached, opening circuit breaker", "transport", s.kind)
		s.policy.Trip()
		s.notifier.Error("Connection Failed",
			"Maximum connection attempts reached. Real-time updates disabled for a cooldown period.")
		return ErrTooManyAttempts
	}

	s.mu.Lock()
	if s.state == types.StateConnecting || s.state == types.StateOpen {
		s.mu.Unlock()
		return nil
	}

	url, token, ok := s.resolve()
	if !ok {
		s.mu.Unlock()
		slog.Debug("connect skipped, no valid credential", "transport", s.kind)
		return nil
	}

	s.manual = false
	s.state = types.StateConnecting
	s.mu.Unlock()

	slog.Info("connecting", "transport", s.kind, "url", url)
	conn, err := s.transport.Dial(context.Background(), url, token)
	if err != nil {
		s.mu.Lock()
		s.state = types.StateClosed
		s.lastErr = "failed to establish connection"
		s.scheduleRetryLocked()
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	if s.manual {
		// Disconnect raced the dial; drop the fresh connection.
		s.state = types.StateClosed
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	s.conn = conn
	s.mu.Unlock()
	go s.readLoop(conn)
	return nil
}

// Disconnect closes the session and suppresses any scheduled reconnect.
// Idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.manual = true
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = types.StateClosed
	s.mu.Unlock()

	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
	if conn != nil {
		conn.Close()
	}
}

// Shutdown releases timers owned by the session in addition to
// disconnecting. The session is not reusable afterwards.
func (s *Session) Shutdown() {
	s.Disconnect()
	s.policy.Stop()
}

// HandleForeground reconnects when the hosting surface becomes visible
// again and the session is not already open. Enablement and credential
// validity checks are the caller's (Manager's) concern.
func (s *Session) HandleForeground() {
	s.mu.Lock()
	open := s.state == types.StateOpen
	s.mu.Unlock()
	if !open {
		s.Connect()
	}
}

// State returns the current connection state.
func (s *Session) State() types.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastEvent returns the most recently decoded inbound event, if any.
func (s *Session) LastEvent() *types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEvent
}

// Status returns a snapshot for connection-status indicators.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:       s.state,
		Attempts:    s.policy.Attempts(),
		CircuitOpen: s.policy.CircuitOpen(),
		LastError:   s.lastErr,
	}
	if s.heartbeat != nil {
		st.LastHeartbeat = s.heartbeat.Last()
	}
	return st
}

// readLoop consumes one connection's events. Events from a connection the
// session no longer owns are ignored, which makes forced teardown (stale
// heartbeat, manual disconnect) race-free.
func (s *Session) readLoop(conn Conn) {
	for ev := range conn.Events() {
		switch ev.Kind {
		case TransportOpened:
			s.onOpen(conn)
		case TransportMessage:
			s.onMessage(conn, ev.Data)
		case TransportClosed:
			s.onClosed(conn, ev.Code, ev.Err)
			return
		}
	}
}

func (s *Session) owns(conn Conn) bool {
	return s.conn == conn
}

func (s *Session) onOpen(conn Conn) {
	s.mu.Lock()
	if !s.owns(conn) {
		s.mu.Unlock()
		return
	}
	s.state = types.StateOpen
	s.lastErr = ""
	s.mu.Unlock()

	slog.Info("connection opened", "transport", s.kind)
	s.policy.RecordSuccess()
	if s.heartbeat != nil {
		s.heartbeat.Start()
	}
}

func (s *Session) onMessage(conn Conn, data []byte) {
	s.mu.Lock()
	owned := s.owns(conn)
	s.mu.Unlock()
	if !owned {
		return
	}

	if s.heartbeat != nil {
		s.heartbeat.Signal()
	}

	ev, err := types.DecodeEvent(data)
	if err != nil {
		// A malformed payload is a message-level problem, not a reason to
		// tear the connection down.
		slog.Error("failed to parse server message", "transport", s.kind, "error", err)
		s.notifier.Error("Message Error", "Failed to parse server message")
		return
	}

	s.mu.Lock()
	s.lastEvent = ev
	if ev.Type == types.EventConnected {
		s.lastErr = ""
	}
	s.mu.Unlock()

	s.handler.HandleEvent(ev)
}

func (s *Session) onClosed(conn Conn, code int, err error) {
	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.owns(conn) {
		return
	}
	s.conn = nil
	s.state = types.StateClosed

	if s.manual {
		return
	}

	if s.kind == types.TransportSocket && TerminalCloseCode(code) {
		if code == CloseAuthFailed {
			s.lastErr = "authentication failed"
		} else {
			s.lastErr = "authorization failed"
		}
		slog.Error("terminal close code, not reconnecting", "code", code)
		return
	}

	if isTimeout(err) {
		slog.Info("connection timeout detected, reconnecting", "transport", s.kind)
		s.lastErr = "connection timeout - reconnecting"
	} else {
		s.lastErr = "connection error occurred"
		if err != nil {
			slog.Warn("connection closed", "transport", s.kind, "code", code, "error", err)
		}
	}

	s.scheduleRetryLocked()
}

// onStale is the heartbeat monitor's callback: tear the connection down
// without going through the close handler, then schedule exactly one
// reconnect using the current attempt count.
func (s *Session) onStale() {
	s.mu.Lock()
	if s.manual {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil
	s.state = types.StateClosed
	s.scheduleRetryLocked()
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// scheduleRetryLocked computes the backoff delay from the current attempt
// count, increments it, and arms the retry timer. The manual flag is
// checked again when the timer fires, so a disconnect issued while the
// timer is pending wins. Caller must hold s.mu.
func (s *Session) scheduleRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
	}

	attempt := s.policy.Attempts()
	delay := s.policy.Delay(attempt)
	s.policy.RecordFailure()

	slog.Info("scheduling reconnect", "transport", s.kind, "delay", delay, "attempt", attempt+1)
	s.retryTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		manual := s.manual
		s.mu.Unlock()
		if manual {
			return
		}
		s.Connect()
	})
}

// isTimeout classifies a close cause as a timeout for logging and the
// status indicator. Both paths schedule the same retry.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "no activity within") ||
		strings.Contains(msg, "deadline exceeded")
}
