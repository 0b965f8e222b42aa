package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/choresync/internal/types"
)

type fakeConn struct {
	events chan TransportEvent
	closed atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan TransportEvent, 16)}
}

func (c *fakeConn) Events() <-chan TransportEvent { return c.events }

func (c *fakeConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		close(c.events)
	}
	return nil
}

func (c *fakeConn) open() { c.events <- TransportEvent{Kind: TransportOpened} }

func (c *fakeConn) message(data string) {
	c.events <- TransportEvent{Kind: TransportMessage, Data: []byte(data)}
}

func (c *fakeConn) closeWith(code int, err error) {
	c.events <- TransportEvent{Kind: TransportClosed, Code: code, Err: err}
}

type fakeTransport struct {
	kind  types.TransportKind
	mu    sync.Mutex
	conns []*fakeConn
}

func (t *fakeTransport) Kind() types.TransportKind { return t.kind }

func (t *fakeTransport) Dial(_ context.Context, _, _ string) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := newFakeConn()
	t.conns = append(t.conns, c)
	return c, nil
}

func (t *fakeTransport) dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *fakeTransport) conn(i int) *fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[i]
}

func (t *fakeTransport) waitDials(tb testing.TB, n int) {
	tb.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for t.dials() < n {
		if time.Now().After(deadline) {
			tb.Fatalf("timed out waiting for %d dials, have %d", n, t.dials())
		}
		time.Sleep(time.Millisecond)
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*types.Event
}

func (r *eventRecorder) HandleEvent(ev *types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type noticeRecorder struct {
	mu     sync.Mutex
	errors []string
}

func (r *noticeRecorder) Info(title, message string) {}
func (r *noticeRecorder) Success(message string)     {}

func (r *noticeRecorder) Error(title, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, title)
}

func (r *noticeRecorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func okResolver() (string, string, bool) {
	return "https://h.example.com/api/v1/realtime/sse", "tok", true
}

func newTestSession(kind types.TransportKind) (*Session, *fakeTransport, *eventRecorder, *noticeRecorder) {
	transport := &fakeTransport{kind: kind}
	handler := &eventRecorder{}
	notices := &noticeRecorder{}
	sess := NewSession(transport, okResolver, handler, notices)
	// Tight backoff so retries land inside test deadlines.
	sess.Policy().Schedule = []time.Duration{5 * time.Millisecond}
	return sess, transport, handler, notices
}

func waitState(t *testing.T, sess *Session, want types.ConnectionState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for sess.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for state %v, have %v", want, sess.State())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSessionOpensAndResetsAttempts(t *testing.T) {
	sess, transport, _, _ := newTestSession(types.TransportStream)
	defer sess.Shutdown()

	sess.Policy().RecordFailure()
	sess.Policy().RecordFailure()

	if err := sess.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if sess.State() != types.StateConnecting {
		t.Errorf("expected connecting, got %v", sess.State())
	}

	transport.conn(0).open()
	waitState(t, sess, types.StateOpen)

	if got := sess.Policy().Attempts(); got != 0 {
		t.Errorf("expected attempts reset on open, got %d", got)
	}
}

func TestSessionConnectWhileOpenIsNoop(t *testing.T) {
	sess, transport, _, _ := newTestSession(types.TransportStream)
	defer sess.Shutdown()

	sess.Connect()
	transport.conn(0).open()
	waitState(t, sess, types.StateOpen)

	sess.Connect()
	if transport.dials() != 1 {
		t.Errorf("expected no second dial while open, got %d", transport.dials())
	}
}

func TestSessionDispatchesEvents(t *testing.T) {
	sess, transport, handler, notices := newTestSession(types.TransportStream)
	defer sess.Shutdown()

	sess.Connect()
	conn := transport.conn(0)
	conn.open()
	waitState(t, sess, types.StateOpen)

	conn.message(`{"type":"chore.updated","data":{"chore":{"id":1,"name":"Dishes"}}}`)

	deadline := time.Now().Add(5 * time.Second)
	for handler.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("event never dispatched")
		}
		time.Sleep(time.Millisecond)
	}
	if notices.errorCount() != 0 {
		t.Errorf("unexpected error notices: %d", notices.errorCount())
	}
	if ev := sess.LastEvent(); ev == nil || ev.Type != types.EventChoreUpdated {
		t.Errorf("last event not recorded: %+v", ev)
	}
}

func TestSessionMalformedMessageKeepsConnection(t *testing.T) {
	sess, transport, handler, notices := newTestSession(types.TransportStream)
	defer sess.Shutdown()

	sess.Connect()
	conn := transport.conn(0)
	conn.open()
	waitState(t, sess, types.StateOpen)

	conn.message(`{broken`)

	deadline := time.Now().Add(5 * time.Second)
	for notices.errorCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("decode failure never surfaced")
		}
		time.Sleep(time.Millisecond)
	}
	if sess.State() != types.StateOpen {
		t.Errorf("decode failure must not close the session, state %v", sess.State())
	}
	if handler.count() != 0 {
		t.Errorf("malformed message must not reach the handler")
	}
}

func TestSessionReconnectsAfterError(t *testing.T) {
	sess, transport, _, _ := newTestSession(types.TransportStream)
	defer sess.Shutdown()

	sess.Connect()
	conn := transport.conn(0)
	conn.open()
	waitState(t, sess, types.StateOpen)

	conn.closeWith(0, errors.New("connection reset"))

	transport.waitDials(t, 2)
	if got := sess.Policy().Attempts(); got != 1 {
		t.Errorf("expected one recorded failure, got %d", got)
	}
}

func TestManualDisconnectSuppressesPendingReconnect(t *testing.T) {
	sess, transport, _, _ := newTestSession(types.TransportStream)
	defer sess.Shutdown()

	// Make the pending retry slow enough to disconnect underneath it.
	sess.Policy().Schedule = []time.Duration{30 * time.Millisecond}

	sess.Connect()
	conn := transport.conn(0)
	conn.open()
	waitState(t, sess, types.StateOpen)

	conn.closeWith(0, errors.New("connection reset"))
	waitState(t, sess, types.StateClosed)

	sess.Disconnect()
	time.Sleep(100 * time.Millisecond)

	if transport.dials() != 1 {
		t.Errorf("manual disconnect must cancel the pending reconnect, got %d dials", transport.dials())
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	sess, transport, _, _ := newTestSession(types.TransportStream)

	sess.Connect()
	transport.conn(0).open()
	waitState(t, sess, types.StateOpen)

	sess.Disconnect()
	sess.Disconnect()
	if sess.State() != types.StateClosed {
		t.Errorf("expected closed, got %v", sess.State())
	}
}

func TestTerminalCloseCodesDoNotReconnect(t *testing.T) {
	for _, code := range []int{CloseAuthFailed, CloseUnauthorized} {
		sess, transport, _, _ := newTestSession(types.TransportSocket)

		sess.Connect()
		conn := transport.conn(0)
		conn.open()
		waitState(t, sess, types.StateOpen)

		conn.closeWith(code, errors.New("policy violation"))
		waitState(t, sess, types.StateClosed)

		time.Sleep(50 * time.Millisecond)
		if transport.dials() != 1 {
			t.Errorf("close code %d must not schedule a reconnect, got %d dials", code, transport.dials())
		}
		if got := sess.Policy().Attempts(); got != 0 {
			t.Errorf("close code %d must leave attempts unchanged, got %d", code, got)
		}
		sess.Shutdown()
	}
}

func TestCircuitBreakerRejectsAndRecovers(t *testing.T) {
	sess, transport, _, notices := newTestSession(types.TransportStream)
	defer sess.Shutdown()

	sess.Policy().Threshold = 2
	sess.Policy().Cooldown = 30 * time.Millisecond
	sess.Policy().RecordFailure()
	sess.Policy().RecordFailure()

	if err := sess.Connect(); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	if !sess.Policy().CircuitOpen() {
		t.Fatal("expected circuit open")
	}
	if err := sess.Connect(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if notices.errorCount() != 2 {
		t.Errorf("expected two user-facing notices, got %d", notices.errorCount())
	}
	if transport.dials() != 0 {
		t.Errorf("breaker must prevent dials, got %d", transport.dials())
	}

	deadline := time.Now().Add(5 * time.Second)
	for sess.Policy().CircuitOpen() {
		if time.Now().After(deadline) {
			t.Fatal("circuit never reset")
		}
		time.Sleep(time.Millisecond)
	}
	if got := sess.Policy().Attempts(); got != 0 {
		t.Fatalf("expected attempts cleared after cooldown, got %d", got)
	}
	if err := sess.Connect(); err != nil {
		t.Fatalf("connect after cooldown: %v", err)
	}
	transport.waitDials(t, 1)
}

func TestStaleHeartbeatForcesSingleReconnect(t *testing.T) {
	sess, transport, _, _ := newTestSession(types.TransportStream)
	defer sess.Shutdown()

	sess.SetHeartbeatLimits(5*time.Millisecond, 15*time.Millisecond)

	sess.Connect()
	conn := transport.conn(0)
	conn.open()
	waitState(t, sess, types.StateOpen)

	// No messages: the monitor must tear the session down and schedule
	// exactly one reconnect.
	transport.waitDials(t, 2)
	if !conn.closed.Load() {
		t.Error("stale connection was not closed")
	}
}

func TestResolverFailureAbortsSilently(t *testing.T) {
	transport := &fakeTransport{kind: types.TransportStream}
	sess := NewSession(transport, func() (string, string, bool) {
		return "", "", false
	}, &eventRecorder{}, &noticeRecorder{})
	defer sess.Shutdown()

	if err := sess.Connect(); err != nil {
		t.Fatalf("expected silent abort, got %v", err)
	}
	if transport.dials() != 0 {
		t.Errorf("expected no dial without credential, got %d", transport.dials())
	}
	if sess.State() != types.StateIdle {
		t.Errorf("expected idle state, got %v", sess.State())
	}
}
