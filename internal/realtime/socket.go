package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/choresync/internal/types"
)

// Close codes the server uses to signal terminal auth failures. Neither
// must trigger a reconnect.
const (
	CloseAuthFailed   = 4000
	CloseUnauthorized = 4001
)

const socketWriteDeadline = 10 * time.Second

// TerminalCloseCode reports whether a socket close code means the credential
// is bad and retrying is pointless.
func TerminalCloseCode(code int) bool {
	return code == CloseAuthFailed || code == CloseUnauthorized
}

// SocketTransport is the full-duplex websocket channel. The endpoint cannot
// read custom headers, so the token rides in the URL query string.
type SocketTransport struct {
	Dialer *websocket.Dialer
}

// NewSocketTransport creates the websocket transport with the default dialer.
func NewSocketTransport() *SocketTransport {
	return &SocketTransport{Dialer: websocket.DefaultDialer}
}

func (t *SocketTransport) Kind() types.TransportKind {
	return types.TransportSocket
}

// Dial connects to the websocket endpoint. The url must already carry the
// token query parameter.
func (t *SocketTransport) Dial(ctx context.Context, url, _ string) (Conn, error) {
	c := &socketConn{
		events: make(chan TransportEvent, 16),
	}
	go c.run(ctx, t.Dialer, url)
	return c, nil
}

type socketConn struct {
	events chan TransportEvent

	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool
}

func (c *socketConn) Events() <-chan TransportEvent {
	return c.events
}

// Close sends a normal-closure frame and closes the connection.
func (c *socketConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.ws == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "manual disconnect")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(socketWriteDeadline))
	return c.ws.Close()
}

func (c *socketConn) run(ctx context.Context, dialer *websocket.Dialer, url string) {
	defer close(c.events)

	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.events <- TransportEvent{Kind: TransportClosed, Err: err}
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		c.events <- TransportEvent{Kind: TransportClosed}
		return
	}
	c.ws = ws
	c.mu.Unlock()

	c.events <- TransportEvent{Kind: TransportOpened}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			var code int
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
				if code == websocket.CloseNormalClosure {
					err = nil
				}
			}
			c.events <- TransportEvent{Kind: TransportClosed, Code: code, Err: err}
			return
		}
		c.events <- TransportEvent{Kind: TransportMessage, Data: data}
	}
}
