package realtime

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/user/choresync/internal/types"
)

// StreamTransport is the unidirectional server-push channel: one long-lived
// GET carrying newline-delimited events, authenticated with a bearer header.
type StreamTransport struct {
	// Client must not set an overall timeout; the request is long-lived.
	Client *http.Client
}

// NewStreamTransport creates the SSE transport with a default client.
func NewStreamTransport() *StreamTransport {
	return &StreamTransport{Client: &http.Client{}}
}

func (t *StreamTransport) Kind() types.TransportKind {
	return types.TransportStream
}

// Dial starts the streaming request. The returned Conn emits Opened once
// the server responds 200, then one Message per event.
func (t *StreamTransport) Dial(ctx context.Context, url, token string) (Conn, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	c := &streamConn{
		events: make(chan TransportEvent, 16),
		cancel: cancel,
	}
	go c.run(t.Client, req)
	return c, nil
}

type streamConn struct {
	events chan TransportEvent
	cancel context.CancelFunc
	once   sync.Once
}

func (c *streamConn) Events() <-chan TransportEvent {
	return c.events
}

// Close cancels the request context, which unblocks the read loop.
func (c *streamConn) Close() error {
	c.once.Do(c.cancel)
	return nil
}

func (c *streamConn) run(client *http.Client, req *http.Request) {
	defer close(c.events)

	resp, err := client.Do(req)
	if err != nil {
		c.events <- TransportEvent{Kind: TransportClosed, Err: err}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.events <- TransportEvent{Kind: TransportClosed, Err: fmt.Errorf("stream endpoint returned %d", resp.StatusCode)}
		return
	}
	c.events <- TransportEvent{Kind: TransportOpened}

	// Minimal SSE parse: accumulate data: lines, dispatch on blank line.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				c.events <- TransportEvent{Kind: TransportMessage, Data: []byte(strings.Join(data, "\n"))}
				data = data[:0]
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// comment / keepalive line
		default:
			// event:/id:/retry: fields are unused by this protocol
		}
	}
	if len(data) > 0 {
		c.events <- TransportEvent{Kind: TransportMessage, Data: []byte(strings.Join(data, "\n"))}
	}

	err = scanner.Err()
	if err == nil {
		err = fmt.Errorf("stream ended")
	}
	c.events <- TransportEvent{Kind: TransportClosed, Err: err}
}
