package realtime

import (
	"context"

	"github.com/user/choresync/internal/types"
)

// TransportEventKind tags the events a connection emits.
type TransportEventKind int

const (
	// TransportOpened signals the channel is established and pushing.
	TransportOpened TransportEventKind = iota
	// TransportMessage carries one raw {type, data} message body.
	TransportMessage
	// TransportClosed is terminal for a connection. Code carries the socket
	// close code when one exists; Err the failure, nil on clean close.
	TransportClosed
)

// TransportEvent is the tagged union a Conn delivers to the session loop.
// Modeling the callbacks as a channel of these keeps the state machine
// testable without a network.
type TransportEvent struct {
	Kind TransportEventKind
	Data []byte
	Code int
	Err  error
}

// Conn is one live realtime connection. The Events channel is closed after
// a TransportClosed event is delivered.
type Conn interface {
	Events() <-chan TransportEvent
	Close() error
}

// Transport dials realtime connections of one kind. Dial returns
// immediately; connection progress arrives on the Conn's event channel.
type Transport interface {
	Kind() types.TransportKind
	Dial(ctx context.Context, url, token string) (Conn, error)
}
