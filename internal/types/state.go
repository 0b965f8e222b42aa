// internal/types/state.go
package types

// ConnectionState is the normalized lifecycle state of a realtime session.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosed
)

// String returns the lowercase status name used in logs and status output.
func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "connected"
	case StateClosed:
		return "disconnected"
	default:
		return "unknown"
	}
}

// TransportKind selects which realtime channel a session uses.
type TransportKind int

const (
	// TransportStream is the unidirectional server-push channel (SSE).
	TransportStream TransportKind = iota
	// TransportSocket is the full-duplex websocket channel.
	TransportSocket
)

func (k TransportKind) String() string {
	switch k {
	case TransportStream:
		return "stream"
	case TransportSocket:
		return "socket"
	default:
		return "unknown"
	}
}
