package realtime

import (
	"log/slog"
	"sync"
	"time"
)

// Default liveness limits for the stream transport. The socket transport
// relies on transport-level liveness and does not run this monitor.
const (
	HeartbeatCheckInterval = 60 * time.Second
	HeartbeatStaleAfter    = 150 * time.Second
)

// HeartbeatMonitor tracks the time of the last inbound message and fires a
// callback once when the connection goes quiet for longer than the staleness
// threshold. It runs only while a session is open.
type HeartbeatMonitor struct {
	interval  time.Duration
	staleness time.Duration
	onStale   func()

	mu      sync.Mutex
	last    time.Time
	stop    chan struct{}
	running bool
}

// NewHeartbeatMonitor creates a monitor checking every interval for a gap
// longer than staleness. onStale runs at most once per Start.
func NewHeartbeatMonitor(interval, staleness time.Duration, onStale func()) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		interval:  interval,
		staleness: staleness,
		onStale:   onStale,
	}
}

// Signal records an inbound message. Every message counts as liveness, not
// just explicit heartbeats.
func (h *HeartbeatMonitor) Signal() {
	h.mu.Lock()
	h.last = time.Now()
	h.mu.Unlock()
}

// Last returns the time of the most recent liveness signal.
func (h *HeartbeatMonitor) Last() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Start resets the liveness clock and begins periodic staleness checks.
// Restarting a running monitor resets its clock.
func (h *HeartbeatMonitor) Start() {
	h.mu.Lock()
	h.last = time.Now()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.stop = make(chan struct{})
	stop := h.stop
	h.mu.Unlock()

	go h.run(stop)
}

// Stop halts the checks. Idempotent.
func (h *HeartbeatMonitor) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.stop)
}

func (h *HeartbeatMonitor) run(stop chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.mu.Lock()
			gap := time.Since(h.last)
			h.mu.Unlock()

			if gap > h.staleness {
				slog.Warn("connection stale, forcing reconnect", "silent_for", gap.Round(time.Second))
				h.Stop()
				h.onStale()
				return
			}
		}
	}
}
