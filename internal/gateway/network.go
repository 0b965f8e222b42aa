package gateway

import (
	"log/slog"
	"sync"
	"time"
)

// NetworkMonitor tracks whether the backend is reachable. Reachability is
// inferred from request outcomes rather than probed: a 503 or a transport
// error marks the client offline, a later success marks it back online.
type NetworkMonitor struct {
	mu           sync.Mutex
	online       bool
	offlineSince time.Time
	statusSubs   []func(online bool)
	syncSubs     []func(replayed int)
}

func NewNetworkMonitor() *NetworkMonitor {
	return &NetworkMonitor{online: true}
}

// Online reports the last known reachability.
func (n *NetworkMonitor) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

// OfflineSince returns when the client last went offline, or the zero time
// when it is online.
func (n *NetworkMonitor) OfflineSince() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.offlineSince
}

// OnStatusChange registers a callback invoked whenever reachability flips.
func (n *NetworkMonitor) OnStatusChange(fn func(online bool)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusSubs = append(n.statusSubs, fn)
}

// OnQueueSync registers a callback invoked after queued writes are replayed.
func (n *NetworkMonitor) OnQueueSync(fn func(replayed int)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.syncSubs = append(n.syncSubs, fn)
}

// SetOnline records a reachability observation. Flipping from offline to
// online returns true so the caller can kick off queue replay.
func (n *NetworkMonitor) SetOnline(online bool) bool {
	n.mu.Lock()
	if n.online == online {
		n.mu.Unlock()
		return false
	}
	n.online = online
	if online {
		slog.Info("network restored", "offline_for", time.Since(n.offlineSince).Round(time.Second))
		n.offlineSince = time.Time{}
	} else {
		n.offlineSince = time.Now()
		slog.Warn("network unreachable, entering offline mode")
	}
	subs := make([]func(bool), len(n.statusSubs))
	copy(subs, n.statusSubs)
	n.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
	return online
}

// NotifySynced fans the replay result out to queue-sync subscribers.
func (n *NetworkMonitor) NotifySynced(replayed int) {
	n.mu.Lock()
	subs := make([]func(int), len(n.syncSubs))
	copy(subs, n.syncSubs)
	n.mu.Unlock()

	for _, fn := range subs {
		fn(replayed)
	}
}
