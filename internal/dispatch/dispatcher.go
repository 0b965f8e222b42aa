package dispatch

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/user/choresync/internal/notify"
	"github.com/user/choresync/internal/types"
)

// Dispatcher turns inbound events into cache commands. Applying the same
// event twice leaves the cache unchanged: upserts are keyed by id and
// removes of absent ids are no-ops.
type Dispatcher struct {
	cache    ChoreCache
	notifier notify.Notifier

	// trackHistory mirrors the richer transport variant, which also keeps
	// a bounded recent-activity view fresh.
	trackHistory bool

	mu          sync.Mutex
	localUserID int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHistoryTracking makes chore and subtask events also invalidate the
// recent-activity cache.
func WithHistoryTracking() Option {
	return func(d *Dispatcher) { d.trackHistory = true }
}

// New creates a Dispatcher writing to cache and surfacing notices through
// notifier.
func New(cache ChoreCache, notifier notify.Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{cache: cache, notifier: notifier}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetLocalUser records the signed-in user so their own actions don't ping
// them with notifications.
func (d *Dispatcher) SetLocalUser(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.localUserID = id
}

func (d *Dispatcher) localUser() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.localUserID
}

// HandleEvent applies one inbound event to the cache. Events are handled in
// delivery order; unknown tags are logged and dropped.
func (d *Dispatcher) HandleEvent(ev *types.Event) {
	switch ev.Type {
	case types.EventChoreCreated, types.EventChoreUpdated, types.EventChoreCompleted, types.EventChoreSkipped:
		d.handleChoreLifecycle(ev)

	case types.EventChoreDeleted:
		p, err := ev.ChorePayload()
		if err != nil {
			slog.Error("bad chore.deleted payload", "error", err)
			return
		}
		d.cache.RemoveChore(p.ChoreID)
		d.touchHistory()

	case types.EventSubtaskUpdated, types.EventSubtaskCompleted:
		p, err := ev.SubtaskPayload()
		if err != nil {
			slog.Error("bad subtask payload", "type", ev.Type, "error", err)
			return
		}
		d.cache.InvalidateDetail(p.ChoreID)
		d.touchHistory()

	case types.EventChoreStatus:
		slog.Debug("chore status event", "data", string(ev.Data))

	case types.EventConnected:
		slog.Info("realtime connection established")
		d.notifier.Success("You are now receiving real-time updates as they happen.")

	case types.EventError:
		p := ev.ErrorPayload()
		d.notifier.Error("Real-time Error", p.Message)

	case types.EventHeartbeat:
		// Liveness is tracked by the session; no cache effect.

	default:
		slog.Info("unknown event type", "type", ev.Type)
	}
}

func (d *Dispatcher) handleChoreLifecycle(ev *types.Event) {
	p, err := ev.ChorePayload()
	if err != nil {
		slog.Error("bad chore payload", "type", ev.Type, "error", err)
		return
	}
	chore := p.Chore

	if p.User != nil && p.User.ID != d.localUser() {
		action := strings.TrimPrefix(ev.Type, "chore.")
		d.notifier.Info(
			fmt.Sprintf("Task %s", action),
			fmt.Sprintf("%s %s %q", p.User.DisplayName, action, chore.Name),
		)
	}

	// A completed one-time chore leaves the list; everything else is an
	// upsert keyed by id.
	if ev.Type == types.EventChoreCompleted && !chore.Repeating() {
		d.cache.RemoveChore(chore.ID)
	} else {
		d.cache.UpsertChore(chore)
	}

	if ev.Type == types.EventChoreUpdated {
		d.cache.InvalidateDetail(chore.ID)
	}

	d.touchHistory()
}

func (d *Dispatcher) touchHistory() {
	if d.trackHistory {
		d.cache.InvalidateHistory()
	}
}
