package dispatch

import (
	"encoding/json"
	"reflect"
	"sync"
	"testing"

	"github.com/user/choresync/internal/types"
)

type noticeLog struct {
	mu        sync.Mutex
	infos     []string
	successes []string
	errors    []string
}

func (n *noticeLog) Info(title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, message)
}

func (n *noticeLog) Success(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
}

func (n *noticeLog) Error(title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func event(t *testing.T, typ string, data any) *types.Event {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	return &types.Event{Type: typ, Data: raw}
}

func choreEvent(t *testing.T, typ string, chore types.Chore, actor *types.EventActor) *types.Event {
	return event(t, typ, types.ChorePayload{Chore: chore, User: actor})
}

func TestChoreCreatedUpserts(t *testing.T) {
	cache := NewMemoryCache()
	d := New(cache, &noticeLog{})

	d.HandleEvent(choreEvent(t, types.EventChoreCreated, types.Chore{ID: 1, Name: "Dishes", FrequencyType: "daily"}, nil))

	if got, ok := cache.GetChore(1); !ok || got.Name != "Dishes" {
		t.Errorf("chore not upserted: %+v %v", got, ok)
	}
}

func TestChoreUpdatedIsIdempotent(t *testing.T) {
	cache := NewMemoryCache()
	d := New(cache, &noticeLog{})

	ev := choreEvent(t, types.EventChoreUpdated, types.Chore{ID: 2, Name: "Laundry", FrequencyType: "weekly"}, nil)
	d.HandleEvent(ev)
	once := cache.ListChores()
	cache.DetailStale(2)

	d.HandleEvent(ev)
	twice := cache.ListChores()

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("applying the same event twice changed the cache: %+v vs %+v", once, twice)
	}
	if !cache.DetailStale(2) {
		t.Error("chore.updated must invalidate the detail view")
	}
}

func TestCompletedOneTimeChoreIsRemoved(t *testing.T) {
	cache := NewMemoryCache()
	d := New(cache, &noticeLog{})

	cache.UpsertChore(types.Chore{ID: 3, Name: "Build shelf", FrequencyType: types.FrequencyOnce})
	d.HandleEvent(choreEvent(t, types.EventChoreCompleted, types.Chore{ID: 3, Name: "Build shelf", FrequencyType: types.FrequencyOnce}, nil))

	if _, ok := cache.GetChore(3); ok {
		t.Error("completed one-time chore must leave the list")
	}
}

func TestCompletedRepeatingChoreUpdatesInPlace(t *testing.T) {
	cache := NewMemoryCache()
	d := New(cache, &noticeLog{})

	cache.UpsertChore(types.Chore{ID: 4, Name: "Dishes", FrequencyType: "daily", Status: "due"})
	d.HandleEvent(choreEvent(t, types.EventChoreCompleted, types.Chore{ID: 4, Name: "Dishes", FrequencyType: "daily", Status: "done"}, nil))

	got, ok := cache.GetChore(4)
	if !ok {
		t.Fatal("repeating chore must stay on the list")
	}
	if got.Status != "done" {
		t.Errorf("expected in-place update, got %+v", got)
	}
}

func TestChoreDeletedRemoves(t *testing.T) {
	cache := NewMemoryCache()
	d := New(cache, &noticeLog{})

	cache.UpsertChore(types.Chore{ID: 5, Name: "Water plants"})
	d.HandleEvent(event(t, types.EventChoreDeleted, types.ChorePayload{ChoreID: 5}))

	if _, ok := cache.GetChore(5); ok {
		t.Error("deleted chore still cached")
	}

	// Deleting again is a no-op.
	d.HandleEvent(event(t, types.EventChoreDeleted, types.ChorePayload{ChoreID: 5}))
}

func TestSubtaskInvalidatesDetail(t *testing.T) {
	cache := NewMemoryCache()
	d := New(cache, &noticeLog{})

	d.HandleEvent(event(t, types.EventSubtaskCompleted, types.SubtaskPayload{ChoreID: 6}))

	if !cache.DetailStale(6) {
		t.Error("subtask event must invalidate the parent detail view")
	}
	if cache.HistoryStale() {
		t.Error("history must stay fresh without history tracking")
	}
}

func TestHistoryTrackingVariant(t *testing.T) {
	cache := NewMemoryCache()
	d := New(cache, &noticeLog{}, WithHistoryTracking())

	d.HandleEvent(event(t, types.EventSubtaskUpdated, types.SubtaskPayload{ChoreID: 7}))
	if !cache.HistoryStale() {
		t.Error("subtask event must invalidate history in the tracking variant")
	}

	d.HandleEvent(choreEvent(t, types.EventChoreSkipped, types.Chore{ID: 8, Name: "Vacuum"}, nil))
	if !cache.HistoryStale() {
		t.Error("chore event must invalidate history in the tracking variant")
	}
}

func TestActorNotificationSuppression(t *testing.T) {
	cache := NewMemoryCache()
	notices := &noticeLog{}
	d := New(cache, notices)
	d.SetLocalUser(11)

	// Local user's own action: no notification.
	d.HandleEvent(choreEvent(t, types.EventChoreCompleted,
		types.Chore{ID: 9, Name: "Dishes", FrequencyType: "daily"},
		&types.EventActor{ID: 11, DisplayName: "Me"}))
	if len(notices.infos) != 0 {
		t.Errorf("own action must not notify: %v", notices.infos)
	}

	// Someone else's action notifies.
	d.HandleEvent(choreEvent(t, types.EventChoreCompleted,
		types.Chore{ID: 9, Name: "Dishes", FrequencyType: "daily"},
		&types.EventActor{ID: 12, DisplayName: "Jane"}))
	if len(notices.infos) != 1 {
		t.Fatalf("expected one notification, got %v", notices.infos)
	}
	if notices.infos[0] != `Jane completed "Dishes"` {
		t.Errorf("unexpected notification text: %s", notices.infos[0])
	}
}

func TestConnectionEstablishedNotifiesSuccess(t *testing.T) {
	notices := &noticeLog{}
	d := New(NewMemoryCache(), notices)

	d.HandleEvent(&types.Event{Type: types.EventConnected})
	if len(notices.successes) != 1 {
		t.Errorf("expected success notice, got %v", notices.successes)
	}
}

func TestErrorEventSurfacesMessage(t *testing.T) {
	notices := &noticeLog{}
	d := New(NewMemoryCache(), notices)

	d.HandleEvent(event(t, types.EventError, types.ErrorPayload{Message: "server side failure"}))
	if len(notices.errors) != 1 || notices.errors[0] != "server side failure" {
		t.Errorf("expected carried error message, got %v", notices.errors)
	}
}

func TestUnknownAndHeartbeatAreDropped(t *testing.T) {
	cache := NewMemoryCache()
	notices := &noticeLog{}
	d := New(cache, notices)

	d.HandleEvent(&types.Event{Type: "mystery.event", Data: []byte(`{}`)})
	d.HandleEvent(&types.Event{Type: types.EventHeartbeat})

	if len(cache.ListChores()) != 0 || len(notices.infos)+len(notices.errors) != 0 {
		t.Error("unknown and heartbeat events must have no cache or notice effect")
	}
}
