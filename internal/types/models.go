// internal/types/models.go
package types

import "time"

// FrequencyOnce marks a chore that does not repeat. Completing such a chore
// removes it from the active list instead of rescheduling it.
const FrequencyOnce = "once"

// Chore is the domain entity mirrored in the structured cache.
type Chore struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	FrequencyType string     `json:"frequencyType,omitempty"`
	AssignedTo    int64      `json:"assignedTo,omitempty"`
	Status        string     `json:"status,omitempty"`
	NextDueDate   *time.Time `json:"nextDueDate,omitempty"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

// Repeating reports whether completing the chore leaves it on the list.
func (c Chore) Repeating() bool {
	return c.FrequencyType != "" && c.FrequencyType != FrequencyOnce
}

// Credential is a bearer token plus its expiry.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the token exists and has not expired at t.
func (c Credential) Valid(t time.Time) bool {
	return c.Token != "" && t.Before(c.ExpiresAt)
}

// QueuedRequest is a durably stored mutation awaiting replay.
type QueuedRequest struct {
	ID       uint32    `json:"id"`
	URL      string    `json:"url"`
	Options  []byte    `json:"options"`
	QueuedAt time.Time `json:"queuedAt"`
}
