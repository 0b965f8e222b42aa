package realtime

import (
	"sync"
	"time"

	"github.com/user/choresync/internal/types"
)

// Circuit breaker limits shared by both transports.
const (
	CircuitThreshold = 10
	CircuitCooldown  = 10 * time.Minute
)

// Fixed backoff schedules, indexed by min(attempt, len-1).
var (
	streamSchedule = []time.Duration{
		2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second,
		6 * time.Minute, 10 * time.Minute, 15 * time.Minute,
	}
	socketSchedule = []time.Duration{
		1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second,
		30 * time.Second,
	}
)

// ReconnectPolicy maps an attempt count to a backoff delay and tracks the
// circuit breaker that halts reconnection after repeated failures.
type ReconnectPolicy struct {
	Schedule  []time.Duration
	Threshold int
	Cooldown  time.Duration

	mu              sync.Mutex
	attempts        int
	circuitOpen     bool
	circuitOpenedAt time.Time
	resetTimer      *time.Timer
}

// NewReconnectPolicy returns the policy for a transport kind with the fixed
// schedule and breaker limits. Fields may be overridden before first use.
func NewReconnectPolicy(kind types.TransportKind) *ReconnectPolicy {
	schedule := socketSchedule
	if kind == types.TransportStream {
		schedule = streamSchedule
	}
	return &ReconnectPolicy{
		Schedule:  schedule,
		Threshold: CircuitThreshold,
		Cooldown:  CircuitCooldown,
	}
}

// Delay returns the backoff delay for the given attempt count. Attempts past
// the end of the schedule reuse the final delay.
func (p *ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(p.Schedule) {
		attempt = len(p.Schedule) - 1
	}
	return p.Schedule[attempt]
}

// Attempts returns the consecutive failed attempt count.
func (p *ReconnectPolicy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// RecordFailure increments the consecutive failure count.
func (p *ReconnectPolicy) RecordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
}

// RecordSuccess resets the failure count after a session reaches Open.
func (p *ReconnectPolicy) RecordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = 0
}

// CircuitOpen reports whether the breaker is currently rejecting connects.
func (p *ReconnectPolicy) CircuitOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.circuitOpen
}

// Exhausted reports whether the failure count has reached the breaker
// threshold.
func (p *ReconnectPolicy) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts >= p.Threshold
}

// Trip opens the circuit and schedules the automatic reset that clears the
// breaker and the attempt count after the cooldown.
func (p *ReconnectPolicy) Trip() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.circuitOpen {
		return
	}
	p.circuitOpen = true
	p.circuitOpenedAt = time.Now()
	p.resetTimer = time.AfterFunc(p.Cooldown, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.circuitOpen = false
		p.attempts = 0
	})
}

// Stop cancels a pending breaker reset timer. Called on session shutdown.
func (p *ReconnectPolicy) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resetTimer != nil {
		p.resetTimer.Stop()
		p.resetTimer = nil
	}
}
