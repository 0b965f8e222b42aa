// Package notify fans user-facing notices out to registered sinks. The
// dispatcher and session report through this interface instead of touching
// any UI layer directly.
package notify

import (
	"log/slog"
	"sync"
)

// Notifier receives user-facing notices from the sync client and gateway.
type Notifier interface {
	Info(title, message string)
	Success(message string)
	Error(title, message string)
}

// LogNotifier writes notices to the structured log. It is the default sink
// when no UI is attached.
type LogNotifier struct{}

func (LogNotifier) Info(title, message string) {
	slog.Info("notification", "title", title, "message", message)
}

func (LogNotifier) Success(message string) {
	slog.Info("notification", "message", message)
}

func (LogNotifier) Error(title, message string) {
	slog.Warn("notification", "title", title, "message", message)
}

// Registry fans notices out to every registered sink.
type Registry struct {
	mu    sync.RWMutex
	sinks []Notifier
}

// NewRegistry creates an empty notification registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a sink. Registration order is delivery order.
func (r *Registry) Register(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, n)
}

func (r *Registry) Info(title, message string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.sinks {
		n.Info(title, message)
	}
}

func (r *Registry) Success(message string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.sinks {
		n.Success(message)
	}
}

func (r *Registry) Error(title, message string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.sinks {
		n.Error(title, message)
	}
}
