package realtime

import (
	"context"
	"errors"
	"log/slog"

	"github.com/user/choresync/internal/store"
	"github.com/user/choresync/internal/types"
)

// CredentialChecker reports whether a usable credential exists.
type CredentialChecker interface {
	IsValid() bool
}

// Manager owns at most one live session per transport kind and the
// persisted per-kind enable flags.
//
// The flags deliberately default differently: the stream channel is off
// unless the stored flag reads "true", while the socket channel is on
// unless the stored flag reads "false".
type Manager struct {
	settings types.Settings
	auth     CredentialChecker
	sessions map[types.TransportKind]*Session
}

// NewManager creates a Manager over the given sessions.
func NewManager(settings types.Settings, auth CredentialChecker, sessions map[types.TransportKind]*Session) *Manager {
	return &Manager{
		settings: settings,
		auth:     auth,
		sessions: sessions,
	}
}

// Session returns the session for a kind, or nil when none is configured.
func (m *Manager) Session(kind types.TransportKind) *Session {
	return m.sessions[kind]
}

// Enabled reads the persisted enable flag for a transport kind.
func (m *Manager) Enabled(ctx context.Context, kind types.TransportKind) bool {
	key := store.KeySocketEnabled
	if kind == types.TransportStream {
		key = store.KeyStreamEnabled
	}
	value, err := m.settings.GetSetting(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("failed to read transport flag", "key", key, "error", err)
		}
		value = ""
	}
	if kind == types.TransportStream {
		return value == "true"
	}
	return value != "false"
}

// SeedFlags persists the configured enable values for flags that have never
// been set. A flag already in the store was an explicit runtime choice and
// wins over configuration.
func (m *Manager) SeedFlags(ctx context.Context, stream, socket bool) {
	seed := func(key string, enabled bool) {
		_, err := m.settings.GetSetting(ctx, key)
		if err == nil {
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("failed to read transport flag", "key", key, "error", err)
			return
		}
		value := "false"
		if enabled {
			value = "true"
		}
		if err := m.settings.SetSetting(ctx, key, value); err != nil {
			slog.Warn("failed to seed transport flag", "key", key, "error", err)
		}
	}
	seed(store.KeyStreamEnabled, stream)
	seed(store.KeySocketEnabled, socket)
}

// SetEnabled persists the flag and connects or disconnects the session
// accordingly. Connecting requires a valid credential.
func (m *Manager) SetEnabled(ctx context.Context, kind types.TransportKind, enabled bool) error {
	key := store.KeySocketEnabled
	if kind == types.TransportStream {
		key = store.KeyStreamEnabled
	}
	value := "false"
	if enabled {
		value = "true"
	}
	if err := m.settings.SetSetting(ctx, key, value); err != nil {
		return err
	}

	sess := m.sessions[kind]
	if sess == nil {
		return nil
	}
	if enabled && m.auth.IsValid() {
		return sess.Connect()
	}
	sess.Disconnect()
	return nil
}

// Start connects every enabled session with a valid credential. Called once
// at startup, mirroring the auto-connect on mount.
func (m *Manager) Start(ctx context.Context) {
	for kind, sess := range m.sessions {
		if m.Enabled(ctx, kind) && m.auth.IsValid() {
			if err := sess.Connect(); err != nil {
				slog.Warn("initial connect rejected", "transport", kind, "error", err)
			}
		}
	}
}

// HandleForeground reconnects enabled, credentialed sessions that are not
// open, for hosts that can observe visibility transitions.
func (m *Manager) HandleForeground(ctx context.Context) {
	for kind, sess := range m.sessions {
		if m.Enabled(ctx, kind) && m.auth.IsValid() {
			sess.HandleForeground()
		}
	}
}

// Shutdown tears down every session and its timers.
func (m *Manager) Shutdown() {
	for _, sess := range m.sessions {
		sess.Shutdown()
	}
}
