// Package auth holds the bearer credential shared by the realtime client
// and the request gateway, and refreshes it proactively before it expires.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/user/choresync/internal/store"
	"github.com/user/choresync/internal/types"
)

// refreshWindow is how close to expiry a still-valid token triggers an
// opportunistic refresh.
const refreshWindow = 24 * time.Hour

// RefreshFunc exchanges the current credential for a fresh one.
type RefreshFunc func(ctx context.Context) (*types.Credential, error)

// Manager owns the bearer credential. The credential is mirrored into the
// settings store so it survives restarts.
type Manager struct {
	settings types.Settings
	refresh  RefreshFunc

	mu    sync.Mutex
	cred  types.Credential
	group singleflight.Group
}

// NewManager creates a Manager and loads any persisted credential from the
// settings store. The refresh func may be nil, in which case proactive
// refresh is skipped.
func NewManager(ctx context.Context, settings types.Settings, refresh RefreshFunc) (*Manager, error) {
	m := &Manager{settings: settings, refresh: refresh}

	token, err := settings.GetSetting(ctx, store.KeyToken)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load token: %w", err)
	}
	expiration, err := settings.GetSetting(ctx, store.KeyTokenExpiration)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load token expiration: %w", err)
	}
	if token != "" && expiration != "" {
		expiresAt, err := time.Parse(time.RFC3339, expiration)
		if err != nil {
			slog.Warn("discarding credential with unparsable expiration", "error", err)
		} else {
			m.cred = types.Credential{Token: token, ExpiresAt: expiresAt}
		}
	}
	return m, nil
}

// IsValid reports whether a usable credential is held. An expired credential
// is cleared from memory and the store. A credential expiring within 24h
// stays valid but kicks off a background refresh.
func (m *Manager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if m.cred.Token == "" {
		return false
	}
	if !m.cred.Valid(now) {
		m.clearLocked()
		return false
	}
	if m.refresh != nil && now.Add(refreshWindow).After(m.cred.ExpiresAt) {
		go m.refreshAsync()
	}
	return true
}

// Token returns the current bearer token, which may be empty.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred.Token
}

// SetCredential stores a new credential in memory and the settings store.
func (m *Manager) SetCredential(ctx context.Context, cred types.Credential) error {
	m.mu.Lock()
	m.cred = cred
	m.mu.Unlock()

	if err := m.settings.SetSetting(ctx, store.KeyToken, cred.Token); err != nil {
		return err
	}
	return m.settings.SetSetting(ctx, store.KeyTokenExpiration, cred.ExpiresAt.Format(time.RFC3339))
}

// Clear drops the credential from memory and the settings store. Used on
// expiry and on 401 responses.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *Manager) clearLocked() {
	m.cred = types.Credential{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.settings.DeleteSetting(ctx, store.KeyToken); err != nil {
		slog.Warn("failed to clear stored token", "error", err)
	}
	if err := m.settings.DeleteSetting(ctx, store.KeyTokenExpiration); err != nil {
		slog.Warn("failed to clear stored token expiration", "error", err)
	}
}

// refreshAsync runs the refresh func, deduplicating concurrent triggers.
// Failure is logged; the still-valid credential stays in place.
func (m *Manager) refreshAsync() {
	_, _, _ = m.group.Do("refresh", func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cred, err := m.refresh(ctx)
		if err != nil {
			slog.Warn("token refresh failed", "error", err)
			return nil, nil
		}
		if err := m.SetCredential(ctx, *cred); err != nil {
			slog.Warn("failed to persist refreshed token", "error", err)
		} else {
			slog.Info("token refreshed", "expires_at", cred.ExpiresAt)
		}
		return nil, nil
	})
}
