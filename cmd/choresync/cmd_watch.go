package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/choresync/internal/auth"
	"github.com/user/choresync/internal/config"
	"github.com/user/choresync/internal/dispatch"
	"github.com/user/choresync/internal/gateway"
	"github.com/user/choresync/internal/notify"
	"github.com/user/choresync/internal/realtime"
	"github.com/user/choresync/internal/store"
	"github.com/user/choresync/internal/types"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the sync client until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	return store.Open(ctx, filepath.Join(cfg.DataDir, "choresync.db"))
}

// apiBase resolves the versioned API root, honoring a stored override.
func apiBase(ctx context.Context, cfg *config.Config, settings types.Settings) string {
	override, err := settings.GetSetting(ctx, store.KeyBaseURLOverride)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("failed to read base url override", "error", err)
	}
	return cfg.APIBase(override)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	// Everything that resolves URLs reads the config through this pointer so
	// a hot reload can swap the base URL at runtime.
	var current atomic.Pointer[config.Config]
	current.Store(cfg)

	// Auth. The refresh func needs the manager's own token, so it is bound
	// after construction.
	var authMgr *auth.Manager
	refresh := func(ctx context.Context) (*types.Credential, error) {
		return refreshToken(ctx, apiBase(ctx, current.Load(), s), authMgr.Token())
	}
	authMgr, err = auth.NewManager(ctx, s, refresh)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	// Notifications
	notifier := notify.NewRegistry()
	notifier.Register(notify.LogNotifier{})
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			slog.Warn("telegram notifier disabled", "error", err)
		} else {
			notifier.Register(tg)
			slog.Info("telegram notifier enabled")
		}
	}

	// Dispatcher over the in-memory structured cache
	cache := dispatch.NewMemoryCache()
	dispatcher := dispatch.New(cache, notifier, dispatch.WithHistoryTracking())

	// Realtime sessions, one per transport kind
	streamSession := realtime.NewSession(
		realtime.NewStreamTransport(),
		func() (string, string, bool) {
			if !authMgr.IsValid() {
				return "", "", false
			}
			return config.StreamURL(apiBase(ctx, current.Load(), s)), authMgr.Token(), true
		},
		dispatcher, notifier,
	)
	socketSession := realtime.NewSession(
		realtime.NewSocketTransport(),
		func() (string, string, bool) {
			if !authMgr.IsValid() {
				return "", "", false
			}
			token := authMgr.Token()
			return config.SocketURL(apiBase(ctx, current.Load(), s), token), token, true
		},
		dispatcher, notifier,
	)
	rtMgr := realtime.NewManager(s, authMgr, map[types.TransportKind]*realtime.Session{
		types.TransportStream: streamSession,
		types.TransportSocket: socketSession,
	})

	// Gateway
	network := gateway.NewNetworkMonitor()
	network.OnStatusChange(func(online bool) {
		if online {
			notifier.Success("Back online, syncing queued changes")
		} else {
			notifier.Info("Offline", "Working from cached data; changes will be queued")
		}
	})
	network.OnQueueSync(func(replayed int) {
		if replayed > 0 {
			notifier.Success(fmt.Sprintf("Synced %d queued change(s)", replayed))
		}
	})
	client := &http.Client{Timeout: cfg.Timeout()}
	gw := gateway.New(authMgr, s, s, network, client,
		func() string { return apiBase(context.Background(), current.Load(), s) },
		cfg.CacheTTL(),
		func(path string) {
			notifier.Error("Login Required", "Session expired, sign in again to continue")
		},
	)

	// Seed the structured cache from the server (or from the response cache
	// when offline), and re-seed after connectivity returns since events
	// lost during the gap are not replayed.
	primeChores(ctx, gw, cache)
	network.OnStatusChange(func(online bool) {
		if online {
			primeChores(ctx, gw, cache)
		}
	})

	// Cache janitor
	janitor := store.NewJanitor(s, cfg.CacheTTL())
	if err := janitor.Start(cfg.JanitorSpec); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	defer janitor.Stop()

	// Config hot reload: log level, base URL, and the per-kind transport
	// flags apply without a restart.
	watcher, err := config.Watch(cfgPath, func(next *config.Config) {
		prev := current.Swap(next)
		setupLogging(next)
		if next.Stream.Enabled != prev.Stream.Enabled {
			if err := rtMgr.SetEnabled(ctx, types.TransportStream, next.Stream.Enabled); err != nil {
				slog.Warn("failed to apply stream flag", "error", err)
			}
		}
		if next.Socket.Enabled != prev.Socket.Enabled {
			if err := rtMgr.SetEnabled(ctx, types.TransportSocket, next.Socket.Enabled); err != nil {
				slog.Warn("failed to apply socket flag", "error", err)
			}
		}
		slog.Info("configuration reloaded",
			"log_level", next.LogLevel,
			"base_url", next.BaseURL,
			"stream_enabled", next.Stream.Enabled,
			"socket_enabled", next.Socket.Enabled,
		)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "error", err)
	} else {
		defer watcher.Stop()
	}

	// Configured flags fill in any transport flag never set at runtime.
	rtMgr.SeedFlags(ctx, cfg.Stream.Enabled, cfg.Socket.Enabled)
	rtMgr.Start(ctx)
	defer rtMgr.Shutdown()

	slog.Info("choresync started",
		"data_dir", cfg.DataDir,
		"base_url", cfg.BaseURL,
		"stream_enabled", rtMgr.Enabled(ctx, types.TransportStream),
		"socket_enabled", rtMgr.Enabled(ctx, types.TransportSocket),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")
	return nil
}

// primeChores loads the chore list through the gateway and mirrors it into
// the structured cache. While offline this is served from the response
// cache when available.
func primeChores(ctx context.Context, gw *gateway.Gateway, cache *dispatch.MemoryCache) {
	resp, err := gw.Execute(ctx, "/chores", gateway.Options{})
	if err != nil {
		slog.Warn("failed to load chores", "error", err)
		return
	}
	if resp.Status != http.StatusOK {
		slog.Warn("chore list request rejected", "status", resp.Status)
		return
	}

	var payload struct {
		Res []types.Chore `json:"res"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		slog.Warn("failed to decode chore list", "error", err)
		return
	}
	for _, chore := range payload.Res {
		cache.UpsertChore(chore)
	}
	slog.Info("chore cache primed", "count", len(payload.Res), "from_cache", resp.FromCache)
}

// refreshToken exchanges a still-valid token for a fresh one.
func refreshToken(ctx context.Context, apiBase, token string) (*types.Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/auth/refresh", nil)
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh token: status %d", resp.StatusCode)
	}

	var payload struct {
		Token  string    `json:"token"`
		Expire time.Time `json:"expire"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	if payload.Token == "" {
		return nil, fmt.Errorf("refresh response missing token")
	}
	return &types.Credential{Token: payload.Token, ExpiresAt: payload.Expire}, nil
}
