package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// apiPrefix is appended to the base URL for every REST and realtime path.
const apiPrefix = "/api/v1"

type Config struct {
	BaseURL        string `json:"base_url"`
	DataDir        string `json:"data_dir"`
	LogLevel       string `json:"log_level"`
	RequestTimeout int    `json:"request_timeout_seconds"`
	CacheTTLDays   int    `json:"cache_ttl_days"`
	JanitorSpec    string `json:"janitor_spec"`
	Stream         struct {
		Enabled bool `json:"enabled"`
	} `json:"stream"`
	Socket struct {
		Enabled bool `json:"enabled"`
	} `json:"socket"`
	Telegram struct {
		Token  string `json:"token"`
		ChatID int64  `json:"chat_id"`
	} `json:"telegram"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		BaseURL: "http://localhost:2021",
		DataDir: filepath.Join(os.Getenv("HOME"), ".choresync"),
	}
	cfg.LogLevel = "info"
	cfg.RequestTimeout = 30
	cfg.CacheTTLDays = 7
	cfg.JanitorSpec = "@hourly"
	// The stream channel is opt-in while the socket channel is opt-out.
	cfg.Stream.Enabled = false
	cfg.Socket.Enabled = true

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if baseURL := os.Getenv("CHORESYNC_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if tgToken := os.Getenv("CHORESYNC_TELEGRAM_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}

	return cfg, nil
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}

// APIBase returns the versioned API root, honoring a non-empty override
// (typically the base_url_override setting from the persistent store).
func (c *Config) APIBase(override string) string {
	base := c.BaseURL
	if override != "" {
		base = override
	}
	return strings.TrimSuffix(base, "/") + apiPrefix
}

// StreamURL returns the SSE endpoint for the given API base.
func StreamURL(apiBase string) string {
	return apiBase + "/realtime/sse"
}

// SocketURL converts the API base to a websocket URL for the realtime
// endpoint. The token is carried as a query parameter because the socket
// transport cannot send custom headers.
func SocketURL(apiBase, token string) string {
	u := apiBase
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	default:
		u = "ws://" + u
	}
	return u + "/realtime/ws?token=" + url.QueryEscape(token)
}

// Timeout returns the gateway request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.RequestTimeout) * time.Second
}

// CacheTTL returns the response-cache retention window.
func (c *Config) CacheTTL() time.Duration {
	if c.CacheTTLDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.CacheTTLDays) * 24 * time.Hour
}
