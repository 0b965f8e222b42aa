// Package gateway wraps every outbound API call with offline detection,
// read caching, and durable queueing for writes. Reads served from cache
// while offline carry FromCache=true; writes issued offline come back as a
// *QueuedError so callers can show deferred completion instead of failure.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/user/choresync/internal/auth"
	"github.com/user/choresync/internal/types"
)

// ErrNoCachedData is returned for a read issued offline whose fingerprint
// has no cached response.
var ErrNoCachedData = errors.New("offline and no cached data for request")

// QueuedError reports that a mutation could not be sent and was durably
// queued instead. ID is the request fingerprint, stable across retries of
// the identical request.
type QueuedError struct {
	ID uint32
}

func (e *QueuedError) Error() string {
	return fmt.Sprintf("offline, request queued for replay (id %d)", e.ID)
}

// LoginRequiredError aborts a call made without a usable credential. Path
// records where the caller was so the application can return there after
// login.
type LoginRequiredError struct {
	Path string
}

func (e *LoginRequiredError) Error() string {
	return fmt.Sprintf("login required for %s", e.Path)
}

// Response is the normalized result of Execute.
type Response struct {
	Status    int
	Header    http.Header
	Body      json.RawMessage
	FromCache bool
}

// Gateway is the single entry point for REST calls.
type Gateway struct {
	auth    *auth.Manager
	cache   types.ResponseCache
	queue   types.RequestQueue
	network *NetworkMonitor
	client  *http.Client

	baseURL  func() string
	cacheTTL time.Duration
	onLogin  func(path string)
}

// New builds a Gateway. baseURL is resolved per call so a stored override
// takes effect without restarting. onLogin may be nil.
func New(a *auth.Manager, cache types.ResponseCache, queue types.RequestQueue, network *NetworkMonitor, client *http.Client, baseURL func() string, cacheTTL time.Duration, onLogin func(path string)) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Gateway{
		auth:     a,
		cache:    cache,
		queue:    queue,
		network:  network,
		client:   client,
		baseURL:  baseURL,
		cacheTTL: cacheTTL,
		onLogin:  onLogin,
	}
}

// Network exposes the connectivity monitor for status subscriptions.
func (g *Gateway) Network() *NetworkMonitor { return g.network }

// Execute performs one API call against path (relative to the configured
// base URL). While offline, reads are served from the response cache and
// mutations are queued; see ErrNoCachedData and QueuedError.
func (g *Gateway) Execute(ctx context.Context, path string, opts Options) (*Response, error) {
	if !g.auth.IsValid() {
		if g.onLogin != nil {
			g.onLogin(path)
		}
		return nil, &LoginRequiredError{Path: path}
	}

	url := g.resolve(path)
	key, encoded, err := Fingerprint(url, opts)
	if err != nil {
		return nil, err
	}

	resp, err := g.attempt(ctx, url, opts)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("request failed, taking offline path", "url", url, "error", err)
		g.network.SetOnline(false)
		return g.offline(ctx, url, key, encoded, opts)
	case resp.Status == http.StatusUnauthorized:
		g.auth.Clear()
		if g.onLogin != nil {
			g.onLogin(path)
		}
		return resp, nil
	case resp.Status == http.StatusServiceUnavailable || resp.Status == 0:
		g.network.SetOnline(false)
		return g.offline(ctx, url, key, encoded, opts)
	default:
		if resp.Status < 300 && len(resp.Body) > 0 {
			if err := g.cache.SaveResponse(ctx, key, resp.Body); err != nil {
				slog.Warn("failed to cache response", "url", url, "error", err)
			}
		}
		if g.network.SetOnline(true) {
			go g.ReplayQueue(context.Background())
		}
		return resp, nil
	}
}

// Upload performs a mutation whose body may be binary. It follows the same
// credential and 401 rules as Execute but bypasses JSON decoding, caching,
// and offline queueing.
func (g *Gateway) Upload(ctx context.Context, path string, method string, contentType string, body io.Reader) (*http.Response, error) {
	if !g.auth.IsValid() {
		if g.onLogin != nil {
			g.onLogin(path)
		}
		return nil, &LoginRequiredError{Path: path}
	}

	req, err := http.NewRequestWithContext(ctx, method, g.resolve(path), body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+g.auth.Token())

	resp, err := g.client.Do(req)
	if err != nil {
		g.network.SetOnline(false)
		return nil, fmt.Errorf("upload: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		g.auth.Clear()
		if g.onLogin != nil {
			g.onLogin(path)
		}
	}
	return resp, nil
}

// attempt performs the HTTP round trip and reads the body.
func (g *Gateway) attempt(ctx context.Context, url string, opts Options) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if opts.Body != nil {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("serialize request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.auth.Token())
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: payload}, nil
}

// offline serves a read from cache or queues a mutation.
func (g *Gateway) offline(ctx context.Context, url string, key uint32, encoded []byte, opts Options) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	if method == http.MethodGet {
		body, err := g.cache.GetResponse(ctx, key, g.cacheTTL)
		if err != nil {
			return nil, ErrNoCachedData
		}
		slog.Debug("serving cached response", "url", url, "key", key)
		return &Response{Status: http.StatusOK, Body: body, FromCache: true}, nil
	}

	req := &types.QueuedRequest{
		ID:       key,
		URL:      url,
		Options:  encoded,
		QueuedAt: time.Now(),
	}
	if err := g.queue.EnqueueRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("queue request: %w", err)
	}
	slog.Info("request queued for replay", "url", url, "id", key)
	return nil, &QueuedError{ID: key}
}

func (g *Gateway) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(g.baseURL(), "/") + "/" + strings.TrimPrefix(path, "/")
}
