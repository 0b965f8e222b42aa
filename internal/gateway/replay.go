package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// replayConcurrency bounds how many queued mutations are in flight at once
// during a replay pass.
const replayConcurrency = 4

// ReplayQueue drains the durable write queue after connectivity returns.
// Each entry is sent once with a fresh bearer token and then removed,
// whether or not the server accepted it; a mutation the server rejects now
// will reject identically on every future pass. The pass aborts early if
// the network drops again.
func (g *Gateway) ReplayQueue(ctx context.Context) {
	pending, err := g.queue.PendingRequests(ctx)
	if err != nil {
		slog.Warn("failed to load queued requests", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	runID := uuid.NewString()
	slog.Info("replaying queued requests", "run", runID, "count", len(pending))

	sem := semaphore.NewWeighted(replayConcurrency)
	attempted := 0
	for _, req := range pending {
		if !g.network.Online() || ctx.Err() != nil {
			slog.Warn("replay interrupted", "run", runID, "attempted", attempted, "pending", len(pending))
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		attempted++
		req := req
		go func() {
			defer sem.Release(1)
			g.replayOne(ctx, runID, req.ID, req.URL, req.Options)
		}()
	}
	// Wait for in-flight sends before reporting.
	if err := sem.Acquire(context.Background(), replayConcurrency); err == nil {
		sem.Release(replayConcurrency)
	}

	g.network.NotifySynced(attempted)
}

func (g *Gateway) replayOne(ctx context.Context, runID string, id uint32, url string, encoded []byte) {
	var opts Options
	if err := json.Unmarshal(encoded, &opts); err != nil {
		slog.Warn("dropping undecodable queued request", "run", runID, "id", id, "error", err)
		g.remove(id)
		return
	}

	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}

	var body *bytes.Reader
	if opts.Body != nil {
		payload, err := json.Marshal(opts.Body)
		if err != nil {
			slog.Warn("dropping queued request with unserializable body", "run", runID, "id", id, "error", err)
			g.remove(id)
			return
		}
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		slog.Warn("dropping malformed queued request", "run", runID, "id", id, "error", err)
		g.remove(id)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.auth.Token())
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		slog.Warn("queued request failed on replay", "run", runID, "id", id, "url", url, "error", err)
		g.network.SetOnline(false)
		g.remove(id)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Warn("server rejected replayed request", "run", runID, "id", id, "url", url, "status", resp.StatusCode)
	} else {
		slog.Info("replayed queued request", "run", runID, "id", id, "url", url, "status", resp.StatusCode)
	}
	g.remove(id)
}

func (g *Gateway) remove(id uint32) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.queue.DeleteRequest(ctx, id); err != nil {
		slog.Warn("failed to remove queued request", "id", id, "error", err)
	}
}
