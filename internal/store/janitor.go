package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically purges response-cache entries older than the
// retention window so the offline cache does not grow without bound.
type Janitor struct {
	store *Store
	ttl   time.Duration
	cron  *cron.Cron
}

// NewJanitor creates a Janitor that deletes cache rows older than ttl.
func NewJanitor(store *Store, ttl time.Duration) *Janitor {
	return &Janitor{
		store: store,
		ttl:   ttl,
		cron:  cron.New(),
	}
}

// Start registers the purge job under the given cron spec ("@hourly",
// "0 */6 * * *", ...) and starts the ticker.
func (j *Janitor) Start(spec string) error {
	_, err := j.cron.AddFunc(spec, j.purge)
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop stops the cron ticker.
func (j *Janitor) Stop() {
	j.cron.Stop()
}

func (j *Janitor) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := j.store.PurgeResponses(ctx, j.ttl)
	if err != nil {
		slog.Error("cache purge failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("purged expired cache entries", "removed", n, "ttl", j.ttl)
	}
}
