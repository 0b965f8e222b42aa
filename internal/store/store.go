package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/choresync/internal/types"
)

// ErrNotFound is returned when a cache, queue, or settings key is absent.
var ErrNotFound = errors.New("not found")

// Settings keys owned by the sync client and gateway.
const (
	KeyStreamEnabled   = "stream_enabled"
	KeySocketEnabled   = "socket_enabled"
	KeyToken           = "token"
	KeyTokenExpiration = "token_expiration"
	KeyBaseURLOverride = "base_url_override"
)

const schema = `
CREATE TABLE IF NOT EXISTS response_cache (
	key INTEGER PRIMARY KEY,
	value TEXT NOT NULL,
	saved_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS request_queue (
	id INTEGER PRIMARY KEY,
	url TEXT NOT NULL,
	options TEXT NOT NULL,
	queued_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is the process-wide persistent key-value store backing the response
// cache, the durable request queue, and small settings flags.
type Store struct {
	db *sql.DB
}

// Open creates or opens the sqlite database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveResponse writes a decoded response body under the request fingerprint,
// replacing any previous entry for the same key.
func (s *Store) SaveResponse(ctx context.Context, key uint32, body json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO response_cache(key, value, saved_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, saved_at=excluded.saved_at
`, int64(key), string(body), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	return nil
}

// GetResponse returns the cached body for the fingerprint. A ttl of zero
// means entries never expire; an expired entry is deleted and reported as
// ErrNotFound.
func (s *Store) GetResponse(ctx context.Context, key uint32, ttl time.Duration) (json.RawMessage, error) {
	var value string
	var savedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, saved_at FROM response_cache WHERE key = ?`, int64(key),
	).Scan(&value, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get response: %w", err)
	}

	if ttl > 0 && time.Since(time.UnixMilli(savedAt)) > ttl {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM response_cache WHERE key = ?`, int64(key)); err != nil {
			return nil, fmt.Errorf("delete expired response: %w", err)
		}
		return nil, ErrNotFound
	}
	return json.RawMessage(value), nil
}

// PurgeResponses deletes cache entries older than the retention window and
// returns how many rows were removed.
func (s *Store) PurgeResponses(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM response_cache WHERE saved_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge responses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge responses: %w", err)
	}
	return n, nil
}

// EnqueueRequest durably stores a mutation for later replay. A second
// enqueue with the same fingerprint overwrites the first, so identical
// offline retries collapse to one queue row.
func (s *Store) EnqueueRequest(ctx context.Context, req *types.QueuedRequest) error {
	queuedAt := req.QueuedAt
	if queuedAt.IsZero() {
		queuedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO request_queue(id, url, options, queued_at) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET url=excluded.url, options=excluded.options, queued_at=excluded.queued_at
`, int64(req.ID), req.URL, string(req.Options), queuedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("enqueue request: %w", err)
	}
	return nil
}

// PendingRequests returns all queued mutations in enqueue order.
func (s *Store) PendingRequests(ctx context.Context) ([]*types.QueuedRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, options, queued_at FROM request_queue ORDER BY queued_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list queued requests: %w", err)
	}
	defer rows.Close()

	var reqs []*types.QueuedRequest
	for rows.Next() {
		var id, queuedAt int64
		var url, options string
		if err := rows.Scan(&id, &url, &options, &queuedAt); err != nil {
			return nil, fmt.Errorf("scan queued request: %w", err)
		}
		reqs = append(reqs, &types.QueuedRequest{
			ID:       uint32(id),
			URL:      url,
			Options:  []byte(options),
			QueuedAt: time.UnixMilli(queuedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queued requests: %w", err)
	}
	return reqs, nil
}

// DeleteRequest removes a queue entry. Deleting an absent id is a no-op.
func (s *Store) DeleteRequest(ctx context.Context, id uint32) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM request_queue WHERE id = ?`, int64(id)); err != nil {
		return fmt.Errorf("delete queued request: %w", err)
	}
	return nil
}

// QueueSize returns the number of pending queued mutations.
func (s *Store) QueueSize(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM request_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue size: %w", err)
	}
	return n, nil
}

// GetSetting returns the value for a settings key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting writes a settings key, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings(key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value
`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes a settings key. Absent keys are a no-op.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}
