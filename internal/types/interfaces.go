// internal/types/interfaces.go
package types

import (
	"context"
	"encoding/json"
	"time"
)

type ResponseCache interface {
	SaveResponse(ctx context.Context, key uint32, body json.RawMessage) error
	GetResponse(ctx context.Context, key uint32, ttl time.Duration) (json.RawMessage, error)
	PurgeResponses(ctx context.Context, olderThan time.Duration) (int64, error)
}

type RequestQueue interface {
	EnqueueRequest(ctx context.Context, req *QueuedRequest) error
	PendingRequests(ctx context.Context) ([]*QueuedRequest, error)
	DeleteRequest(ctx context.Context, id uint32) error
	QueueSize(ctx context.Context) (int64, error)
}

type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}
