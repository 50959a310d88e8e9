package ports

import (
	"context"

	"canvasd/domain/core/aggregates"
)

// CanvasStore holds canvas aggregates. The service owns live canvas state;
// implementations may be purely in-memory.
type CanvasStore interface {
	Save(ctx context.Context, canvas *aggregates.Canvas) error
	Get(ctx context.Context, canvasID string) (*aggregates.Canvas, error)
	Delete(ctx context.Context, canvasID string) error
	List(ctx context.Context, ownerID string) ([]*aggregates.Canvas, error)
}

// Cache provides caching capabilities with TTL support
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{}, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
