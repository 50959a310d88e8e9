// Package memory provides in-memory persistence adapters. Canvas state is
// service-owned and session-scoped, so a process-local store is the primary
// implementation, not a test stand-in.
package memory

import (
	"context"
	"sort"
	"sync"

	"canvasd/application/ports"
	"canvasd/domain/core/aggregates"
	pkgerrors "canvasd/pkg/errors"

	"go.uber.org/zap"
)

// CanvasStore is a thread-safe in-memory canvas repository
type CanvasStore struct {
	mu       sync.RWMutex
	canvases map[string]*aggregates.Canvas
	logger   *zap.Logger
}

// NewCanvasStore creates an empty in-memory canvas store
func NewCanvasStore(logger *zap.Logger) *CanvasStore {
	return &CanvasStore{
		canvases: make(map[string]*aggregates.Canvas),
		logger:   logger,
	}
}

// Save stores or replaces a canvas
func (s *CanvasStore) Save(ctx context.Context, canvas *aggregates.Canvas) error {
	if canvas == nil {
		return pkgerrors.NewValidationError("canvas cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvases[canvas.ID()] = canvas
	return nil
}

// Get retrieves a canvas by id
func (s *CanvasStore) Get(ctx context.Context, canvasID string) (*aggregates.Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canvas, ok := s.canvases[canvasID]
	if !ok {
		return nil, pkgerrors.NewCanvasNotFoundError(canvasID)
	}
	return canvas, nil
}

// Delete removes a canvas by id
func (s *CanvasStore) Delete(ctx context.Context, canvasID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.canvases[canvasID]; !ok {
		return pkgerrors.NewCanvasNotFoundError(canvasID)
	}
	delete(s.canvases, canvasID)
	s.logger.Debug("Canvas deleted", zap.String("canvas_id", canvasID))
	return nil
}

// List returns the canvases owned by the given owner, newest first. An empty
// owner id lists everything.
func (s *CanvasStore) List(ctx context.Context, ownerID string) ([]*aggregates.Canvas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	canvases := make([]*aggregates.Canvas, 0, len(s.canvases))
	for _, canvas := range s.canvases {
		if ownerID != "" && canvas.OwnerID() != ownerID {
			continue
		}
		canvases = append(canvases, canvas)
	}
	sort.Slice(canvases, func(i, j int) bool {
		return canvases[i].CreatedAt().After(canvases[j].CreatedAt())
	})
	return canvases, nil
}

// Len returns the number of stored canvases
func (s *CanvasStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.canvases)
}

// Ensure interface compliance
var _ ports.CanvasStore = (*CanvasStore)(nil)
