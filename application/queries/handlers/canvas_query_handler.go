// Package handlers implements the read-side query handlers.
package handlers

import (
	"context"
	"fmt"

	"canvasd/application/ports"
	"canvasd/application/queries"
	"canvasd/application/queries/bus"
	"canvasd/application/services"
	"canvasd/domain/core/entities"
	"canvasd/domain/core/valueobjects"
	pkgerrors "canvasd/pkg/errors"

	"go.uber.org/zap"
)

// CanvasQueryHandler answers every canvas read query
type CanvasQueryHandler struct {
	store    ports.CanvasStore
	resolver *services.ContextResolver
	finder   *services.CapsuleFinder
	logger   *zap.Logger
}

// NewCanvasQueryHandler creates the handler for canvas reads
func NewCanvasQueryHandler(
	store ports.CanvasStore,
	resolver *services.ContextResolver,
	finder *services.CapsuleFinder,
	logger *zap.Logger,
) *CanvasQueryHandler {
	return &CanvasQueryHandler{
		store:    store,
		resolver: resolver,
		finder:   finder,
		logger:   logger,
	}
}

// Register wires every canvas query onto the bus
func (h *CanvasQueryHandler) Register(queryBus *bus.QueryBus) error {
	for _, q := range []bus.Query{
		&queries.GetCanvasQuery{},
		&queries.ListCanvasesQuery{},
		&queries.ResolveContextQuery{},
		&queries.FindCapsulesQuery{},
	} {
		if err := queryBus.Register(q, h); err != nil {
			return err
		}
	}
	return nil
}

// Handle dispatches one query to its implementation
func (h *CanvasQueryHandler) Handle(ctx context.Context, query bus.Query) (interface{}, error) {
	switch q := query.(type) {
	case *queries.GetCanvasQuery:
		return h.getCanvas(ctx, q)
	case *queries.ListCanvasesQuery:
		return h.listCanvases(ctx, q)
	case *queries.ResolveContextQuery:
		return h.resolveContext(ctx, q)
	case *queries.FindCapsulesQuery:
		return h.findCapsules(ctx, q)
	default:
		return nil, fmt.Errorf("unsupported query type %T", query)
	}
}

func (h *CanvasQueryHandler) getCanvas(ctx context.Context, q *queries.GetCanvasQuery) (*queries.CanvasView, error) {
	canvas, err := h.store.Get(ctx, q.CanvasID)
	if err != nil {
		return nil, err
	}

	view := &queries.CanvasView{
		ID:        canvas.ID(),
		Name:      canvas.Name(),
		OwnerID:   canvas.OwnerID(),
		Persisted: canvas.Persisted(),
		Nodes:     make([]queries.NodeView, 0, canvas.NodeCount()),
		Edges:     make([]queries.EdgeView, 0, canvas.EdgeCount()),
		CreatedAt: canvas.CreatedAt(),
		UpdatedAt: canvas.UpdatedAt(),
	}
	for _, node := range canvas.Nodes() {
		view.Nodes = append(view.Nodes, nodeView(node))
	}
	for _, edge := range canvas.Edges() {
		view.Edges = append(view.Edges, queries.EdgeView{
			ID:     edge.ID(),
			Source: edge.Source().String(),
			Target: edge.Target().String(),
		})
	}
	return view, nil
}

func (h *CanvasQueryHandler) listCanvases(ctx context.Context, q *queries.ListCanvasesQuery) ([]queries.CanvasSummaryView, error) {
	canvases, err := h.store.List(ctx, q.OwnerID)
	if err != nil {
		return nil, err
	}
	if q.Limit > 0 && len(canvases) > q.Limit {
		canvases = canvases[:q.Limit]
	}

	summaries := make([]queries.CanvasSummaryView, 0, len(canvases))
	for _, canvas := range canvases {
		summaries = append(summaries, queries.CanvasSummaryView{
			ID:        canvas.ID(),
			Name:      canvas.Name(),
			OwnerID:   canvas.OwnerID(),
			Persisted: canvas.Persisted(),
			NodeCount: canvas.NodeCount(),
			EdgeCount: canvas.EdgeCount(),
			UpdatedAt: canvas.UpdatedAt(),
		})
	}
	return summaries, nil
}

func (h *CanvasQueryHandler) resolveContext(ctx context.Context, q *queries.ResolveContextQuery) (*ports.UpstreamContext, error) {
	canvas, err := h.store.Get(ctx, q.CanvasID)
	if err != nil {
		return nil, err
	}
	nodeID, err := valueobjects.NewNodeIDFromString(q.NodeID)
	if err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}
	if !canvas.HasNode(nodeID) {
		return nil, pkgerrors.NewNodeNotFoundError(q.NodeID)
	}
	return h.resolver.Resolve(canvas, nodeID, q.Mode), nil
}

func (h *CanvasQueryHandler) findCapsules(ctx context.Context, q *queries.FindCapsulesQuery) ([]services.ConnectedCapsule, error) {
	canvas, err := h.store.Get(ctx, q.CanvasID)
	if err != nil {
		return nil, err
	}
	startID, err := valueobjects.NewNodeIDFromString(q.StartID)
	if err != nil {
		return nil, pkgerrors.NewValidationError(err.Error())
	}
	if !canvas.HasNode(startID) {
		return nil, pkgerrors.NewNodeNotFoundError(q.StartID)
	}
	return h.finder.FindCapsules(canvas, startID), nil
}

func nodeView(node *entities.Node) queries.NodeView {
	view := queries.NodeView{
		ID:          node.ID().String(),
		Kind:        node.Kind().String(),
		Label:       node.Label(),
		Params:      node.Params(),
		Status:      node.Status().String(),
		StatusNote:  node.StatusNote(),
		Progress:    node.Progress(),
		ActiveRunID: node.ActiveRunID(),
		LastRunID:   node.LastRunID(),
		UpdatedAt:   node.UpdatedAt(),
	}
	if capsule := node.Capsule(); !capsule.IsZero() {
		view.CapsuleID = capsule.ID()
		view.CapsuleVersion = capsule.Version()
	}
	if refs := node.EvidenceRefs(); len(refs) > 0 {
		view.EvidenceRefs = refs
	}
	if preview := node.Preview(); preview != nil {
		view.Preview = &queries.PreviewView{
			Language:           preview.Language,
			AvailableLanguages: preview.AvailableLanguages,
			Panels:             preview.Panels,
		}
	}
	if generation := node.Generation(); generation != nil {
		view.Generation = &queries.GenerationView{
			BeatSheet:  generation.BeatSheet,
			Storyboard: generation.Storyboard,
		}
	}
	return view
}
