// Package handlers implements the REST endpoints of the canvas service.
package handlers

import (
	"net/http"

	"canvasd/application/commands"
	"canvasd/application/commands/bus"
	"canvasd/application/queries"
	querybus "canvasd/application/queries/bus"
	"canvasd/pkg/auth"
	"canvasd/pkg/common"
	pkgerrors "canvasd/pkg/errors"
	"canvasd/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// CanvasHandler handles canvas CRUD and graph-structure requests
type CanvasHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewCanvasHandler creates a new canvas handler
func NewCanvasHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *CanvasHandler {
	return &CanvasHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		logger:     logger,
	}
}

// CreateCanvasRequest represents the request body for creating a canvas
type CreateCanvasRequest struct {
	Name      string `json:"name,omitempty" validate:"omitempty,max=200"`
	Persisted bool   `json:"persisted,omitempty"`
}

// CreateCanvas handles POST /canvases
func (h *CanvasHandler) CreateCanvas(w http.ResponseWriter, r *http.Request) {
	var req CreateCanvasRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	// Unauthenticated callers (auth disabled in development) share one owner.
	ownerID := "anonymous"
	if user, err := auth.GetUserFromContext(r.Context()); err == nil {
		ownerID = user.UserID
	}

	cmd := &commands.CreateCanvasCommand{
		Name:      req.Name,
		OwnerID:   ownerID,
		Persisted: req.Persisted,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, map[string]string{"id": cmd.Result.CanvasID})
}

// ListCanvases handles GET /canvases
func (h *CanvasHandler) ListCanvases(w http.ResponseWriter, r *http.Request) {
	ownerID := ""
	if user, err := auth.GetUserFromContext(r.Context()); err == nil {
		ownerID = user.UserID
	}
	pagination := common.ExtractPaginationParams(r)

	result, err := h.queryBus.Ask(r.Context(), &queries.ListCanvasesQuery{
		OwnerID: ownerID,
		Limit:   pagination.Limit(),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// GetCanvas handles GET /canvases/{canvasID}
func (h *CanvasHandler) GetCanvas(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), &queries.GetCanvasQuery{
		CanvasID: chi.URLParam(r, "canvasID"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// DeleteCanvas handles DELETE /canvases/{canvasID}
func (h *CanvasHandler) DeleteCanvas(w http.ResponseWriter, r *http.Request) {
	cmd := &commands.DeleteCanvasCommand{CanvasID: chi.URLParam(r, "canvasID")}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// MarkPersisted handles POST /canvases/{canvasID}/persist
func (h *CanvasHandler) MarkPersisted(w http.ResponseWriter, r *http.Request) {
	cmd := &commands.MarkCanvasPersistedCommand{CanvasID: chi.URLParam(r, "canvasID")}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "persisted"})
}

// AddNodeRequest represents the request body for placing a node
type AddNodeRequest struct {
	Kind           string                 `json:"kind" validate:"required"`
	Label          string                 `json:"label,omitempty" validate:"omitempty,max=200"`
	Params         map[string]interface{} `json:"params,omitempty"`
	CapsuleID      string                 `json:"capsule_id,omitempty"`
	CapsuleVersion string                 `json:"capsule_version,omitempty"`
}

// AddNode handles POST /canvases/{canvasID}/nodes
func (h *CanvasHandler) AddNode(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	cmd := &commands.AddNodeCommand{
		CanvasID:       chi.URLParam(r, "canvasID"),
		Kind:           req.Kind,
		Label:          req.Label,
		Params:         req.Params,
		CapsuleID:      req.CapsuleID,
		CapsuleVersion: req.CapsuleVersion,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, map[string]string{"id": cmd.Result.NodeID})
}

// UpdateNodeRequest represents the request body for updating node params
type UpdateNodeRequest struct {
	Params map[string]interface{} `json:"params" validate:"required"`
	Label  *string                `json:"label,omitempty" validate:"omitempty,max=200"`
}

// UpdateNode handles PATCH /canvases/{canvasID}/nodes/{nodeID}
func (h *CanvasHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var req UpdateNodeRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	cmd := &commands.UpdateNodeParamsCommand{
		CanvasID: chi.URLParam(r, "canvasID"),
		NodeID:   chi.URLParam(r, "nodeID"),
		Params:   req.Params,
		Label:    req.Label,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// RemoveNode handles DELETE /canvases/{canvasID}/nodes/{nodeID}
func (h *CanvasHandler) RemoveNode(w http.ResponseWriter, r *http.Request) {
	cmd := &commands.RemoveNodeCommand{
		CanvasID: chi.URLParam(r, "canvasID"),
		NodeID:   chi.URLParam(r, "nodeID"),
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "removed",
		"pruned_edges": cmd.Result.PrunedEdges,
	})
}

// AddEdgeRequest represents the request body for connecting two nodes
type AddEdgeRequest struct {
	SourceID string `json:"source_id" validate:"required"`
	TargetID string `json:"target_id" validate:"required"`
}

// AddEdge handles POST /canvases/{canvasID}/edges
func (h *CanvasHandler) AddEdge(w http.ResponseWriter, r *http.Request) {
	var req AddEdgeRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	cmd := &commands.AddEdgeCommand{
		CanvasID: chi.URLParam(r, "canvasID"),
		SourceID: req.SourceID,
		TargetID: req.TargetID,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, map[string]string{"id": cmd.Result.EdgeID})
}

// RemoveEdge handles DELETE /canvases/{canvasID}/edges/{edgeID}
func (h *CanvasHandler) RemoveEdge(w http.ResponseWriter, r *http.Request) {
	cmd := &commands.RemoveEdgeCommand{
		CanvasID: chi.URLParam(r, "canvasID"),
		EdgeID:   chi.URLParam(r, "edgeID"),
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ResolveContext handles GET /canvases/{canvasID}/nodes/{nodeID}/context
func (h *CanvasHandler) ResolveContext(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), &queries.ResolveContextQuery{
		CanvasID: chi.URLParam(r, "canvasID"),
		NodeID:   chi.URLParam(r, "nodeID"),
		Mode:     r.URL.Query().Get("mode"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// FindCapsules handles GET /canvases/{canvasID}/nodes/{nodeID}/capsules
func (h *CanvasHandler) FindCapsules(w http.ResponseWriter, r *http.Request) {
	result, err := h.queryBus.Ask(r.Context(), &queries.FindCapsulesQuery{
		CanvasID: chi.URLParam(r, "canvasID"),
		StartID:  chi.URLParam(r, "nodeID"),
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}
