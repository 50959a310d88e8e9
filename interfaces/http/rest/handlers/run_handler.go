package handlers

import (
	"net/http"

	"canvasd/application/services"
	"canvasd/domain/core/valueobjects"
	"canvasd/pkg/auth"
	"canvasd/pkg/common"
	pkgerrors "canvasd/pkg/errors"
	"canvasd/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RunHandler handles preview-run and generation-run requests
type RunHandler struct {
	runs       *services.RunController
	generation *services.GenerationPoller
	limiter    auth.RateLimiter
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewRunHandler creates a new run handler. The limiter throttles run starts
// per caller; nil disables throttling.
func NewRunHandler(
	runs *services.RunController,
	generation *services.GenerationPoller,
	limiter auth.RateLimiter,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *RunHandler {
	return &RunHandler{
		runs:       runs,
		generation: generation,
		limiter:    limiter,
		errors:     errorHandler,
		logger:     logger,
	}
}

// StartPreviewRequest represents the request body for starting a preview run
type StartPreviewRequest struct {
	Language   string                 `json:"language,omitempty" validate:"omitempty,max=16"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// StartPreview handles POST /canvases/{canvasID}/nodes/{nodeID}/preview
func (h *RunHandler) StartPreview(w http.ResponseWriter, r *http.Request) {
	if !h.allowRun(w, r) {
		return
	}

	var req StartPreviewRequest
	if r.ContentLength > 0 {
		if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
			h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
			return
		}
	}

	nodeID, err := valueobjects.NewNodeIDFromString(chi.URLParam(r, "nodeID"))
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	runID, err := h.runs.StartPreview(r.Context(), chi.URLParam(r, "canvasID"), nodeID, services.StartOptions{
		Language:   req.Language,
		Extensions: req.Extensions,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// ActivePreview handles GET /preview
func (h *RunHandler) ActivePreview(w http.ResponseWriter, r *http.Request) {
	status := h.runs.ActivePreview()
	if status == nil {
		common.RespondJSON(w, http.StatusOK, map[string]interface{}{"active": false})
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"active":  true,
		"preview": status,
	})
}

// CancelPreview handles POST /preview/cancel
func (h *RunHandler) CancelPreview(w http.ResponseWriter, r *http.Request) {
	if err := h.runs.CancelPreview(r.Context()); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// SetLanguageRequest represents the request body for switching preview language
type SetLanguageRequest struct {
	Language string `json:"language" validate:"required,max=16"`
}

// SetPreviewLanguage handles PUT /canvases/{canvasID}/nodes/{nodeID}/preview/language
func (h *RunHandler) SetPreviewLanguage(w http.ResponseWriter, r *http.Request) {
	var req SetLanguageRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	nodeID, err := valueobjects.NewNodeIDFromString(chi.URLParam(r, "nodeID"))
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return
	}

	if err := h.runs.SetPreviewLanguage(r.Context(), chi.URLParam(r, "canvasID"), nodeID, req.Language); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"language": req.Language})
}

// StartGeneration handles POST /canvases/{canvasID}/generation
func (h *RunHandler) StartGeneration(w http.ResponseWriter, r *http.Request) {
	if !h.allowRun(w, r) {
		return
	}

	run, err := h.generation.Start(r.Context(), chi.URLParam(r, "canvasID"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusAccepted, map[string]string{
		"run_id": run.ID,
		"status": run.Status,
	})
}

// GenerationStatus handles GET /generation
func (h *RunHandler) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	status := h.generation.Status()
	if status == nil {
		common.RespondJSON(w, http.StatusOK, map[string]interface{}{"active": false})
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"active":     true,
		"generation": status,
	})
}

// StopGeneration handles DELETE /generation
func (h *RunHandler) StopGeneration(w http.ResponseWriter, r *http.Request) {
	h.generation.Stop()
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// allowRun applies per-caller run throttling
func (h *RunHandler) allowRun(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	key := "anonymous"
	if user, err := auth.GetUserFromContext(r.Context()); err == nil {
		key = user.UserID
	}
	allowed, err := h.limiter.Allow(r.Context(), "run:"+key)
	if err != nil {
		h.logger.Error("Run limiter error", zap.Error(err))
		return true
	}
	if !allowed {
		h.errors.Handle(w, r, pkgerrors.NewRateLimitError(10, "minute"))
		return false
	}
	return true
}
