package handlers

import (
	"net/http"
	"strconv"

	"canvasd/application/services"
	"canvasd/pkg/common"
	pkgerrors "canvasd/pkg/errors"

	"go.uber.org/zap"
)

// ActivityHandler serves the run-activity log and transient notices
type ActivityHandler struct {
	activity *services.ActivityLog
	notices  *services.NoticeCenter
	errors   *pkgerrors.ErrorHandler
	logger   *zap.Logger
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(
	activity *services.ActivityLog,
	notices *services.NoticeCenter,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *ActivityHandler {
	return &ActivityHandler{
		activity: activity,
		notices:  notices,
		errors:   errorHandler,
		logger:   logger,
	}
}

// ListActivity handles GET /activity
func (h *ActivityHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	filter := services.LogFilter{
		Kind: services.LogKind(r.URL.Query().Get("kind")),
	}
	if raw := r.URL.Query().Get("errors_only"); raw != "" {
		if errorsOnly, err := strconv.ParseBool(raw); err == nil {
			filter.ErrorsOnly = errorsOnly
		}
	}
	common.RespondJSON(w, http.StatusOK, h.activity.Entries(filter))
}

// ClearActivity handles DELETE /activity
func (h *ActivityHandler) ClearActivity(w http.ResponseWriter, r *http.Request) {
	h.activity.Clear()
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// ListNotices handles GET /notices
func (h *ActivityHandler) ListNotices(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, h.notices.Active())
}
