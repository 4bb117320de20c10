package audit

import (
	"net/http"
	"strconv"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Recorder *Recorder
}

func NewHandler(baseHandler *transport.BaseHandler, recorder *Recorder) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Recorder:    recorder,
	}
}

// ListAuditLogs handles GET /audit-logs?limit=
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.HandleServiceError(w, r, internal.NewValidationFieldError("limit", "must be an integer", internal.ErrCodeValidationFailed))
			return
		}
		limit = n
	}

	entries, err := h.Recorder.Latest(r.Context(), limit)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "", entries)
}
