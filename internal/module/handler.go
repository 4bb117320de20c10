package module

import (
	"context"
	"net/http"

	"github.com/frahmantamala/iam-service/internal/audit"
	"github.com/frahmantamala/iam-service/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, includeInactive bool) ([]*Module, error)
	Get(ctx context.Context, id int64) (*Module, error)
	Create(ctx context.Context, dto CreateModuleDTO) (*Module, error)
	Update(ctx context.Context, id int64, dto UpdateModuleDTO) (*Module, error)
	Deactivate(ctx context.Context, id int64) (*Module, error)
	Activate(ctx context.Context, id int64) (*Module, error)
	Delete(ctx context.Context, id int64) error
}

const resourceType = "module"

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Audit   transport.AuditRecorder
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, recorder transport.AuditRecorder) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		Audit:       recorder,
	}
}

// ListModules handles GET /modules
func (h *Handler) ListModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.Service.List(r.Context(), r.URL.Query().Get("include_inactive") == "true")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "", modules)
}

// GetModule handles GET /modules/{id}
func (h *Handler) GetModule(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	result, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "", result)
}

// CreateModule handles POST /modules
func (h *Handler) CreateModule(w http.ResponseWriter, r *http.Request) {
	var dto CreateModuleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	result, err := h.Service.Create(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.Audit.RecordRequest(r, audit.ActionCreate, resourceType, result.ID, dto)
	h.WriteSuccess(w, http.StatusCreated, "module created", result)
}

// UpdateModule handles PUT /modules/{id}
func (h *Handler) UpdateModule(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	var dto UpdateModuleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	result, err := h.Service.Update(r.Context(), id, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.Audit.RecordRequest(r, audit.ActionUpdate, resourceType, id, dto)
	h.WriteSuccess(w, http.StatusOK, "module updated", result)
}

// DeactivateModule handles DELETE /modules/{id}
func (h *Handler) DeactivateModule(w http.ResponseWriter, r *http.Request) {
	h.changeState(w, r, audit.ActionDeactivate, h.Service.Deactivate, "module deactivated")
}

// ActivateModule handles POST /modules/{id}/activate
func (h *Handler) ActivateModule(w http.ResponseWriter, r *http.Request) {
	h.changeState(w, r, audit.ActionActivate, h.Service.Activate, "module activated")
}

// DeleteModule handles DELETE /modules/{id}/permanent
func (h *Handler) DeleteModule(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if err := h.Service.Delete(r.Context(), id); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.Audit.RecordRequest(r, audit.ActionDelete, resourceType, id, nil)
	h.WriteSuccess(w, http.StatusOK, "module deleted", nil)
}

func (h *Handler) changeState(w http.ResponseWriter, r *http.Request, action string,
	fn func(context.Context, int64) (*Module, error), message string) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	result, err := fn(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.Audit.RecordRequest(r, action, resourceType, id, nil)
	h.WriteSuccess(w, http.StatusOK, message, result)
}
