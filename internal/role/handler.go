package role

import (
	"context"
	"net/http"

	"github.com/frahmantamala/iam-service/internal/audit"
	"github.com/frahmantamala/iam-service/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, includeInactive bool) ([]*Role, error)
	Get(ctx context.Context, id int64) (*Role, error)
	Create(ctx context.Context, dto CreateRoleDTO) (*Role, error)
	Update(ctx context.Context, id int64, dto UpdateRoleDTO) (*Role, error)
	Deactivate(ctx context.Context, id int64) (*Role, error)
	Activate(ctx context.Context, id int64) (*Role, error)
	Delete(ctx context.Context, id int64) error
}

const resourceType = "role"

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

// ListRoles handles GET /roles
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Service.List(r.Context(), r.URL.Query().Get("include_inactive") == "true")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "", roles)
}

// GetRole handles GET /roles/{id}
func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
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

// CreateRole handles POST /roles
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var dto CreateRoleDTO
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
	h.WriteSuccess(w, http.StatusCreated, "role created", result)
}

// UpdateRole handles PUT /roles/{id}
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	var dto UpdateRoleDTO
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
	h.WriteSuccess(w, http.StatusOK, "role updated", result)
}

// DeactivateRole handles DELETE /roles/{id}
func (h *Handler) DeactivateRole(w http.ResponseWriter, r *http.Request) {
	h.changeState(w, r, audit.ActionDeactivate, h.Service.Deactivate, "role deactivated")
}

// ActivateRole handles POST /roles/{id}/activate
func (h *Handler) ActivateRole(w http.ResponseWriter, r *http.Request) {
	h.changeState(w, r, audit.ActionActivate, h.Service.Activate, "role activated")
}

// DeleteRole handles DELETE /roles/{id}/permanent
func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
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
	h.WriteSuccess(w, http.StatusOK, "role deleted", nil)
}

func (h *Handler) changeState(w http.ResponseWriter, r *http.Request, action string,
	fn func(context.Context, int64) (*Role, error), message string) {
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
