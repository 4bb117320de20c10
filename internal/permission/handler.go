package permission

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/audit"
	"github.com/frahmantamala/iam-service/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, filter ListFilter) ([]*Permission, error)
	Get(ctx context.Context, id int64) (*Permission, error)
	Create(ctx context.Context, dto CreatePermissionDTO) (*Permission, error)
	Update(ctx context.Context, id int64, dto UpdatePermissionDTO) (*Permission, error)
	Deactivate(ctx context.Context, id int64) (*Permission, error)
	Activate(ctx context.Context, id int64) (*Permission, error)
	Delete(ctx context.Context, id int64) error
}

const resourceType = "permission"

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

// ListPermissions handles GET /permissions?module_id=&include_inactive=
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{IncludeInactive: r.URL.Query().Get("include_inactive") == "true"}
	if raw := r.URL.Query().Get("module_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.HandleServiceError(w, r, internal.NewValidationFieldError("module_id", "must be a positive integer", internal.ErrCodeInvalidIDs))
			return
		}
		filter.ModuleID = id
	}

	perms, err := h.Service.List(r.Context(), filter)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "", perms)
}

// GetPermission handles GET /permissions/{id}
func (h *Handler) GetPermission(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	p, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "", p)
}

// CreatePermission handles POST /permissions
func (h *Handler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var dto CreatePermissionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	p, err := h.Service.Create(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.Audit.RecordRequest(r, audit.ActionCreate, resourceType, p.ID, dto)
	h.WriteSuccess(w, http.StatusCreated, "permission created", p)
}

// UpdatePermission handles PUT /permissions/{id}
func (h *Handler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	var dto UpdatePermissionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	p, err := h.Service.Update(r.Context(), id, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.Audit.RecordRequest(r, audit.ActionUpdate, resourceType, id, dto)
	h.WriteSuccess(w, http.StatusOK, "permission updated", p)
}

// DeactivatePermission handles DELETE /permissions/{id}
func (h *Handler) DeactivatePermission(w http.ResponseWriter, r *http.Request) {
	h.changeState(w, r, audit.ActionDeactivate, h.Service.Deactivate, "permission deactivated")
}

// ActivatePermission handles POST /permissions/{id}/activate
func (h *Handler) ActivatePermission(w http.ResponseWriter, r *http.Request) {
	h.changeState(w, r, audit.ActionActivate, h.Service.Activate, "permission activated")
}

// DeletePermission handles DELETE /permissions/{id}/permanent
func (h *Handler) DeletePermission(w http.ResponseWriter, r *http.Request) {
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
	h.WriteSuccess(w, http.StatusOK, "permission deleted", nil)
}

func (h *Handler) changeState(w http.ResponseWriter, r *http.Request, action string,
	fn func(context.Context, int64) (*Permission, error), message string) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	p, err := fn(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.Audit.RecordRequest(r, action, resourceType, id, nil)
	h.WriteSuccess(w, http.StatusOK, message, p)
}
