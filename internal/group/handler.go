package group

import (
	"context"
	"net/http"

	"github.com/frahmantamala/iam-service/internal/audit"
	"github.com/frahmantamala/iam-service/internal/transport"
)

type ServiceAPI interface {
	List(ctx context.Context, includeInactive bool) ([]*Group, error)
	Get(ctx context.Context, id int64) (*Group, error)
	Create(ctx context.Context, dto CreateGroupDTO) (*Group, error)
	Update(ctx context.Context, id int64, dto UpdateGroupDTO) (*Group, error)
	Deactivate(ctx context.Context, id int64) (*Group, error)
	Activate(ctx context.Context, id int64) (*Group, error)
	Delete(ctx context.Context, id int64) error
}

const resourceType = "group"

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

// ListGroups handles GET /groups
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Service.List(r.Context(), r.URL.Query().Get("include_inactive") == "true")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "", groups)
}

// GetGroup handles GET /groups/{id}
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	g, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "", g)
}

// CreateGroup handles POST /groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var dto CreateGroupDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	g, err := h.Service.Create(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.Audit.RecordRequest(r, audit.ActionCreate, resourceType, g.ID, dto)
	h.WriteSuccess(w, http.StatusCreated, "group created", g)
}

// UpdateGroup handles PUT /groups/{id}
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	var dto UpdateGroupDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	g, err := h.Service.Update(r.Context(), id, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.Audit.RecordRequest(r, audit.ActionUpdate, resourceType, id, dto)
	h.WriteSuccess(w, http.StatusOK, "group updated", g)
}

// DeactivateGroup handles DELETE /groups/{id}
func (h *Handler) DeactivateGroup(w http.ResponseWriter, r *http.Request) {
	h.changeState(w, r, audit.ActionDeactivate, h.Service.Deactivate, "group deactivated")
}

// ActivateGroup handles POST /groups/{id}/activate
func (h *Handler) ActivateGroup(w http.ResponseWriter, r *http.Request) {
	h.changeState(w, r, audit.ActionActivate, h.Service.Activate, "group activated")
}

// DeleteGroup handles DELETE /groups/{id}/permanent
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
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
	h.WriteSuccess(w, http.StatusOK, "group deleted", nil)
}

func (h *Handler) changeState(w http.ResponseWriter, r *http.Request, action string,
	fn func(context.Context, int64) (*Group, error), message string) {
	id, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	g, err := fn(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.Audit.RecordRequest(r, action, resourceType, id, nil)
	h.WriteSuccess(w, http.StatusOK, message, g)
}
