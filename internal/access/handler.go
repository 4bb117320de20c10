package access

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/audit"
	"github.com/frahmantamala/iam-service/internal/transport"
)

// IDsDTO is the body of assign and remove requests.
type IDsDTO struct {
	IDs []int64 `json:"ids"`
}

type AssignmentAPI interface {
	Relation() Relation
	Assign(ctx context.Context, leftID int64, rightIDs []int64) (*AssignResult, error)
	Remove(ctx context.Context, leftID int64, rightIDs []int64) (*RemoveResult, error)
	List(ctx context.Context, leftID int64) ([]RelatedEntity, error)
}

// AssignmentHandler serves GET, POST and DELETE on /{left}/{id}/{right}s.
type AssignmentHandler struct {
	*transport.BaseHandler
	Assigner AssignmentAPI
	Audit    transport.AuditRecorder
}

func NewAssignmentHandler(baseHandler *transport.BaseHandler, assigner AssignmentAPI, recorder transport.AuditRecorder) *AssignmentHandler {
	return &AssignmentHandler{
		BaseHandler: baseHandler,
		Assigner:    assigner,
		Audit:       recorder,
	}
}

func (h *AssignmentHandler) List(w http.ResponseWriter, r *http.Request) {
	leftID, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	entities, err := h.Assigner.List(r.Context(), leftID)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "", entities)
}

func (h *AssignmentHandler) Assign(w http.ResponseWriter, r *http.Request) {
	leftID, dto, ok := h.parse(w, r)
	if !ok {
		return
	}
	result, err := h.Assigner.Assign(r.Context(), leftID, dto.IDs)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	rel := h.Assigner.Relation()
	if result.Assigned > 0 {
		h.Audit.RecordRequest(r, audit.ActionAssign, rel.Left, leftID, map[string]interface{}{
			"relation": rel.Table,
			"ids":      idsWithStatus(result.Details, StatusAssigned),
		})
	}
	h.WriteSuccess(w, http.StatusOK, summarize(result.Assigned, "assigned", result.Skipped, "already assigned", rel.Right), result)
}

func (h *AssignmentHandler) Remove(w http.ResponseWriter, r *http.Request) {
	leftID, dto, ok := h.parse(w, r)
	if !ok {
		return
	}
	result, err := h.Assigner.Remove(r.Context(), leftID, dto.IDs)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	rel := h.Assigner.Relation()
	if result.Removed > 0 {
		h.Audit.RecordRequest(r, audit.ActionRemove, rel.Left, leftID, map[string]interface{}{
			"relation": rel.Table,
			"ids":      idsWithStatus(result.Details, StatusRemoved),
		})
	}
	h.WriteSuccess(w, http.StatusOK, summarize(result.Removed, "removed", result.NotFound, "not assigned", rel.Right), result)
}

func (h *AssignmentHandler) parse(w http.ResponseWriter, r *http.Request) (int64, IDsDTO, bool) {
	var dto IDsDTO
	leftID, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return 0, dto, false
	}
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return 0, dto, false
	}
	return leftID, dto, true
}

func idsWithStatus(details []ItemDetail, status string) []int64 {
	ids := make([]int64, 0, len(details))
	for _, d := range details {
		if d.Status == status {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// summarize renders e.g. "2 role(s) assigned, 1 already assigned".
func summarize(done int, doneVerb string, skipped int, skippedVerb, entity string) string {
	msg := strconv.Itoa(done) + " " + entity + "(s) " + doneVerb
	if skipped > 0 {
		msg += ", " + strconv.Itoa(skipped) + " " + skippedVerb
	}
	return msg
}

type ResolverAPI interface {
	GetUserPermissions(ctx context.Context, userID int64) ([]EffectivePermission, error)
	CheckPermission(ctx context.Context, userID, moduleID int64, action string) (bool, error)
	CheckPermissionByModuleName(ctx context.Context, userID int64, moduleName, action string) (bool, error)
	GetAccessSummary(ctx context.Context, userID int64) (*AccessSummary, error)
	SimulateAccess(ctx context.Context, userID int64, moduleName, action string) (*SimulationResult, error)
}

// CheckResult is the body of a permission check response.
type CheckResult struct {
	UserID     int64  `json:"user_id"`
	ModuleID   int64  `json:"module_id,omitempty"`
	ModuleName string `json:"module_name,omitempty"`
	Action     string `json:"action"`
	Allowed    bool   `json:"allowed"`
}

type ResolverHandler struct {
	*transport.BaseHandler
	Resolver ResolverAPI
}

func NewResolverHandler(baseHandler *transport.BaseHandler, resolver ResolverAPI) *ResolverHandler {
	return &ResolverHandler{
		BaseHandler: baseHandler,
		Resolver:    resolver,
	}
}

// GetUserPermissions handles GET /users/{id}/permissions
func (h *ResolverHandler) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.writePermissions(w, r, userID)
}

// GetMyPermissions handles GET /users/me/permissions
func (h *ResolverHandler) GetMyPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := internal.PrincipalFromContext(r.Context())
	if !ok {
		h.HandleServiceError(w, r, internal.NewUnauthorizedError("authentication required", internal.ErrCodeMissingToken))
		return
	}
	h.writePermissions(w, r, principal.UserID)
}

func (h *ResolverHandler) writePermissions(w http.ResponseWriter, r *http.Request, userID int64) {
	perms, err := h.Resolver.GetUserPermissions(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "", perms)
}

// CheckPermission handles GET /users/{id}/permissions/check?module=&action=
// The module may also be given by id as module_id.
func (h *ResolverHandler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	userID, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	q := r.URL.Query()
	result := CheckResult{UserID: userID, Action: q.Get("action")}
	if result.Action == "" {
		h.HandleServiceError(w, r, internal.NewValidationFieldError("action", "action is required", internal.ErrCodeValidationFailed))
		return
	}

	switch {
	case q.Get("module_id") != "":
		result.ModuleID, err = strconv.ParseInt(q.Get("module_id"), 10, 64)
		if err != nil || result.ModuleID <= 0 {
			h.HandleServiceError(w, r, internal.NewValidationFieldError("module_id", "must be a positive integer", internal.ErrCodeInvalidIDs))
			return
		}
		result.Allowed, err = h.Resolver.CheckPermission(r.Context(), userID, result.ModuleID, result.Action)
	case strings.TrimSpace(q.Get("module")) != "":
		result.ModuleName = strings.TrimSpace(q.Get("module"))
		result.Allowed, err = h.Resolver.CheckPermissionByModuleName(r.Context(), userID, result.ModuleName, result.Action)
	default:
		h.HandleServiceError(w, r, internal.NewValidationFieldError("module", "module or module_id is required", internal.ErrCodeValidationFailed))
		return
	}
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "", result)
}

// GetAccessSummary handles GET /users/{id}/access-summary
func (h *ResolverHandler) GetAccessSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	summary, err := h.Resolver.GetAccessSummary(r.Context(), userID)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "", summary)
}

// SimulateAccess handles GET /users/{id}/access-simulation?module=&action=
func (h *ResolverHandler) SimulateAccess(w http.ResponseWriter, r *http.Request) {
	userID, err := h.PathID(r, "id")
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	module := strings.TrimSpace(r.URL.Query().Get("module"))
	if module == "" {
		h.HandleServiceError(w, r, internal.NewValidationFieldError("module", "module is required", internal.ErrCodeValidationFailed))
		return
	}

	result, err := h.Resolver.SimulateAccess(r.Context(), userID, module, r.URL.Query().Get("action"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "", result)
}
