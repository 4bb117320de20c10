package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/iam-service/internal"
)

const (
	StatusAssigned      = "assigned"
	StatusAlreadyExists = "already_exists"
	StatusRemoved       = "removed"
	StatusNotFound      = "not_found"
)

// Relation describes one association table: a left entity owning many right ones.
type Relation struct {
	Table string
	Left  string
	Right string
}

var (
	GroupRoles      = Relation{Table: "group_roles", Left: "group", Right: "role"}
	GroupUsers      = Relation{Table: "user_groups", Left: "group", Right: "user"}
	RolePermissions = Relation{Table: "role_permissions", Left: "role", Right: "permission"}
)

// RelatedEntity is the right side of a relation as seen from its left entity.
// Users report their username as Name.
type RelatedEntity struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Email       string `json:"email,omitempty"`
	Action      string `json:"action,omitempty"`
	ModuleID    int64  `json:"module_id,omitempty"`
	ModuleName  string `json:"module_name,omitempty"`
	IsActive    bool   `json:"is_active"`
}

// RelationStore is the persistence side of one Relation.
type RelationStore interface {
	LeftExists(ctx context.Context, leftID int64) (bool, error)
	FindRight(ctx context.Context, rightIDs []int64) ([]RelatedEntity, error)
	ExistingPairs(ctx context.Context, leftID int64, rightIDs []int64) ([]int64, error)
	// Insert creates the given pairs, ignoring ones that already exist, and
	// returns the right ids it actually inserted.
	Insert(ctx context.Context, leftID int64, rightIDs []int64) ([]int64, error)
	// Delete removes the given pairs and returns the right ids it actually
	// deleted.
	Delete(ctx context.Context, leftID int64, rightIDs []int64) ([]int64, error)
	List(ctx context.Context, leftID int64) ([]RelatedEntity, error)
}

type Invalidator interface {
	InvalidateAll(ctx context.Context)
}

type NoopInvalidator struct{}

func (NoopInvalidator) InvalidateAll(context.Context) {}

type ItemDetail struct {
	ID         int64  `json:"id"`
	Name       string `json:"name,omitempty"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	ModuleName string `json:"module_name,omitempty"`
}

type AssignResult struct {
	Assigned int          `json:"assigned"`
	Skipped  int          `json:"skipped"`
	Details  []ItemDetail `json:"details"`
}

type RemoveResult struct {
	Removed  int          `json:"removed"`
	NotFound int          `json:"not_found"`
	Details  []ItemDetail `json:"details"`
}

// Assigner implements assign, remove and list for any Relation.
type Assigner struct {
	relation    Relation
	store       RelationStore
	invalidator Invalidator
	logger      *slog.Logger
}

func NewAssigner(relation Relation, store RelationStore, invalidator Invalidator, logger *slog.Logger) *Assigner {
	return &Assigner{
		relation:    relation,
		store:       store,
		invalidator: invalidator,
		logger:      logger,
	}
}

func (a *Assigner) Relation() Relation {
	return a.relation
}

func (a *Assigner) Assign(ctx context.Context, leftID int64, rightIDs []int64) (*AssignResult, error) {
	if err := a.requireLeft(ctx, leftID); err != nil {
		return nil, err
	}
	ids, err := a.normalizeIDs(rightIDs)
	if err != nil {
		return nil, err
	}

	found, err := a.store.FindRight(ctx, ids)
	if err != nil {
		return nil, a.storeError("load "+a.relation.Right+"s", err)
	}
	byID := make(map[int64]RelatedEntity, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, internal.NewNotFoundError(
			fmt.Sprintf("%ss not found: %v", a.relation.Right, missing),
			internal.ErrCodeEntitiesNotFound,
		).WithDetails(internal.MissingIDs{Entity: a.relation.Right, IDs: missing})
	}

	existing, err := a.store.ExistingPairs(ctx, leftID, ids)
	if err != nil {
		return nil, a.storeError("load existing "+a.relation.Table, err)
	}
	already := toSet(existing)

	toCreate := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := already[id]; !ok {
			toCreate = append(toCreate, id)
		}
	}

	created := map[int64]struct{}{}
	if len(toCreate) > 0 {
		inserted, err := a.store.Insert(ctx, leftID, toCreate)
		if err != nil {
			return nil, a.storeError("insert "+a.relation.Table, err)
		}
		created = toSet(inserted)
		if lost := len(toCreate) - len(inserted); lost > 0 {
			a.logger.Info("assignment race: pairs created concurrently",
				"relation", a.relation.Table, "left_id", leftID, "count", lost)
		}
	}

	result := &AssignResult{Details: make([]ItemDetail, 0, len(ids))}
	for _, id := range ids {
		e := byID[id]
		detail := ItemDetail{ID: id, Name: e.Name, ModuleName: e.ModuleName}
		if _, ok := created[id]; ok {
			result.Assigned++
			detail.Status = StatusAssigned
			detail.Message = fmt.Sprintf("%s %q assigned to %s %d", a.relation.Right, e.Name, a.relation.Left, leftID)
		} else {
			result.Skipped++
			detail.Status = StatusAlreadyExists
			detail.Message = fmt.Sprintf("%s %q already assigned to %s %d", a.relation.Right, e.Name, a.relation.Left, leftID)
		}
		result.Details = append(result.Details, detail)
	}

	if result.Assigned > 0 {
		a.invalidator.InvalidateAll(ctx)
	}
	a.logger.Info("assignment completed",
		"relation", a.relation.Table,
		"left_id", leftID,
		"assigned", result.Assigned,
		"skipped", result.Skipped)
	return result, nil
}

func (a *Assigner) Remove(ctx context.Context, leftID int64, rightIDs []int64) (*RemoveResult, error) {
	if err := a.requireLeft(ctx, leftID); err != nil {
		return nil, err
	}
	ids, err := a.normalizeIDs(rightIDs)
	if err != nil {
		return nil, err
	}

	existing, err := a.store.ExistingPairs(ctx, leftID, ids)
	if err != nil {
		return nil, a.storeError("load existing "+a.relation.Table, err)
	}
	removed := map[int64]struct{}{}
	if len(existing) > 0 {
		deleted, err := a.store.Delete(ctx, leftID, existing)
		if err != nil {
			return nil, a.storeError("delete "+a.relation.Table, err)
		}
		removed = toSet(deleted)
		if lost := len(existing) - len(deleted); lost > 0 {
			a.logger.Info("removal race: pairs deleted concurrently",
				"relation", a.relation.Table, "left_id", leftID, "count", lost)
		}
	}

	result := &RemoveResult{Details: make([]ItemDetail, 0, len(ids))}
	for _, id := range ids {
		detail := ItemDetail{ID: id}
		if _, ok := removed[id]; ok {
			result.Removed++
			detail.Status = StatusRemoved
			detail.Message = fmt.Sprintf("%s %d removed from %s %d", a.relation.Right, id, a.relation.Left, leftID)
		} else {
			result.NotFound++
			detail.Status = StatusNotFound
			detail.Message = fmt.Sprintf("%s %d is not assigned to %s %d", a.relation.Right, id, a.relation.Left, leftID)
		}
		result.Details = append(result.Details, detail)
	}

	if result.Removed > 0 {
		a.invalidator.InvalidateAll(ctx)
	}
	a.logger.Info("removal completed",
		"relation", a.relation.Table,
		"left_id", leftID,
		"removed", result.Removed,
		"not_found", result.NotFound)
	return result, nil
}

// List returns the right entities joined to leftID, ordered by name.
func (a *Assigner) List(ctx context.Context, leftID int64) ([]RelatedEntity, error) {
	if err := a.requireLeft(ctx, leftID); err != nil {
		return nil, err
	}
	entities, err := a.store.List(ctx, leftID)
	if err != nil {
		return nil, a.storeError("list "+a.relation.Table, err)
	}
	if entities == nil {
		entities = []RelatedEntity{}
	}
	return entities, nil
}

func (a *Assigner) requireLeft(ctx context.Context, leftID int64) error {
	ok, err := a.store.LeftExists(ctx, leftID)
	if err != nil {
		return a.storeError("load "+a.relation.Left, err)
	}
	if !ok {
		return internal.NewNotFoundError(
			fmt.Sprintf("%s %d not found", a.relation.Left, leftID),
			NotFoundCode(a.relation.Left),
		)
	}
	return nil
}

// normalizeIDs rejects empty or non-positive input and collapses duplicates,
// keeping first-seen order.
func (a *Assigner) normalizeIDs(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, internal.NewBadRequestError(
			fmt.Sprintf("%s ids must be a non-empty array", a.relation.Right),
			internal.ErrCodeInvalidIDs,
		)
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, internal.NewBadRequestError(
				fmt.Sprintf("invalid %s id %d", a.relation.Right, id),
				internal.ErrCodeInvalidIDs,
			)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func (a *Assigner) storeError(op string, err error) error {
	a.logger.Error("relation store failure", "relation", a.relation.Table, "op", op, "error", err)
	return internal.NewInternalError("failed to "+op, err)
}

// NotFoundCode maps an entity label to its not-found error code.
func NotFoundCode(entity string) internal.ErrorCode {
	switch entity {
	case "user":
		return internal.ErrCodeUserNotFound
	case "group":
		return internal.ErrCodeGroupNotFound
	case "role":
		return internal.ErrCodeRoleNotFound
	case "module":
		return internal.ErrCodeModuleNotFound
	case "permission":
		return internal.ErrCodePermissionNotFound
	}
	return internal.ErrCodeEntitiesNotFound
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
