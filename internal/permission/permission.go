package permission

import (
	"time"

	permissionDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/permission"
)

type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Action      string    `json:"action"`
	ModuleID    int64     `json:"module_id"`
	ModuleName  string    `json:"module_name,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Record is a permission row joined with the name of its module.
type Record struct {
	permissionDatamodel.Permission
	ModuleName string
}

// ListFilter narrows List. A zero ModuleID means every module.
type ListFilter struct {
	ModuleID        int64
	IncludeInactive bool
}

func ToDataModel(p *Permission) *permissionDatamodel.Permission {
	return &permissionDatamodel.Permission{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Action:      p.Action,
		ModuleID:    p.ModuleID,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func FromRecord(r *Record) *Permission {
	return &Permission{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Action:      r.Action,
		ModuleID:    r.ModuleID,
		ModuleName:  r.ModuleName,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
