package permission

import (
	"strings"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/access"
	"github.com/frahmantamala/iam-service/internal/core/common/validation"
)

type CreatePermissionDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Action      string `json:"action"`
	ModuleID    int64  `json:"module_id"`
}

func (d *CreatePermissionDTO) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Action = strings.TrimSpace(d.Action)

	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(100)
	v.Field("description", d.Description).MaxLength(500)
	v.Field("action", d.Action).Required().OneOf(access.CanonicalActions, internal.ErrCodeInvalidAction)
	v.Field("module_id", d.ModuleID).MinInt(1, internal.ErrCodeInvalidIDs)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type UpdatePermissionDTO struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Action      *string `json:"action"`
	ModuleID    *int64  `json:"module_id"`
}

func (d *UpdatePermissionDTO) Validate() error {
	if d.Name == nil && d.Description == nil && d.Action == nil && d.ModuleID == nil {
		return internal.NewValidationError("nothing to update", internal.ErrCodeValidationFailed)
	}

	v := validation.NewValidator()
	if d.Name != nil {
		trimmed := strings.TrimSpace(*d.Name)
		d.Name = &trimmed
		v.Field("name", trimmed).Required().MaxLength(100)
	}
	if d.Description != nil {
		v.Field("description", *d.Description).MaxLength(500)
	}
	if d.Action != nil {
		v.Field("action", *d.Action).Required().OneOf(access.CanonicalActions, internal.ErrCodeInvalidAction)
	}
	if d.ModuleID != nil {
		v.Field("module_id", *d.ModuleID).MinInt(1, internal.ErrCodeInvalidIDs)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}
