package module

import (
	"strings"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/core/common/validation"
)

type CreateModuleDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (d *CreateModuleDTO) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(100)
	v.Field("description", d.Description).MaxLength(500)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// UpdateModuleDTO changes only the fields that are set.
type UpdateModuleDTO struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (d *UpdateModuleDTO) Validate() error {
	if d.Name == nil && d.Description == nil {
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
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}
