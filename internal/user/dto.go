package user

import (
	"strings"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/core/common/validation"
)

const minPasswordLength = 8

type CreateUserDTO struct {
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

func (d *CreateUserDTO) Validate() error {
	d.Username = strings.TrimSpace(d.Username)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))

	if err := validation.ValidateUsername(d.Username); err != nil {
		return err
	}

	v := validation.NewValidator()
	v.Field("email", d.Email).Required().MaxLength(255).Email()
	v.Field("password", d.Password).Required().MinLength(minPasswordLength).MaxLength(72)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// UpdateUserDTO changes only the fields that are set. The username is immutable.
type UpdateUserDTO struct {
	Email     *string `json:"email"`
	Password  *string `json:"password"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

func (d *UpdateUserDTO) Validate() error {
	if d.Email == nil && d.Password == nil && d.FirstName == nil && d.LastName == nil {
		return internal.NewValidationError("nothing to update", internal.ErrCodeValidationFailed)
	}

	v := validation.NewValidator()
	if d.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*d.Email))
		d.Email = &email
		v.Field("email", email).Required().MaxLength(255).Email()
	}
	if d.Password != nil {
		v.Field("password", *d.Password).Required().MinLength(minPasswordLength).MaxLength(72)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}
