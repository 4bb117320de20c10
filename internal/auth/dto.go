package auth

import (
	"strings"

	"github.com/frahmantamala/iam-service/internal/core/common/validation"
)

// LoginDTO accepts either a username or an email address in Login.
type LoginDTO struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// RefreshTokenDTO for refresh token requests
type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

func (d *LoginDTO) Validate() error {
	d.Login = strings.TrimSpace(d.Login)
	v := validation.NewValidator()
	v.Field("login", d.Login).Required().MaxLength(255)
	v.Field("password", d.Password).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

func (d *RefreshTokenDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("refresh_token", d.RefreshToken).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}
