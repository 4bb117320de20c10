package auth

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Credentials is what authentication needs to know about a user.
type Credentials struct {
	UserID       int64  `gorm:"column:id"`
	Username     string `gorm:"column:username"`
	Email        string `gorm:"column:email"`
	PasswordHash string `gorm:"column:password_hash"`
	IsActive     bool   `gorm:"column:is_active"`
}

func (c *Credentials) Principal() *internal.Principal {
	return &internal.Principal{UserID: c.UserID, Username: c.Username, Email: c.Email}
}

type RepositoryAPI interface {
	// FindByLogin matches the login against username first, then email.
	FindByLogin(ctx context.Context, login string) (*Credentials, error)
	FindByID(ctx context.Context, userID int64) (*Credentials, error)
}

// TokenGenerator creates and validates signed tokens.
type TokenGenerator interface {
	GenerateAccessToken(userID int64, username string) (string, error)
	GenerateRefreshToken(userID int64, username string) (string, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
	AccessTTL() time.Duration
}

type AuthTokens struct {
	UserID       int64  `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Claims represents JWT token claims
type Claims struct {
	UserID    int64  `json:"uid"`
	Username  string `json:"username"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type JWTTokenGenerator struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

func invalidCredentials() error {
	return internal.NewUnauthorizedError("invalid credentials", internal.ErrCodeInvalidCredentials)
}

func userInactive() error {
	return internal.NewUnauthorizedError("user is inactive", internal.ErrCodeUserInactive)
}

// tokenError maps token validation failures to Unauthorized.
func tokenError(err error) error {
	if errors.Is(err, ErrTokenExpired) {
		return internal.NewUnauthorizedError("token expired", internal.ErrCodeTokenExpired)
	}
	return internal.NewUnauthorizedError("invalid token", internal.ErrCodeInvalidToken)
}
