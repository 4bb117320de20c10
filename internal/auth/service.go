package auth

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/iam-service/internal"
	"golang.org/x/crypto/bcrypt"
)

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	Authorize(ctx context.Context, accessToken string) (*internal.Principal, error)
}

// Service is the main auth service with dependencies
type Service struct {
	repo           RepositoryAPI
	tokenGenerator TokenGenerator
	logger         *slog.Logger
}

// NewService creates a new auth service
func NewService(repo RepositoryAPI, tokenGen TokenGenerator, logger *slog.Logger) *Service {
	return &Service{
		repo:           repo,
		tokenGenerator: tokenGen,
		logger:         logger,
	}
}

// Authenticate validates credentials and returns tokens
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	creds, err := s.repo.FindByLogin(ctx, dto.Login)
	if err != nil {
		s.logger.Error("failed to load credentials", "error", err)
		return AuthTokens{}, internal.NewInternalError("failed to authenticate", err)
	}
	if creds == nil {
		s.logger.Debug("login failed: unknown user")
		return AuthTokens{}, invalidCredentials()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(dto.Password)); err != nil {
		s.logger.Debug("login failed: wrong password", "user_id", creds.UserID)
		return AuthTokens{}, invalidCredentials()
	}
	if !creds.IsActive {
		s.logger.Warn("login refused: user inactive", "user_id", creds.UserID)
		return AuthTokens{}, userInactive()
	}

	s.logger.Info("user logged in", "user_id", creds.UserID)
	return s.issue(creds)
}

// RefreshTokens validates refresh token and returns new tokens
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokenGenerator.ValidateRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, tokenError(err)
	}

	creds, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return AuthTokens{}, err
	}
	return s.issue(creds)
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.tokenGenerator.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, tokenError(err)
	}
	return claims, nil
}

// Authorize resolves an access token to the principal of an active user.
func (s *Service) Authorize(ctx context.Context, accessToken string) (*internal.Principal, error) {
	claims, err := s.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}
	creds, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return creds.Principal(), nil
}

func (s *Service) activeUser(ctx context.Context, userID int64) (*Credentials, error) {
	creds, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load user for token", "error", err, "user_id", userID)
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if creds == nil {
		return nil, internal.NewUnauthorizedError("user no longer exists", internal.ErrCodeInvalidToken)
	}
	if !creds.IsActive {
		return nil, userInactive()
	}
	return creds, nil
}

func (s *Service) issue(creds *Credentials) (AuthTokens, error) {
	accessToken, err := s.tokenGenerator.GenerateAccessToken(creds.UserID, creds.Username)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue token", err)
	}
	refreshToken, err := s.tokenGenerator.GenerateRefreshToken(creds.UserID, creds.Username)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue token", err)
	}

	return AuthTokens{
		UserID:       creds.UserID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokenGenerator.AccessTTL().Seconds()),
	}, nil
}
