package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/access"
	userDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/user"
	"golang.org/x/crypto/bcrypt"
)

type RepositoryAPI interface {
	List(ctx context.Context, includeInactive bool) ([]*userDatamodel.User, error)
	GetByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	GetByUsername(ctx context.Context, username string) (*userDatamodel.User, error)
	GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	Create(ctx context.Context, u *userDatamodel.User) error
	Update(ctx context.Context, u *userDatamodel.User) error
	SetActive(ctx context.Context, id int64, active bool) error
	// HardDelete removes the user and its group memberships in one transaction.
	HardDelete(ctx context.Context, id int64) error
}

type Service struct {
	repo        RepositoryAPI
	invalidator access.Invalidator
	bcryptCost  int
	logger      *slog.Logger
}

func NewService(repo RepositoryAPI, invalidator access.Invalidator, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:        repo,
		invalidator: invalidator,
		bcryptCost:  bcryptCost,
		logger:      logger,
	}
}

func (s *Service) List(ctx context.Context, includeInactive bool) ([]*User, error) {
	rows, err := s.repo.List(ctx, includeInactive)
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		return nil, internal.NewInternalError("failed to list users", err)
	}
	users := make([]*User, 0, len(rows))
	for _, row := range rows {
		users = append(users, FromDataModel(row))
	}
	return users, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDataModel(row), nil
}

func (s *Service) Create(ctx context.Context, dto CreateUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureUsernameFree(ctx, dto.Username); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, dto.Email, 0); err != nil {
		return nil, err
	}

	hash, err := s.HashPassword(dto.Password)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		return nil, internal.NewInternalError("failed to create user", err)
	}

	row := &userDatamodel.User{
		Username:     dto.Username,
		Email:        dto.Email,
		PasswordHash: hash,
		FirstName:    dto.FirstName,
		LastName:     dto.LastName,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, s.writeError(ctx, "create", row, err)
	}

	s.logger.Info("user created", "user_id", row.ID, "username", row.Username)
	return FromDataModel(row), nil
}

func (s *Service) Update(ctx context.Context, id int64, dto UpdateUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if dto.Email != nil && *dto.Email != row.Email {
		if err := s.ensureEmailFree(ctx, *dto.Email, id); err != nil {
			return nil, err
		}
		row.Email = *dto.Email
	}
	if dto.Password != nil {
		hash, err := s.HashPassword(*dto.Password)
		if err != nil {
			s.logger.Error("failed to hash password", "error", err, "user_id", id)
			return nil, internal.NewInternalError("failed to update user", err)
		}
		row.PasswordHash = hash
	}
	if dto.FirstName != nil {
		row.FirstName = dto.FirstName
	}
	if dto.LastName != nil {
		row.LastName = dto.LastName
	}

	if err := s.repo.Update(ctx, row); err != nil {
		return nil, s.writeError(ctx, "update", row, err)
	}

	s.logger.Info("user updated", "user_id", id, "password_changed", dto.Password != nil)
	return FromDataModel(row), nil
}

func (s *Service) Deactivate(ctx context.Context, id int64) (*User, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) Activate(ctx context.Context, id int64) (*User, error) {
	return s.setActive(ctx, id, true)
}

// Delete removes the user for good, dropping its group memberships first.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if err := s.repo.HardDelete(ctx, id); err != nil {
		s.logger.Error("failed to delete user", "error", err, "user_id", id)
		return internal.NewInternalError("failed to delete user", err)
	}
	s.invalidator.InvalidateAll(ctx)

	s.logger.Info("user deleted", "user_id", id)
	return nil
}

// HashPassword creates a bcrypt hash of the password
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) setActive(ctx context.Context, id int64, active bool) (*User, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.IsActive == active {
		return FromDataModel(row), nil
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		s.logger.Error("failed to change user state", "error", err, "user_id", id, "active", active)
		return nil, internal.NewInternalError("failed to change user state", err)
	}
	row.IsActive = active
	s.invalidator.InvalidateAll(ctx)

	s.logger.Info("user state changed", "user_id", id, "active", active)
	return FromDataModel(row), nil
}

func (s *Service) find(ctx context.Context, id int64) (*userDatamodel.User, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to load user", "error", err, "user_id", id)
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if row == nil {
		return nil, internal.NewNotFoundError(fmt.Sprintf("user %d not found", id), internal.ErrCodeUserNotFound)
	}
	return row, nil
}

func (s *Service) ensureUsernameFree(ctx context.Context, username string) error {
	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		s.logger.Error("failed to check username", "error", err, "username", username)
		return internal.NewInternalError("failed to check username", err)
	}
	if existing != nil {
		return duplicateUsername(username)
	}
	return nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string, selfID int64) error {
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Error("failed to check email", "error", err)
		return internal.NewInternalError("failed to check email", err)
	}
	if existing != nil && existing.ID != selfID {
		return duplicateEmail(email)
	}
	return nil
}

// writeError tells the two unique keys apart after a unique violation by
// looking each of them up again.
func (s *Service) writeError(ctx context.Context, op string, row *userDatamodel.User, err error) error {
	if errors.Is(err, internal.ErrDuplicateKey) {
		if existing, lookupErr := s.repo.GetByUsername(ctx, row.Username); lookupErr == nil && existing != nil && existing.ID != row.ID {
			return duplicateUsername(row.Username)
		}
		return duplicateEmail(row.Email)
	}
	s.logger.Error("failed to "+op+" user", "error", err, "username", row.Username)
	return internal.NewInternalError("failed to "+op+" user", err)
}

func duplicateUsername(username string) error {
	return internal.NewConflictError(fmt.Sprintf("username %q is already taken", username), internal.ErrCodeDuplicateUsername)
}

func duplicateEmail(email string) error {
	return internal.NewConflictError(fmt.Sprintf("email %q is already registered", email), internal.ErrCodeDuplicateEmail)
}
