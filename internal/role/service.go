package role

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/access"
	roleDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/role"
)

type RepositoryAPI interface {
	List(ctx context.Context, includeInactive bool) ([]*roleDatamodel.Role, error)
	GetByID(ctx context.Context, id int64) (*roleDatamodel.Role, error)
	GetByName(ctx context.Context, name string) (*roleDatamodel.Role, error)
	Create(ctx context.Context, role *roleDatamodel.Role) error
	Update(ctx context.Context, role *roleDatamodel.Role) error
	SetActive(ctx context.Context, id int64, active bool) error
	// CountGroups counts the groups the role is assigned to.
	CountGroups(ctx context.Context, id int64) (int64, error)
	// HardDelete removes the role and its group and permission links in one transaction.
	HardDelete(ctx context.Context, id int64) error
}

type Service struct {
	repo        RepositoryAPI
	invalidator access.Invalidator
	logger      *slog.Logger
}

func NewService(repo RepositoryAPI, invalidator access.Invalidator, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		invalidator: invalidator,
		logger:      logger,
	}
}

func (s *Service) List(ctx context.Context, includeInactive bool) ([]*Role, error) {
	rows, err := s.repo.List(ctx, includeInactive)
	if err != nil {
		s.logger.Error("failed to list roles", "error", err)
		return nil, internal.NewInternalError("failed to list roles", err)
	}
	roles := make([]*Role, 0, len(rows))
	for _, row := range rows {
		roles = append(roles, FromDataModel(row))
	}
	return roles, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Role, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDataModel(row), nil
}

func (s *Service) Create(ctx context.Context, dto CreateRoleDTO) (*Role, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, dto.Name, 0); err != nil {
		return nil, err
	}

	row := ToDataModel(NewRole(dto.Name, dto.Description))
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, s.writeError("create", dto.Name, err)
	}

	s.logger.Info("role created", "role_id", row.ID, "name", row.Name)
	return FromDataModel(row), nil
}

func (s *Service) Update(ctx context.Context, id int64, dto UpdateRoleDTO) (*Role, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if dto.Name != nil && *dto.Name != row.Name {
		if err := s.ensureNameFree(ctx, *dto.Name, id); err != nil {
			return nil, err
		}
		row.Name = *dto.Name
	}
	if dto.Description != nil {
		row.Description = *dto.Description
	}

	if err := s.repo.Update(ctx, row); err != nil {
		return nil, s.writeError("update", row.Name, err)
	}

	s.logger.Info("role updated", "role_id", id)
	return FromDataModel(row), nil
}

// Deactivate soft-deletes the role. Roles still assigned to a group are refused.
func (s *Service) Deactivate(ctx context.Context, id int64) (*Role, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	groups, err := s.repo.CountGroups(ctx, id)
	if err != nil {
		s.logger.Error("failed to count role groups", "error", err, "role_id", id)
		return nil, internal.NewInternalError("failed to deactivate role", err)
	}
	if groups > 0 {
		s.logger.Warn("role deactivation refused: role is assigned to groups", "role_id", id, "groups", groups)
		return nil, internal.NewValidationError(
			fmt.Sprintf("role %d is still assigned to %d group(s); unassign it first", id, groups),
			internal.ErrCodeHasDependents,
		)
	}

	return s.setActive(ctx, row, false)
}

func (s *Service) Activate(ctx context.Context, id int64) (*Role, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.setActive(ctx, row, true)
}

// Delete removes the role for good, unlinking it from groups and permissions first.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if err := s.repo.HardDelete(ctx, id); err != nil {
		s.logger.Error("failed to delete role", "error", err, "role_id", id)
		return internal.NewInternalError("failed to delete role", err)
	}
	s.invalidator.InvalidateAll(ctx)

	s.logger.Info("role deleted", "role_id", id)
	return nil
}

func (s *Service) setActive(ctx context.Context, row *roleDatamodel.Role, active bool) (*Role, error) {
	if row.IsActive == active {
		return FromDataModel(row), nil
	}
	if err := s.repo.SetActive(ctx, row.ID, active); err != nil {
		s.logger.Error("failed to change role state", "error", err, "role_id", row.ID, "active", active)
		return nil, internal.NewInternalError("failed to change role state", err)
	}
	row.IsActive = active
	s.invalidator.InvalidateAll(ctx)

	s.logger.Info("role state changed", "role_id", row.ID, "active", active)
	return FromDataModel(row), nil
}

func (s *Service) find(ctx context.Context, id int64) (*roleDatamodel.Role, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to load role", "error", err, "role_id", id)
		return nil, internal.NewInternalError("failed to load role", err)
	}
	if row == nil {
		return nil, internal.NewNotFoundError(fmt.Sprintf("role %d not found", id), internal.ErrCodeRoleNotFound)
	}
	return row, nil
}

func (s *Service) ensureNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.repo.GetByName(ctx, name)
	if err != nil {
		s.logger.Error("failed to check role name", "error", err, "name", name)
		return internal.NewInternalError("failed to check role name", err)
	}
	if existing != nil && existing.ID != selfID {
		return duplicateName(name)
	}
	return nil
}

// writeError reclassifies a unique violation that slipped past ensureNameFree.
func (s *Service) writeError(op, name string, err error) error {
	if errors.Is(err, internal.ErrDuplicateKey) {
		return duplicateName(name)
	}
	s.logger.Error("failed to "+op+" role", "error", err, "name", name)
	return internal.NewInternalError("failed to "+op+" role", err)
}

func duplicateName(name string) error {
	return internal.NewConflictError(fmt.Sprintf("role %q already exists", name), internal.ErrCodeDuplicateName)
}
