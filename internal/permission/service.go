package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/access"
	permissionDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/permission"
)

type RepositoryAPI interface {
	List(ctx context.Context, filter ListFilter) ([]*Record, error)
	GetByID(ctx context.Context, id int64) (*Record, error)
	// GetByKey looks a permission up by its natural key.
	GetByKey(ctx context.Context, name, action string, moduleID int64) (*Record, error)
	ModuleExists(ctx context.Context, moduleID int64) (bool, error)
	Create(ctx context.Context, p *permissionDatamodel.Permission) error
	Update(ctx context.Context, p *permissionDatamodel.Permission) error
	SetActive(ctx context.Context, id int64, active bool) error
	// HardDelete removes the permission and its role links in one transaction.
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

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Permission, error) {
	if filter.ModuleID < 0 {
		return nil, internal.NewValidationFieldError("module_id", "must be a positive integer", internal.ErrCodeInvalidIDs)
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list permissions", "error", err, "module_id", filter.ModuleID)
		return nil, internal.NewInternalError("failed to list permissions", err)
	}
	perms := make([]*Permission, 0, len(rows))
	for _, row := range rows {
		perms = append(perms, FromRecord(row))
	}
	return perms, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Permission, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromRecord(row), nil
}

func (s *Service) Create(ctx context.Context, dto CreatePermissionDTO) (*Permission, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if err := s.requireModule(ctx, dto.ModuleID); err != nil {
		return nil, err
	}
	if err := s.ensureKeyFree(ctx, dto.Name, dto.Action, dto.ModuleID, 0); err != nil {
		return nil, err
	}

	row := &permissionDatamodel.Permission{
		Name:        dto.Name,
		Description: dto.Description,
		Action:      dto.Action,
		ModuleID:    dto.ModuleID,
		IsActive:    true,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, s.writeError("create", row, err)
	}

	s.logger.Info("permission created", "permission_id", row.ID, "name", row.Name, "action", row.Action, "module_id", row.ModuleID)
	return s.Get(ctx, row.ID)
}

func (s *Service) Update(ctx context.Context, id int64, dto UpdatePermissionDTO) (*Permission, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	row := current.Permission
	if dto.Name != nil {
		row.Name = *dto.Name
	}
	if dto.Description != nil {
		row.Description = *dto.Description
	}
	if dto.Action != nil {
		row.Action = *dto.Action
	}
	if dto.ModuleID != nil && *dto.ModuleID != row.ModuleID {
		if err := s.requireModule(ctx, *dto.ModuleID); err != nil {
			return nil, err
		}
		row.ModuleID = *dto.ModuleID
	}

	keyChanged := row.Name != current.Name || row.Action != current.Action || row.ModuleID != current.ModuleID
	if keyChanged {
		if err := s.ensureKeyFree(ctx, row.Name, row.Action, row.ModuleID, id); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, &row); err != nil {
		return nil, s.writeError("update", &row, err)
	}
	// cached grants carry action and module
	if keyChanged {
		s.invalidator.InvalidateAll(ctx)
	}

	s.logger.Info("permission updated", "permission_id", id)
	return s.Get(ctx, id)
}

func (s *Service) Deactivate(ctx context.Context, id int64) (*Permission, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) Activate(ctx context.Context, id int64) (*Permission, error) {
	return s.setActive(ctx, id, true)
}

// Delete removes the permission for good, unlinking it from every role first.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if err := s.repo.HardDelete(ctx, id); err != nil {
		s.logger.Error("failed to delete permission", "error", err, "permission_id", id)
		return internal.NewInternalError("failed to delete permission", err)
	}
	s.invalidator.InvalidateAll(ctx)

	s.logger.Info("permission deleted", "permission_id", id)
	return nil
}

func (s *Service) setActive(ctx context.Context, id int64, active bool) (*Permission, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.IsActive == active {
		return FromRecord(row), nil
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		s.logger.Error("failed to change permission state", "error", err, "permission_id", id, "active", active)
		return nil, internal.NewInternalError("failed to change permission state", err)
	}
	row.IsActive = active
	s.invalidator.InvalidateAll(ctx)

	s.logger.Info("permission state changed", "permission_id", id, "active", active)
	return FromRecord(row), nil
}

func (s *Service) find(ctx context.Context, id int64) (*Record, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to load permission", "error", err, "permission_id", id)
		return nil, internal.NewInternalError("failed to load permission", err)
	}
	if row == nil {
		return nil, internal.NewNotFoundError(fmt.Sprintf("permission %d not found", id), internal.ErrCodePermissionNotFound)
	}
	return row, nil
}

func (s *Service) requireModule(ctx context.Context, moduleID int64) error {
	ok, err := s.repo.ModuleExists(ctx, moduleID)
	if err != nil {
		s.logger.Error("failed to check module", "error", err, "module_id", moduleID)
		return internal.NewInternalError("failed to check module", err)
	}
	if !ok {
		return internal.NewNotFoundError(fmt.Sprintf("module %d not found", moduleID), internal.ErrCodeModuleNotFound)
	}
	return nil
}

func (s *Service) ensureKeyFree(ctx context.Context, name, action string, moduleID, selfID int64) error {
	existing, err := s.repo.GetByKey(ctx, name, action, moduleID)
	if err != nil {
		s.logger.Error("failed to check permission key", "error", err, "name", name)
		return internal.NewInternalError("failed to check permission key", err)
	}
	if existing != nil && existing.ID != selfID {
		return duplicatePermission(name, action, moduleID)
	}
	return nil
}

func (s *Service) writeError(op string, row *permissionDatamodel.Permission, err error) error {
	if errors.Is(err, internal.ErrDuplicateKey) {
		return duplicatePermission(row.Name, row.Action, row.ModuleID)
	}
	s.logger.Error("failed to "+op+" permission", "error", err, "name", row.Name)
	return internal.NewInternalError("failed to "+op+" permission", err)
}

func duplicatePermission(name, action string, moduleID int64) error {
	return internal.NewConflictError(
		fmt.Sprintf("permission %q with action %q already exists in module %d", name, action, moduleID),
		internal.ErrCodeDuplicatePermission,
	)
}
