package module

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
	List(ctx context.Context, includeInactive bool) ([]*permissionDatamodel.Module, error)
	GetByID(ctx context.Context, id int64) (*permissionDatamodel.Module, error)
	GetByName(ctx context.Context, name string) (*permissionDatamodel.Module, error)
	Create(ctx context.Context, module *permissionDatamodel.Module) error
	Update(ctx context.Context, module *permissionDatamodel.Module) error
	SetActive(ctx context.Context, id int64, active bool) error
	CountPermissions(ctx context.Context, id int64) (int64, error)
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

func (s *Service) List(ctx context.Context, includeInactive bool) ([]*Module, error) {
	rows, err := s.repo.List(ctx, includeInactive)
	if err != nil {
		s.logger.Error("failed to list modules", "error", err)
		return nil, internal.NewInternalError("failed to list modules", err)
	}
	modules := make([]*Module, 0, len(rows))
	for _, row := range rows {
		modules = append(modules, FromDataModel(row))
	}
	return modules, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Module, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDataModel(row), nil
}

func (s *Service) Create(ctx context.Context, dto CreateModuleDTO) (*Module, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, dto.Name, 0); err != nil {
		return nil, err
	}

	row := ToDataModel(NewModule(dto.Name, dto.Description))
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, s.writeError("create", dto.Name, err)
	}

	s.logger.Info("module created", "module_id", row.ID, "name", row.Name)
	return FromDataModel(row), nil
}

func (s *Service) Update(ctx context.Context, id int64, dto UpdateModuleDTO) (*Module, error) {
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

	s.logger.Info("module updated", "module_id", id)
	return FromDataModel(row), nil
}

// Deactivate soft-deletes the module. Modules that still own permissions are refused.
func (s *Service) Deactivate(ctx context.Context, id int64) (*Module, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNoPermissions(ctx, "deactivate", id); err != nil {
		return nil, err
	}
	return s.setActive(ctx, row, false)
}

func (s *Service) Activate(ctx context.Context, id int64) (*Module, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.setActive(ctx, row, true)
}

// Delete removes the module for good. Like Deactivate it is refused while
// permissions reference the module.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if err := s.ensureNoPermissions(ctx, "delete", id); err != nil {
		return err
	}
	if err := s.repo.HardDelete(ctx, id); err != nil {
		s.logger.Error("failed to delete module", "error", err, "module_id", id)
		return internal.NewInternalError("failed to delete module", err)
	}
	s.invalidator.InvalidateAll(ctx)

	s.logger.Info("module deleted", "module_id", id)
	return nil
}

func (s *Service) ensureNoPermissions(ctx context.Context, op string, id int64) error {
	n, err := s.repo.CountPermissions(ctx, id)
	if err != nil {
		s.logger.Error("failed to count module permissions", "error", err, "module_id", id)
		return internal.NewInternalError("failed to "+op+" module", err)
	}
	if n > 0 {
		s.logger.Warn("module "+op+" refused: module has permissions", "module_id", id, "permissions", n)
		return internal.NewValidationError(
			fmt.Sprintf("module %d still has %d permission(s); delete them first", id, n),
			internal.ErrCodeHasDependents,
		)
	}
	return nil
}

func (s *Service) setActive(ctx context.Context, row *permissionDatamodel.Module, active bool) (*Module, error) {
	if row.IsActive == active {
		return FromDataModel(row), nil
	}
	if err := s.repo.SetActive(ctx, row.ID, active); err != nil {
		s.logger.Error("failed to change module state", "error", err, "module_id", row.ID, "active", active)
		return nil, internal.NewInternalError("failed to change module state", err)
	}
	row.IsActive = active
	s.invalidator.InvalidateAll(ctx)

	s.logger.Info("module state changed", "module_id", row.ID, "active", active)
	return FromDataModel(row), nil
}

func (s *Service) find(ctx context.Context, id int64) (*permissionDatamodel.Module, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to load module", "error", err, "module_id", id)
		return nil, internal.NewInternalError("failed to load module", err)
	}
	if row == nil {
		return nil, internal.NewNotFoundError(fmt.Sprintf("module %d not found", id), internal.ErrCodeModuleNotFound)
	}
	return row, nil
}

func (s *Service) ensureNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.repo.GetByName(ctx, name)
	if err != nil {
		s.logger.Error("failed to check module name", "error", err, "name", name)
		return internal.NewInternalError("failed to check module name", err)
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
	s.logger.Error("failed to "+op+" module", "error", err, "name", name)
	return internal.NewInternalError("failed to "+op+" module", err)
}

func duplicateName(name string) error {
	return internal.NewConflictError(fmt.Sprintf("module %q already exists", name), internal.ErrCodeDuplicateName)
}
