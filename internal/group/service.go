package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/access"
	groupDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/group"
)

type RepositoryAPI interface {
	List(ctx context.Context, includeInactive bool) ([]*groupDatamodel.Group, error)
	GetByID(ctx context.Context, id int64) (*groupDatamodel.Group, error)
	GetByName(ctx context.Context, name string) (*groupDatamodel.Group, error)
	Create(ctx context.Context, group *groupDatamodel.Group) error
	Update(ctx context.Context, group *groupDatamodel.Group) error
	SetActive(ctx context.Context, id int64, active bool) error
	CountMembers(ctx context.Context, id int64) (int64, error)
	// HardDelete removes the group and its user and role links in one transaction.
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

func (s *Service) List(ctx context.Context, includeInactive bool) ([]*Group, error) {
	rows, err := s.repo.List(ctx, includeInactive)
	if err != nil {
		s.logger.Error("failed to list groups", "error", err)
		return nil, internal.NewInternalError("failed to list groups", err)
	}
	groups := make([]*Group, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, FromDataModel(row))
	}
	return groups, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Group, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDataModel(row), nil
}

func (s *Service) Create(ctx context.Context, dto CreateGroupDTO) (*Group, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, dto.Name, 0); err != nil {
		return nil, err
	}

	row := ToDataModel(NewGroup(dto.Name, dto.Description))
	if err := s.repo.Create(ctx, row); err != nil {
		return nil, s.writeError("create", dto.Name, err)
	}

	s.logger.Info("group created", "group_id", row.ID, "name", row.Name)
	return FromDataModel(row), nil
}

func (s *Service) Update(ctx context.Context, id int64, dto UpdateGroupDTO) (*Group, error) {
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

	s.logger.Info("group updated", "group_id", id)
	return FromDataModel(row), nil
}

// Deactivate soft-deletes the group. Groups that still have members are refused.
func (s *Service) Deactivate(ctx context.Context, id int64) (*Group, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	members, err := s.repo.CountMembers(ctx, id)
	if err != nil {
		s.logger.Error("failed to count group members", "error", err, "group_id", id)
		return nil, internal.NewInternalError("failed to deactivate group", err)
	}
	if members > 0 {
		s.logger.Warn("group deactivation refused: group has members", "group_id", id, "members", members)
		return nil, internal.NewValidationError(
			fmt.Sprintf("group %d still has %d member(s); remove them first", id, members),
			internal.ErrCodeHasDependents,
		)
	}

	return s.setActive(ctx, row, false)
}

func (s *Service) Activate(ctx context.Context, id int64) (*Group, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.setActive(ctx, row, true)
}

// Delete removes the group for good, dropping its memberships and role links first.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if err := s.repo.HardDelete(ctx, id); err != nil {
		s.logger.Error("failed to delete group", "error", err, "group_id", id)
		return internal.NewInternalError("failed to delete group", err)
	}
	s.invalidator.InvalidateAll(ctx)

	s.logger.Info("group deleted", "group_id", id)
	return nil
}

func (s *Service) setActive(ctx context.Context, row *groupDatamodel.Group, active bool) (*Group, error) {
	if row.IsActive == active {
		return FromDataModel(row), nil
	}
	if err := s.repo.SetActive(ctx, row.ID, active); err != nil {
		s.logger.Error("failed to change group state", "error", err, "group_id", row.ID, "active", active)
		return nil, internal.NewInternalError("failed to change group state", err)
	}
	row.IsActive = active
	s.invalidator.InvalidateAll(ctx)

	s.logger.Info("group state changed", "group_id", row.ID, "active", active)
	return FromDataModel(row), nil
}

func (s *Service) find(ctx context.Context, id int64) (*groupDatamodel.Group, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("failed to load group", "error", err, "group_id", id)
		return nil, internal.NewInternalError("failed to load group", err)
	}
	if row == nil {
		return nil, internal.NewNotFoundError(fmt.Sprintf("group %d not found", id), internal.ErrCodeGroupNotFound)
	}
	return row, nil
}

func (s *Service) ensureNameFree(ctx context.Context, name string, selfID int64) error {
	existing, err := s.repo.GetByName(ctx, name)
	if err != nil {
		s.logger.Error("failed to check group name", "error", err, "name", name)
		return internal.NewInternalError("failed to check group name", err)
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
	s.logger.Error("failed to "+op+" group", "error", err, "name", name)
	return internal.NewInternalError("failed to "+op+" group", err)
}

func duplicateName(name string) error {
	return internal.NewConflictError(fmt.Sprintf("group %q already exists", name), internal.ErrCodeDuplicateName)
}
