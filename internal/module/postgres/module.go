package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/iam-service/internal"
	permissionDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/permission"
	"github.com/frahmantamala/iam-service/internal/module"
	"gorm.io/gorm"
)

type ModuleRepository struct {
	db *gorm.DB
}

func NewModuleRepository(db *gorm.DB) module.RepositoryAPI {
	return &ModuleRepository{db: db}
}

func (r *ModuleRepository) List(ctx context.Context, includeInactive bool) ([]*permissionDatamodel.Module, error) {
	var modules []*permissionDatamodel.Module
	q := r.db.WithContext(ctx).Order("name ASC")
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&modules).Error
	return modules, err
}

func (r *ModuleRepository) GetByID(ctx context.Context, id int64) (*permissionDatamodel.Module, error) {
	var m permissionDatamodel.Module
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *ModuleRepository) GetByName(ctx context.Context, name string) (*permissionDatamodel.Module, error) {
	var m permissionDatamodel.Module
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *ModuleRepository) Create(ctx context.Context, m *permissionDatamodel.Module) error {
	err := r.db.WithContext(ctx).Create(m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return internal.ErrDuplicateKey
	}
	return err
}

func (r *ModuleRepository) Update(ctx context.Context, m *permissionDatamodel.Module) error {
	err := r.db.WithContext(ctx).Save(m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return internal.ErrDuplicateKey
	}
	return err
}

func (r *ModuleRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.db.WithContext(ctx).Model(&permissionDatamodel.Module{}).Where("id = ?", id).Update("is_active", active).Error
}

// CountPermissions counts active and inactive permissions alike.
func (r *ModuleRepository) CountPermissions(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&permissionDatamodel.Permission{}).Where("module_id = ?", id).Count(&n).Error
	return n, err
}

func (r *ModuleRepository) HardDelete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&permissionDatamodel.Module{}, id).Error
}
