package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/iam-service/internal"
	permissionDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/permission"
	roleDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/role"
	"github.com/frahmantamala/iam-service/internal/permission"
	"gorm.io/gorm"
)

type PermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) permission.RepositoryAPI {
	return &PermissionRepository{db: db}
}

func (r *PermissionRepository) withModule(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("permissions p").
		Select("p.*, m.name AS module_name").
		Joins("JOIN modules m ON m.id = p.module_id")
}

func (r *PermissionRepository) List(ctx context.Context, filter permission.ListFilter) ([]*permission.Record, error) {
	q := r.withModule(ctx).Order("m.name ASC, p.name ASC, p.action ASC")
	if filter.ModuleID > 0 {
		q = q.Where("p.module_id = ?", filter.ModuleID)
	}
	if !filter.IncludeInactive {
		q = q.Where("p.is_active = ?", true)
	}

	var records []*permission.Record
	if err := q.Scan(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *PermissionRepository) GetByID(ctx context.Context, id int64) (*permission.Record, error) {
	return r.first(r.withModule(ctx).Where("p.id = ?", id))
}

func (r *PermissionRepository) GetByKey(ctx context.Context, name, action string, moduleID int64) (*permission.Record, error) {
	return r.first(r.withModule(ctx).Where("p.name = ? AND p.action = ? AND p.module_id = ?", name, action, moduleID))
}

func (r *PermissionRepository) first(q *gorm.DB) (*permission.Record, error) {
	var records []*permission.Record
	if err := q.Limit(1).Scan(&records).Error; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// ModuleExists reports whether moduleID names an active module.
func (r *PermissionRepository) ModuleExists(ctx context.Context, moduleID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&permissionDatamodel.Module{}).
		Where("id = ? AND is_active = ?", moduleID, true).
		Count(&n).Error
	return n > 0, err
}

func (r *PermissionRepository) Create(ctx context.Context, p *permissionDatamodel.Permission) error {
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *PermissionRepository) Update(ctx context.Context, p *permissionDatamodel.Permission) error {
	return translate(r.db.WithContext(ctx).Save(p).Error)
}

func (r *PermissionRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.db.WithContext(ctx).Model(&permissionDatamodel.Permission{}).Where("id = ?", id).Update("is_active", active).Error
}

func (r *PermissionRepository) HardDelete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("permission_id = ?", id).Delete(&roleDatamodel.RolePermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&permissionDatamodel.Permission{}, id).Error
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return internal.ErrDuplicateKey
	}
	return err
}
