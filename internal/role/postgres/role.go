package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/iam-service/internal"
	groupDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/group"
	roleDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/role"
	"github.com/frahmantamala/iam-service/internal/role"
	"gorm.io/gorm"
)

type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) role.RepositoryAPI {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) List(ctx context.Context, includeInactive bool) ([]*roleDatamodel.Role, error) {
	var roles []*roleDatamodel.Role
	q := r.db.WithContext(ctx).Order("name ASC")
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&roles).Error
	return roles, err
}

func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*roleDatamodel.Role, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *RoleRepository) GetByName(ctx context.Context, name string) (*roleDatamodel.Role, error) {
	return r.first(ctx, "name = ?", name)
}

func (r *RoleRepository) first(ctx context.Context, query string, arg interface{}) (*roleDatamodel.Role, error) {
	var found roleDatamodel.Role
	if err := r.db.WithContext(ctx).Where(query, arg).First(&found).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &found, nil
}

func (r *RoleRepository) Create(ctx context.Context, row *roleDatamodel.Role) error {
	return translate(r.db.WithContext(ctx).Create(row).Error)
}

func (r *RoleRepository) Update(ctx context.Context, row *roleDatamodel.Role) error {
	return translate(r.db.WithContext(ctx).Save(row).Error)
}

func (r *RoleRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.db.WithContext(ctx).Model(&roleDatamodel.Role{}).Where("id = ?", id).Update("is_active", active).Error
}

func (r *RoleRepository) CountGroups(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&groupDatamodel.GroupRole{}).Where("role_id = ?", id).Count(&n).Error
	return n, err
}

func (r *RoleRepository) HardDelete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", id).Delete(&groupDatamodel.GroupRole{}).Error; err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", id).Delete(&roleDatamodel.RolePermission{}).Error; err != nil {
			return err
		}
		return tx.Delete(&roleDatamodel.Role{}, id).Error
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return internal.ErrDuplicateKey
	}
	return err
}
