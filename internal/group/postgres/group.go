package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/iam-service/internal"
	groupDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/group"
	"github.com/frahmantamala/iam-service/internal/group"
	"gorm.io/gorm"
)

type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) group.RepositoryAPI {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) List(ctx context.Context, includeInactive bool) ([]*groupDatamodel.Group, error) {
	var groups []*groupDatamodel.Group
	q := r.db.WithContext(ctx).Order("name ASC")
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&groups).Error
	return groups, err
}

func (r *GroupRepository) GetByID(ctx context.Context, id int64) (*groupDatamodel.Group, error) {
	var g groupDatamodel.Group
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&g).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (r *GroupRepository) GetByName(ctx context.Context, name string) (*groupDatamodel.Group, error) {
	var g groupDatamodel.Group
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&g).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (r *GroupRepository) Create(ctx context.Context, g *groupDatamodel.Group) error {
	return translate(r.db.WithContext(ctx).Create(g).Error)
}

func (r *GroupRepository) Update(ctx context.Context, g *groupDatamodel.Group) error {
	return translate(r.db.WithContext(ctx).Save(g).Error)
}

func (r *GroupRepository) SetActive(ctx context.Context, id int64, active bool) error {
	return r.db.WithContext(ctx).Model(&groupDatamodel.Group{}).Where("id = ?", id).Update("is_active", active).Error
}

func (r *GroupRepository) CountMembers(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&groupDatamodel.UserGroup{}).Where("group_id = ?", id).Count(&n).Error
	return n, err
}

func (r *GroupRepository) HardDelete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", id).Delete(&groupDatamodel.UserGroup{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&groupDatamodel.GroupRole{}).Error; err != nil {
			return err
		}
		return tx.Delete(&groupDatamodel.Group{}, id).Error
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return internal.ErrDuplicateKey
	}
	return err
}
