package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/frahmantamala/iam-service/internal/access"
	"gorm.io/gorm"
)

// joinTable binds a Relation to its tables. right builds the base query over
// the right entity aliased as e, selecting access.RelatedEntity columns.
type joinTable struct {
	table       string
	leftTable   string
	leftColumn  string
	rightColumn string
	orderBy     string
	right       func(db *gorm.DB) *gorm.DB
}

// RelationStore persists one association table.
type RelationStore struct {
	db   *gorm.DB
	join joinTable
}

func NewGroupRoleStore(db *gorm.DB) access.RelationStore {
	return &RelationStore{db: db, join: joinTable{
		table:       access.GroupRoles.Table,
		leftTable:   "groups",
		leftColumn:  "group_id",
		rightColumn: "role_id",
		orderBy:     "e.name ASC",
		right: func(db *gorm.DB) *gorm.DB {
			return db.Table("roles e").
				Select("e.id AS id, e.name AS name, e.description AS description, e.is_active AS is_active")
		},
	}}
}

func NewGroupUserStore(db *gorm.DB) access.RelationStore {
	return &RelationStore{db: db, join: joinTable{
		table:       access.GroupUsers.Table,
		leftTable:   "groups",
		leftColumn:  "group_id",
		rightColumn: "user_id",
		orderBy:     "e.username ASC",
		right: func(db *gorm.DB) *gorm.DB {
			return db.Table("users e").
				Select("e.id AS id, e.username AS name, e.email AS email, e.is_active AS is_active")
		},
	}}
}

func NewRolePermissionStore(db *gorm.DB) access.RelationStore {
	return &RelationStore{db: db, join: joinTable{
		table:       access.RolePermissions.Table,
		leftTable:   "roles",
		leftColumn:  "role_id",
		rightColumn: "permission_id",
		orderBy:     "e.name ASC, e.action ASC",
		right: func(db *gorm.DB) *gorm.DB {
			return db.Table("permissions e").
				Select("e.id AS id, e.name AS name, e.description AS description, e.action AS action, " +
					"e.module_id AS module_id, m.name AS module_name, e.is_active AS is_active").
				Joins("JOIN modules m ON m.id = e.module_id")
		},
	}}
}

func (s *RelationStore) LeftExists(ctx context.Context, leftID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Table(s.join.leftTable).
		Where("id = ? AND is_active = ?", leftID, true).
		Count(&count).Error
	return count > 0, err
}

// FindRight loads the active right entities among rightIDs.
func (s *RelationStore) FindRight(ctx context.Context, rightIDs []int64) ([]access.RelatedEntity, error) {
	if len(rightIDs) == 0 {
		return nil, nil
	}
	var entities []access.RelatedEntity
	err := s.join.right(s.db.WithContext(ctx)).
		Where("e.id IN ? AND e.is_active = ?", rightIDs, true).
		Scan(&entities).Error
	return entities, err
}

func (s *RelationStore) ExistingPairs(ctx context.Context, leftID int64, rightIDs []int64) ([]int64, error) {
	if len(rightIDs) == 0 {
		return nil, nil
	}
	var ids []int64
	err := s.db.WithContext(ctx).
		Table(s.join.table).
		Where(s.join.leftColumn+" = ? AND "+s.join.rightColumn+" IN ?", leftID, rightIDs).
		Pluck(s.join.rightColumn, &ids).Error
	return ids, err
}

// Insert writes every pair in one multi-row statement. Pairs created
// concurrently by another request hit ON CONFLICT DO NOTHING and are left
// out of the returned ids.
func (s *RelationStore) Insert(ctx context.Context, leftID int64, rightIDs []int64) ([]int64, error) {
	if len(rightIDs) == 0 {
		return nil, nil
	}
	now := time.Now()
	values := make([]string, 0, len(rightIDs))
	args := make([]interface{}, 0, 3*len(rightIDs))
	for _, rightID := range rightIDs {
		values = append(values, "(?, ?, ?)")
		args = append(args, leftID, rightID, now)
	}
	query := "INSERT INTO " + s.join.table +
		" (" + s.join.leftColumn + ", " + s.join.rightColumn + ", created_at) VALUES " +
		strings.Join(values, ", ") +
		" ON CONFLICT DO NOTHING RETURNING " + s.join.rightColumn

	inserted := make([]int64, 0, len(rightIDs))
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&inserted).Error; err != nil {
		return nil, err
	}
	return inserted, nil
}

// Delete reports only the pairs this statement removed, so a pair deleted
// concurrently by another request is not counted twice.
func (s *RelationStore) Delete(ctx context.Context, leftID int64, rightIDs []int64) ([]int64, error) {
	if len(rightIDs) == 0 {
		return nil, nil
	}
	deleted := make([]int64, 0, len(rightIDs))
	err := s.db.WithContext(ctx).Raw(
		"DELETE FROM "+s.join.table+" WHERE "+s.join.leftColumn+" = ? AND "+s.join.rightColumn+" IN ? RETURNING "+s.join.rightColumn,
		leftID, rightIDs,
	).Scan(&deleted).Error
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *RelationStore) List(ctx context.Context, leftID int64) ([]access.RelatedEntity, error) {
	var entities []access.RelatedEntity
	err := s.join.right(s.db.WithContext(ctx)).
		Joins("JOIN "+s.join.table+" j ON j."+s.join.rightColumn+" = e.id").
		Where("j."+s.join.leftColumn+" = ?", leftID).
		Order(s.join.orderBy).
		Scan(&entities).Error
	return entities, err
}
