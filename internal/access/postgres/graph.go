package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/iam-service/internal/access"
	permissionDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/permission"
	userDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/user"
	"gorm.io/gorm"
)

// GraphRepository reads the user → group → role → permission graph. Inactive
// groups, roles, permissions and modules are invisible to it.
type GraphRepository struct {
	db *gorm.DB
}

func NewGraphRepository(db *gorm.DB) access.Repository {
	return &GraphRepository{db: db}
}

func (r *GraphRepository) GetUserWithGroups(ctx context.Context, userID int64) (*access.UserNode, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var groups []access.GroupRef
	err = r.db.WithContext(ctx).
		Table("user_groups ug").
		Select("g.id AS id, g.name AS name").
		Joins(`JOIN "groups" g ON g.id = ug.group_id`).
		Where("ug.user_id = ? AND g.is_active = ?", userID, true).
		Order("g.name ASC").
		Scan(&groups).Error
	if err != nil {
		return nil, err
	}

	return &access.UserNode{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		IsActive: u.IsActive,
		Groups:   groups,
	}, nil
}

func (r *GraphRepository) GetGroupRoles(ctx context.Context, groupIDs []int64) ([]access.GroupRoleEdge, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var edges []access.GroupRoleEdge
	err := r.db.WithContext(ctx).
		Table("group_roles gr").
		Select("gr.group_id AS group_id, r.id AS role_id, r.name AS role_name").
		Joins("JOIN roles r ON r.id = gr.role_id").
		Where("gr.group_id IN ? AND r.is_active = ?", groupIDs, true).
		Order("gr.group_id ASC, r.name ASC").
		Scan(&edges).Error
	return edges, err
}

type rolePermissionRow struct {
	RoleID      int64
	ID          int64
	Name        string
	Description string
	Action      string
	ModuleID    int64
	ModuleName  string
}

func (r *GraphRepository) GetRolePermissions(ctx context.Context, roleIDs []int64) ([]access.RolePermissionEdge, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var rows []rolePermissionRow
	err := r.db.WithContext(ctx).
		Table("role_permissions rp").
		Select("rp.role_id AS role_id, p.id AS id, p.name AS name, p.description AS description, " +
			"p.action AS action, p.module_id AS module_id, m.name AS module_name").
		Joins("JOIN permissions p ON p.id = rp.permission_id").
		Joins("JOIN modules m ON m.id = p.module_id").
		Where("rp.role_id IN ? AND p.is_active = ? AND m.is_active = ?", roleIDs, true, true).
		Order("rp.role_id ASC, p.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	edges := make([]access.RolePermissionEdge, 0, len(rows))
	for _, row := range rows {
		edges = append(edges, access.RolePermissionEdge{
			RoleID: row.RoleID,
			Permission: access.EffectivePermission{
				ID:          row.ID,
				Name:        row.Name,
				Description: row.Description,
				Action:      row.Action,
				ModuleID:    row.ModuleID,
				ModuleName:  row.ModuleName,
			},
		})
	}
	return edges, nil
}

func (r *GraphRepository) GetModuleByName(ctx context.Context, name string) (*access.ModuleRef, error) {
	var m permissionDatamodel.Module
	err := r.db.WithContext(ctx).Where("name = ? AND is_active = ?", name, true).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &access.ModuleRef{ID: m.ID, Name: m.Name}, nil
}
