// Package access resolves effective permissions across the
// user → group → role → permission graph and maintains the three
// association tables that make up that graph.
package access

import (
	"context"
	"time"
)

const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

var CanonicalActions = []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete}

func IsValidAction(action string) bool {
	for _, a := range CanonicalActions {
		if a == action {
			return true
		}
	}
	return false
}

// EffectivePermission is one permission a user can exercise, carrying its module.
type EffectivePermission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Action      string `json:"action"`
	ModuleID    int64  `json:"module_id"`
	ModuleName  string `json:"module_name"`
}

type UserNode struct {
	ID       int64      `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	IsActive bool       `json:"is_active"`
	Groups   []GroupRef `json:"groups"`
}

type GroupRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type RoleRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ModuleRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type GroupRoleEdge struct {
	GroupID  int64
	RoleID   int64
	RoleName string
}

type RolePermissionEdge struct {
	RoleID     int64
	Permission EffectivePermission
}

// Grant is one path through which a permission reaches a user.
type Grant struct {
	GroupID    int64               `json:"group_id"`
	GroupName  string              `json:"group_name"`
	RoleID     int64               `json:"role_id"`
	RoleName   string              `json:"role_name"`
	Permission EffectivePermission `json:"permission"`
}

// Closure is the outcome of walking the graph for one user.
type Closure struct {
	User        *UserNode
	Groups      []GroupRef
	Roles       []RoleRef
	Grants      []Grant
	Permissions []EffectivePermission
}

// Repository is the read side of the graph. Each method is one batched
// round trip; a missing user or module yields (nil, nil).
type Repository interface {
	GetUserWithGroups(ctx context.Context, userID int64) (*UserNode, error)
	GetGroupRoles(ctx context.Context, groupIDs []int64) ([]GroupRoleEdge, error)
	GetRolePermissions(ctx context.Context, roleIDs []int64) ([]RolePermissionEdge, error)
	GetModuleByName(ctx context.Context, name string) (*ModuleRef, error)
}

type ModulePermissions struct {
	ModuleID    int64                 `json:"module_id"`
	ModuleName  string                `json:"module_name"`
	Actions     []string              `json:"actions"`
	Permissions []EffectivePermission `json:"permissions"`
}

type AccessSummary struct {
	User             UserNode            `json:"user"`
	Roles            []RoleRef           `json:"roles"`
	Modules          []ModulePermissions `json:"modules"`
	TotalPermissions int                 `json:"total_permissions"`
	GeneratedAt      time.Time           `json:"generated_at"`
}

type GrantPath struct {
	GroupID        int64  `json:"group_id"`
	GroupName      string `json:"group_name"`
	RoleID         int64  `json:"role_id"`
	RoleName       string `json:"role_name"`
	PermissionID   int64  `json:"permission_id"`
	PermissionName string `json:"permission_name"`
}

type SimulationResult struct {
	UserID     int64       `json:"user_id"`
	ModuleID   int64       `json:"module_id"`
	ModuleName string      `json:"module_name"`
	Action     string      `json:"action"`
	Allowed    bool        `json:"allowed"`
	GrantedBy  []GrantPath `json:"granted_by"`
}
