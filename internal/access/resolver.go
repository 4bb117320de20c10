package access

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/frahmantamala/iam-service/internal"
	"golang.org/x/sync/errgroup"
)

// Resolver computes effective permissions by walking user → groups → roles →
// permissions with one batched lookup per hop.
type Resolver struct {
	repo   Repository
	cache  PermissionCache
	logger *slog.Logger
	now    func() time.Time
}

func NewResolver(repo Repository, cache PermissionCache, logger *slog.Logger) *Resolver {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Resolver{
		repo:   repo,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// InvalidateAll drops every cached permission set. Called after any change
// to the graph.
func (r *Resolver) InvalidateAll(ctx context.Context) {
	r.cache.Invalidate(ctx)
}

// traverse walks the graph for userID. A missing user yields a closure with a
// nil User and no error.
func (r *Resolver) traverse(ctx context.Context, userID int64) (*Closure, error) {
	closure := &Closure{}

	user, err := r.repo.GetUserWithGroups(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user groups: %w", err)
	}
	if user == nil {
		r.logger.Debug("resolver: user not found", "user_id", userID)
		return closure, nil
	}
	closure.User = user
	if !user.IsActive || len(user.Groups) == 0 {
		return closure, nil
	}

	groupNames := make(map[int64]string, len(user.Groups))
	groupIDs := make([]int64, 0, len(user.Groups))
	for _, g := range user.Groups {
		if _, seen := groupNames[g.ID]; seen {
			continue
		}
		groupNames[g.ID] = g.Name
		groupIDs = append(groupIDs, g.ID)
		closure.Groups = append(closure.Groups, g)
	}

	groupRoles, err := r.repo.GetGroupRoles(ctx, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("load group roles: %w", err)
	}

	roleNames := make(map[int64]string)
	rolesByGroup := make(map[int64][]int64)
	roleIDs := make([]int64, 0, len(groupRoles))
	for _, edge := range groupRoles {
		rolesByGroup[edge.GroupID] = append(rolesByGroup[edge.GroupID], edge.RoleID)
		if _, seen := roleNames[edge.RoleID]; seen {
			continue
		}
		roleNames[edge.RoleID] = edge.RoleName
		roleIDs = append(roleIDs, edge.RoleID)
		closure.Roles = append(closure.Roles, RoleRef{ID: edge.RoleID, Name: edge.RoleName})
	}
	if len(roleIDs) == 0 {
		return closure, nil
	}

	rolePerms, err := r.repo.GetRolePermissions(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("load role permissions: %w", err)
	}

	permsByRole := make(map[int64][]EffectivePermission)
	seenPerm := make(map[int64]struct{})
	for _, edge := range rolePerms {
		permsByRole[edge.RoleID] = append(permsByRole[edge.RoleID], edge.Permission)
		if _, seen := seenPerm[edge.Permission.ID]; seen {
			continue
		}
		seenPerm[edge.Permission.ID] = struct{}{}
		closure.Permissions = append(closure.Permissions, edge.Permission)
	}
	sortPermissions(closure.Permissions)

	for _, groupID := range groupIDs {
		for _, roleID := range rolesByGroup[groupID] {
			for _, p := range permsByRole[roleID] {
				closure.Grants = append(closure.Grants, Grant{
					GroupID:    groupID,
					GroupName:  groupNames[groupID],
					RoleID:     roleID,
					RoleName:   roleNames[roleID],
					Permission: p,
				})
			}
		}
	}

	r.logger.Debug("resolver: closure computed",
		"user_id", userID,
		"groups", len(closure.Groups),
		"roles", len(closure.Roles),
		"permissions", len(closure.Permissions))

	return closure, nil
}

// GetUserPermissions returns the deduplicated effective permissions of a user.
// Unknown users and users without groups, roles or permissions get an empty set.
func (r *Resolver) GetUserPermissions(ctx context.Context, userID int64) ([]EffectivePermission, error) {
	cached, gen, ok := r.cache.Get(ctx, userID)
	if ok {
		return cached, nil
	}

	closure, err := r.traverse(ctx, userID)
	if err != nil {
		r.logger.Error("failed to resolve user permissions", "error", err, "user_id", userID)
		return nil, internal.NewInternalError("failed to resolve permissions", err)
	}

	perms := closure.Permissions
	if perms == nil {
		perms = []EffectivePermission{}
	}
	r.cache.Set(ctx, userID, gen, perms)
	return perms, nil
}

// CheckPermission reports whether the user holds action on moduleID. The
// action is compared as-is; unknown actions never match.
func (r *Resolver) CheckPermission(ctx context.Context, userID, moduleID int64, action string) (bool, error) {
	perms, err := r.GetUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return hasGrant(perms, moduleID, action), nil
}

func (r *Resolver) CheckPermissionByModuleName(ctx context.Context, userID int64, moduleName, action string) (bool, error) {
	module, err := r.lookupModule(ctx, moduleName)
	if err != nil {
		return false, err
	}
	return r.CheckPermission(ctx, userID, module.ID, action)
}

func (r *Resolver) lookupModule(ctx context.Context, name string) (*ModuleRef, error) {
	module, err := r.repo.GetModuleByName(ctx, name)
	if err != nil {
		r.logger.Error("failed to load module", "error", err, "module", name)
		return nil, internal.NewInternalError("failed to load module", err)
	}
	if module == nil {
		return nil, internal.NewNotFoundError(fmt.Sprintf("module %q not found", name), internal.ErrCodeModuleNotFound)
	}
	return module, nil
}

// GetAccessSummary reports the user's groups, roles and permissions grouped
// by module. Unlike the aggregate queries, an unknown user is NotFound.
func (r *Resolver) GetAccessSummary(ctx context.Context, userID int64) (*AccessSummary, error) {
	closure, err := r.traverse(ctx, userID)
	if err != nil {
		r.logger.Error("failed to build access summary", "error", err, "user_id", userID)
		return nil, internal.NewInternalError("failed to build access summary", err)
	}
	if closure.User == nil {
		return nil, userNotFound(userID)
	}

	user := *closure.User
	user.Groups = closure.Groups
	if user.Groups == nil {
		user.Groups = []GroupRef{}
	}

	summary := &AccessSummary{
		User:             user,
		Roles:            closure.Roles,
		Modules:          groupByModule(closure.Permissions),
		TotalPermissions: len(closure.Permissions),
		GeneratedAt:      r.now().UTC(),
	}
	if summary.Roles == nil {
		summary.Roles = []RoleRef{}
	}
	return summary, nil
}

// SimulateAccess answers whether the user may perform action on the named
// module and lists every group → role path granting it.
func (r *Resolver) SimulateAccess(ctx context.Context, userID int64, moduleName, action string) (*SimulationResult, error) {
	if !IsValidAction(action) {
		return nil, internal.NewValidationFieldError("action",
			fmt.Sprintf("action must be one of %v", CanonicalActions), internal.ErrCodeInvalidAction)
	}

	var (
		module  *ModuleRef
		closure *Closure
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		module, err = r.lookupModule(gctx, moduleName)
		return err
	})
	g.Go(func() error {
		var err error
		closure, err = r.traverse(gctx, userID)
		if err != nil {
			return internal.NewInternalError("failed to simulate access", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if closure.User == nil {
		return nil, userNotFound(userID)
	}

	result := &SimulationResult{
		UserID:     userID,
		ModuleID:   module.ID,
		ModuleName: module.Name,
		Action:     action,
		GrantedBy:  []GrantPath{},
	}
	for _, grant := range closure.Grants {
		if grant.Permission.ModuleID != module.ID || grant.Permission.Action != action {
			continue
		}
		result.GrantedBy = append(result.GrantedBy, GrantPath{
			GroupID:        grant.GroupID,
			GroupName:      grant.GroupName,
			RoleID:         grant.RoleID,
			RoleName:       grant.RoleName,
			PermissionID:   grant.Permission.ID,
			PermissionName: grant.Permission.Name,
		})
	}
	result.Allowed = len(result.GrantedBy) > 0
	return result, nil
}

func userNotFound(userID int64) error {
	return internal.NewNotFoundError(fmt.Sprintf("user %d not found", userID), internal.ErrCodeUserNotFound)
}

func hasGrant(perms []EffectivePermission, moduleID int64, action string) bool {
	for _, p := range perms {
		if p.ModuleID == moduleID && p.Action == action {
			return true
		}
	}
	return false
}

func sortPermissions(perms []EffectivePermission) {
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].ModuleName != perms[j].ModuleName {
			return perms[i].ModuleName < perms[j].ModuleName
		}
		if perms[i].Action != perms[j].Action {
			return perms[i].Action < perms[j].Action
		}
		return perms[i].ID < perms[j].ID
	})
}

// groupByModule expects perms sorted by module name.
func groupByModule(perms []EffectivePermission) []ModulePermissions {
	modules := []ModulePermissions{}
	index := make(map[int64]int)
	for _, p := range perms {
		i, ok := index[p.ModuleID]
		if !ok {
			i = len(modules)
			index[p.ModuleID] = i
			modules = append(modules, ModulePermissions{
				ModuleID:   p.ModuleID,
				ModuleName: p.ModuleName,
				Actions:    []string{},
			})
		}
		m := &modules[i]
		m.Permissions = append(m.Permissions, p)
		if !containsString(m.Actions, p.Action) {
			m.Actions = append(m.Actions, p.Action)
		}
	}
	return modules
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
