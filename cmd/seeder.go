package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/frahmantamala/iam-service/internal/access"
	groupDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/group"
	permissionDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/permission"
	roleDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/role"
	userDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/user"
	"github.com/frahmantamala/iam-service/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	clearData bool
	seedFile  string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with bootstrap data",
	Long:  `Create the modules, permissions, roles, groups and users listed in a YAML fixture. Existing rows are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := mustLoadConfig()
		lg := logger.LoggerWrapper()
		ctx := context.Background()

		fixture, err := loadSeedFixture(seedFile)
		if err != nil {
			return err
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}

		report, err := applySeed(ctx, db, fixture, cfg.Security.BCryptCost, clearData)
		if err != nil {
			return err
		}
		lg.Info("seed applied",
			"modules", report.Modules,
			"permissions", report.Permissions,
			"roles", report.Roles,
			"groups", report.Groups,
			"users", report.Users,
			"links", report.Links)

		// a shared cache may still hold permission sets from before the seed
		if cfg.Cache.Driver == "redis" {
			deps := &Dependencies{Logger: lg}
			cache, err := buildCache(ctx, cfg.Cache, deps)
			if err != nil {
				return err
			}
			cache.Invalidate(ctx)
			deps.Close()
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "db/seed.yml", "YAML seed fixture")
}

type seedModule struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Actions     []string `yaml:"actions"`
}

type seedRole struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Grants maps a module name to actions; "*" stands for every module or
	// every action the module declares.
	Grants map[string][]string `yaml:"grants"`
}

type seedGroup struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Roles       []string `yaml:"roles"`
}

type seedUser struct {
	Username  string   `yaml:"username"`
	Email     string   `yaml:"email"`
	Password  string   `yaml:"password"`
	FirstName string   `yaml:"first_name"`
	LastName  string   `yaml:"last_name"`
	Groups    []string `yaml:"groups"`
}

type seedFixture struct {
	Modules []seedModule `yaml:"modules"`
	Roles   []seedRole   `yaml:"roles"`
	Groups  []seedGroup  `yaml:"groups"`
	Users   []seedUser   `yaml:"users"`
}

// seedReport counts rows the seed created, not rows it found.
type seedReport struct {
	Modules     int64
	Permissions int64
	Roles       int64
	Groups      int64
	Users       int64
	Links       int64
}

func loadSeedFixture(path string) (*seedFixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed fixture: %w", err)
	}
	return parseSeedFixture(raw)
}

func parseSeedFixture(raw []byte) (*seedFixture, error) {
	var fixture seedFixture
	if err := yaml.Unmarshal(raw, &fixture); err != nil {
		return nil, fmt.Errorf("parse seed fixture: %w", err)
	}
	for i := range fixture.Modules {
		m := &fixture.Modules[i]
		if len(m.Actions) == 0 {
			m.Actions = append([]string(nil), access.CanonicalActions...)
		}
		for _, a := range m.Actions {
			if !access.IsValidAction(a) {
				return nil, fmt.Errorf("module %s: invalid action %q", m.Name, a)
			}
		}
	}
	return &fixture, nil
}

// permissionName derives the seeded permission name, e.g. read_users.
func permissionName(moduleName, action string) string {
	return action + "_" + strings.ReplaceAll(strings.ToLower(moduleName), " ", "_")
}

// seededTables lists IAM tables children first.
var seededTables = []string{
	"role_permissions", "group_roles", "user_groups",
	"permissions", "modules", "roles", "groups", "users",
}

func applySeed(ctx context.Context, db *gorm.DB, fixture *seedFixture, bcryptCost int, clear bool) (*seedReport, error) {
	report := &seedReport{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if clear {
			for _, table := range seededTables {
				if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
					return fmt.Errorf("clear %s: %w", table, err)
				}
			}
		}

		s := &seeder{tx: tx, report: report, cost: bcryptCost}
		if err := s.modules(fixture.Modules); err != nil {
			return err
		}
		if err := s.roles(fixture.Roles); err != nil {
			return err
		}
		if err := s.groups(fixture.Groups); err != nil {
			return err
		}
		return s.users(fixture.Users)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

type seeder struct {
	tx     *gorm.DB
	report *seedReport
	cost   int

	moduleActions map[string][]string
	// permissionIDs is keyed by module name, then action.
	permissionIDs map[string]map[string]int64
	roleIDs       map[string]int64
	groupIDs      map[string]int64
}

func (s *seeder) modules(modules []seedModule) error {
	s.moduleActions = map[string][]string{}
	s.permissionIDs = map[string]map[string]int64{}

	for _, m := range modules {
		row := permissionDatamodel.Module{}
		res := s.tx.Where("name = ?", m.Name).
			Attrs(permissionDatamodel.Module{Name: m.Name, Description: m.Description, IsActive: true}).
			FirstOrCreate(&row)
		if res.Error != nil {
			return fmt.Errorf("seed module %s: %w", m.Name, res.Error)
		}
		s.report.Modules += res.RowsAffected
		s.moduleActions[m.Name] = m.Actions
		s.permissionIDs[m.Name] = map[string]int64{}

		for _, action := range m.Actions {
			name := permissionName(m.Name, action)
			perm := permissionDatamodel.Permission{}
			res := s.tx.Where("name = ? AND action = ? AND module_id = ?", name, action, row.ID).
				Attrs(permissionDatamodel.Permission{
					Name:        name,
					Action:      action,
					ModuleID:    row.ID,
					Description: fmt.Sprintf("%s %s", action, m.Name),
					IsActive:    true,
				}).
				FirstOrCreate(&perm)
			if res.Error != nil {
				return fmt.Errorf("seed permission %s: %w", name, res.Error)
			}
			s.report.Permissions += res.RowsAffected
			s.permissionIDs[m.Name][action] = perm.ID
		}
	}
	return nil
}

// grantedPermissions expands a role's grants into permission ids.
func (s *seeder) grantedPermissions(r seedRole) ([]int64, error) {
	seen := map[int64]bool{}
	var ids []int64
	add := func(moduleName string, actions []string) error {
		declared, ok := s.moduleActions[moduleName]
		if !ok {
			return fmt.Errorf("role %s: unknown module %s", r.Name, moduleName)
		}
		for _, action := range actions {
			if action == "*" {
				for _, a := range declared {
					if id := s.permissionIDs[moduleName][a]; !seen[id] {
						seen[id] = true
						ids = append(ids, id)
					}
				}
				continue
			}
			id, ok := s.permissionIDs[moduleName][action]
			if !ok {
				// a wildcard module grant skips modules lacking the action
				if _, wildcard := r.Grants["*"]; wildcard {
					continue
				}
				return fmt.Errorf("role %s: module %s has no %s permission", r.Name, moduleName, action)
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		return nil
	}

	names := make([]string, 0, len(r.Grants))
	for name := range r.Grants {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, moduleName := range names {
		actions := r.Grants[moduleName]
		if moduleName != "*" {
			if err := add(moduleName, actions); err != nil {
				return nil, err
			}
			continue
		}
		for name := range s.moduleActions {
			if err := add(name, actions); err != nil {
				return nil, err
			}
		}
	}
	return ids, nil
}

func (s *seeder) roles(roles []seedRole) error {
	s.roleIDs = map[string]int64{}
	for _, r := range roles {
		row := roleDatamodel.Role{}
		res := s.tx.Where("name = ?", r.Name).
			Attrs(roleDatamodel.Role{Name: r.Name, Description: r.Description, IsActive: true}).
			FirstOrCreate(&row)
		if res.Error != nil {
			return fmt.Errorf("seed role %s: %w", r.Name, res.Error)
		}
		s.report.Roles += res.RowsAffected
		s.roleIDs[r.Name] = row.ID

		permIDs, err := s.grantedPermissions(r)
		if err != nil {
			return err
		}
		links := make([]roleDatamodel.RolePermission, 0, len(permIDs))
		for _, id := range permIDs {
			links = append(links, roleDatamodel.RolePermission{RoleID: row.ID, PermissionID: id})
		}
		if err := s.link(&links, len(links)); err != nil {
			return fmt.Errorf("grant permissions to role %s: %w", r.Name, err)
		}
	}
	return nil
}

func (s *seeder) groups(groups []seedGroup) error {
	s.groupIDs = map[string]int64{}
	for _, g := range groups {
		row := groupDatamodel.Group{}
		res := s.tx.Where("name = ?", g.Name).
			Attrs(groupDatamodel.Group{Name: g.Name, Description: g.Description, IsActive: true}).
			FirstOrCreate(&row)
		if res.Error != nil {
			return fmt.Errorf("seed group %s: %w", g.Name, res.Error)
		}
		s.report.Groups += res.RowsAffected
		s.groupIDs[g.Name] = row.ID

		links := make([]groupDatamodel.GroupRole, 0, len(g.Roles))
		for _, roleName := range g.Roles {
			roleID, ok := s.roleIDs[roleName]
			if !ok {
				return fmt.Errorf("group %s: unknown role %s", g.Name, roleName)
			}
			links = append(links, groupDatamodel.GroupRole{GroupID: row.ID, RoleID: roleID})
		}
		if err := s.link(&links, len(links)); err != nil {
			return fmt.Errorf("assign roles to group %s: %w", g.Name, err)
		}
	}
	return nil
}

func (s *seeder) users(users []seedUser) error {
	for _, u := range users {
		row := userDatamodel.User{}
		err := s.tx.Where("username = ?", u.Username).First(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), s.cost)
			if err != nil {
				return fmt.Errorf("hash password for %s: %w", u.Username, err)
			}
			row = userDatamodel.User{
				Username:     u.Username,
				Email:        strings.ToLower(u.Email),
				PasswordHash: string(hash),
				FirstName:    optional(u.FirstName),
				LastName:     optional(u.LastName),
				IsActive:     true,
			}
			if err := s.tx.Create(&row).Error; err != nil {
				return fmt.Errorf("seed user %s: %w", u.Username, err)
			}
			s.report.Users++
		case err != nil:
			return fmt.Errorf("look up user %s: %w", u.Username, err)
		}

		links := make([]groupDatamodel.UserGroup, 0, len(u.Groups))
		for _, groupName := range u.Groups {
			groupID, ok := s.groupIDs[groupName]
			if !ok {
				return fmt.Errorf("user %s: unknown group %s", u.Username, groupName)
			}
			links = append(links, groupDatamodel.UserGroup{UserID: row.ID, GroupID: groupID})
		}
		if err := s.link(&links, len(links)); err != nil {
			return fmt.Errorf("add user %s to groups: %w", u.Username, err)
		}
	}
	return nil
}

// link inserts join rows, skipping pairs that already exist.
func (s *seeder) link(rows interface{}, n int) error {
	if n == 0 {
		return nil
	}
	res := s.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rows)
	if res.Error != nil {
		return res.Error
	}
	s.report.Links += res.RowsAffected
	return nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
