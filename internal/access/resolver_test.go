package access_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/access"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeGraph is an in-memory access.Repository that counts calls per method.
type fakeGraph struct {
	users      map[int64]*access.UserNode
	groupRoles map[int64][]access.GroupRoleEdge
	rolePerms  map[int64][]access.RolePermissionEdge
	modules    map[string]*access.ModuleRef
	failOn     string

	// afterRolePermissions runs once the role permissions have been read,
	// standing in for a write that commits mid-traversal.
	afterRolePermissions func()

	mu    sync.Mutex
	calls map[string]int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		users:      map[int64]*access.UserNode{},
		groupRoles: map[int64][]access.GroupRoleEdge{},
		rolePerms:  map[int64][]access.RolePermissionEdge{},
		modules:    map[string]*access.ModuleRef{},
		calls:      map[string]int{},
	}
}

var errStore = errors.New("connection reset")

func (f *fakeGraph) hit(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if f.failOn == method {
		return errStore
	}
	return nil
}

func (f *fakeGraph) GetUserWithGroups(_ context.Context, userID int64) (*access.UserNode, error) {
	if err := f.hit("GetUserWithGroups"); err != nil {
		return nil, err
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeGraph) GetGroupRoles(_ context.Context, groupIDs []int64) ([]access.GroupRoleEdge, error) {
	if err := f.hit("GetGroupRoles"); err != nil {
		return nil, err
	}
	var out []access.GroupRoleEdge
	for _, id := range groupIDs {
		out = append(out, f.groupRoles[id]...)
	}
	return out, nil
}

func (f *fakeGraph) GetRolePermissions(_ context.Context, roleIDs []int64) ([]access.RolePermissionEdge, error) {
	if err := f.hit("GetRolePermissions"); err != nil {
		return nil, err
	}
	var out []access.RolePermissionEdge
	for _, id := range roleIDs {
		out = append(out, f.rolePerms[id]...)
	}
	if f.afterRolePermissions != nil {
		f.afterRolePermissions()
	}
	return out, nil
}

func (f *fakeGraph) GetModuleByName(_ context.Context, name string) (*access.ModuleRef, error) {
	if err := f.hit("GetModuleByName"); err != nil {
		return nil, err
	}
	return f.modules[name], nil
}

func (f *fakeGraph) addUser(id int64, groups ...access.GroupRef) {
	f.users[id] = &access.UserNode{ID: id, Username: "user", Email: "user@example.com", IsActive: true, Groups: groups}
}

func (f *fakeGraph) grantRole(groupID int64, role access.RoleRef) {
	f.groupRoles[groupID] = append(f.groupRoles[groupID], access.GroupRoleEdge{GroupID: groupID, RoleID: role.ID, RoleName: role.Name})
}

func (f *fakeGraph) grantPermission(roleID int64, p access.EffectivePermission) {
	f.rolePerms[roleID] = append(f.rolePerms[roleID], access.RolePermissionEdge{RoleID: roleID, Permission: p})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		graph    *fakeGraph
		resolver *access.Resolver

		usersModule  = &access.ModuleRef{ID: 10, Name: "Users"}
		groupsModule = &access.ModuleRef{ID: 20, Name: "Groups"}

		readUsers   = access.EffectivePermission{ID: 100, Name: "read_users", Action: "read", ModuleID: 10, ModuleName: "Users"}
		deleteUsers = access.EffectivePermission{ID: 101, Name: "delete_users", Action: "delete", ModuleID: 10, ModuleName: "Users"}
		readGroups  = access.EffectivePermission{ID: 200, Name: "read_groups", Action: "read", ModuleID: 20, ModuleName: "Groups"}
	)

	BeforeEach(func() {
		ctx = context.Background()
		graph = newFakeGraph()
		graph.modules["Users"] = usersModule
		graph.modules["Groups"] = groupsModule
		resolver = access.NewResolver(graph, nil, testLogger())
	})

	Describe("GetUserPermissions", func() {
		Context("with a single group, role and permission", func() {
			BeforeEach(func() {
				graph.addUser(1, access.GroupRef{ID: 5, Name: "G"})
				graph.grantRole(5, access.RoleRef{ID: 7, Name: "R"})
				graph.grantPermission(7, readUsers)
			})

			It("should return exactly that permission", func() {
				perms, err := resolver.GetUserPermissions(ctx, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(perms).To(Equal([]access.EffectivePermission{readUsers}))
			})

			It("should answer point checks from the resolved set", func() {
				allowed, err := resolver.CheckPermission(ctx, 1, usersModule.ID, "read")
				Expect(err).NotTo(HaveOccurred())
				Expect(allowed).To(BeTrue())

				allowed, err = resolver.CheckPermission(ctx, 1, usersModule.ID, "delete")
				Expect(err).NotTo(HaveOccurred())
				Expect(allowed).To(BeFalse())
			})

			It("should treat unknown actions as no match rather than an error", func() {
				allowed, err := resolver.CheckPermission(ctx, 1, usersModule.ID, "approve")
				Expect(err).NotTo(HaveOccurred())
				Expect(allowed).To(BeFalse())
			})
		})

		It("should count a permission reachable through two roles once", func() {
			graph.addUser(1, access.GroupRef{ID: 5, Name: "G1"}, access.GroupRef{ID: 6, Name: "G2"})
			graph.grantRole(5, access.RoleRef{ID: 7, Name: "R1"})
			graph.grantRole(6, access.RoleRef{ID: 8, Name: "R2"})
			graph.grantPermission(7, readUsers)
			graph.grantPermission(8, readUsers)
			graph.grantPermission(8, readGroups)

			perms, err := resolver.GetUserPermissions(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(ConsistOf(readUsers, readGroups))
		})

		It("should issue one batched lookup per hop", func() {
			graph.addUser(1,
				access.GroupRef{ID: 5, Name: "G1"},
				access.GroupRef{ID: 6, Name: "G2"},
				access.GroupRef{ID: 7, Name: "G3"})
			for _, g := range []int64{5, 6, 7} {
				graph.grantRole(g, access.RoleRef{ID: g * 10, Name: "R"})
				graph.grantPermission(g*10, readUsers)
			}

			_, err := resolver.GetUserPermissions(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(graph.calls["GetUserWithGroups"]).To(Equal(1))
			Expect(graph.calls["GetGroupRoles"]).To(Equal(1))
			Expect(graph.calls["GetRolePermissions"]).To(Equal(1))
		})

		DescribeTable("should degrade to an empty set at dead ends",
			func(setup func(g *fakeGraph), expectedCalls map[string]int) {
				setup(graph)
				perms, err := resolver.GetUserPermissions(ctx, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(perms).To(BeEmpty())
				for method, n := range expectedCalls {
					Expect(graph.calls[method]).To(Equal(n), method)
				}
			},
			Entry("unknown user", func(g *fakeGraph) {}, map[string]int{"GetGroupRoles": 0}),
			Entry("user without groups", func(g *fakeGraph) {
				g.addUser(1)
			}, map[string]int{"GetGroupRoles": 0}),
			Entry("inactive user", func(g *fakeGraph) {
				g.addUser(1, access.GroupRef{ID: 5, Name: "G"})
				g.users[1].IsActive = false
				g.grantRole(5, access.RoleRef{ID: 7, Name: "R"})
				g.grantPermission(7, readUsers)
			}, map[string]int{"GetGroupRoles": 0}),
			Entry("groups without roles", func(g *fakeGraph) {
				g.addUser(1, access.GroupRef{ID: 5, Name: "G"})
			}, map[string]int{"GetGroupRoles": 1, "GetRolePermissions": 0}),
			Entry("roles without permissions", func(g *fakeGraph) {
				g.addUser(1, access.GroupRef{ID: 5, Name: "G"})
				g.grantRole(5, access.RoleRef{ID: 7, Name: "R"})
			}, map[string]int{"GetRolePermissions": 1}),
		)

		It("should surface store failures as internal errors", func() {
			graph.addUser(1, access.GroupRef{ID: 5, Name: "G"})
			graph.failOn = "GetGroupRoles"

			_, err := resolver.GetUserPermissions(ctx, 1)
			Expect(err).To(HaveOccurred())
			Expect(internal.HasType(err, internal.ErrorTypeInternal)).To(BeTrue())
			Expect(errors.Is(err, errStore)).To(BeTrue())
		})
	})

	Describe("CheckPermissionByModuleName", func() {
		BeforeEach(func() {
			graph.addUser(1, access.GroupRef{ID: 5, Name: "G"})
			graph.grantRole(5, access.RoleRef{ID: 7, Name: "R"})
			graph.grantPermission(7, readGroups)
		})

		It("should resolve the module then check", func() {
			allowed, err := resolver.CheckPermissionByModuleName(ctx, 1, "Groups", "read")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())

			allowed, err = resolver.CheckPermissionByModuleName(ctx, 1, "Users", "read")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("should fail with NotFound for an unknown module", func() {
			_, err := resolver.CheckPermissionByModuleName(ctx, 1, "Billing", "read")
			Expect(internal.HasType(err, internal.ErrorTypeNotFound)).To(BeTrue())
		})
	})

	Describe("caching", func() {
		var cache *access.MemoryCache

		BeforeEach(func() {
			cache = access.NewMemoryCache(16, 0)
			resolver = access.NewResolver(graph, cache, testLogger())
			graph.addUser(1, access.GroupRef{ID: 5, Name: "G"})
			graph.grantRole(5, access.RoleRef{ID: 7, Name: "R"})
			graph.grantPermission(7, readUsers)
		})

		It("should serve repeated lookups from the cache until invalidated", func() {
			_, err := resolver.GetUserPermissions(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			_, err = resolver.GetUserPermissions(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(graph.calls["GetUserWithGroups"]).To(Equal(1))

			graph.grantPermission(7, deleteUsers)
			resolver.InvalidateAll(ctx)

			perms, err := resolver.GetUserPermissions(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(graph.calls["GetUserWithGroups"]).To(Equal(2))
			Expect(perms).To(ConsistOf(readUsers, deleteUsers))
		})

		It("should not keep a set that was invalidated while it was computed", func() {
			graph.grantPermission(7, deleteUsers)
			graph.afterRolePermissions = func() {
				graph.afterRolePermissions = nil
				graph.rolePerms[7] = []access.RolePermissionEdge{{RoleID: 7, Permission: readUsers}}
				resolver.InvalidateAll(ctx)
			}

			perms, err := resolver.GetUserPermissions(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(ConsistOf(readUsers, deleteUsers))
			Expect(cache.Len()).To(BeZero())

			allowed, err := resolver.CheckPermission(ctx, 1, usersModule.ID, "delete")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("should not cache failures", func() {
			graph.failOn = "GetRolePermissions"
			_, err := resolver.GetUserPermissions(ctx, 1)
			Expect(err).To(HaveOccurred())
			Expect(cache.Len()).To(Equal(0))
		})
	})

	Describe("GetAccessSummary", func() {
		It("should fail with NotFound for an unknown user", func() {
			_, err := resolver.GetAccessSummary(ctx, 42)
			Expect(internal.HasType(err, internal.ErrorTypeNotFound)).To(BeTrue())
		})

		It("should group permissions by module", func() {
			graph.addUser(1, access.GroupRef{ID: 5, Name: "G"})
			graph.grantRole(5, access.RoleRef{ID: 7, Name: "R"})
			graph.grantPermission(7, readUsers)
			graph.grantPermission(7, deleteUsers)
			graph.grantPermission(7, readGroups)

			summary, err := resolver.GetAccessSummary(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TotalPermissions).To(Equal(3))
			Expect(summary.User.Groups).To(ConsistOf(access.GroupRef{ID: 5, Name: "G"}))
			Expect(summary.Roles).To(ConsistOf(access.RoleRef{ID: 7, Name: "R"}))
			Expect(summary.Modules).To(HaveLen(2))
			Expect(summary.Modules[0].ModuleName).To(Equal("Groups"))
			Expect(summary.Modules[1].ModuleName).To(Equal("Users"))
			Expect(summary.Modules[1].Actions).To(ConsistOf("read", "delete"))
		})

		It("should report an existing user without access with empty collections", func() {
			graph.addUser(1)
			summary, err := resolver.GetAccessSummary(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TotalPermissions).To(BeZero())
			Expect(summary.Roles).To(BeEmpty())
			Expect(summary.Modules).To(BeEmpty())
		})
	})

	Describe("SimulateAccess", func() {
		BeforeEach(func() {
			graph.addUser(1, access.GroupRef{ID: 5, Name: "G1"}, access.GroupRef{ID: 6, Name: "G2"})
			graph.grantRole(5, access.RoleRef{ID: 7, Name: "R1"})
			graph.grantRole(6, access.RoleRef{ID: 8, Name: "R2"})
			graph.grantPermission(7, readUsers)
			graph.grantPermission(8, readUsers)
		})

		It("should reject an unrecognized action", func() {
			_, err := resolver.SimulateAccess(ctx, 1, "Users", "approve")
			Expect(internal.HasType(err, internal.ErrorTypeValidation)).To(BeTrue())
		})

		It("should list every granting path", func() {
			result, err := resolver.SimulateAccess(ctx, 1, "Users", "read")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Allowed).To(BeTrue())
			Expect(result.ModuleID).To(Equal(usersModule.ID))
			Expect(result.GrantedBy).To(HaveLen(2))
			Expect(result.GrantedBy[0].GroupName).To(Equal("G1"))
			Expect(result.GrantedBy[1].RoleName).To(Equal("R2"))
		})

		It("should deny when no path grants the action", func() {
			result, err := resolver.SimulateAccess(ctx, 1, "Users", "delete")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Allowed).To(BeFalse())
			Expect(result.GrantedBy).To(BeEmpty())
		})

		It("should fail with NotFound for an unknown module or user", func() {
			_, err := resolver.SimulateAccess(ctx, 1, "Billing", "read")
			Expect(internal.HasType(err, internal.ErrorTypeNotFound)).To(BeTrue())

			_, err = resolver.SimulateAccess(ctx, 99, "Users", "read")
			Expect(internal.HasType(err, internal.ErrorTypeNotFound)).To(BeTrue())
		})
	})
})
