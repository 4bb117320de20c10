package postgres_test

import (
	"context"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/access"
	accessPostgres "github.com/frahmantamala/iam-service/internal/access/postgres"
	permissionDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/permission"
	roleDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/role"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("Access stores on a relational database", func() {
	var (
		ctx      context.Context
		db       *gorm.DB
		fx       fixture
		resolver *access.Resolver

		groupRoles      *access.Assigner
		groupUsers      *access.Assigner
		rolePermissions *access.Assigner
	)

	BeforeEach(func() {
		ctx = context.Background()
		db = openTestDB()
		fx = fixture{db: db}
		resolver = access.NewResolver(accessPostgres.NewGraphRepository(db), access.NewMemoryCache(64, 0), testLogger())

		groupRoles = access.NewAssigner(access.GroupRoles, accessPostgres.NewGroupRoleStore(db), resolver, testLogger())
		groupUsers = access.NewAssigner(access.GroupUsers, accessPostgres.NewGroupUserStore(db), resolver, testLogger())
		rolePermissions = access.NewAssigner(access.RolePermissions, accessPostgres.NewRolePermissionStore(db), resolver, testLogger())
	})

	Describe("end to end resolution", func() {
		var (
			users    *permissionDatamodel.Module
			readP    *permissionDatamodel.Permission
			userID   int64
			groupID  int64
			roleID   int64
			deleteID int64
		)

		BeforeEach(func() {
			users = fx.module("Users")
			readP = fx.permission("read_users", "read", users.ID)
			deleteID = fx.permission("delete_users", "delete", users.ID).ID
			userID = fx.user("alice").ID
			groupID = fx.group("G").ID
			roleID = fx.role("R").ID

			_, err := groupRoles.Assign(ctx, groupID, []int64{roleID})
			Expect(err).NotTo(HaveOccurred())
			_, err = rolePermissions.Assign(ctx, roleID, []int64{readP.ID})
			Expect(err).NotTo(HaveOccurred())
			_, err = groupUsers.Assign(ctx, groupID, []int64{userID})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should resolve exactly the granted permission", func() {
			perms, err := resolver.GetUserPermissions(ctx, userID)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(HaveLen(1))
			Expect(perms[0].ID).To(Equal(readP.ID))
			Expect(perms[0].ModuleName).To(Equal("Users"))

			allowed, err := resolver.CheckPermission(ctx, userID, users.ID, "read")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())

			allowed, err = resolver.CheckPermission(ctx, userID, users.ID, "delete")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})

		It("should count a permission granted by two roles once", func() {
			second := fx.role("R2").ID
			_, err := groupRoles.Assign(ctx, groupID, []int64{second})
			Expect(err).NotTo(HaveOccurred())
			_, err = rolePermissions.Assign(ctx, second, []int64{readP.ID, deleteID})
			Expect(err).NotTo(HaveOccurred())

			perms, err := resolver.GetUserPermissions(ctx, userID)
			Expect(err).NotTo(HaveOccurred())
			ids := []int64{}
			for _, p := range perms {
				ids = append(ids, p.ID)
			}
			Expect(ids).To(ConsistOf(readP.ID, deleteID))
		})

		It("should see changes made through the assigner immediately", func() {
			_, err := resolver.GetUserPermissions(ctx, userID)
			Expect(err).NotTo(HaveOccurred())

			_, err = rolePermissions.Assign(ctx, roleID, []int64{deleteID})
			Expect(err).NotTo(HaveOccurred())

			allowed, err := resolver.CheckPermissionByModuleName(ctx, userID, "Users", "delete")
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
		})

		It("should skip inactive roles during traversal", func() {
			fx.deactivate(&roleDatamodel.Role{}, roleID)
			resolver.InvalidateAll(ctx)

			perms, err := resolver.GetUserPermissions(ctx, userID)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(BeEmpty())
		})

		It("should build a summary and simulation from the same graph", func() {
			summary, err := resolver.GetAccessSummary(ctx, userID)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.User.Username).To(Equal("alice"))
			Expect(summary.User.Groups).To(HaveLen(1))
			Expect(summary.Modules).To(HaveLen(1))

			sim, err := resolver.SimulateAccess(ctx, userID, "Users", "read")
			Expect(err).NotTo(HaveOccurred())
			Expect(sim.Allowed).To(BeTrue())
			Expect(sim.GrantedBy).To(ConsistOf(access.GrantPath{
				GroupID: groupID, GroupName: "G",
				RoleID: roleID, RoleName: "R",
				PermissionID: readP.ID, PermissionName: "read_users",
			}))
		})

		It("should return an empty set for a user without groups", func() {
			loner := fx.user("bob").ID
			perms, err := resolver.GetUserPermissions(ctx, loner)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(BeEmpty())

			perms, err = resolver.GetUserPermissions(ctx, 424242)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(BeEmpty())
		})

		It("should fail the module lookup for an unknown name", func() {
			_, err := resolver.CheckPermissionByModuleName(ctx, userID, "Billing", "read")
			Expect(internal.HasType(err, internal.ErrorTypeNotFound)).To(BeTrue())
		})
	})

	Describe("relationship bookkeeping", func() {
		var g, r1, r2, r3 int64

		BeforeEach(func() {
			g = fx.group("ops").ID
			r1 = fx.role("alpha").ID
			r2 = fx.role("beta").ID
			r3 = fx.role("gamma").ID
		})

		It("should not duplicate rows when assigning twice", func() {
			_, err := groupRoles.Assign(ctx, g, []int64{r1, r2})
			Expect(err).NotTo(HaveOccurred())

			second, err := groupRoles.Assign(ctx, g, []int64{r1, r2})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Assigned).To(Equal(0))
			Expect(second.Skipped).To(Equal(2))
			Expect(fx.count("group_roles")).To(Equal(int64(2)))
		})

		It("should merge a second overlapping assignment", func() {
			_, err := groupRoles.Assign(ctx, g, []int64{r1, r2})
			Expect(err).NotTo(HaveOccurred())

			result, err := groupRoles.Assign(ctx, g, []int64{r1, r3})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Assigned).To(Equal(1))
			Expect(result.Skipped).To(Equal(1))
			Expect(result.Details[0].Status).To(Equal(access.StatusAlreadyExists))
			Expect(result.Details[1].Status).To(Equal(access.StatusAssigned))

			roles, err := groupRoles.List(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			names := []string{}
			for _, e := range roles {
				names = append(names, e.Name)
			}
			Expect(names).To(Equal([]string{"alpha", "beta", "gamma"}))
		})

		It("should write nothing when one id is unknown", func() {
			_, err := groupRoles.Assign(ctx, g, []int64{r1, 99999})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeNotFound))
			Expect(appErr.Details).To(Equal(internal.MissingIDs{Entity: "role", IDs: []int64{99999}}))
			Expect(fx.count("group_roles")).To(BeZero())
		})

		It("should refuse to assign inactive entities", func() {
			fx.deactivate(&roleDatamodel.Role{}, r2)
			_, err := groupRoles.Assign(ctx, g, []int64{r2})
			Expect(internal.HasType(err, internal.ErrorTypeNotFound)).To(BeTrue())
		})

		It("should report removal of a never-assigned id as not_found", func() {
			result, err := groupRoles.Remove(ctx, g, []int64{r3})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Removed).To(Equal(0))
			Expect(result.Details[0].Status).To(Equal(access.StatusNotFound))
		})

		It("should remove assigned pairs", func() {
			_, err := groupRoles.Assign(ctx, g, []int64{r1, r2})
			Expect(err).NotTo(HaveOccurred())

			result, err := groupRoles.Remove(ctx, g, []int64{r1, r3})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Removed).To(Equal(1))
			Expect(result.NotFound).To(Equal(1))
			Expect(fx.count("group_roles")).To(Equal(int64(1)))
		})

		It("should ignore a pair inserted behind the assigner's back", func() {
			store := accessPostgres.NewGroupRoleStore(db)
			inserted, err := store.Insert(ctx, g, []int64{r1})
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(ConsistOf(r1))

			inserted, err = store.Insert(ctx, g, []int64{r1, r2})
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(ConsistOf(r2))
			Expect(fx.count("group_roles")).To(Equal(int64(2)))
		})

		It("should insert a whole batch in one call", func() {
			store := accessPostgres.NewGroupRoleStore(db)
			inserted, err := store.Insert(ctx, g, []int64{r1, r2, r3})
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(ConsistOf(r1, r2, r3))
			Expect(fx.count("group_roles")).To(Equal(int64(3)))
		})

		It("should report only the pairs a delete actually removed", func() {
			store := accessPostgres.NewGroupRoleStore(db)
			_, err := store.Insert(ctx, g, []int64{r1, r2})
			Expect(err).NotTo(HaveOccurred())

			deleted, err := store.Delete(ctx, g, []int64{r1})
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(ConsistOf(r1))

			deleted, err = store.Delete(ctx, g, []int64{r1, r2})
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(ConsistOf(r2))
			Expect(fx.count("group_roles")).To(BeZero())
		})

		It("should fail with NotFound for a missing left entity", func() {
			_, err := groupRoles.List(ctx, 5555)
			Expect(internal.HasType(err, internal.ErrorTypeNotFound)).To(BeTrue())
		})

		It("should list group members by username", func() {
			zed := fx.user("zed").ID
			amy := fx.user("amy").ID
			_, err := groupUsers.Assign(ctx, g, []int64{zed, amy})
			Expect(err).NotTo(HaveOccurred())

			members, err := groupUsers.List(ctx, g)
			Expect(err).NotTo(HaveOccurred())
			Expect(members).To(HaveLen(2))
			Expect(members[0].Name).To(Equal("amy"))
			Expect(members[0].Email).To(Equal("amy@example.com"))
		})

		It("should carry module names for role permissions", func() {
			m := fx.module("Groups")
			p := fx.permission("read_groups", "read", m.ID)

			result, err := rolePermissions.Assign(ctx, r1, []int64{p.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Details[0].ModuleName).To(Equal("Groups"))

			perms, err := rolePermissions.List(ctx, r1)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(HaveLen(1))
			Expect(perms[0].Action).To(Equal("read"))
			Expect(perms[0].ModuleName).To(Equal("Groups"))
		})
	})
})
