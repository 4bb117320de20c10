package cmd

import (
	"context"
	"os"

	groupDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/group"
	permissionDatamodel "github.com/frahmantamala/iam-service/internal/core/datamodel/permission"
	"github.com/frahmantamala/iam-service/internal/core/testdb"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testFixture = `
modules:
  - name: Users
  - name: Audit
    actions: [read]
  - name: Groups
    actions: [create, read]
  - name: Roles
    actions: [update]
roles:
  - name: Administrator
    grants:
      "*": ["*"]
  - name: Reader
    grants:
      "*": [read]
  - name: Editor
    grants:
      Users: [update]
groups:
  - name: Admins
    roles: [Administrator]
  - name: Readers
    roles: [Reader, Editor]
users:
  - username: admin
    email: Admin@Example.com
    password: secret-password
    groups: [Admins]
  - username: reader
    email: reader@example.com
    password: secret-password
    groups: [Readers]
`

var _ = Describe("seed", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		fixture *seedFixture
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = testdb.Open()
		Expect(err).NotTo(HaveOccurred())
		fixture, err = parseSeedFixture([]byte(testFixture))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should default module actions to the canonical four", func() {
		Expect(fixture.Modules[0].Actions).To(Equal([]string{"create", "read", "update", "delete"}))
		Expect(fixture.Modules[1].Actions).To(Equal([]string{"read"}))
	})

	It("should reject an unknown action", func() {
		_, err := parseSeedFixture([]byte("modules:\n  - name: Users\n    actions: [approve]\n"))
		Expect(err).To(MatchError(ContainSubstring("invalid action")))
	})

	It("should create the whole graph once", func() {
		report, err := applySeed(ctx, db, fixture, bcrypt.MinCost, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(*report).To(Equal(seedReport{
			Modules:     4,
			Permissions: 8,
			Roles:       3,
			Groups:      2,
			Users:       2,
			// admin 8 + reader 3 + editor 1 grants, 3 group roles, 2 memberships
			Links: 17,
		}))

		var perm permissionDatamodel.Permission
		Expect(db.Where("name = ?", "read_audit").First(&perm).Error).To(Succeed())
		Expect(perm.Action).To(Equal("read"))

		again, err := applySeed(ctx, db, fixture, bcrypt.MinCost, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(*again).To(Equal(seedReport{}))
	})

	It("should lowercase emails", func() {
		_, err := applySeed(ctx, db, fixture, bcrypt.MinCost, false)
		Expect(err).NotTo(HaveOccurred())

		var email string
		Expect(db.Table("users").Select("email").Where("username = ?", "admin").Scan(&email).Error).To(Succeed())
		Expect(email).To(Equal("admin@example.com"))
	})

	It("should rebuild from scratch with clear", func() {
		_, err := applySeed(ctx, db, fixture, bcrypt.MinCost, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(db.Where("1 = 1").Delete(&groupDatamodel.UserGroup{}).Error).To(Succeed())

		report, err := applySeed(ctx, db, fixture, bcrypt.MinCost, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Users).To(Equal(int64(2)))
	})

	It("should fail and write nothing on a dangling reference", func() {
		fixture.Groups[0].Roles = []string{"Ghost"}
		_, err := applySeed(ctx, db, fixture, bcrypt.MinCost, false)
		Expect(err).To(MatchError(ContainSubstring("unknown role Ghost")))

		var n int64
		Expect(db.Table("modules").Count(&n).Error).To(Succeed())
		Expect(n).To(BeZero())
	})

	It("should parse the shipped fixture", func() {
		raw, err := os.ReadFile("../db/seed.yml")
		Expect(err).NotTo(HaveOccurred())
		shipped, err := parseSeedFixture(raw)
		Expect(err).NotTo(HaveOccurred())

		_, err = applySeed(ctx, db, shipped, bcrypt.MinCost, false)
		Expect(err).NotTo(HaveOccurred())
	})
})
