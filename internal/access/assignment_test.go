package access_test

import (
	"context"
	"sort"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/access"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeRelationStore struct {
	lefts  map[int64]bool
	rights map[int64]access.RelatedEntity
	pairs  map[int64]map[int64]bool
	// racing ids are inserted by "another request" between the existence
	// check and the insert.
	racing map[int64]bool

	insertCalls int

	// vanishing pairs are deleted by another request between the existence
	// check and the delete.
	vanishing map[int64]bool
}

func newFakeRelationStore() *fakeRelationStore {
	return &fakeRelationStore{
		lefts:  map[int64]bool{},
		rights: map[int64]access.RelatedEntity{},
		pairs:  map[int64]map[int64]bool{},
		racing: map[int64]bool{},

		vanishing: map[int64]bool{},
	}
}

func (s *fakeRelationStore) LeftExists(_ context.Context, leftID int64) (bool, error) {
	return s.lefts[leftID], nil
}

func (s *fakeRelationStore) FindRight(_ context.Context, ids []int64) ([]access.RelatedEntity, error) {
	var out []access.RelatedEntity
	for _, id := range ids {
		if e, ok := s.rights[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeRelationStore) ExistingPairs(_ context.Context, leftID int64, ids []int64) ([]int64, error) {
	var out []int64
	for _, id := range ids {
		if s.pairs[leftID][id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *fakeRelationStore) Insert(_ context.Context, leftID int64, ids []int64) ([]int64, error) {
	s.insertCalls++
	if s.pairs[leftID] == nil {
		s.pairs[leftID] = map[int64]bool{}
	}
	var inserted []int64
	for _, id := range ids {
		if s.racing[id] {
			s.pairs[leftID][id] = true
			continue
		}
		if s.pairs[leftID][id] {
			continue
		}
		s.pairs[leftID][id] = true
		inserted = append(inserted, id)
	}
	return inserted, nil
}

func (s *fakeRelationStore) Delete(_ context.Context, leftID int64, ids []int64) ([]int64, error) {
	var deleted []int64
	for _, id := range ids {
		if s.vanishing[id] {
			delete(s.pairs[leftID], id)
			continue
		}
		if s.pairs[leftID][id] {
			delete(s.pairs[leftID], id)
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}

func (s *fakeRelationStore) List(_ context.Context, leftID int64) ([]access.RelatedEntity, error) {
	var out []access.RelatedEntity
	for id := range s.pairs[leftID] {
		out = append(out, s.rights[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeRelationStore) assigned(leftID int64) []int64 {
	var out []int64
	for id := range s.pairs[leftID] {
		out = append(out, id)
	}
	return out
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) InvalidateAll(context.Context) {
	c.calls++
}

var _ = Describe("Assigner", func() {
	const groupID int64 = 1

	var (
		ctx         context.Context
		store       *fakeRelationStore
		invalidator *countingInvalidator
		assigner    *access.Assigner
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newFakeRelationStore()
		store.lefts[groupID] = true
		for id, name := range map[int64]string{11: "admin", 12: "auditor", 13: "editor"} {
			store.rights[id] = access.RelatedEntity{ID: id, Name: name, IsActive: true}
		}
		invalidator = &countingInvalidator{}
		assigner = access.NewAssigner(access.GroupRoles, store, invalidator, testLogger())
	})

	Describe("Assign", func() {
		It("should be idempotent", func() {
			first, err := assigner.Assign(ctx, groupID, []int64{11, 12})
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Assigned).To(Equal(2))
			Expect(first.Skipped).To(Equal(0))

			second, err := assigner.Assign(ctx, groupID, []int64{11, 12})
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Assigned).To(Equal(0))
			Expect(second.Skipped).To(Equal(2))
			for _, d := range second.Details {
				Expect(d.Status).To(Equal(access.StatusAlreadyExists))
			}
			Expect(store.assigned(groupID)).To(ConsistOf(int64(11), int64(12)))
		})

		It("should merge overlapping assignments", func() {
			_, err := assigner.Assign(ctx, groupID, []int64{11, 12})
			Expect(err).NotTo(HaveOccurred())

			result, err := assigner.Assign(ctx, groupID, []int64{11, 13})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Assigned).To(Equal(1))
			Expect(result.Skipped).To(Equal(1))
			Expect(result.Details).To(Equal([]access.ItemDetail{
				{ID: 11, Name: "admin", Status: access.StatusAlreadyExists, Message: `role "admin" already assigned to group 1`},
				{ID: 13, Name: "editor", Status: access.StatusAssigned, Message: `role "editor" assigned to group 1`},
			}))
			Expect(store.assigned(groupID)).To(ConsistOf(int64(11), int64(12), int64(13)))
		})

		It("should reject the whole call when any id is unknown", func() {
			_, err := assigner.Assign(ctx, groupID, []int64{11, 99999})
			Expect(err).To(HaveOccurred())

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeNotFound))
			Expect(appErr.Message).To(ContainSubstring("99999"))
			Expect(appErr.Details).To(Equal(internal.MissingIDs{Entity: "role", IDs: []int64{99999}}))

			Expect(store.assigned(groupID)).To(BeEmpty())
			Expect(store.insertCalls).To(Equal(0))
			Expect(invalidator.calls).To(Equal(0))
		})

		It("should fail with NotFound when the left entity is missing", func() {
			_, err := assigner.Assign(ctx, 404, []int64{11})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeNotFound))
			Expect(appErr.Code).To(Equal(internal.ErrCodeGroupNotFound))
			Expect(appErr.Message).To(ContainSubstring("404"))
		})

		DescribeTable("should reject malformed id lists",
			func(ids []int64) {
				_, err := assigner.Assign(ctx, groupID, ids)
				Expect(internal.HasType(err, internal.ErrorTypeBadRequest)).To(BeTrue())
			},
			Entry("nil", nil),
			Entry("empty", []int64{}),
			Entry("non-positive", []int64{11, 0}),
		)

		It("should collapse duplicate ids", func() {
			result, err := assigner.Assign(ctx, groupID, []int64{11, 11, 12})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Assigned).To(Equal(2))
			Expect(result.Details).To(HaveLen(2))
		})

		It("should report pairs created by a concurrent request as already existing", func() {
			store.racing[12] = true

			result, err := assigner.Assign(ctx, groupID, []int64{11, 12})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Assigned).To(Equal(1))
			Expect(result.Skipped).To(Equal(1))
			Expect(result.Details[1].Status).To(Equal(access.StatusAlreadyExists))
		})

		It("should invalidate cached permissions only when something changed", func() {
			_, err := assigner.Assign(ctx, groupID, []int64{11})
			Expect(err).NotTo(HaveOccurred())
			Expect(invalidator.calls).To(Equal(1))

			_, err = assigner.Assign(ctx, groupID, []int64{11})
			Expect(err).NotTo(HaveOccurred())
			Expect(invalidator.calls).To(Equal(1))
		})

		It("should carry the module name for permissions", func() {
			store.rights[21] = access.RelatedEntity{ID: 21, Name: "read_users", Action: "read", ModuleID: 3, ModuleName: "Users"}
			store.lefts[7] = true
			permAssigner := access.NewAssigner(access.RolePermissions, store, invalidator, testLogger())

			result, err := permAssigner.Assign(ctx, 7, []int64{21})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Details[0].ModuleName).To(Equal("Users"))
		})
	})

	Describe("Remove", func() {
		BeforeEach(func() {
			_, err := assigner.Assign(ctx, groupID, []int64{11, 12})
			Expect(err).NotTo(HaveOccurred())
			invalidator.calls = 0
		})

		It("should report ids that were never assigned as not_found", func() {
			result, err := assigner.Remove(ctx, groupID, []int64{13})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Removed).To(Equal(0))
			Expect(result.NotFound).To(Equal(1))
			Expect(result.Details[0].Status).To(Equal(access.StatusNotFound))
			Expect(invalidator.calls).To(Equal(0))
		})

		It("should remove existing pairs and report the rest", func() {
			result, err := assigner.Remove(ctx, groupID, []int64{11, 99999})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Removed).To(Equal(1))
			Expect(result.NotFound).To(Equal(1))
			Expect(store.assigned(groupID)).To(ConsistOf(int64(12)))
			Expect(invalidator.calls).To(Equal(1))
		})

		It("should not count a pair another request removed first", func() {
			store.vanishing[12] = true

			result, err := assigner.Remove(ctx, groupID, []int64{11, 12})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Removed).To(Equal(1))
			Expect(result.NotFound).To(Equal(1))
			Expect(result.Details[0].Status).To(Equal(access.StatusRemoved))
			Expect(result.Details[1].Status).To(Equal(access.StatusNotFound))
			Expect(store.assigned(groupID)).To(BeEmpty())
		})

		It("should fail with NotFound when the left entity is missing", func() {
			_, err := assigner.Remove(ctx, 404, []int64{11})
			Expect(internal.HasType(err, internal.ErrorTypeNotFound)).To(BeTrue())
		})

		It("should reject an empty id list", func() {
			_, err := assigner.Remove(ctx, groupID, nil)
			Expect(internal.HasType(err, internal.ErrorTypeBadRequest)).To(BeTrue())
		})
	})

	Describe("List", func() {
		It("should return an empty collection for an entity without associations", func() {
			entities, err := assigner.List(ctx, groupID)
			Expect(err).NotTo(HaveOccurred())
			Expect(entities).NotTo(BeNil())
			Expect(entities).To(BeEmpty())
		})

		It("should return associated entities ordered by name", func() {
			_, err := assigner.Assign(ctx, groupID, []int64{13, 11})
			Expect(err).NotTo(HaveOccurred())

			entities, err := assigner.List(ctx, groupID)
			Expect(err).NotTo(HaveOccurred())
			Expect(entities).To(HaveLen(2))
			Expect(entities[0].Name).To(Equal("admin"))
			Expect(entities[1].Name).To(Equal("editor"))
		})

		It("should fail with NotFound when the left entity is missing", func() {
			_, err := assigner.List(ctx, 404)
			Expect(internal.HasType(err, internal.ErrorTypeNotFound)).To(BeTrue())
		})
	})
})
