package access_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/access"
	"github.com/frahmantamala/iam-service/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recordedAudit struct {
	action       string
	resourceType string
	resourceID   int64
}

type spyRecorder struct {
	entries []recordedAudit
}

func (s *spyRecorder) RecordRequest(_ *http.Request, action, resourceType string, resourceID int64, _ interface{}) {
	s.entries = append(s.entries, recordedAudit{action, resourceType, resourceID})
}

type stubResolver struct {
	perms      []access.EffectivePermission
	allowed    bool
	err        error
	lastModule string
	lastID     int64
	lastUser   int64
}

func (s *stubResolver) GetUserPermissions(_ context.Context, userID int64) ([]access.EffectivePermission, error) {
	s.lastUser = userID
	return s.perms, s.err
}

func (s *stubResolver) CheckPermission(_ context.Context, userID, moduleID int64, _ string) (bool, error) {
	s.lastUser, s.lastID = userID, moduleID
	return s.allowed, s.err
}

func (s *stubResolver) CheckPermissionByModuleName(_ context.Context, userID int64, moduleName, _ string) (bool, error) {
	s.lastUser, s.lastModule = userID, moduleName
	return s.allowed, s.err
}

func (s *stubResolver) GetAccessSummary(_ context.Context, userID int64) (*access.AccessSummary, error) {
	s.lastUser = userID
	if s.err != nil {
		return nil, s.err
	}
	return &access.AccessSummary{User: access.UserNode{ID: userID}}, nil
}

func (s *stubResolver) SimulateAccess(_ context.Context, userID int64, moduleName, action string) (*access.SimulationResult, error) {
	s.lastUser, s.lastModule = userID, moduleName
	if s.err != nil {
		return nil, s.err
	}
	return &access.SimulationResult{UserID: userID, ModuleName: moduleName, Action: action, Allowed: s.allowed}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func perform(router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	Expect(json.Unmarshal(rec.Body.Bytes(), &env)).To(Succeed())
	return rec, env
}

var _ = Describe("AssignmentHandler", func() {
	var (
		store    *fakeRelationStore
		recorder *spyRecorder
		router   chi.Router
	)

	BeforeEach(func() {
		store = newFakeRelationStore()
		store.lefts[1] = true
		store.rights[11] = access.RelatedEntity{ID: 11, Name: "admin", IsActive: true}
		store.rights[12] = access.RelatedEntity{ID: 12, Name: "auditor", IsActive: true}
		recorder = &spyRecorder{}

		assigner := access.NewAssigner(access.GroupRoles, store, access.NoopInvalidator{}, testLogger())
		h := access.NewAssignmentHandler(transport.NewBaseHandler(testLogger()), assigner, recorder)

		router = chi.NewRouter()
		router.Get("/groups/{id}/roles", h.List)
		router.Post("/groups/{id}/roles", h.Assign)
		router.Delete("/groups/{id}/roles", h.Remove)
	})

	It("should assign and then list", func() {
		rec, env := perform(router, http.MethodPost, "/groups/1/roles", access.IDsDTO{IDs: []int64{11, 12}})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(env.Message).To(Equal("2 role(s) assigned"))

		var result access.AssignResult
		Expect(json.Unmarshal(env.Data, &result)).To(Succeed())
		Expect(result.Assigned).To(Equal(2))
		Expect(recorder.entries).To(ConsistOf(recordedAudit{"assign", "group", 1}))

		rec, env = perform(router, http.MethodGet, "/groups/1/roles", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var listed []access.RelatedEntity
		Expect(json.Unmarshal(env.Data, &listed)).To(Succeed())
		Expect(listed).To(HaveLen(2))
	})

	It("should not audit a no-op assignment", func() {
		perform(router, http.MethodPost, "/groups/1/roles", access.IDsDTO{IDs: []int64{11}})
		_, env := perform(router, http.MethodPost, "/groups/1/roles", access.IDsDTO{IDs: []int64{11}})
		Expect(env.Message).To(Equal("0 role(s) assigned, 1 already assigned"))
		Expect(recorder.entries).To(HaveLen(1))
	})

	It("should report unknown ids as 404 and write nothing", func() {
		rec, env := perform(router, http.MethodPost, "/groups/1/roles", access.IDsDTO{IDs: []int64{11, 99}})
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(env.Success).To(BeFalse())
		Expect(store.assigned(1)).To(BeEmpty())
	})

	It("should reject an empty id list", func() {
		rec, _ := perform(router, http.MethodPost, "/groups/1/roles", access.IDsDTO{})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should reject a malformed path id", func() {
		rec, env := perform(router, http.MethodGet, "/groups/abc/roles", nil)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(env.Error.Code).To(Equal(string(internal.ErrCodeInvalidIDs)))
	})

	It("should remove assigned ids", func() {
		perform(router, http.MethodPost, "/groups/1/roles", access.IDsDTO{IDs: []int64{11}})
		rec, env := perform(router, http.MethodDelete, "/groups/1/roles", access.IDsDTO{IDs: []int64{11, 12}})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(env.Message).To(Equal("1 role(s) removed, 1 not assigned"))
		Expect(recorder.entries[len(recorder.entries)-1]).To(Equal(recordedAudit{"remove", "group", 1}))
	})
})

var _ = Describe("ResolverHandler", func() {
	var (
		resolver *stubResolver
		h        *access.ResolverHandler
		router   chi.Router
	)

	BeforeEach(func() {
		resolver = &stubResolver{allowed: true}
		h = access.NewResolverHandler(transport.NewBaseHandler(testLogger()), resolver)

		router = chi.NewRouter()
		router.Get("/users/me/permissions", h.GetMyPermissions)
		router.Get("/users/{id}/permissions", h.GetUserPermissions)
		router.Get("/users/{id}/permissions/check", h.CheckPermission)
		router.Get("/users/{id}/access-summary", h.GetAccessSummary)
		router.Get("/users/{id}/access-simulation", h.SimulateAccess)
	})

	It("should list effective permissions", func() {
		resolver.perms = []access.EffectivePermission{{ID: 1, Name: "read_users", Action: "read"}}
		rec, env := perform(router, http.MethodGet, "/users/7/permissions", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(resolver.lastUser).To(Equal(int64(7)))

		var perms []access.EffectivePermission
		Expect(json.Unmarshal(env.Data, &perms)).To(Succeed())
		Expect(perms).To(HaveLen(1))
	})

	It("should check by module name", func() {
		rec, env := perform(router, http.MethodGet, "/users/7/permissions/check?module=Users&action=read", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(resolver.lastModule).To(Equal("Users"))

		var result access.CheckResult
		Expect(json.Unmarshal(env.Data, &result)).To(Succeed())
		Expect(result.Allowed).To(BeTrue())
		Expect(result.ModuleName).To(Equal("Users"))
	})

	It("should check by module id", func() {
		rec, _ := perform(router, http.MethodGet, "/users/7/permissions/check?module_id=3&action=read", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(resolver.lastID).To(Equal(int64(3)))
	})

	DescribeTable("rejecting incomplete checks",
		func(query string) {
			rec, _ := perform(router, http.MethodGet, "/users/7/permissions/check"+query, nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		},
		Entry("missing action", "?module=Users"),
		Entry("missing module", "?action=read"),
		Entry("bad module id", "?module_id=x&action=read"),
	)

	It("should surface an unknown module as 404", func() {
		resolver.err = internal.NewNotFoundError("module not found", internal.ErrCodeModuleNotFound)
		rec, env := perform(router, http.MethodGet, "/users/7/permissions/check?module=Nope&action=read", nil)
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(env.Error.Code).To(Equal(string(internal.ErrCodeModuleNotFound)))
	})

	It("should use the caller for /users/me/permissions", func() {
		req := httptest.NewRequest(http.MethodGet, "/users/me/permissions", nil)
		req = req.WithContext(internal.ContextWithPrincipal(req.Context(), &internal.Principal{UserID: 42, Username: "alice"}))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(resolver.lastUser).To(Equal(int64(42)))
	})

	It("should refuse /users/me/permissions without a caller", func() {
		rec, _ := perform(router, http.MethodGet, "/users/me/permissions", nil)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("should return a summary and a simulation", func() {
		rec, _ := perform(router, http.MethodGet, "/users/7/access-summary", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec, env := perform(router, http.MethodGet, "/users/7/access-simulation?module=Users&action=update", nil)
		Expect(rec.Code).To(Equal(http.StatusOK))
		var sim access.SimulationResult
		Expect(json.Unmarshal(env.Data, &sim)).To(Succeed())
		Expect(sim.Action).To(Equal("update"))
		Expect(sim.Allowed).To(BeTrue())
	})
})
