package group_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/access"
	"github.com/frahmantamala/iam-service/internal/core/testdb"
	"github.com/frahmantamala/iam-service/internal/group"
	groupPostgres "github.com/frahmantamala/iam-service/internal/group/postgres"
	"github.com/frahmantamala/iam-service/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type groupEnvelope struct {
	Success bool         `json:"success"`
	Data    *group.Group `json:"data"`
}

type errorEnvelope struct {
	Success bool `json:"success"`
	Error   struct {
		Type string `json:"type"`
		Code string `json:"code"`
	} `json:"error"`
}

var _ = Describe("Group Handler Integration", func() {
	var router chi.Router

	BeforeEach(func() {
		db, err := testdb.Open()
		Expect(err).NotTo(HaveOccurred())

		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service := group.NewService(groupPostgres.NewGroupRepository(db), access.NoopInvalidator{}, slogger)
		handler := group.NewHandler(&transport.BaseHandler{Logger: slogger}, service, transport.NoopAuditRecorder{})

		router = chi.NewRouter()
		router.Get("/groups", handler.ListGroups)
		router.Post("/groups", handler.CreateGroup)
		router.Get("/groups/{id}", handler.GetGroup)
		router.Put("/groups/{id}", handler.UpdateGroup)
		router.Delete("/groups/{id}", handler.DeactivateGroup)
		router.Post("/groups/{id}/activate", handler.ActivateGroup)
		router.Delete("/groups/{id}/permanent", handler.DeleteGroup)
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("should create and fetch a group", func() {
		w := do(http.MethodPost, "/groups", `{"name":"ops","description":"on call"}`)
		Expect(w.Code).To(Equal(http.StatusCreated))

		var created groupEnvelope
		Expect(json.NewDecoder(w.Body).Decode(&created)).To(Succeed())
		Expect(created.Success).To(BeTrue())
		Expect(created.Data.Name).To(Equal("ops"))

		w = do(http.MethodGet, "/groups/1", "")
		Expect(w.Code).To(Equal(http.StatusOK))
	})

	It("should answer 409 for a duplicate name", func() {
		Expect(do(http.MethodPost, "/groups", `{"name":"ops"}`).Code).To(Equal(http.StatusCreated))

		w := do(http.MethodPost, "/groups", `{"name":"ops"}`)
		Expect(w.Code).To(Equal(http.StatusConflict))

		var body errorEnvelope
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		Expect(body.Success).To(BeFalse())
		Expect(body.Error.Code).To(Equal(string(internal.ErrCodeDuplicateName)))
	})

	It("should reject unknown body fields", func() {
		w := do(http.MethodPost, "/groups", `{"name":"ops","owner":"me"}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("should reject a non-numeric id", func() {
		w := do(http.MethodGet, "/groups/abc", "")
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(w.Body.String()).To(ContainSubstring(`"code":"INVALID_IDS"`))
	})

	It("should hide deactivated groups unless asked", func() {
		Expect(do(http.MethodPost, "/groups", `{"name":"ops"}`).Code).To(Equal(http.StatusCreated))
		Expect(do(http.MethodDelete, "/groups/1", "").Code).To(Equal(http.StatusOK))

		var listed struct {
			Data []group.Group `json:"data"`
		}
		w := do(http.MethodGet, "/groups", "")
		Expect(json.NewDecoder(w.Body).Decode(&listed)).To(Succeed())
		Expect(listed.Data).To(BeEmpty())

		w = do(http.MethodGet, "/groups?include_inactive=true", "")
		Expect(json.NewDecoder(w.Body).Decode(&listed)).To(Succeed())
		Expect(listed.Data).To(HaveLen(1))
		Expect(listed.Data[0].IsActive).To(BeFalse())

		Expect(do(http.MethodPost, "/groups/1/activate", "").Code).To(Equal(http.StatusOK))
	})

	It("should delete permanently", func() {
		Expect(do(http.MethodPost, "/groups", `{"name":"ops"}`).Code).To(Equal(http.StatusCreated))
		Expect(do(http.MethodDelete, "/groups/1/permanent", "").Code).To(Equal(http.StatusOK))
		Expect(do(http.MethodGet, "/groups/1", "").Code).To(Equal(http.StatusNotFound))
	})
})
