package user_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/access"
	"github.com/frahmantamala/iam-service/internal/core/testdb"
	"github.com/frahmantamala/iam-service/internal/transport"
	"github.com/frahmantamala/iam-service/internal/user"
	userPostgres "github.com/frahmantamala/iam-service/internal/user/postgres"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

var _ = Describe("User Handler Integration", func() {
	var (
		router  chi.Router
		service *user.Service
	)

	BeforeEach(func() {
		db, err := testdb.Open()
		Expect(err).NotTo(HaveOccurred())

		slogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = user.NewService(userPostgres.NewUserRepository(db), access.NoopInvalidator{}, bcrypt.MinCost, slogger)
		handler := user.NewHandler(&transport.BaseHandler{Logger: slogger}, service, transport.NoopAuditRecorder{})

		router = chi.NewRouter()
		router.Get("/users/me", handler.GetCurrentUser)
		router.Post("/users", handler.CreateUser)
		router.Get("/users/{id}", handler.GetUser)
	})

	It("should never serialise the password hash", func() {
		req := httptest.NewRequest(http.MethodPost, "/users",
			strings.NewReader(`{"username":"alice","email":"alice@example.com","password":"s3cret-pass"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(w.Body.String()).NotTo(ContainSubstring("password"))
		Expect(w.Body.String()).NotTo(ContainSubstring("$2a$"))
	})

	It("should answer /users/me from the principal", func() {
		u, err := service.Create(context.Background(), user.CreateUserDTO{Username: "alice", Email: "alice@example.com", Password: "s3cret-pass"})
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		req = req.WithContext(internal.ContextWithPrincipal(req.Context(), &internal.Principal{UserID: u.ID, Username: "alice"}))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusOK))

		var body struct {
			Data user.User `json:"data"`
		}
		Expect(json.NewDecoder(w.Body).Decode(&body)).To(Succeed())
		Expect(body.Data.Username).To(Equal("alice"))
	})

	It("should answer 401 for /users/me without a principal", func() {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/me", nil))
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})
})
