package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/iam-service/internal/access"
	"github.com/frahmantamala/iam-service/internal/audit"
	"github.com/frahmantamala/iam-service/internal/auth"
	"github.com/frahmantamala/iam-service/internal/group"
	"github.com/frahmantamala/iam-service/internal/module"
	"github.com/frahmantamala/iam-service/internal/permission"
	"github.com/frahmantamala/iam-service/internal/role"
	"github.com/frahmantamala/iam-service/internal/transport/middleware"
	"github.com/frahmantamala/iam-service/internal/transport/swagger"
	"github.com/frahmantamala/iam-service/internal/user"
	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Module names guarded by the RBAC middleware. The seed fixture creates them.
const (
	ModuleUsers       = "Users"
	ModuleGroups      = "Groups"
	ModuleRoles       = "Roles"
	ModuleModules     = "Modules"
	ModulePermissions = "Permissions"
	ModuleAudit       = "Audit"
)

type Handlers struct {
	Auth            *auth.Handler
	RBAC            *auth.RBACAuthorization
	Users           *user.Handler
	Groups          *group.Handler
	Roles           *role.Handler
	Modules         *module.Handler
	Permissions     *permission.Handler
	GroupRoles      *access.AssignmentHandler
	GroupUsers      *access.AssignmentHandler
	RolePermissions *access.AssignmentHandler
	Resolver        *access.ResolverHandler
	Audit           *audit.Handler
	Health          *HealthHandler
}

type Options struct {
	AllowedOrigins string
	// MetricsPath is left empty to disable the Prometheus endpoint.
	MetricsPath string
	OpenAPIPath string
}

// crud holds the handler set shared by every entity resource.
type crud struct {
	list, get, create, update, deactivate, activate, remove http.HandlerFunc
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options, logger *slog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	if opts.MetricsPath != "" {
		router.Use(middleware.Metrics)
		router.Handle(opts.MetricsPath, promhttp.Handler())
	}

	if opts.OpenAPIPath != "" {
		router.Get(swagger.SpecURL, swagger.SpecHandler(opts.OpenAPIPath))
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.healthCheckHandler)
			r.Get("/ping", h.Health.pingHandler)
		}

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.RefreshToken)
			sr.Post("/logout", h.Auth.Logout)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			pr.Route("/users", func(ur chi.Router) {
				ur.Get("/me", h.Users.GetCurrentUser)
				ur.Get("/me/permissions", h.Resolver.GetMyPermissions)

				mountCRUD(ur, h.RBAC, ModuleUsers, crud{
					list: h.Users.ListUsers, get: h.Users.GetUser, create: h.Users.CreateUser,
					update: h.Users.UpdateUser, deactivate: h.Users.DeactivateUser,
					activate: h.Users.ActivateUser, remove: h.Users.DeleteUser,
				})

				ur.Group(func(rr chi.Router) {
					rr.Use(h.RBAC.Require(ModuleUsers, access.ActionRead))
					rr.Get("/{id}/permissions", h.Resolver.GetUserPermissions)
					rr.Get("/{id}/permissions/check", h.Resolver.CheckPermission)
					rr.Get("/{id}/access-summary", h.Resolver.GetAccessSummary)
					rr.Get("/{id}/access-simulation", h.Resolver.SimulateAccess)
				})
			})

			pr.Route("/groups", func(gr chi.Router) {
				mountCRUD(gr, h.RBAC, ModuleGroups, crud{
					list: h.Groups.ListGroups, get: h.Groups.GetGroup, create: h.Groups.CreateGroup,
					update: h.Groups.UpdateGroup, deactivate: h.Groups.DeactivateGroup,
					activate: h.Groups.ActivateGroup, remove: h.Groups.DeleteGroup,
				})
				mountRelation(gr, h.RBAC, ModuleGroups, "/{id}/roles", h.GroupRoles)
				mountRelation(gr, h.RBAC, ModuleGroups, "/{id}/users", h.GroupUsers)
			})

			pr.Route("/roles", func(rr chi.Router) {
				mountCRUD(rr, h.RBAC, ModuleRoles, crud{
					list: h.Roles.ListRoles, get: h.Roles.GetRole, create: h.Roles.CreateRole,
					update: h.Roles.UpdateRole, deactivate: h.Roles.DeactivateRole,
					activate: h.Roles.ActivateRole, remove: h.Roles.DeleteRole,
				})
				mountRelation(rr, h.RBAC, ModuleRoles, "/{id}/permissions", h.RolePermissions)
			})

			pr.Route("/modules", func(mr chi.Router) {
				mountCRUD(mr, h.RBAC, ModuleModules, crud{
					list: h.Modules.ListModules, get: h.Modules.GetModule, create: h.Modules.CreateModule,
					update: h.Modules.UpdateModule, deactivate: h.Modules.DeactivateModule,
					activate: h.Modules.ActivateModule, remove: h.Modules.DeleteModule,
				})
			})

			pr.Route("/permissions", func(mr chi.Router) {
				mountCRUD(mr, h.RBAC, ModulePermissions, crud{
					list: h.Permissions.ListPermissions, get: h.Permissions.GetPermission,
					create: h.Permissions.CreatePermission, update: h.Permissions.UpdatePermission,
					deactivate: h.Permissions.DeactivatePermission,
					activate: h.Permissions.ActivatePermission, remove: h.Permissions.DeletePermission,
				})
			})

			if h.Audit != nil {
				pr.With(h.RBAC.Require(ModuleAudit, access.ActionRead)).Get("/audit-logs", h.Audit.ListAuditLogs)
			}
		})
	})
}

func mountCRUD(r chi.Router, rbac *auth.RBACAuthorization, moduleName string, c crud) {
	r.With(rbac.Require(moduleName, access.ActionRead)).Get("/", c.list)
	r.With(rbac.Require(moduleName, access.ActionRead)).Get("/{id}", c.get)
	r.With(rbac.Require(moduleName, access.ActionCreate)).Post("/", c.create)
	r.With(rbac.Require(moduleName, access.ActionUpdate)).Put("/{id}", c.update)
	r.With(rbac.Require(moduleName, access.ActionUpdate)).Post("/{id}/activate", c.activate)
	r.With(rbac.Require(moduleName, access.ActionDelete)).Delete("/{id}", c.deactivate)
	r.With(rbac.Require(moduleName, access.ActionDelete)).Delete("/{id}/permanent", c.remove)
}

// mountRelation exposes list, assign and remove for one association. Changing
// membership counts as updating the owning entity.
func mountRelation(r chi.Router, rbac *auth.RBACAuthorization, moduleName, path string, h *access.AssignmentHandler) {
	r.With(rbac.Require(moduleName, access.ActionRead)).Get(path, h.List)
	r.With(rbac.Require(moduleName, access.ActionUpdate)).Post(path, h.Assign)
	r.With(rbac.Require(moduleName, access.ActionUpdate)).Delete(path, h.Remove)
}
