package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/transport"
)

// PermissionChecker answers whether a user holds action on a named module.
type PermissionChecker interface {
	CheckPermissionByModuleName(ctx context.Context, userID int64, moduleName, action string) (bool, error)
}

type RBACAuthorization struct {
	*transport.BaseHandler
	checker PermissionChecker
	logger  *slog.Logger
}

func NewRBACAuthorization(checker PermissionChecker, logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{
		BaseHandler: transport.NewBaseHandler(logger),
		checker:     checker,
		logger:      logger,
	}
}

// Require admits the request only if the principal holds action on moduleName.
// An unknown module denies.
func (ra *RBACAuthorization) Require(moduleName, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := internal.PrincipalFromContext(r.Context())
			if !ok {
				ra.logger.WarnContext(r.Context(), "authorization check failed: no principal in context")
				ra.HandleServiceError(w, r, internal.NewUnauthorizedError("authentication required", internal.ErrCodeMissingToken))
				return
			}

			allowed, err := ra.checker.CheckPermissionByModuleName(r.Context(), principal.UserID, moduleName, action)
			if err != nil {
				if internal.HasType(err, internal.ErrorTypeNotFound) {
					ra.logger.WarnContext(r.Context(), "access denied: module not registered",
						"user_id", principal.UserID, "module", moduleName, "action", action)
					ra.HandleServiceError(w, r, forbidden(moduleName, action))
					return
				}
				ra.HandleServiceError(w, r, err)
				return
			}

			if !allowed {
				ra.logger.WarnContext(r.Context(), "access denied: insufficient permissions",
					"user_id", principal.UserID, "module", moduleName, "action", action)
				ra.HandleServiceError(w, r, forbidden(moduleName, action))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func forbidden(moduleName, action string) error {
	return internal.NewForbiddenError(
		fmt.Sprintf("permission %s on %s required", action, moduleName),
		internal.ErrCodeInsufficientPermissions,
	)
}
