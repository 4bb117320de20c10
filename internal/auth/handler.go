package auth

import (
	"net/http"

	"github.com/frahmantamala/iam-service/internal"
	"github.com/frahmantamala/iam-service/internal/audit"
	"github.com/frahmantamala/iam-service/internal/transport"
	"github.com/frahmantamala/iam-service/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Audit   transport.AuditRecorder
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI, recorder transport.AuditRecorder) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
		Audit:       recorder,
	}
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	tokens, err := h.Service.Authenticate(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.Audit.RecordRequest(r, audit.ActionLogin, "user", tokens.UserID, nil)
	h.WriteSuccess(w, http.StatusOK, "login successful", tokens)
}

// RefreshToken handles POST /auth/refresh
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var dto RefreshTokenDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	tokens, err := h.Service.RefreshTokens(r.Context(), dto.RefreshToken)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	h.WriteSuccess(w, http.StatusOK, "token refreshed", tokens)
}

// Logout handles POST /auth/logout. Tokens are stateless, so this only
// confirms the caller held a valid one.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.ExtractTokenFromHeader(r)
	if token == "" {
		h.HandleServiceError(w, r, internal.NewUnauthorizedError("missing authorization token", internal.ErrCodeMissingToken))
		return
	}

	if _, err := h.Service.ValidateAccessToken(token); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AuthMiddleware attaches the principal of a valid bearer token to the request.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.HandleServiceError(w, r, internal.NewUnauthorizedError("missing authorization token", internal.ErrCodeMissingToken))
			return
		}

		principal, err := h.Service.Authorize(r.Context(), token)
		if err != nil {
			h.HandleServiceError(w, r, err)
			return
		}

		ctx := internal.ContextWithPrincipal(r.Context(), principal)
		ctx = logger.With(ctx, "user_id", principal.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
