package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/http/response"
	"github.com/sandeepkv93/clinical-records-service/internal/observability"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
	"github.com/sandeepkv93/clinical-records-service/internal/security"
	"github.com/sandeepkv93/clinical-records-service/internal/service"
)

// AccessTokenValidator performs the stateful access token check: signature,
// expiry and a live session behind the token.
type AccessTokenValidator interface {
	ValidateAccessToken(ctx context.Context, raw string) (*service.Principal, error)
}

// AccessTokenFromRequest returns the bearer token, falling back to the
// access_token cookie. source is "bearer", "cookie" or "none".
func AccessTokenFromRequest(r *http.Request) (raw, source string) {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		if raw = strings.TrimSpace(auth[7:]); raw != "" {
			return raw, "bearer"
		}
	}
	if raw = security.GetCookie(r, security.AccessTokenCookie); raw != "" {
		return raw, "cookie"
	}
	return "", "none"
}

// AuthMiddleware authenticates the request and upgrades the request actor
// with the user, role and session proven by the access token.
func AuthMiddleware(validator AccessTokenValidator, resolver service.PermissionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, source := AccessTokenFromRequest(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(ctx, "missing", source)
				response.FromError(w, r, apperr.Unauthorized(apperr.CodeUnauthorized, "missing access token"))
				return
			}
			principal, err := validator.ValidateAccessToken(ctx, raw)
			if err != nil {
				outcome := "invalid"
				if apperr.IsKind(err, apperr.KindSessionExpired) {
					outcome = "session_inactive"
				}
				observability.RecordAccessTokenValidation(ctx, outcome, source)
				response.FromError(w, r, err)
				return
			}
			role, err := resolver.ResolveRole(ctx, principal.RoleID)
			if err != nil {
				observability.RecordAccessTokenValidation(ctx, "role_unresolved", source)
				response.FromError(w, r, err)
				return
			}
			observability.RecordAccessTokenValidation(ctx, "valid", source)

			actor := reqctx.FromOrSystem(ctx)
			actor.UserID = principal.UserID
			actor.RoleID = principal.RoleID
			actor.RoleCode = role.RoleCode
			actor.SessionID = principal.SessionID
			reportActor(ctx, actor.UserID)
			next.ServeHTTP(w, r.WithContext(reqctx.WithActor(ctx, actor)))
		})
	}
}
