package middleware

import (
	"net/http"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/http/response"
	"github.com/sandeepkv93/clinical-records-service/internal/observability"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
	"github.com/sandeepkv93/clinical-records-service/internal/service"
)

// RequirePermission rejects the request unless the actor's role grants
// permission. It must run after AuthMiddleware.
func RequirePermission(rbac service.RBACAuthorizer, resolver service.PermissionResolver, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := reqctx.From(r.Context())
			if !ok || actor.IsAnonymous() {
				response.FromError(w, r, apperr.Unauthorized(apperr.CodeUnauthorized, "missing auth context"))
				return
			}
			resolved, err := resolver.ResolveRole(r.Context(), actor.RoleID)
			if err != nil {
				if _, typed := apperr.As(err); typed {
					response.FromError(w, r, err)
					return
				}
				observability.RecordRBACPermissionCacheEvent(r.Context(), "resolve_error")
				response.Error(w, r, http.StatusServiceUnavailable, "RBAC_UNAVAILABLE", "permission resolution unavailable", nil)
				return
			}
			if !rbac.HasPermission(resolved.Permissions, permission) {
				observability.SecurityEvent(r.Context(), "permission_denied", "permission", permission, "path", r.URL.Path)
				response.Error(w, r, http.StatusForbidden, apperr.CodeForbidden, "insufficient permission", map[string]string{"required": permission})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
