package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/http/handler"
	"github.com/sandeepkv93/clinical-records-service/internal/http/middleware"
	"github.com/sandeepkv93/clinical-records-service/internal/http/response"
	"github.com/sandeepkv93/clinical-records-service/internal/service"
)

// RecordRoutes is implemented by every RecordHandler instantiation.
type RecordRoutes interface {
	Create(http.ResponseWriter, *http.Request)
	Get(http.ResponseWriter, *http.Request)
	ListByPatient(http.ResponseWriter, *http.Request)
	Update(http.ResponseWriter, *http.Request)
	Delete(http.ResponseWriter, *http.Request)
	Restore(http.ResponseWriter, *http.Request)
}

// RecordFamily mounts one dependent record family: /{Path} and
// /patients/{id}/{Path}, guarded by "<verb>:<Permission>".
type RecordFamily struct {
	Path       string
	Permission string
	Handler    RecordRoutes
}

type ReadinessCheck func(ctx context.Context) error

type Dependencies struct {
	AuthHandler        *handler.AuthHandler
	SessionHandler     *handler.SessionHandler
	UserHandler        *handler.UserHandler
	PatientHandler     *handler.PatientHandler
	AuditHandler       *handler.AuditHandler
	RecordFamilies     []RecordFamily
	TokenValidator     middleware.AccessTokenValidator
	RBACService        service.RBACAuthorizer
	PermissionResolver service.PermissionResolver
	Logger             *slog.Logger
	CORSOrigins        []string
	AuthRateLimiter    func(http.Handler) http.Handler
	APIRateLimiter     func(http.Handler) http.Handler
	AuthRateLimitRPM   int
	APIRateLimitRPM    int
	Readiness          ReadinessCheck
	EnableOTelHTTP     bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(middleware.RequestActor)

	apiLimiter := dep.APIRateLimiter
	if apiLimiter == nil {
		apiLimiter = middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute, "api").Middleware()
	}
	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute, "auth").Middleware()
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := dep.Readiness(ctx); err != nil {
				response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", nil)
				return
			}
		}
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})

	authn := middleware.AuthMiddleware(dep.TokenValidator, dep.PermissionResolver)
	perm := func(code string) func(http.Handler) http.Handler {
		return middleware.RequirePermission(dep.RBACService, dep.PermissionResolver, code)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apiLimiter)

		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
			r.Post("/logout", dep.AuthHandler.Logout)
			r.With(authLimiter).Post("/request-password-reset", dep.AuthHandler.RequestPasswordReset)
			r.Get("/validate-reset-token", dep.AuthHandler.ValidateResetToken)
			r.With(authLimiter).Post("/reset-password", dep.AuthHandler.ResetPassword)
			r.With(authn, authLimiter).Post("/change-password", dep.AuthHandler.ChangePassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn)

			r.Get("/me", dep.UserHandler.Me)
			r.Get("/sessions", dep.SessionHandler.ListOwn)
			r.With(perm("delete:session")).Delete("/sessions/{id}", dep.SessionHandler.Revoke)

			r.Route("/users", func(r chi.Router) {
				r.With(perm("read:user")).Get("/", dep.UserHandler.List)
				r.With(perm("create:user")).Post("/", dep.UserHandler.Create)
				r.With(perm("read:user")).Get("/{id}", dep.UserHandler.Get)
				r.With(perm("update:user")).Patch("/{id}", dep.UserHandler.Update)
				r.With(perm("delete:user")).Delete("/{id}", dep.UserHandler.Delete)
				r.With(perm("restore:user")).Post("/{id}/restore", dep.UserHandler.Restore)
				r.With(perm("read:session")).Get("/{id}/sessions", dep.SessionHandler.ListForUser)
				r.With(perm("delete:session")).Post("/{id}/sessions/revoke-all", dep.SessionHandler.RevokeAllForUser)
			})
			r.With(perm("read:user")).Get("/roles", dep.UserHandler.ListRoles)
			r.With(perm("read:audit")).Get("/audit-logs", dep.AuditHandler.List)

			r.Route("/patients", func(r chi.Router) {
				r.With(perm("read:patient")).Get("/", dep.PatientHandler.List)
				r.With(perm("create:patient")).Post("/", dep.PatientHandler.Create)
				r.With(perm("read:patient")).Get("/{id}", dep.PatientHandler.Get)
				r.With(perm("update:patient")).Patch("/{id}", dep.PatientHandler.Update)
				r.With(perm("delete:patient")).Delete("/{id}", dep.PatientHandler.Delete)
				r.With(perm("restore:patient")).Post("/{id}/restore", dep.PatientHandler.Restore)
				for _, fam := range dep.RecordFamilies {
					r.With(perm("read:"+fam.Permission)).Get("/{id}/"+fam.Path, fam.Handler.ListByPatient)
				}
			})

			for _, fam := range dep.RecordFamilies {
				r.Route("/"+fam.Path, func(r chi.Router) {
					r.With(perm("create:"+fam.Permission)).Post("/", fam.Handler.Create)
					r.With(perm("read:"+fam.Permission)).Get("/{id}", fam.Handler.Get)
					r.With(perm("update:"+fam.Permission)).Patch("/{id}", fam.Handler.Update)
					r.With(perm("delete:"+fam.Permission)).Delete("/{id}", fam.Handler.Delete)
					r.With(perm("restore:"+fam.Permission)).Post("/{id}/restore", fam.Handler.Restore)
				})
			}
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

// DefaultRecordFamilies wires the four dependent record families.
func DefaultRecordFamilies(
	exams *handler.RecordHandler[domain.Exam, *domain.Exam],
	notifications *handler.RecordHandler[domain.Notification, *domain.Notification],
	observations *handler.RecordHandler[domain.Observation, *domain.Observation],
	treatments *handler.RecordHandler[domain.Treatment, *domain.Treatment],
) []RecordFamily {
	return []RecordFamily{
		{Path: "exams", Permission: "exam", Handler: exams},
		{Path: "notifications", Permission: "notification", Handler: notifications},
		{Path: "observations", Permission: "observation", Handler: observations},
		{Path: "treatments", Permission: "treatment", Handler: treatments},
	}
}
