package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/sandeepkv93/clinical-records-service/internal/config"
	"github.com/sandeepkv93/clinical-records-service/internal/database"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/http/handler"
	"github.com/sandeepkv93/clinical-records-service/internal/http/middleware"
	"github.com/sandeepkv93/clinical-records-service/internal/http/router"
	"github.com/sandeepkv93/clinical-records-service/internal/mail"
	"github.com/sandeepkv93/clinical-records-service/internal/observability"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
	"github.com/sandeepkv93/clinical-records-service/internal/security"
	"github.com/sandeepkv93/clinical-records-service/internal/service"
)

func provideLogger(ctx context.Context, cfg *config.Config) (*slog.Logger, *sdklog.LoggerProvider, error) {
	logger, lp, err := observability.NewLogger(ctx, cfg, os.Stdout)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, lp, nil
}

func provideRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}

func provideDB(cfg *config.Config) (*gorm.DB, error) {
	return database.Open(cfg)
}

// provideRedis returns nil when REDIS_ADDR is unset; callers fall back to
// in-process stores.
func provideRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (redis.UniversalClient, error) {
	if cfg.RedisAddr == "" {
		logger.Info("redis disabled, using in-process caches and rate limiting")
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
}

func provideHasher(cfg *config.Config) *security.BcryptHasher {
	return security.NewBcryptHasher(cfg.BcryptCost)
}

func provideCookieManager(cfg *config.Config) *security.CookieManager {
	return security.NewCookieManager(cfg.IsProduction(), cfg.CookieDomain)
}

func provideMailer(cfg *config.Config, logger *slog.Logger) mail.Sender {
	if cfg.PostmarkServerToken == "" {
		logger.Warn("POSTMARK_SERVER_TOKEN unset, password reset mail is logged instead of sent")
		return mail.NewLogSender(logger)
	}
	return mail.NewPostmarkSender(cfg.PostmarkServerToken, cfg.PostmarkAccountToken, cfg.MailFrom)
}

func provideInactiveSessionCache(client redis.UniversalClient) service.InactiveSessionCache {
	if client == nil {
		return service.NewInMemoryInactiveSessionCache()
	}
	return service.NewRedisInactiveSessionCache(client, "session_inactive")
}

func providePermissionCacheStore(client redis.UniversalClient) service.RBACPermissionCacheStore {
	if client == nil {
		return service.NewInMemoryRBACPermissionCacheStore()
	}
	return service.NewRedisRBACPermissionCacheStore(client, "rbacperm")
}

func providePermissionResolver(store service.RBACPermissionCacheStore, roles repository.RoleRepository, cfg *config.Config) service.PermissionResolver {
	return service.NewCachedPermissionResolver(store, roles, cfg.RBACCacheTTL)
}

func providePasswordResetConfig(cfg *config.Config) service.PasswordResetConfig {
	return service.PasswordResetConfig{
		TTL:         cfg.PasswordResetTTL,
		ResetURL:    cfg.PasswordResetURL,
		Pepper:      cfg.TokenPepper,
		RejectReuse: cfg.PasswordResetRejectReuse,
	}
}

func provideAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *service.TokenService,
	jwtMgr *security.JWTManager,
	hasher *security.BcryptHasher,
	audit *service.AuditService,
	inactive service.InactiveSessionCache,
	logger *slog.Logger,
) *service.AuthService {
	return service.NewAuthService(users, sessions, tokens, jwtMgr, hasher, audit, inactive, logger)
}

func provideUserService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	sessions repository.SessionRepository,
	hasher *security.BcryptHasher,
	audit *service.AuditService,
) *service.UserService {
	return service.NewUserService(users, roles, sessions, hasher, audit)
}

func providePasswordResetService(
	users repository.UserRepository,
	resets repository.PasswordResetRepository,
	sessions repository.SessionRepository,
	hasher *security.BcryptHasher,
	mailer mail.Sender,
	audit *service.AuditService,
	cfg service.PasswordResetConfig,
	logger *slog.Logger,
) *service.PasswordResetService {
	return service.NewPasswordResetService(users, resets, sessions, hasher, mailer, audit, cfg, logger)
}

// RecordHandlers groups the handlers of the dependent record families.
type RecordHandlers struct {
	Exams         *handler.RecordHandler[domain.Exam, *domain.Exam]
	Notifications *handler.RecordHandler[domain.Notification, *domain.Notification]
	Observations  *handler.RecordHandler[domain.Observation, *domain.Observation]
	Treatments    *handler.RecordHandler[domain.Treatment, *domain.Treatment]
}

func provideRecordHandlers(db *gorm.DB, patients repository.PatientRepository, audit *service.AuditService) RecordHandlers {
	return RecordHandlers{
		Exams: handler.NewRecordHandler(
			service.NewRecordService(repository.NewRecordRepository[domain.Exam](db), patients, audit), handler.ValidateExam),
		Notifications: handler.NewRecordHandler(
			service.NewRecordService(repository.NewRecordRepository[domain.Notification](db), patients, audit), handler.ValidateNotification),
		Observations: handler.NewRecordHandler(
			service.NewRecordService(repository.NewRecordRepository[domain.Observation](db), patients, audit), handler.ValidateObservation),
		Treatments: handler.NewRecordHandler(
			service.NewRecordService(repository.NewRecordRepository[domain.Treatment](db), patients, audit), handler.ValidateTreatment),
	}
}

// RateLimiters holds the edge limiters; they share counters through Redis
// when it is configured.
type RateLimiters struct {
	Auth func(http.Handler) http.Handler
	API  func(http.Handler) http.Handler
}

func provideRateLimiters(cfg *config.Config, client redis.UniversalClient) RateLimiters {
	if client == nil {
		return RateLimiters{
			Auth: middleware.NewRateLimiter(cfg.AuthRateLimitRPM, time.Minute, "auth").Middleware(),
			API:  middleware.NewRateLimiter(cfg.APIRateLimitRPM, time.Minute, "api").Middleware(),
		}
	}
	limiter := middleware.NewRedisFixedWindowLimiter(client, "ratelimit")
	return RateLimiters{
		Auth: middleware.NewDistributedRateLimiter(limiter, cfg.AuthRateLimitRPM, time.Minute, middleware.FailClosed, "auth").Middleware(),
		API:  middleware.NewDistributedRateLimiter(limiter, cfg.APIRateLimitRPM, time.Minute, middleware.FailOpen, "api").Middleware(),
	}
}

func provideReadiness(db *gorm.DB, client redis.UniversalClient) router.ReadinessCheck {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if client != nil {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}

func provideRouter(
	cfg *config.Config,
	logger *slog.Logger,
	authHandler *handler.AuthHandler,
	sessionHandler *handler.SessionHandler,
	userHandler *handler.UserHandler,
	patientHandler *handler.PatientHandler,
	auditHandler *handler.AuditHandler,
	records RecordHandlers,
	authSvc *service.AuthService,
	rbac *service.RBACService,
	resolver service.PermissionResolver,
	limiters RateLimiters,
	readiness router.ReadinessCheck,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		AuthHandler:        authHandler,
		SessionHandler:     sessionHandler,
		UserHandler:        userHandler,
		PatientHandler:     patientHandler,
		AuditHandler:       auditHandler,
		RecordFamilies:     router.DefaultRecordFamilies(records.Exams, records.Notifications, records.Observations, records.Treatments),
		TokenValidator:     authSvc,
		RBACService:        rbac,
		PermissionResolver: resolver,
		Logger:             logger,
		CORSOrigins:        cfg.CORSOrigins,
		AuthRateLimiter:    limiters.Auth,
		APIRateLimiter:     limiters.API,
		Readiness:          readiness,
		EnableOTelHTTP:     cfg.OTELTracingEnabled,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
