//go:build wireinject

package di

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/clinical-records-service/internal/app"
	"github.com/sandeepkv93/clinical-records-service/internal/config"
	"github.com/sandeepkv93/clinical-records-service/internal/http/handler"
	"github.com/sandeepkv93/clinical-records-service/internal/mail"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
	"github.com/sandeepkv93/clinical-records-service/internal/service"
)

var repositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewRoleRepository,
	repository.NewSessionRepository,
	repository.NewPasswordResetRepository,
	repository.NewPatientRepository,
	repository.NewAuditRepository,
)

var serviceSet = wire.NewSet(
	provideJWTManager,
	provideHasher,
	provideCookieManager,
	provideInactiveSessionCache,
	providePermissionCacheStore,
	providePermissionResolver,
	providePasswordResetConfig,
	service.NewTokenService,
	service.NewAuditService,
	service.NewRBACService,
	provideAuthService,
	service.NewSessionService,
	provideUserService,
	providePasswordResetService,
	service.NewPatientService,
)

var httpSet = wire.NewSet(
	handler.NewAuthHandler,
	handler.NewSessionHandler,
	handler.NewUserHandler,
	handler.NewPatientHandler,
	handler.NewAuditHandler,
	provideRecordHandlers,
	provideRateLimiters,
	provideReadiness,
	provideRouter,
)

func InitializeApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	wire.Build(
		provideLogger,
		provideRuntime,
		provideDB,
		provideRedis,
		repositorySet,
		serviceSet,
		httpSet,
		provideMailer,
		provideHTTPServer,
		app.New,
	)
	return nil, nil
}

// InitializeHandler builds the HTTP handler around externally owned storage.
func InitializeHandler(cfg *config.Config, logger *slog.Logger, db *gorm.DB, redisClient redis.UniversalClient, mailer mail.Sender) http.Handler {
	wire.Build(
		repositorySet,
		serviceSet,
		httpSet,
	)
	return nil
}
