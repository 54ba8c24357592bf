package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`

	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"clinical-records-service"`
	JWTAudience      string        `env:"JWT_AUDIENCE" envDefault:"clinical-records-web"`
	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET"`
	JWTAccessTTL     time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	JWTRefreshTTL    time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`
	TokenPepper      string        `env:"TOKEN_PEPPER"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"12"`
	CookieDomain     string        `env:"COOKIE_DOMAIN"`

	PasswordResetTTL         time.Duration `env:"PASSWORD_RESET_TTL" envDefault:"1h"`
	PasswordResetURL         string        `env:"PASSWORD_RESET_URL" envDefault:"http://localhost:3000/reset-password"`
	PasswordResetRejectReuse bool          `env:"PASSWORD_RESET_REJECT_REUSE" envDefault:"true"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	MailFrom             string `env:"MAIL_FROM" envDefault:"no-reply@clinical.local"`

	AuthRateLimitRPM     int           `env:"AUTH_RATE_LIMIT_RPM" envDefault:"20"`
	APIRateLimitRPM      int           `env:"API_RATE_LIMIT_RPM" envDefault:"600"`
	RBACCacheTTL         time.Duration `env:"RBAC_CACHE_TTL" envDefault:"5m"`
	SessionRetention     time.Duration `env:"SESSION_RETENTION" envDefault:"720h"`
	CORSOrigins          []string      `env:"CORS_ORIGINS" envSeparator:","`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	ReadHeaderTimeout    time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	OTELServiceName      string        `env:"OTEL_SERVICE_NAME" envDefault:"clinical-records-service"`
	OTELEnvironment      string        `env:"OTEL_ENVIRONMENT" envDefault:"development"`
	OTELEndpoint         string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELInsecure         bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELMetricsEnabled   bool          `env:"OTEL_METRICS_ENABLED" envDefault:"false"`
	OTELTracingEnabled   bool          `env:"OTEL_TRACING_ENABLED" envDefault:"false"`
	OTELLogsEnabled      bool          `env:"OTEL_LOGS_ENABLED" envDefault:"false"`
	OTELMetricsInterval  time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL" envDefault:"15s"`
	OTELTraceSampleRatio float64       `env:"OTEL_TRACE_SAMPLE_RATIO" envDefault:"1.0"`
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

var (
	ErrParse   = errors.New("parse env")
	ErrInvalid = errors.New("validate config")
)

// Load reads .env (when present) and the process environment.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)
	cfg := &Config{}
	var err error
	if perr := env.Parse(cfg); perr != nil {
		err = fmt.Errorf("%w: %w", ErrParse, perr)
	} else if verr := cfg.Validate(); verr != nil {
		err = fmt.Errorf("%w: %w", ErrInvalid, verr)
	}
	recordLoad(context.Background(), cfg.AppEnv, err)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if len(c.JWTAccessSecret) < 32 {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be at least 32 characters"))
	}
	if len(c.JWTRefreshSecret) < 32 {
		errs = append(errs, errors.New("JWT_REFRESH_SECRET must be at least 32 characters"))
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.TokenPepper == "" {
		errs = append(errs, errors.New("TOKEN_PEPPER is required"))
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= c.JWTAccessTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must exceed a positive JWT_ACCESS_TTL"))
	}
	if c.PasswordResetTTL <= 0 {
		errs = append(errs, errors.New("PASSWORD_RESET_TTL must be positive"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}
	return errors.Join(errs...)
}
