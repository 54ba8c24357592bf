package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/clinical-records-service/internal/config"
	"github.com/sandeepkv93/clinical-records-service/internal/database"
	"github.com/sandeepkv93/clinical-records-service/internal/di"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/security"
)

const testPassword = "Valid#Pass1234"

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type capturingMailer struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *capturingMailer) SendPasswordReset(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[to] = link
	return nil
}

type testEnv struct {
	baseURL string
	db      *gorm.DB
	redis   *miniredis.Miniredis
	mailer  *capturingMailer
}

type serverOptions struct {
	cfgOverride func(*config.Config)
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithOptions(t, serverOptions{})
}

func newTestEnvWithOptions(t *testing.T, opts serverOptions) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.Seed(db); err != nil {
		t.Fatalf("seed: %v", err)
	}

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{
		AppEnv:                   "test",
		JWTIssuer:                "clinical-records-service",
		JWTAudience:              "clinical-records-web",
		JWTAccessSecret:          strings.Repeat("a", 40),
		JWTRefreshSecret:         strings.Repeat("r", 40),
		JWTAccessTTL:             15 * time.Minute,
		JWTRefreshTTL:            24 * time.Hour,
		TokenPepper:              "integration-pepper",
		BcryptCost:               4,
		PasswordResetTTL:         time.Hour,
		PasswordResetURL:         "https://app.example.com/reset-password",
		PasswordResetRejectReuse: true,
		AuthRateLimitRPM:         1000,
		APIRateLimitRPM:          1000,
		RBACCacheTTL:             time.Minute,
	}
	if opts.cfgOverride != nil {
		opts.cfgOverride(cfg)
	}

	mailer := &capturingMailer{links: make(map[string]string)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(di.InitializeHandler(cfg, log, db, redisClient, mailer))
	t.Cleanup(func() {
		srv.Close()
		_ = redisClient.Close()
		_ = sqlDB.Close()
	})
	return &testEnv{baseURL: srv.URL, db: db, redis: mr, mailer: mailer}
}

func (e *testEnv) createUser(t *testing.T, email, roleCode string) *domain.User {
	t.Helper()
	var role domain.Role
	if err := e.db.Where("code = ?", roleCode).First(&role).Error; err != nil {
		t.Fatalf("find role %s: %v", roleCode, err)
	}
	hash, err := security.NewBcryptHasher(4).Hash(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		Email:        email,
		Name:         "Integration",
		PasswordHash: hash,
		RoleID:       role.ID,
		Tracking:     domain.Tracking{CreatedBy: domain.SystemUserID},
	}
	if err := e.db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// newClient returns a browser-like client with its own cookie jar.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

type loginResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (e *testEnv) login(t *testing.T, client *http.Client, email, userAgent string) loginResult {
	t.Helper()
	resp, env := doJSON(t, client, http.MethodPost, e.baseURL+"/api/v1/auth/login",
		map[string]any{"email": email, "password": testPassword},
		map[string]string{"User-Agent": userAgent})
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("login %s failed: status=%d", email, resp.StatusCode)
	}
	var out loginResult
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return out
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, apiEnvelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env apiEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope: %v (%s)", err, raw)
		}
	}
	return resp, env
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func errorCode(env apiEnvelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}
