package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/clinical-records-service/internal/database"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
	"github.com/sandeepkv93/clinical-records-service/internal/security"
)

const testPassword = "correct-horse-battery"

type captureMailer struct {
	mu    sync.Mutex
	links map[string]string
	err   error
}

func (m *captureMailer) SendPasswordReset(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = make(map[string]string)
	}
	m.links[to] = link
	return m.err
}

func (m *captureMailer) token(t *testing.T, to string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[to]
	if !ok {
		t.Fatalf("no reset mail sent to %s", to)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return u.Query().Get("token")
}

type testEnv struct {
	db        *gorm.DB
	users     repository.UserRepository
	roles     repository.RoleRepository
	sessRepo  repository.SessionRepository
	jwt       *security.JWTManager
	hasher    *security.BcryptHasher
	mailer    *captureMailer
	audit     *AuditService
	auth      *AuthService
	sessions  *SessionService
	resets    *PasswordResetService
	userSvc   *UserService
	patients  *PatientService
	exams     *RecordService[domain.Exam, *domain.Exam]
	treatment *RecordService[domain.Treatment, *domain.Treatment]
}

func newTestEnv(t *testing.T) *testEnv {
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
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := database.Seed(db); err != nil {
		t.Fatalf("seed: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{
		db:       db,
		users:    repository.NewUserRepository(db),
		roles:    repository.NewRoleRepository(db),
		sessRepo: repository.NewSessionRepository(db),
		jwt: security.NewJWTManager("test-issuer", "test-audience",
			"access-secret-access-secret-access-secret",
			"refresh-secret-refresh-secret-refresh-secret",
			15*time.Minute, 24*time.Hour),
		hasher: security.NewBcryptHasher(4),
		mailer: &captureMailer{},
	}
	patientRepo := repository.NewPatientRepository(db)
	tokens := NewTokenService(env.jwt)
	inactive := NewInMemoryInactiveSessionCache()
	env.audit = NewAuditService(repository.NewAuditRepository(db), log)
	env.auth = NewAuthService(env.users, env.sessRepo, tokens, env.jwt, env.hasher, env.audit, inactive, log)
	env.sessions = NewSessionService(env.sessRepo, env.users, env.audit, inactive, tokens)
	env.resets = NewPasswordResetService(env.users, repository.NewPasswordResetRepository(db), env.sessRepo,
		env.hasher, env.mailer, env.audit, PasswordResetConfig{
			TTL:         time.Hour,
			ResetURL:    "https://app.example.com/reset",
			Pepper:      "test-pepper",
			RejectReuse: true,
		}, log)
	env.userSvc = NewUserService(env.users, env.roles, env.sessRepo, env.hasher, env.audit)
	env.patients = NewPatientService(patientRepo, env.audit, log)
	env.exams = NewRecordService(repository.NewRecordRepository[domain.Exam](db), patientRepo, env.audit)
	env.treatment = NewRecordService(repository.NewRecordRepository[domain.Treatment](db), patientRepo, env.audit)
	return env
}

func (e *testEnv) createUser(t *testing.T, email, roleCode string) *domain.User {
	t.Helper()
	role, err := e.roles.FindByCode(context.Background(), roleCode)
	if err != nil {
		t.Fatalf("find role %s: %v", roleCode, err)
	}
	hash, err := e.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{
		Email:        email,
		Name:         "Test " + roleCode,
		PasswordHash: hash,
		RoleID:       role.ID,
		Tracking:     domain.Tracking{CreatedBy: domain.SystemUserID},
	}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	u.Role = role
	return u
}

// ctxFor builds the request context an authenticated request would carry.
func ctxFor(u *domain.User) context.Context {
	return reqctx.WithActor(context.Background(), reqctx.Actor{
		UserID:    u.ID,
		RoleID:    u.RoleID,
		RoleCode:  u.Role.Code,
		IPAddress: "10.1.1.1",
		UserAgent: "service-test",
	})
}

func anonymousCtx() context.Context {
	return reqctx.WithActor(context.Background(), reqctx.Actor{IPAddress: "10.9.9.9", UserAgent: "anon-test"})
}

func (e *testEnv) auditRows(t *testing.T, action domain.AuditAction, entity string, entityID uint) []domain.AuditLog {
	t.Helper()
	var rows []domain.AuditLog
	err := e.db.Where("action = ? AND entity_name = ? AND entity_id = ?", action, entity, entityID).Find(&rows).Error
	if err != nil {
		t.Fatalf("load audit rows: %v", err)
	}
	return rows
}

func (e *testEnv) auditCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&domain.AuditLog{}).Count(&n).Error; err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	return n
}
