package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/clinical-records-service/internal/database"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *domain.User {
	t.Helper()
	var role domain.Role
	if err := db.Where("code = ?", domain.RoleCodeClinician).First(&role).Error; err != nil {
		t.Fatalf("load clinician role: %v", err)
	}
	u := &domain.User{
		Email:        email,
		Name:         "Test User",
		PasswordHash: "hash",
		RoleID:       role.ID,
		Tracking:     domain.Tracking{CreatedBy: domain.SystemUserID},
	}
	if err := db.Omit("Role").Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}
