package database

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"
)

func TestSeedIsIdempotentAndCreatesSystemActor(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := Seed(db); err != nil {
			t.Fatalf("seed run %d: %v", i, err)
		}
	}

	var system domain.User
	if err := db.Preload("Role").First(&system, domain.SystemUserID).Error; err != nil {
		t.Fatalf("load system user: %v", err)
	}
	if system.Role == nil || system.Role.Code != domain.RoleCodeSystem {
		t.Fatalf("expected system role, got %+v", system.Role)
	}

	var admin domain.Role
	if err := db.Preload("Permissions").Where("code = ?", domain.RoleCodeAdmin).First(&admin).Error; err != nil {
		t.Fatalf("load admin role: %v", err)
	}
	if len(admin.Permissions) != len(PermissionCodes()) {
		t.Fatalf("expected admin to hold all %d permissions, got %d", len(PermissionCodes()), len(admin.Permissions))
	}
	var count int64
	db.Model(&domain.Role{}).Count(&count)
	if count != 3 {
		t.Fatalf("expected 3 roles after repeated seed, got %d", count)
	}
}
