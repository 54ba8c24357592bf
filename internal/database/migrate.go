package database

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"
)

var clinicalFamilies = []string{"patient", "exam", "notification", "observation", "treatment"}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Permission{},
		&domain.Role{},
		&domain.User{},
		&domain.Session{},
		&domain.PasswordResetToken{},
		&domain.AuditLog{},
		&domain.Patient{},
		&domain.Exam{},
		&domain.Notification{},
		&domain.Observation{},
		&domain.Treatment{},
	)
}

// PermissionCodes returns every permission known to the service.
func PermissionCodes() []string {
	codes := []string{
		"read:session", "delete:session",
		"read:user", "create:user", "update:user", "delete:user", "restore:user",
		"read:audit",
	}
	return append(codes, clinicalPermissionCodes()...)
}

func clinicalPermissionCodes() []string {
	var codes []string
	for _, family := range clinicalFamilies {
		for _, verb := range []string{"read", "create", "update", "delete", "restore"} {
			codes = append(codes, verb+":"+family)
		}
	}
	return codes
}

// Seed creates the system actor, the built-in roles and their permissions.
// It is idempotent.
func Seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		perms := make(map[string]domain.Permission)
		for _, code := range PermissionCodes() {
			p := domain.Permission{Code: code}
			if err := tx.Where(domain.Permission{Code: code}).FirstOrCreate(&p).Error; err != nil {
				return fmt.Errorf("seed permission %s: %w", code, err)
			}
			perms[code] = p
		}

		systemRole, err := seedRole(tx, domain.RoleCodeSystem, "System", nil)
		if err != nil {
			return err
		}
		all := make([]domain.Permission, 0, len(perms))
		for _, code := range PermissionCodes() {
			all = append(all, perms[code])
		}
		if _, err := seedRole(tx, domain.RoleCodeAdmin, "Administrator", all); err != nil {
			return err
		}
		clinician := make([]domain.Permission, 0)
		for _, code := range clinicalPermissionCodes() {
			clinician = append(clinician, perms[code])
		}
		if _, err := seedRole(tx, domain.RoleCodeClinician, "Clinician", clinician); err != nil {
			return err
		}
		return seedSystemUser(tx, systemRole.ID)
	})
}

func seedRole(tx *gorm.DB, code, name string, perms []domain.Permission) (*domain.Role, error) {
	role := domain.Role{Code: code, Name: name}
	if err := tx.Where(domain.Role{Code: code}).FirstOrCreate(&role).Error; err != nil {
		return nil, fmt.Errorf("seed role %s: %w", code, err)
	}
	assoc := tx.Model(&role).Association("Permissions")
	var err error
	if len(perms) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(perms)
	}
	if err != nil {
		return nil, fmt.Errorf("seed role %s permissions: %w", code, err)
	}
	return &role, nil
}

func seedSystemUser(tx *gorm.DB, roleID uint) error {
	var existing domain.User
	err := tx.First(&existing, domain.SystemUserID).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	// The system actor gets an unguessable password nobody knows.
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u := domain.User{
		ID:           domain.SystemUserID,
		Email:        "system@clinical.local",
		Name:         "System",
		PasswordHash: string(hash),
		RoleID:       roleID,
		Tracking:     domain.Tracking{CreatedBy: domain.SystemUserID},
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&u).Error; err != nil {
		return err
	}
	if tx.Dialector.Name() == "postgres" {
		return tx.Exec("SELECT setval(pg_get_serial_sequence('users', 'id'), GREATEST((SELECT MAX(id) FROM users), 1))").Error
	}
	return nil
}
