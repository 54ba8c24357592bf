package domain

import "time"

// SystemUserID is the actor recorded for anonymous and system-initiated
// operations. The row is seeded by the migrate command and cannot log in.
const SystemUserID uint = 1

const (
	RoleCodeSystem    = "SYSTEM"
	RoleCodeAdmin     = "ADMIN"
	RoleCodeClinician = "CLINICIAN"
)

type Permission struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"size:64;uniqueIndex;not null" json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

type Role struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Code        string       `gorm:"size:32;uniqueIndex;not null" json:"code"`
	Name        string       `gorm:"size:128;not null" json:"name"`
	Permissions []Permission `gorm:"many2many:role_permissions" json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (r *Role) PermissionCodes() []string {
	codes := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		codes = append(codes, p.Code)
	}
	return codes
}

type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Email        string `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Name         string `gorm:"size:255;not null" json:"name"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`
	RoleID       uint   `gorm:"index;not null" json:"role_id"`
	Role         *Role  `json:"role,omitempty"`
	Tracking
}
