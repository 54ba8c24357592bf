package domain

import "time"

type AuditAction string

const (
	AuditActionCreate               AuditAction = "CREATE"
	AuditActionUpdate               AuditAction = "UPDATE"
	AuditActionDelete               AuditAction = "DELETE"
	AuditActionRestore              AuditAction = "RESTORE"
	AuditActionRevokeSession        AuditAction = "REVOKE_SESSION"
	AuditActionPasswordChange       AuditAction = "PASSWORD_CHANGE"
	AuditActionPasswordReset        AuditAction = "PASSWORD_RESET"
	AuditActionPasswordResetRequest AuditAction = "PASSWORD_RESET_REQUEST"
)

func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionCreate, AuditActionUpdate, AuditActionDelete, AuditActionRestore,
		AuditActionRevokeSession, AuditActionPasswordChange, AuditActionPasswordReset,
		AuditActionPasswordResetRequest:
		return true
	}
	return false
}

// AuditLog is append-only. Rows are never updated or deleted.
type AuditLog struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UserID     uint           `gorm:"index;not null" json:"user_id"`
	Action     AuditAction    `gorm:"size:32;index;not null" json:"action"`
	EntityName string         `gorm:"size:64;index:idx_audit_entity;not null" json:"entity_name"`
	EntityID   uint           `gorm:"index:idx_audit_entity;not null" json:"entity_id"`
	OldValues  map[string]any `gorm:"serializer:json;type:text" json:"old_values,omitempty"`
	NewValues  map[string]any `gorm:"serializer:json;type:text" json:"new_values,omitempty"`
	IPAddress  string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent  string         `gorm:"size:512" json:"user_agent,omitempty"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}
