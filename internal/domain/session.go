package domain

import "time"

// Session is the revocable server-side record of one login. Expired and
// revoked sessions are both terminal and represented by DeletedAt.
type Session struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	UserID         uint   `gorm:"index;not null" json:"user_id"`
	RefreshTokenID string `gorm:"size:64;index;not null" json:"-"`
	// PreviousRefreshTokenID is the id the last rotation replaced, at RotatedAt.
	PreviousRefreshTokenID string     `gorm:"size:64" json:"-"`
	RotatedAt              *time.Time `json:"-"`
	RememberMe             bool       `gorm:"not null;default:false" json:"remember_me"`
	UserAgent              string     `gorm:"size:512" json:"user_agent"`
	IPAddress              string     `gorm:"size:64" json:"ip_address"`
	IssuedAt               time.Time  `gorm:"not null" json:"issued_at"`
	ExpiresAt              time.Time  `gorm:"index;not null" json:"expires_at"`
	DeletedAt              *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	RevokedReason          *string    `gorm:"size:64" json:"revoked_reason,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

func (s *Session) IsActive(now time.Time) bool {
	return s.DeletedAt == nil && now.Before(s.ExpiresAt)
}
