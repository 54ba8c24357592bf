package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindByID(ctx context.Context, id uint) (*domain.Session, error)
	ListActiveByUserID(ctx context.Context, userID uint) ([]domain.Session, error)
	Rotate(ctx context.Context, id uint, fromTokenID, toTokenID string, expiresAt time.Time, ua, ip string) (bool, error)
	RevokeByID(ctx context.Context, id uint, reason string) (bool, error)
	RevokeByUserID(ctx context.Context, userID uint, reason string) (int64, error)
	RevokeOthersByUser(ctx context.Context, userID, keepSessionID uint, reason string) (int64, error)
	CleanupExpired(ctx context.Context, before time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	return observe(ctx, "session", "create", r.db.WithContext(ctx).Create(s).Error)
}

func (r *GormSessionRepository) FindByID(ctx context.Context, id uint) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrSessionNotFound
	}
	if observe(ctx, "session", "find_by_id", err) != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUserID(ctx context.Context, userID uint) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NULL AND expires_at > ?", userID, time.Now().UTC()).
		Order("issued_at DESC").
		Find(&sessions).Error
	return sessions, observe(ctx, "session", "list_active_by_user_id", err)
}

// Rotate swaps the session's current refresh token id only if it still holds
// fromTokenID and is active. Losing a concurrent rotation reports false.
func (r *GormSessionRepository) Rotate(ctx context.Context, id uint, fromTokenID, toTokenID string, expiresAt time.Time, ua, ip string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? AND refresh_token_id = ? AND deleted_at IS NULL AND expires_at > ?", id, fromTokenID, now).
		Updates(map[string]any{
			"refresh_token_id":          toTokenID,
			"previous_refresh_token_id": fromTokenID,
			"rotated_at":                now,
			"expires_at":                expiresAt,
			"user_agent":                ua,
			"ip_address":                ip,
		})
	return res.RowsAffected > 0, observe(ctx, "session", "rotate", res.Error)
}

func (r *GormSessionRepository) RevokeByID(ctx context.Context, id uint, reason string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(revokeUpdates(reason))
	return res.RowsAffected > 0, observe(ctx, "session", "revoke_by_id", res.Error)
}

func (r *GormSessionRepository) RevokeByUserID(ctx context.Context, userID uint, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Updates(revokeUpdates(reason))
	return res.RowsAffected, observe(ctx, "session", "revoke_by_user_id", res.Error)
}

func (r *GormSessionRepository) RevokeOthersByUser(ctx context.Context, userID, keepSessionID uint, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("user_id = ? AND id <> ? AND deleted_at IS NULL", userID, keepSessionID).
		Updates(revokeUpdates(reason))
	return res.RowsAffected, observe(ctx, "session", "revoke_others_by_user", res.Error)
}

// CleanupExpired hard-deletes sessions that ended before the cutoff.
func (r *GormSessionRepository) CleanupExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ? OR (deleted_at IS NOT NULL AND deleted_at <= ?)", before, before).
		Delete(&domain.Session{})
	return res.RowsAffected, observe(ctx, "session", "cleanup_expired", res.Error)
}

func revokeUpdates(reason string) map[string]any {
	return map[string]any{"deleted_at": time.Now().UTC(), "revoked_reason": reason}
}
