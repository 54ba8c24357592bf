package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrResetTokenNotFound = errors.New("password reset token not found")
	ErrResetTokenNotValid = errors.New("password reset token is used, revoked or expired")
)

type PasswordResetRepository interface {
	// ReplaceForUser invalidates every valid token of the user and stores t,
	// serialized per user so at most one token is valid afterwards.
	ReplaceForUser(ctx context.Context, t *domain.PasswordResetToken) (int64, error)
	FindByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error)
	// ConsumeAndSetPassword marks the token used and stores the new password
	// hash in one transaction.
	ConsumeAndSetPassword(ctx context.Context, tokenID, userID uint, passwordHash string, now time.Time) error
}

type GormPasswordResetRepository struct{ db *gorm.DB }

func NewPasswordResetRepository(db *gorm.DB) PasswordResetRepository {
	return &GormPasswordResetRepository{db: db}
}

func (r *GormPasswordResetRepository) ReplaceForUser(ctx context.Context, t *domain.PasswordResetToken) (int64, error) {
	var invalidated int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner domain.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", t.UserID).
			First(&owner).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		now := time.Now().UTC()
		res := tx.Model(&domain.PasswordResetToken{}).
			Where("user_id = ? AND used_at IS NULL AND deleted_at IS NULL", t.UserID).
			Update("deleted_at", now)
		if res.Error != nil {
			return res.Error
		}
		invalidated = res.RowsAffected
		return tx.Create(t).Error
	})
	return invalidated, observe(ctx, "password_reset", "replace_for_user", err)
}

func (r *GormPasswordResetRepository) FindByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error) {
	var t domain.PasswordResetToken
	err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrResetTokenNotFound
	}
	if observe(ctx, "password_reset", "find_by_hash", err) != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GormPasswordResetRepository) ConsumeAndSetPassword(ctx context.Context, tokenID, userID uint, passwordHash string, now time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.PasswordResetToken{}).
			Where("id = ? AND user_id = ? AND used_at IS NULL AND deleted_at IS NULL AND expires_at > ?", tokenID, userID, now).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrResetTokenNotValid
		}
		res = tx.Model(&domain.User{}).
			Where("id = ? AND deleted_at IS NULL", userID).
			Updates(map[string]any{"password_hash": passwordHash, "updated_by": userID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
	return observe(ctx, "password_reset", "consume_and_set_password", err)
}
