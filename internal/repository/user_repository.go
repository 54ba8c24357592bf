package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

type UserListQuery struct {
	PageRequest
	Email          string
	RoleID         uint
	IncludeDeleted bool
}

type UserRepository interface {
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByIDUnscoped(ctx context.Context, id uint) (*domain.User, error)
	FindActiveByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, userID uint, passwordHash string, actorID uint) error
	SoftDelete(ctx context.Context, userID, actorID uint, at time.Time, revokeReason string) (bool, int64, error)
	Restore(ctx context.Context, userID, actorID uint) (bool, error)
	ListPaged(ctx context.Context, query UserListQuery) (PageResult[domain.User], error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

// FindByID only returns active users.
func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	return r.findOne(ctx, "find_by_id", r.db.WithContext(ctx).Where("users.id = ? AND users.deleted_at IS NULL", id))
}

func (r *GormUserRepository) FindByIDUnscoped(ctx context.Context, id uint) (*domain.User, error) {
	return r.findOne(ctx, "find_by_id_unscoped", r.db.WithContext(ctx).Where("users.id = ?", id))
}

func (r *GormUserRepository) FindActiveByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "find_active_by_email", r.db.WithContext(ctx).Where("users.email = ? AND users.deleted_at IS NULL", email))
}

func (r *GormUserRepository) findOne(ctx context.Context, op string, q *gorm.DB) (*domain.User, error) {
	var u domain.User
	err := q.Preload("Role").First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrUserNotFound
	}
	if observe(ctx, "user", op, err) != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Omit("Role").Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = ErrDuplicateEmail
	}
	return observe(ctx, "user", "create", err)
}

func (r *GormUserRepository) Update(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND deleted_at IS NULL", user.ID).
		Updates(map[string]any{
			"email":      user.Email,
			"name":       user.Name,
			"role_id":    user.RoleID,
			"updated_by": user.UpdatedBy,
		}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = ErrDuplicateEmail
	}
	return observe(ctx, "user", "update", err)
}

func (r *GormUserRepository) UpdatePassword(ctx context.Context, userID uint, passwordHash string, actorID uint) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND deleted_at IS NULL", userID).
		Updates(map[string]any{"password_hash": passwordHash, "updated_by": actorID})
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrUserNotFound
	}
	return observe(ctx, "user", "update_password", err)
}

// SoftDelete marks an active user deleted and revokes all of their sessions
// in one transaction. It reports whether the user was active and how many
// sessions ended.
func (r *GormUserRepository) SoftDelete(ctx context.Context, userID, actorID uint, at time.Time, revokeReason string) (bool, int64, error) {
	var deleted bool
	var revoked int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.User{}).
			Where("id = ? AND deleted_at IS NULL", userID).
			Updates(map[string]any{"deleted_at": at, "updated_by": actorID})
		if res.Error != nil || res.RowsAffected == 0 {
			return res.Error
		}
		sres := tx.Model(&domain.Session{}).
			Where("user_id = ? AND deleted_at IS NULL", userID).
			Updates(map[string]any{"deleted_at": at, "revoked_reason": revokeReason})
		if sres.Error != nil {
			return fmt.Errorf("revoke sessions: %w", sres.Error)
		}
		deleted, revoked = true, sres.RowsAffected
		return nil
	})
	if observe(ctx, "user", "soft_delete", err) != nil {
		return false, 0, err
	}
	return deleted, revoked, nil
}

func (r *GormUserRepository) Restore(ctx context.Context, userID, actorID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND deleted_at IS NOT NULL", userID).
		Updates(map[string]any{"deleted_at": nil, "updated_by": actorID})
	return res.RowsAffected > 0, observe(ctx, "user", "restore", res.Error)
}

func (r *GormUserRepository) ListPaged(ctx context.Context, query UserListQuery) (PageResult[domain.User], error) {
	base := r.db.WithContext(ctx).Model(&domain.User{}).Where("users.id <> ?", domain.SystemUserID)
	if !query.IncludeDeleted {
		base = base.Where("users.deleted_at IS NULL")
	}
	if query.Email != "" {
		base = base.Where("users.email LIKE ?", query.Email+"%")
	}
	if query.RoleID != 0 {
		base = base.Where("users.role_id = ?", query.RoleID)
	}
	result, err := findPage[domain.User](base, query.PageRequest, "users.id ASC", func(db *gorm.DB) *gorm.DB {
		return db.Preload("Role")
	})
	return result, observe(ctx, "user", "list_paged", err)
}
