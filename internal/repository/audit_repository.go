package repository

import (
	"context"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"

	"gorm.io/gorm"
)

type AuditListQuery struct {
	PageRequest
	EntityName string
	EntityID   uint
	UserID     uint
	Action     domain.AuditAction
}

// AuditRepository is append-only: it exposes no update or delete.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
	ListPaged(ctx context.Context, query AuditListQuery) (PageResult[domain.AuditLog], error)
}

type GormAuditRepository struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) AuditRepository { return &GormAuditRepository{db: db} }

func (r *GormAuditRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	return observe(ctx, "audit", "create", r.db.WithContext(ctx).Create(entry).Error)
}

func (r *GormAuditRepository) ListPaged(ctx context.Context, query AuditListQuery) (PageResult[domain.AuditLog], error) {
	base := r.db.WithContext(ctx).Model(&domain.AuditLog{})
	if query.EntityName != "" {
		base = base.Where("entity_name = ?", query.EntityName)
	}
	if query.EntityID != 0 {
		base = base.Where("entity_id = ?", query.EntityID)
	}
	if query.UserID != 0 {
		base = base.Where("user_id = ?", query.UserID)
	}
	if query.Action != "" {
		base = base.Where("action = ?", query.Action)
	}
	result, err := findPage[domain.AuditLog](base, query.PageRequest, "id DESC")
	return result, observe(ctx, "audit", "list_paged", err)
}
