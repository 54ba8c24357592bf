package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"

	"gorm.io/gorm"
)

// Record constrains PT to be a pointer to a dependent row type T.
type Record[T any] interface {
	*T
	domain.PatientRecord
}

// RecordRepository stores one family of patient-dependent rows.
type RecordRepository[T any, PT Record[T]] interface {
	Create(ctx context.Context, rec PT) error
	FindByID(ctx context.Context, id uint) (PT, error)
	ListByPatient(ctx context.Context, patientID uint, includeDeleted bool) ([]T, error)
	Update(ctx context.Context, id uint, rec PT) error
	SoftDelete(ctx context.Context, id, actorID uint, at time.Time) (bool, error)
	Restore(ctx context.Context, id, actorID uint) (bool, error)
}

type GormRecordRepository[T any, PT Record[T]] struct {
	db   *gorm.DB
	name string
}

func NewRecordRepository[T any, PT Record[T]](db *gorm.DB) RecordRepository[T, PT] {
	var zero T
	return &GormRecordRepository[T, PT]{db: db, name: PT(&zero).EntityName()}
}

func (r *GormRecordRepository[T, PT]) Create(ctx context.Context, rec PT) error {
	return observe(ctx, r.name, "create", r.db.WithContext(ctx).Create(rec).Error)
}

// FindByID returns the row whether or not it is soft-deleted.
func (r *GormRecordRepository[T, PT]) FindByID(ctx context.Context, id uint) (PT, error) {
	var rec T
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrRecordNotFound
	}
	if observe(ctx, r.name, "find_by_id", err) != nil {
		return nil, err
	}
	return PT(&rec), nil
}

func (r *GormRecordRepository[T, PT]) ListByPatient(ctx context.Context, patientID uint, includeDeleted bool) ([]T, error) {
	q := r.db.WithContext(ctx).Where("patient_id = ?", patientID)
	if !includeDeleted {
		q = q.Where("deleted_at IS NULL")
	}
	var out []T
	err := q.Order("created_at DESC, id DESC").Find(&out).Error
	return out, observe(ctx, r.name, "list_by_patient", err)
}

// Update writes every mutable column of the active row id. Ownership, creation
// stamps and the deletion marker are never touched here.
func (r *GormRecordRepository[T, PT]) Update(ctx context.Context, id uint, rec PT) error {
	res := r.db.WithContext(ctx).Model(new(T)).
		Where("id = ? AND deleted_at IS NULL", id).
		Select("*").
		Omit("id", "patient_id", "created_at", "created_by", "deleted_at").
		Updates(rec)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = ErrRecordNotFound
	}
	return observe(ctx, r.name, "update", err)
}

func (r *GormRecordRepository[T, PT]) SoftDelete(ctx context.Context, id, actorID uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(new(T)).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{"deleted_at": at, "updated_by": actorID})
	return res.RowsAffected > 0, observe(ctx, r.name, "soft_delete", res.Error)
}

func (r *GormRecordRepository[T, PT]) Restore(ctx context.Context, id, actorID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(new(T)).
		Where("id = ? AND deleted_at IS NOT NULL", id).
		Updates(map[string]any{"deleted_at": nil, "updated_by": actorID})
	return res.RowsAffected > 0, observe(ctx, r.name, "restore", res.Error)
}
