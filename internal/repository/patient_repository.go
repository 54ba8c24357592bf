package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRecordNotFound      = errors.New("record not found")
	ErrDuplicateDocument   = errors.New("patient document number already registered")
	ErrPatientNotActive    = errors.New("patient is not active")
	errUnknownDependentTbl = errors.New("unknown dependent table")
)

type PatientListQuery struct {
	PageRequest
	Search         string
	IncludeDeleted bool
}

// CascadeResult describes one applied patient cascade. Watermark is the
// patient's deletion instant; Affected counts dependent rows per table.
type CascadeResult struct {
	Applied   bool
	Watermark time.Time
	Affected  map[string]int64
}

type PatientRepository interface {
	Create(ctx context.Context, p *domain.Patient) error
	FindByID(ctx context.Context, id uint) (*domain.Patient, error)
	FindByIDUnscoped(ctx context.Context, id uint) (*domain.Patient, error)
	Update(ctx context.Context, id uint, p *domain.Patient) error
	ListPaged(ctx context.Context, query PatientListQuery) (PageResult[domain.Patient], error)
	CountActiveDependents(ctx context.Context, patientID uint, table string) (int64, error)
	SoftDeleteCascade(ctx context.Context, patientID, actorID uint, at time.Time) (*CascadeResult, error)
	RestoreCascade(ctx context.Context, patientID, actorID uint) (*CascadeResult, error)
}

type GormPatientRepository struct{ db *gorm.DB }

func NewPatientRepository(db *gorm.DB) PatientRepository { return &GormPatientRepository{db: db} }

func (r *GormPatientRepository) Create(ctx context.Context, p *domain.Patient) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = ErrDuplicateDocument
	}
	return observe(ctx, "patient", "create", err)
}

func (r *GormPatientRepository) FindByID(ctx context.Context, id uint) (*domain.Patient, error) {
	return r.findOne(ctx, "find_by_id", r.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", id))
}

func (r *GormPatientRepository) FindByIDUnscoped(ctx context.Context, id uint) (*domain.Patient, error) {
	return r.findOne(ctx, "find_by_id_unscoped", r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *GormPatientRepository) findOne(ctx context.Context, op string, q *gorm.DB) (*domain.Patient, error) {
	var p domain.Patient
	err := q.First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = ErrRecordNotFound
	}
	if observe(ctx, "patient", op, err) != nil {
		return nil, err
	}
	return &p, nil
}

// Update writes every mutable column of the active patient id. Identity,
// creation stamps and the deletion marker are never touched here.
func (r *GormPatientRepository) Update(ctx context.Context, id uint, p *domain.Patient) error {
	res := r.db.WithContext(ctx).Model(&domain.Patient{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Select("*").
		Omit("id", "created_at", "created_by", "deleted_at").
		Updates(p)
	err := res.Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = ErrDuplicateDocument
	} else if err == nil && res.RowsAffected == 0 {
		err = ErrRecordNotFound
	}
	return observe(ctx, "patient", "update", err)
}

func (r *GormPatientRepository) ListPaged(ctx context.Context, query PatientListQuery) (PageResult[domain.Patient], error) {
	base := r.db.WithContext(ctx).Model(&domain.Patient{})
	if !query.IncludeDeleted {
		base = base.Where("deleted_at IS NULL")
	}
	if query.Search != "" {
		like := query.Search + "%"
		base = base.Where("last_name LIKE ? OR first_name LIKE ? OR document_number LIKE ?", like, like, like)
	}
	result, err := findPage[domain.Patient](base, query.PageRequest, "last_name ASC, id ASC")
	return result, observe(ctx, "patient", "list_paged", err)
}

func (r *GormPatientRepository) CountActiveDependents(ctx context.Context, patientID uint, table string) (int64, error) {
	if !isDependentTable(table) {
		return 0, fmt.Errorf("%w: %s", errUnknownDependentTbl, table)
	}
	var n int64
	err := r.db.WithContext(ctx).Table(table).
		Where("patient_id = ? AND deleted_at IS NULL", patientID).
		Count(&n).Error
	return n, observe(ctx, "patient", "count_active_dependents", err)
}

// SoftDeleteCascade stamps the patient and every active dependent with the
// same instant and actor inside one transaction.
func (r *GormPatientRepository) SoftDeleteCascade(ctx context.Context, patientID, actorID uint, at time.Time) (*CascadeResult, error) {
	result := &CascadeResult{Watermark: at, Affected: make(map[string]int64, len(domain.DependentTables))}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Patient{}).
			Where("id = ? AND deleted_at IS NULL", patientID).
			Updates(map[string]any{"deleted_at": at, "updated_by": actorID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrPatientNotActive
		}
		for _, table := range domain.DependentTables {
			res := tx.Table(table).
				Where("patient_id = ? AND deleted_at IS NULL", patientID).
				Updates(map[string]any{"deleted_at": at, "updated_by": actorID, "updated_at": at})
			if res.Error != nil {
				return fmt.Errorf("cascade delete %s: %w", table, res.Error)
			}
			result.Affected[table] = res.RowsAffected
		}
		result.Applied = true
		return nil
	})
	if observe(ctx, "patient", "soft_delete_cascade", err) != nil {
		return nil, err
	}
	return result, nil
}

// RestoreCascade clears the patient's deletion and restores only dependents
// deleted at or after it. Dependents deleted earlier stay deleted. Restoring
// an active patient is a no-op reported with Applied=false.
func (r *GormPatientRepository) RestoreCascade(ctx context.Context, patientID, actorID uint) (*CascadeResult, error) {
	result := &CascadeResult{Affected: make(map[string]int64, len(domain.DependentTables))}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p domain.Patient
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", patientID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}
		if p.DeletedAt == nil {
			return nil
		}
		watermark := *p.DeletedAt
		now := time.Now().UTC()
		res := tx.Model(&domain.Patient{}).
			Where("id = ? AND deleted_at IS NOT NULL", patientID).
			Updates(map[string]any{"deleted_at": nil, "updated_by": actorID})
		if res.Error != nil {
			return res.Error
		}
		for _, table := range domain.DependentTables {
			res := tx.Table(table).
				Where("patient_id = ? AND deleted_at IS NOT NULL AND deleted_at >= ?", patientID, watermark).
				Updates(map[string]any{"deleted_at": nil, "updated_by": actorID, "updated_at": now})
			if res.Error != nil {
				return fmt.Errorf("cascade restore %s: %w", table, res.Error)
			}
			result.Affected[table] = res.RowsAffected
		}
		result.Applied = true
		result.Watermark = watermark
		return nil
	})
	if observe(ctx, "patient", "restore_cascade", err) != nil {
		return nil, err
	}
	return result, nil
}

func isDependentTable(table string) bool {
	for _, t := range domain.DependentTables {
		if t == table {
			return true
		}
	}
	return false
}
