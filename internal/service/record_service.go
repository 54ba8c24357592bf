package service

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
)

// RecordService manages one family of patient-dependent records. Records of
// a deleted patient can neither be created nor restored, so the only way a
// dependent is deleted after its patient is through the patient cascade.
type RecordService[T any, PT repository.Record[T]] struct {
	records  repository.RecordRepository[T, PT]
	patients repository.PatientRepository
	audit    *AuditService
	entity   string
	now      func() time.Time
}

func NewRecordService[T any, PT repository.Record[T]](
	records repository.RecordRepository[T, PT],
	patients repository.PatientRepository,
	audit *AuditService,
) *RecordService[T, PT] {
	var zero T
	return &RecordService[T, PT]{
		records:  records,
		patients: patients,
		audit:    audit,
		entity:   PT(&zero).EntityName(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *RecordService[T, PT]) EntityName() string { return s.entity }

func (s *RecordService[T, PT]) Create(ctx context.Context, rec PT) (PT, error) {
	actor := reqctx.MustFrom(ctx)
	if err := s.requireActivePatient(ctx, rec.OwnerPatientID()); err != nil {
		return nil, err
	}
	*rec.Meta() = domain.Tracking{CreatedBy: actor.UserID}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionCreate,
		EntityName: s.entity,
		EntityID:   rec.RecordID(),
		NewValues:  rec,
	})
	return rec, nil
}

// Get returns an active record. Admins also see deleted ones.
func (s *RecordService[T, PT]) Get(ctx context.Context, id uint) (PT, error) {
	rec, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Meta().IsActive() && !reqctx.IsAdmin(ctx) {
		return nil, apperr.NotFound(s.entity)
	}
	return rec, nil
}

func (s *RecordService[T, PT]) ListByPatient(ctx context.Context, patientID uint, includeDeleted bool) ([]T, error) {
	if _, err := s.patients.FindByIDUnscoped(ctx, patientID); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, apperr.NotFound("patient")
		}
		return nil, err
	}
	return s.records.ListByPatient(ctx, patientID, includeDeleted && reqctx.IsAdmin(ctx))
}

func (s *RecordService[T, PT]) Update(ctx context.Context, id uint, apply func(PT) error) (PT, error) {
	actor := reqctx.MustFrom(ctx)
	rec, err := s.activeRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	before := Snapshot(rec)
	if err := apply(rec); err != nil {
		return nil, err
	}
	meta := rec.Meta()
	meta.UpdatedBy = &actor.UserID
	meta.UpdatedAt = s.now()
	if err := s.records.Update(ctx, id, rec); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, apperr.NotFound(s.entity)
		}
		return nil, err
	}
	updated, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionUpdate,
		EntityName: s.entity,
		EntityID:   id,
		OldValues:  before,
		NewValues:  updated,
	})
	return updated, nil
}

func (s *RecordService[T, PT]) Delete(ctx context.Context, id uint) error {
	actor := reqctx.MustFrom(ctx)
	rec, err := s.activeRecord(ctx, id)
	if err != nil {
		return err
	}
	changed, err := s.records.SoftDelete(ctx, id, actor.UserID, s.now())
	if err != nil {
		return err
	}
	if !changed {
		return apperr.NotFound(s.entity)
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionDelete,
		EntityName: s.entity,
		EntityID:   id,
		OldValues:  rec,
	})
	return nil
}

// Restore reactivates a record deleted on its own. Restoring an active record
// is a no-op; restoring while the patient is deleted is a conflict.
func (s *RecordService[T, PT]) Restore(ctx context.Context, id uint) (PT, error) {
	actor := reqctx.MustFrom(ctx)
	rec, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Meta().IsActive() {
		return rec, nil
	}
	if err := s.requireActivePatient(ctx, rec.OwnerPatientID()); err != nil {
		return nil, err
	}
	changed, err := s.records.Restore(ctx, id, actor.UserID)
	if err != nil {
		return nil, err
	}
	restored, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		s.audit.Record(ctx, AuditEntry{
			Action:     domain.AuditActionRestore,
			EntityName: s.entity,
			EntityID:   id,
			NewValues:  restored,
		})
	}
	return restored, nil
}

func (s *RecordService[T, PT]) find(ctx context.Context, id uint) (PT, error) {
	rec, err := s.records.FindByID(ctx, id)
	if errors.Is(err, repository.ErrRecordNotFound) {
		return nil, apperr.NotFound(s.entity)
	}
	return rec, err
}

func (s *RecordService[T, PT]) activeRecord(ctx context.Context, id uint) (PT, error) {
	rec, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Meta().IsActive() {
		return nil, apperr.NotFound(s.entity)
	}
	return rec, nil
}

func (s *RecordService[T, PT]) requireActivePatient(ctx context.Context, patientID uint) error {
	p, err := s.patients.FindByIDUnscoped(ctx, patientID)
	if errors.Is(err, repository.ErrRecordNotFound) {
		return apperr.NotFound("patient")
	}
	if err != nil {
		return err
	}
	if !p.IsActive() {
		return apperr.Conflict("patient is deleted")
	}
	return nil
}
