package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/observability"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
)

type PatientSummary struct {
	Patient          *domain.Patient  `json:"patient"`
	ActiveDependents map[string]int64 `json:"active_dependents"`
}

// PatientService owns the patient aggregate, including the cascade of
// soft-delete and restore over its dependent records.
type PatientService struct {
	patients repository.PatientRepository
	audit    *AuditService
	logger   *slog.Logger
	now      func() time.Time
}

func NewPatientService(patients repository.PatientRepository, audit *AuditService, logger *slog.Logger) *PatientService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PatientService{
		patients: patients,
		audit:    audit,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *PatientService) Create(ctx context.Context, p *domain.Patient) (*domain.Patient, error) {
	actor := reqctx.MustFrom(ctx)
	p.ID = 0
	p.Tracking = domain.Tracking{CreatedBy: actor.UserID}
	if err := s.patients.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicateDocument) {
			return nil, apperr.Conflict("document number already registered")
		}
		return nil, err
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionCreate,
		EntityName: p.EntityName(),
		EntityID:   p.ID,
		NewValues:  p,
	})
	return p, nil
}

// Get returns the patient with its active dependent counts, loaded
// concurrently. Deleted patients are visible to admins only.
func (s *PatientService) Get(ctx context.Context, id uint) (*PatientSummary, error) {
	summary := &PatientSummary{ActiveDependents: make(map[string]int64, len(domain.DependentTables))}
	counts := make([]int64, len(domain.DependentTables))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.visiblePatient(gctx, id)
		summary.Patient = p
		return err
	})
	for i, table := range domain.DependentTables {
		g.Go(func() error {
			n, err := s.patients.CountActiveDependents(gctx, id, table)
			counts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, table := range domain.DependentTables {
		summary.ActiveDependents[table] = counts[i]
	}
	return summary, nil
}

func (s *PatientService) List(ctx context.Context, query repository.PatientListQuery) (repository.PageResult[domain.Patient], error) {
	if !reqctx.IsAdmin(ctx) {
		query.IncludeDeleted = false
	}
	return s.patients.ListPaged(ctx, query)
}

// Update loads the active patient, lets apply mutate it and persists the
// mutable fields.
func (s *PatientService) Update(ctx context.Context, id uint, apply func(*domain.Patient) error) (*domain.Patient, error) {
	actor := reqctx.MustFrom(ctx)
	p, err := s.activePatient(ctx, id)
	if err != nil {
		return nil, err
	}
	before := Snapshot(p)
	if err := apply(p); err != nil {
		return nil, err
	}
	p.UpdatedBy = &actor.UserID
	p.UpdatedAt = s.now()
	if err := s.patients.Update(ctx, id, p); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateDocument):
			return nil, apperr.Conflict("document number already registered")
		case errors.Is(err, repository.ErrRecordNotFound):
			return nil, apperr.NotFound("patient")
		}
		return nil, err
	}
	updated, err := s.patients.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionUpdate,
		EntityName: updated.EntityName(),
		EntityID:   id,
		OldValues:  before,
		NewValues:  updated,
	})
	return updated, nil
}

// Delete soft-deletes the patient and every active dependent as one unit and
// audits it as one action.
func (s *PatientService) Delete(ctx context.Context, id uint) error {
	actor := reqctx.MustFrom(ctx)
	p, err := s.activePatient(ctx, id)
	if err != nil {
		return err
	}
	res, err := s.patients.SoftDeleteCascade(ctx, id, actor.UserID, s.now())
	if errors.Is(err, repository.ErrPatientNotActive) {
		observability.RecordCascade(ctx, "delete", "not_found")
		return apperr.NotFound("patient")
	}
	if err != nil {
		observability.RecordCascade(ctx, "delete", "error")
		s.logger.ErrorContext(ctx, "patient cascade delete failed", "patient_id", id, "error", err)
		return err
	}
	observability.RecordCascade(ctx, "delete", "success")
	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionDelete,
		EntityName: p.EntityName(),
		EntityID:   id,
		OldValues:  p,
		NewValues:  map[string]any{"deleted_at": res.Watermark, "cascaded": res.Affected},
	})
	return nil
}

// Restore reactivates a deleted patient together with the dependents removed
// by its cascade. Restoring an active patient changes nothing and is not
// audited.
func (s *PatientService) Restore(ctx context.Context, id uint) (*domain.Patient, error) {
	actor := reqctx.MustFrom(ctx)
	res, err := s.patients.RestoreCascade(ctx, id, actor.UserID)
	if errors.Is(err, repository.ErrRecordNotFound) {
		observability.RecordCascade(ctx, "restore", "not_found")
		return nil, apperr.NotFound("patient")
	}
	if err != nil {
		observability.RecordCascade(ctx, "restore", "error")
		s.logger.ErrorContext(ctx, "patient cascade restore failed", "patient_id", id, "error", err)
		return nil, err
	}
	p, err := s.patients.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !res.Applied {
		observability.RecordCascade(ctx, "restore", "noop")
		return p, nil
	}
	observability.RecordCascade(ctx, "restore", "success")
	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionRestore,
		EntityName: p.EntityName(),
		EntityID:   id,
		OldValues:  map[string]any{"deleted_at": res.Watermark},
		NewValues:  map[string]any{"restored": res.Affected},
	})
	return p, nil
}

func (s *PatientService) activePatient(ctx context.Context, id uint) (*domain.Patient, error) {
	p, err := s.patients.FindByID(ctx, id)
	if errors.Is(err, repository.ErrRecordNotFound) {
		return nil, apperr.NotFound("patient")
	}
	return p, err
}

func (s *PatientService) visiblePatient(ctx context.Context, id uint) (*domain.Patient, error) {
	if !reqctx.IsAdmin(ctx) {
		return s.activePatient(ctx, id)
	}
	p, err := s.patients.FindByIDUnscoped(ctx, id)
	if errors.Is(err, repository.ErrRecordNotFound) {
		return nil, apperr.NotFound("patient")
	}
	return p, err
}
