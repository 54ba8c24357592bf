package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
)

type failingAuditRepository struct{ calls int }

func (r *failingAuditRepository) Create(context.Context, *domain.AuditLog) error {
	r.calls++
	return errors.New("disk full")
}

func (r *failingAuditRepository) ListPaged(context.Context, repository.AuditListQuery) (repository.PageResult[domain.AuditLog], error) {
	return repository.PageResult[domain.AuditLog]{}, nil
}

type recordingAuditRepository struct{ rows []*domain.AuditLog }

func (r *recordingAuditRepository) Create(_ context.Context, row *domain.AuditLog) error {
	r.rows = append(r.rows, row)
	return nil
}

func (r *recordingAuditRepository) ListPaged(context.Context, repository.AuditListQuery) (repository.PageResult[domain.AuditLog], error) {
	return repository.PageResult[domain.AuditLog]{}, nil
}

func TestSnapshotRedactsNestedCredentials(t *testing.T) {
	got := Snapshot(map[string]any{
		"email":         "a@example.com",
		"password":      "hunter2",
		"Refresh_Token": "abc",
		"nested":        map[string]any{"newPassword": "x", "keep": 1},
	})
	if got["password"] != RedactedValue || got["Refresh_Token"] != RedactedValue {
		t.Fatalf("expected top-level redaction, got %+v", got)
	}
	nested := got["nested"].(map[string]any)
	if nested["newPassword"] != RedactedValue || nested["keep"] != 1 {
		t.Fatalf("expected nested redaction, got %+v", nested)
	}
	if got["email"] != "a@example.com" {
		t.Fatalf("expected non-sensitive field kept, got %+v", got)
	}
	if Snapshot(nil) != nil {
		t.Fatal("expected nil snapshot for nil input")
	}
}

func TestSnapshotRedactsInsideSlicesWithoutMutatingInput(t *testing.T) {
	devices := []any{
		map[string]any{"name": "laptop", "refresh_token": "r1"},
		map[string]any{"name": "phone", "password": "p1"},
	}
	input := map[string]any{"devices": devices, "history": []map[string]any{{"token": "t1", "at": "now"}}}

	got := Snapshot(input)
	for i, d := range got["devices"].([]any) {
		for k, v := range d.(map[string]any) {
			if k != "name" && v != RedactedValue {
				t.Fatalf("device %d: expected %s redacted, got %v", i, k, v)
			}
		}
	}
	history := got["history"].([]any)[0].(map[string]any)
	if history["token"] != RedactedValue || history["at"] != "now" {
		t.Fatalf("unexpected history entry: %+v", history)
	}
	if devices[0].(map[string]any)["refresh_token"] != "r1" {
		t.Fatal("expected caller's value left untouched")
	}

	type login struct {
		Devices []map[string]string `json:"devices"`
	}
	fromStruct := Snapshot(login{Devices: []map[string]string{{"currentPassword": "c"}}})
	entry := fromStruct["devices"].([]any)[0].(map[string]any)
	if entry["currentPassword"] != RedactedValue {
		t.Fatalf("expected struct slice redaction, got %+v", entry)
	}
}

func TestAuditRecordUsesRequestActor(t *testing.T) {
	repo := &recordingAuditRepository{}
	svc := NewAuditService(repo, nil)
	ctx := reqctx.WithActor(context.Background(), reqctx.Actor{UserID: 7, IPAddress: "1.2.3.4", UserAgent: "ua"})

	svc.Record(ctx, AuditEntry{Action: domain.AuditActionCreate, EntityName: "Patient", EntityID: 3, NewValues: map[string]any{"a": 1}})
	svc.Record(context.Background(), AuditEntry{Action: domain.AuditActionCreate, EntityName: "Session", EntityID: 4})
	svc.Record(ctx, AuditEntry{ActorID: 9, Action: domain.AuditActionPasswordReset, EntityName: "User", EntityID: 9})

	if len(repo.rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(repo.rows))
	}
	if repo.rows[0].UserID != 7 || repo.rows[0].IPAddress != "1.2.3.4" || repo.rows[0].UserAgent != "ua" {
		t.Fatalf("unexpected actor stamping: %+v", repo.rows[0])
	}
	if repo.rows[1].UserID != domain.SystemUserID {
		t.Fatalf("expected system actor without request scope, got %d", repo.rows[1].UserID)
	}
	if repo.rows[2].UserID != 9 {
		t.Fatalf("expected explicit actor override, got %d", repo.rows[2].UserID)
	}
}

func TestAuditRecordSwallowsFailures(t *testing.T) {
	repo := &failingAuditRepository{}
	svc := NewAuditService(repo, nil)
	svc.Record(context.Background(), AuditEntry{Action: domain.AuditActionDelete, EntityName: "Exam", EntityID: 1})
	svc.Record(context.Background(), AuditEntry{Action: "BOGUS", EntityName: "Exam", EntityID: 1})
	if repo.calls != 1 {
		t.Fatalf("expected one write attempt, got %d", repo.calls)
	}
}
