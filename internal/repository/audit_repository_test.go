package repository

import (
	"context"
	"testing"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"
)

func TestAuditRepositoryFiltersByEntity(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(newTestDB(t))

	entries := []*domain.AuditLog{
		{UserID: 1, Action: domain.AuditActionCreate, EntityName: "Patient", EntityID: 1, NewValues: map[string]any{"first_name": "Ada"}},
		{UserID: 1, Action: domain.AuditActionDelete, EntityName: "Patient", EntityID: 1},
		{UserID: 2, Action: domain.AuditActionCreate, EntityName: "Exam", EntityID: 5},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := repo.ListPaged(ctx, AuditListQuery{EntityName: "Patient", EntityID: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 patient entries, got %d", page.Total)
	}
	if page.Items[0].Action != domain.AuditActionDelete {
		t.Fatalf("expected newest first, got %s", page.Items[0].Action)
	}
	if page.Items[1].NewValues["first_name"] != "Ada" {
		t.Fatalf("expected json values to round-trip, got %+v", page.Items[1].NewValues)
	}

	page, err = repo.ListPaged(ctx, AuditListQuery{UserID: 2})
	if err != nil || page.Total != 1 {
		t.Fatalf("expected 1 entry for user 2: total=%d err=%v", page.Total, err)
	}
}
