package repository

import (
	"context"
	"testing"
	"time"

	"github.com/sandeepkv93/clinical-records-service/internal/domain"
)

func TestUserRepositorySoftDeleteRevokesSessionsTogether(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	sessions := NewSessionRepository(db)
	u := createTestUser(t, db, "clin@example.com")
	for _, tok := range []string{"tok-a", "tok-b"} {
		s := newTestSession(u.ID, tok, time.Now().Add(time.Hour))
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	deleted, revoked, err := users.SoftDelete(ctx, u.ID, domain.SystemUserID, time.Now().UTC(), "user_deleted")
	if err != nil || !deleted || revoked != 2 {
		t.Fatalf("soft delete: deleted=%v revoked=%d err=%v", deleted, revoked, err)
	}
	active, err := sessions.ListActiveByUserID(ctx, u.ID)
	if err != nil || len(active) != 0 {
		t.Fatalf("expected no active sessions, got %d err=%v", len(active), err)
	}

	deleted, revoked, err = users.SoftDelete(ctx, u.ID, domain.SystemUserID, time.Now().UTC(), "user_deleted")
	if err != nil || deleted || revoked != 0 {
		t.Fatalf("second delete should be a no-op: deleted=%v revoked=%d err=%v", deleted, revoked, err)
	}
}

func TestUserRepositorySoftDeleteIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db)
	u := createTestUser(t, db, "clin@example.com")
	if err := NewSessionRepository(db).Create(ctx, newTestSession(u.ID, "tok-a", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := db.Exec(`CREATE TRIGGER sessions_frozen BEFORE UPDATE ON sessions
		BEGIN SELECT RAISE(ABORT, 'sessions frozen'); END`).Error; err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if _, _, err := users.SoftDelete(ctx, u.ID, domain.SystemUserID, time.Now().UTC(), "user_deleted"); err == nil {
		t.Fatal("expected revoke failure to surface")
	}
	got, err := users.FindByID(ctx, u.ID)
	if err != nil || !got.IsActive() {
		t.Fatalf("expected user rolled back to active, got %+v err=%v", got, err)
	}
}
