package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/observability"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
)

type SessionView struct {
	ID        uint      `json:"id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	IsCurrent bool      `json:"is_current"`
}

type UserSessions struct {
	User     *domain.User  `json:"user"`
	Sessions []SessionView `json:"sessions"`
}

type SessionService struct {
	sessions repository.SessionRepository
	users    repository.UserRepository
	audit    *AuditService
	inactive InactiveSessionCache
	denyTTL  time.Duration
}

func NewSessionService(
	sessions repository.SessionRepository,
	users repository.UserRepository,
	audit *AuditService,
	inactive InactiveSessionCache,
	tokens *TokenService,
) *SessionService {
	if inactive == nil {
		inactive = NewNoopInactiveSessionCache()
	}
	return &SessionService{
		sessions: sessions,
		users:    users,
		audit:    audit,
		inactive: inactive,
		denyTTL:  tokens.jwtMgr.AccessTTL(),
	}
}

func (s *SessionService) ListActiveSessions(ctx context.Context, userID, currentSessionID uint) ([]SessionView, error) {
	sessions, err := s.sessions.ListActiveByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toSessionViews(sessions, currentSessionID), nil
}

// ListForUser loads the user and their sessions concurrently.
func (s *SessionService) ListForUser(ctx context.Context, userID uint) (*UserSessions, error) {
	var (
		user     *domain.User
		sessions []domain.Session
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.users.FindByIDUnscoped(gctx, userID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.NotFound("user")
		}
		user = u
		return err
	})
	g.Go(func() error {
		var err error
		sessions, err = s.sessions.ListActiveByUserID(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &UserSessions{User: user, Sessions: toSessionViews(sessions, 0)}, nil
}

// RevokeSession ends one session. Revoking an ended session succeeds without
// a second audit row.
func (s *SessionService) RevokeSession(ctx context.Context, sessionID uint) error {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return apperr.NotFound("session")
	}
	if err != nil {
		return err
	}
	changed, err := s.sessions.RevokeByID(ctx, sessionID, revokeReasonAdmin)
	if err != nil {
		return err
	}
	_ = s.inactive.MarkInactive(ctx, sessionID, s.denyTTL)
	if !changed {
		return nil
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionRevokeSession,
		EntityName: "Session",
		EntityID:   session.ID,
		OldValues:  session,
	})
	observability.RecordSessionRevocation(ctx, revokeReasonAdmin, 1)
	observability.SecurityEvent(ctx, "session_revoked", "session_id", session.ID, "user_id", session.UserID)
	return nil
}

func (s *SessionService) RevokeAllForUser(ctx context.Context, userID uint) (int64, error) {
	if _, err := s.users.FindByIDUnscoped(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, apperr.NotFound("user")
		}
		return 0, err
	}
	n, err := s.sessions.RevokeByUserID(ctx, userID, revokeReasonRevokeAll)
	if err != nil {
		return 0, err
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionRevokeSession,
		EntityName: "User",
		EntityID:   userID,
		NewValues:  map[string]any{"revoked_sessions": n},
	})
	observability.RecordSessionRevocation(ctx, revokeReasonRevokeAll, n)
	observability.SecurityEvent(ctx, "sessions_revoked", "user_id", userID, "count", n)
	return n, nil
}

// CleanupExpired hard-deletes sessions that ended more than retention ago.
func (s *SessionService) CleanupExpired(ctx context.Context, retention time.Duration) (int64, error) {
	return s.sessions.CleanupExpired(ctx, time.Now().UTC().Add(-retention))
}

func toSessionViews(sessions []domain.Session, currentSessionID uint) []SessionView {
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:        session.ID,
			IssuedAt:  session.IssuedAt,
			ExpiresAt: session.ExpiresAt,
			UserAgent: session.UserAgent,
			IPAddress: session.IPAddress,
			IsCurrent: session.ID == currentSessionID,
		})
	}
	return views
}
