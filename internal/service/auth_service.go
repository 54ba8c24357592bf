package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/observability"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
	"github.com/sandeepkv93/clinical-records-service/internal/security"
)

const (
	revokeReasonLogout       = "logout"
	revokeReasonAdmin        = "admin_revoked"
	revokeReasonRevokeAll    = "admin_revoke_all"
	revokeReasonReuse        = "refresh_reuse_detected"
	revokeReasonUserDeleted  = "user_deleted"
	revokeReasonPasswordSet  = "password_changed"
	revokeReasonPasswordLost = "password_reset"
	revokeReasonUserInactive = "user_inactive"

	// refreshRaceGrace bounds how long the id replaced by the last rotation
	// is answered with InvalidToken instead of a reuse verdict.
	refreshRaceGrace = 30 * time.Second
)

// CredentialHasher is the password hasher login needs, including the dummy
// comparison used for unknown accounts.
type CredentialHasher interface {
	security.PasswordHasher
	CompareDummy(password string)
}

type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
}

type LoginResult struct {
	Tokens  *TokenPair
	User    *domain.User
	Session *domain.Session
}

// Principal is the identity proven by an access token bound to a live session.
type Principal struct {
	UserID    uint
	RoleID    uint
	SessionID uint
}

type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   *TokenService
	jwtMgr   *security.JWTManager
	hasher   CredentialHasher
	audit    *AuditService
	inactive InactiveSessionCache
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *TokenService,
	jwtMgr *security.JWTManager,
	hasher CredentialHasher,
	audit *AuditService,
	inactive InactiveSessionCache,
	logger *slog.Logger,
) *AuthService {
	if inactive == nil {
		inactive = NewNoopInactiveSessionCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		jwtMgr:   jwtMgr,
		hasher:   hasher,
		audit:    audit,
		inactive: inactive,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	invalid := apperr.Unauthorized(apperr.CodeInvalidCredentials, "invalid email or password")

	user, err := s.users.FindActiveByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		observability.RecordAuthLogin(ctx, "error")
		return nil, err
	}
	if user == nil || user.ID == domain.SystemUserID {
		s.hasher.CompareDummy(in.Password)
		observability.RecordAuthLogin(ctx, "invalid_credentials")
		observability.SecurityEvent(ctx, "login_failed", "reason", "unknown_account")
		return nil, invalid
	}
	if err := s.hasher.Compare(user.PasswordHash, in.Password); err != nil {
		observability.RecordAuthLogin(ctx, "invalid_credentials")
		observability.SecurityEvent(ctx, "login_failed", "user_id", user.ID, "reason", "password_mismatch")
		if errors.Is(err, security.ErrPasswordMismatch) {
			return nil, invalid
		}
		return nil, invalid.Wrap(err)
	}

	actor := reqctx.FromOrSystem(ctx)
	now := s.now()
	refreshTokenID := uuid.NewString()
	session := &domain.Session{
		UserID:         user.ID,
		RefreshTokenID: refreshTokenID,
		RememberMe:     in.RememberMe,
		UserAgent:      actor.UserAgent,
		IPAddress:      actor.IPAddress,
		IssuedAt:       now,
		ExpiresAt:      s.tokens.RefreshTokenExpiry(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		observability.RecordAuthLogin(ctx, "error")
		return nil, err
	}
	pair, err := s.tokens.Mint(user, session, refreshTokenID)
	if err != nil {
		observability.RecordAuthLogin(ctx, "error")
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionCreate,
		EntityName: "Session",
		EntityID:   session.ID,
		NewValues:  session,
	})
	observability.RecordAuthLogin(ctx, "success")
	observability.SecurityEvent(ctx, "login_succeeded", "user_id", user.ID, "session_id", session.ID)
	return &LoginResult{Tokens: pair, User: user, Session: session}, nil
}

// Refresh rotates the session's refresh token. A token whose id is no longer
// the session's current one is treated as a replay and ends every session of
// the user, unless it is the id the last rotation replaced and that rotation
// happened within refreshRaceGrace: concurrent refreshes of one token then
// yield one winner and InvalidToken for the rest.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (*LoginResult, error) {
	claims, err := s.jwtMgr.ParseRefreshToken(rawRefresh)
	if err != nil {
		observability.RecordAuthRefresh(ctx, "invalid_token")
		return nil, apperr.InvalidToken(err)
	}
	userID, _ := claims.UserID()

	session, err := s.sessions.FindByID(ctx, claims.SessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		observability.RecordAuthRefresh(ctx, "session_expired")
		return nil, apperr.SessionExpired()
	}
	if err != nil {
		observability.RecordAuthRefresh(ctx, "error")
		return nil, err
	}
	if session.UserID != userID {
		observability.RecordAuthRefresh(ctx, "invalid_token")
		return nil, apperr.InvalidToken(nil)
	}
	if !session.IsActive(s.now()) {
		observability.RecordAuthRefresh(ctx, "session_expired")
		return nil, apperr.SessionExpired()
	}
	if session.RefreshTokenID != claims.ID {
		if s.lostRotationRace(session, claims.ID) {
			observability.RecordAuthRefresh(ctx, "rotation_conflict")
			return nil, apperr.InvalidToken(nil)
		}
		return nil, s.handleRefreshReuse(ctx, session)
	}

	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		_, _ = s.sessions.RevokeByID(ctx, session.ID, revokeReasonUserInactive)
		observability.RecordAuthRefresh(ctx, "session_expired")
		return nil, apperr.SessionExpired()
	}
	if err != nil {
		observability.RecordAuthRefresh(ctx, "error")
		return nil, err
	}

	before := *session
	actor := reqctx.FromOrSystem(ctx)
	nextTokenID := uuid.NewString()
	rotatedAt := s.now()
	session.PreviousRefreshTokenID = claims.ID
	session.RotatedAt = &rotatedAt
	session.RefreshTokenID = nextTokenID
	session.ExpiresAt = s.tokens.RefreshTokenExpiry()
	session.UserAgent = actor.UserAgent
	session.IPAddress = actor.IPAddress
	pair, err := s.tokens.Mint(user, session, nextTokenID)
	if err != nil {
		observability.RecordAuthRefresh(ctx, "error")
		return nil, err
	}
	rotated, err := s.sessions.Rotate(ctx, session.ID, claims.ID, nextTokenID, session.ExpiresAt, session.UserAgent, session.IPAddress)
	if err != nil {
		observability.RecordAuthRefresh(ctx, "error")
		return nil, err
	}
	if !rotated {
		observability.RecordAuthRefresh(ctx, "rotation_conflict")
		return nil, apperr.InvalidToken(nil)
	}

	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionUpdate,
		EntityName: "Session",
		EntityID:   session.ID,
		OldValues:  map[string]any{"expires_at": before.ExpiresAt, "ip_address": before.IPAddress, "user_agent": before.UserAgent},
		NewValues:  map[string]any{"expires_at": session.ExpiresAt, "ip_address": session.IPAddress, "user_agent": session.UserAgent},
	})
	observability.RecordAuthRefresh(ctx, "success")
	return &LoginResult{Tokens: pair, User: user, Session: session}, nil
}

func (s *AuthService) lostRotationRace(session *domain.Session, tokenID string) bool {
	if session.PreviousRefreshTokenID == "" || session.PreviousRefreshTokenID != tokenID || session.RotatedAt == nil {
		return false
	}
	return s.now().Sub(*session.RotatedAt) <= refreshRaceGrace
}

func (s *AuthService) handleRefreshReuse(ctx context.Context, session *domain.Session) error {
	revoked, err := s.sessions.RevokeByUserID(ctx, session.UserID, revokeReasonReuse)
	if err != nil {
		s.logger.ErrorContext(ctx, "revoke sessions after refresh reuse failed", "user_id", session.UserID, "error", err)
	}
	_ = s.inactive.MarkInactive(ctx, session.ID, s.jwtMgr.AccessTTL())
	observability.RecordAuthRefresh(ctx, "reuse_detected")
	observability.RecordSessionRevocation(ctx, revokeReasonReuse, revoked)
	observability.SecurityEvent(ctx, "refresh_token_reuse", "user_id", session.UserID, "session_id", session.ID, "revoked", revoked)
	return apperr.SecurityBreach("refresh token reuse detected; all sessions revoked")
}

// Logout ends the session named by the access token, falling back to the
// refresh token when the access token is absent or expired. Callers report
// success to the client whatever this returns.
func (s *AuthService) Logout(ctx context.Context, rawAccess, rawRefresh string) error {
	var sessionID, userID uint
	if claims, err := s.jwtMgr.ParseAccessToken(rawAccess); err == nil {
		sessionID = claims.SessionID
		userID, _ = claims.UserID()
	} else if claims, err := s.jwtMgr.ParseRefreshToken(rawRefresh); err == nil {
		sessionID = claims.SessionID
		userID, _ = claims.UserID()
	}
	if sessionID == 0 {
		observability.RecordAuthLogout(ctx, "no_session")
		return nil
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		observability.RecordAuthLogout(ctx, "no_session")
		return nil
	}
	if err != nil {
		observability.RecordAuthLogout(ctx, "error")
		return err
	}
	if session.UserID != userID {
		observability.RecordAuthLogout(ctx, "no_session")
		return nil
	}
	changed, err := s.sessions.RevokeByID(ctx, session.ID, revokeReasonLogout)
	if err != nil {
		observability.RecordAuthLogout(ctx, "error")
		return err
	}
	_ = s.inactive.MarkInactive(ctx, session.ID, s.jwtMgr.AccessTTL())
	if changed {
		s.audit.Record(ctx, AuditEntry{
			ActorID:    userID,
			Action:     domain.AuditActionRevokeSession,
			EntityName: "Session",
			EntityID:   session.ID,
			OldValues:  session,
		})
		observability.RecordSessionRevocation(ctx, revokeReasonLogout, 1)
	}
	observability.RecordAuthLogout(ctx, "success")
	observability.SecurityEvent(ctx, "logout", "user_id", userID, "session_id", session.ID)
	return nil
}

// ValidateAccessToken verifies the token and then requires its session to
// still be active. The first step alone accepts tokens of revoked sessions.
func (s *AuthService) ValidateAccessToken(ctx context.Context, raw string) (*Principal, error) {
	claims, err := s.jwtMgr.ParseAccessToken(raw)
	if err != nil {
		return nil, apperr.InvalidToken(err)
	}
	userID, _ := claims.UserID()
	if hit, err := s.inactive.IsInactive(ctx, claims.SessionID); err == nil && hit {
		return nil, apperr.SessionExpired()
	}

	session, err := s.sessions.FindByID(ctx, claims.SessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, apperr.SessionExpired()
	}
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, apperr.InvalidToken(nil)
	}
	if !session.IsActive(s.now()) {
		_ = s.inactive.MarkInactive(ctx, session.ID, s.jwtMgr.AccessTTL())
		return nil, apperr.SessionExpired()
	}
	return &Principal{UserID: userID, RoleID: claims.RoleID, SessionID: session.ID}, nil
}
