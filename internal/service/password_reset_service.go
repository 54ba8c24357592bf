package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/mail"
	"github.com/sandeepkv93/clinical-records-service/internal/observability"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
	"github.com/sandeepkv93/clinical-records-service/internal/security"
)

// PasswordResetRequestedMessage is returned for every reset request.
const PasswordResetRequestedMessage = "If an account exists for that email, a password reset link has been sent."

const MinPasswordLength = 8

// checkPassword enforces the length bounds a new password must meet to be
// hashed.
func checkPassword(field, password string) error {
	switch {
	case len(password) < MinPasswordLength:
		return apperr.ValidationField(field, "password must be at least 8 characters")
	case len(password) > security.MaxPasswordBytes:
		return apperr.ValidationField(field, "password must be at most 72 bytes")
	}
	return nil
}

type PasswordResetConfig struct {
	TTL         time.Duration
	ResetURL    string
	Pepper      string
	RejectReuse bool
}

type ResetTokenStatus struct {
	IsValid bool   `json:"isValid"`
	Email   string `json:"email,omitempty"`
}

type PasswordResetService struct {
	users    repository.UserRepository
	resets   repository.PasswordResetRepository
	sessions repository.SessionRepository
	hasher   security.PasswordHasher
	mailer   mail.Sender
	audit    *AuditService
	cfg      PasswordResetConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewPasswordResetService(
	users repository.UserRepository,
	resets repository.PasswordResetRepository,
	sessions repository.SessionRepository,
	hasher security.PasswordHasher,
	mailer mail.Sender,
	audit *AuditService,
	cfg PasswordResetConfig,
	logger *slog.Logger,
) *PasswordResetService {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordResetService{
		users:    users,
		resets:   resets,
		sessions: sessions,
		hasher:   hasher,
		mailer:   mailer,
		audit:    audit,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Request issues a reset token when the email belongs to an active account.
// It returns nil for unknown emails and for mail failures so the caller's
// response never reveals whether an account exists.
func (s *PasswordResetService) Request(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.FindActiveByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) || (err == nil && user.ID == domain.SystemUserID) {
		observability.RecordPasswordReset(ctx, "request", "unknown_email")
		return nil
	}
	if err != nil {
		observability.RecordPasswordReset(ctx, "request", "error")
		return err
	}

	raw, err := security.NewOpaqueToken()
	if err != nil {
		observability.RecordPasswordReset(ctx, "request", "error")
		return err
	}
	token := &domain.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: security.HashToken(raw, s.cfg.Pepper),
		ExpiresAt: s.now().Add(s.cfg.TTL),
	}
	invalidated, err := s.resets.ReplaceForUser(ctx, token)
	if err != nil {
		observability.RecordPasswordReset(ctx, "request", "error")
		return err
	}

	link, err := mail.ResetLink(s.cfg.ResetURL, raw)
	if err == nil {
		err = s.mailer.SendPasswordReset(ctx, user.Email, link)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "password reset mail failed", "user_id", user.ID, "error", err)
		observability.RecordPasswordReset(ctx, "mail", "error")
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:    user.ID,
		Action:     domain.AuditActionPasswordResetRequest,
		EntityName: "PasswordResetToken",
		EntityID:   token.ID,
		NewValues:  map[string]any{"user_id": user.ID, "expires_at": token.ExpiresAt, "invalidated_tokens": invalidated},
	})
	observability.RecordPasswordReset(ctx, "request", "issued")
	observability.SecurityEvent(ctx, "password_reset_requested", "user_id", user.ID)
	return nil
}

// Validate reports whether raw is a usable reset token. The owner's email is
// only disclosed for valid tokens.
func (s *PasswordResetService) Validate(ctx context.Context, raw string) (*ResetTokenStatus, error) {
	token, err := s.lookup(ctx, raw)
	if err != nil {
		return nil, err
	}
	if token == nil || !token.IsValid(s.now()) {
		observability.RecordPasswordReset(ctx, "validate", "invalid")
		return &ResetTokenStatus{IsValid: false}, nil
	}
	user, err := s.users.FindByID(ctx, token.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		observability.RecordPasswordReset(ctx, "validate", "invalid")
		return &ResetTokenStatus{IsValid: false}, nil
	}
	if err != nil {
		return nil, err
	}
	observability.RecordPasswordReset(ctx, "validate", "valid")
	return &ResetTokenStatus{IsValid: true, Email: user.Email}, nil
}

// Reset consumes the token and sets the new password as one unit, then ends
// every session of the user.
func (s *PasswordResetService) Reset(ctx context.Context, raw, newPassword string) (*domain.User, error) {
	if err := checkPassword("newPassword", newPassword); err != nil {
		return nil, err
	}
	invalid := apperr.Validation("invalid or expired reset token", map[string]string{"token": "invalid or expired"})

	token, err := s.lookup(ctx, raw)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if token == nil || !token.IsValid(now) {
		observability.RecordPasswordReset(ctx, "consume", "invalid")
		return nil, invalid
	}
	user, err := s.users.FindByID(ctx, token.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		observability.RecordPasswordReset(ctx, "consume", "invalid")
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}
	if s.cfg.RejectReuse && s.hasher.Compare(user.PasswordHash, newPassword) == nil {
		return nil, apperr.ValidationField("newPassword", "new password must differ from the current password")
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	err = s.resets.ConsumeAndSetPassword(ctx, token.ID, user.ID, hash, now)
	if errors.Is(err, repository.ErrResetTokenNotValid) || errors.Is(err, repository.ErrUserNotFound) {
		observability.RecordPasswordReset(ctx, "consume", "invalid")
		return nil, invalid
	}
	if err != nil {
		observability.RecordPasswordReset(ctx, "consume", "error")
		return nil, err
	}

	revoked, err := s.sessions.RevokeByUserID(ctx, user.ID, revokeReasonPasswordLost)
	if err != nil {
		s.logger.ErrorContext(ctx, "revoke sessions after password reset failed", "user_id", user.ID, "error", err)
	}
	observability.RecordSessionRevocation(ctx, revokeReasonPasswordLost, revoked)

	s.audit.Record(ctx, AuditEntry{
		ActorID:    user.ID,
		Action:     domain.AuditActionPasswordReset,
		EntityName: "User",
		EntityID:   user.ID,
		NewValues:  map[string]any{"password": RedactedValue, "reset_token_id": token.ID},
	})
	observability.RecordPasswordReset(ctx, "consume", "success")
	observability.SecurityEvent(ctx, "password_reset", "user_id", user.ID)

	updated, err := s.users.FindByID(ctx, user.ID)
	if err != nil {
		return user, nil
	}
	return updated, nil
}

func (s *PasswordResetService) lookup(ctx context.Context, raw string) (*domain.PasswordResetToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	token, err := s.resets.FindByHash(ctx, security.HashToken(raw, s.cfg.Pepper))
	if errors.Is(err, repository.ErrResetTokenNotFound) {
		return nil, nil
	}
	return token, err
}
