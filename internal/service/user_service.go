package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/domain"
	"github.com/sandeepkv93/clinical-records-service/internal/observability"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
	"github.com/sandeepkv93/clinical-records-service/internal/reqctx"
	"github.com/sandeepkv93/clinical-records-service/internal/security"
)

type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	RoleCode string
}

type UpdateUserInput struct {
	Email    *string
	Name     *string
	RoleCode *string
}

type UserService struct {
	users    repository.UserRepository
	roles    repository.RoleRepository
	sessions repository.SessionRepository
	hasher   security.PasswordHasher
	audit    *AuditService
}

func NewUserService(
	users repository.UserRepository,
	roles repository.RoleRepository,
	sessions repository.SessionRepository,
	hasher security.PasswordHasher,
	audit *AuditService,
) *UserService {
	return &UserService{users: users, roles: roles, sessions: sessions, hasher: hasher, audit: audit}
}

func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	actor := reqctx.MustFrom(ctx)
	if err := checkPassword("password", in.Password); err != nil {
		return nil, err
	}
	role, err := s.assignableRole(ctx, in.RoleCode)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		RoleID:       role.ID,
		Tracking:     domain.Tracking{CreatedBy: actor.UserID},
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, err
	}
	user.Role = role
	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionCreate,
		EntityName: "User",
		EntityID:   user.ID,
		NewValues:  userAuditView(user),
	})
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	user, err := s.users.FindByIDUnscoped(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) || (err == nil && user.ID == domain.SystemUserID) {
		return nil, apperr.NotFound("user")
	}
	return user, err
}

func (s *UserService) List(ctx context.Context, query repository.UserListQuery) (repository.PageResult[domain.User], error) {
	return s.users.ListPaged(ctx, query)
}

func (s *UserService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.roles.List(ctx)
}

func (s *UserService) Update(ctx context.Context, id uint, in UpdateUserInput) (*domain.User, error) {
	actor := reqctx.MustFrom(ctx)
	user, err := s.activeUser(ctx, id)
	if err != nil {
		return nil, err
	}
	before := userAuditView(user)
	if in.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.RoleCode != nil {
		role, err := s.assignableRole(ctx, *in.RoleCode)
		if err != nil {
			return nil, err
		}
		user.RoleID = role.ID
		user.Role = role
	}
	user.UpdatedBy = &actor.UserID
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, err
	}
	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionUpdate,
		EntityName: "User",
		EntityID:   user.ID,
		OldValues:  before,
		NewValues:  userAuditView(user),
	})
	return user, nil
}

// Delete soft-deletes the user and ends all of their sessions in one
// transaction. The session revocation is part of the same business action
// and is not audited apart.
func (s *UserService) Delete(ctx context.Context, id uint) error {
	actor := reqctx.MustFrom(ctx)
	if id == actor.UserID {
		return apperr.Conflict("users cannot delete themselves")
	}
	user, err := s.activeUser(ctx, id)
	if err != nil {
		return err
	}
	changed, revoked, err := s.users.SoftDelete(ctx, id, actor.UserID, time.Now().UTC(), revokeReasonUserDeleted)
	if err != nil {
		return err
	}
	if !changed {
		return apperr.NotFound("user")
	}
	observability.RecordSessionRevocation(ctx, revokeReasonUserDeleted, revoked)
	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionDelete,
		EntityName: "User",
		EntityID:   id,
		OldValues:  userAuditView(user),
	})
	return nil
}

// Restore reactivates a deleted user. Restoring an active user is a no-op.
func (s *UserService) Restore(ctx context.Context, id uint) (*domain.User, error) {
	actor := reqctx.MustFrom(ctx)
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.IsActive() {
		return user, nil
	}
	changed, err := s.users.Restore(ctx, id, actor.UserID)
	if err != nil {
		return nil, err
	}
	restored, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		s.audit.Record(ctx, AuditEntry{
			Action:     domain.AuditActionRestore,
			EntityName: "User",
			EntityID:   id,
			NewValues:  userAuditView(restored),
		})
	}
	return restored, nil
}

// ChangePassword updates the acting user's password and ends their other
// sessions.
func (s *UserService) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	actor := reqctx.MustFrom(ctx)
	user, err := s.activeUser(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		return apperr.ValidationField("currentPassword", "current password is incorrect")
	}
	if err := checkPassword("newPassword", newPassword); err != nil {
		return err
	}
	if currentPassword == newPassword {
		return apperr.ValidationField("newPassword", "new password must differ from the current password")
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash, actor.UserID); err != nil {
		return err
	}
	revoked, err := s.sessions.RevokeOthersByUser(ctx, user.ID, actor.SessionID, revokeReasonPasswordSet)
	if err != nil {
		return err
	}
	observability.RecordSessionRevocation(ctx, revokeReasonPasswordSet, revoked)
	s.audit.Record(ctx, AuditEntry{
		Action:     domain.AuditActionPasswordChange,
		EntityName: "User",
		EntityID:   user.ID,
		NewValues:  map[string]any{"password": RedactedValue, "revoked_sessions": revoked},
	})
	observability.SecurityEvent(ctx, "password_changed", "user_id", user.ID)
	return nil
}

func (s *UserService) activeUser(ctx context.Context, id uint) (*domain.User, error) {
	if id == domain.SystemUserID {
		return nil, apperr.NotFound("user")
	}
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperr.NotFound("user")
	}
	return user, err
}

func (s *UserService) assignableRole(ctx context.Context, code string) (*domain.Role, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = domain.RoleCodeClinician
	}
	if code == domain.RoleCodeSystem {
		return nil, apperr.ValidationField("role", "role cannot be assigned")
	}
	role, err := s.roles.FindByCode(ctx, code)
	if errors.Is(err, repository.ErrRoleNotFound) {
		return nil, apperr.ValidationField("role", "unknown role")
	}
	return role, err
}

func userAuditView(u *domain.User) map[string]any {
	return map[string]any{
		"email":   u.Email,
		"name":    u.Name,
		"role_id": u.RoleID,
	}
}
