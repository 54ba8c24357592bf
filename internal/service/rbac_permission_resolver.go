package service

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/clinical-records-service/internal/apperr"
	"github.com/sandeepkv93/clinical-records-service/internal/observability"
	"github.com/sandeepkv93/clinical-records-service/internal/repository"
)

type PermissionResolver interface {
	ResolveRole(ctx context.Context, roleID uint) (*RolePermissions, error)
}

// CachedPermissionResolver loads a role's permission codes, caching them per
// role. Cache errors fall through to the database.
type CachedPermissionResolver struct {
	cacheStore RBACPermissionCacheStore
	roles      repository.RoleRepository
	ttl        time.Duration
}

func NewCachedPermissionResolver(cacheStore RBACPermissionCacheStore, roles repository.RoleRepository, ttl time.Duration) *CachedPermissionResolver {
	return &CachedPermissionResolver{cacheStore: cacheStore, roles: roles, ttl: ttl}
}

func (r *CachedPermissionResolver) ResolveRole(ctx context.Context, roleID uint) (*RolePermissions, error) {
	if roleID == 0 {
		return nil, apperr.Forbidden("no role assigned")
	}
	if r.cacheStore != nil && r.ttl > 0 {
		cached, ok, err := r.cacheStore.Get(ctx, roleID)
		switch {
		case err != nil:
			observability.RecordRBACPermissionCacheEvent(ctx, "error")
		case ok:
			observability.RecordRBACPermissionCacheEvent(ctx, "hit")
			return cached, nil
		default:
			observability.RecordRBACPermissionCacheEvent(ctx, "miss")
		}
	}

	role, err := r.roles.FindByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrRoleNotFound) {
			return nil, apperr.Forbidden("role no longer exists")
		}
		return nil, err
	}
	resolved := &RolePermissions{RoleCode: role.Code, Permissions: role.PermissionCodes()}
	if r.cacheStore != nil && r.ttl > 0 {
		if err := r.cacheStore.Set(ctx, roleID, *resolved, r.ttl); err != nil {
			observability.RecordRBACPermissionCacheEvent(ctx, "set_error")
		}
	}
	return resolved, nil
}

func (r *CachedPermissionResolver) InvalidateRole(ctx context.Context, roleID uint) error {
	if r.cacheStore == nil {
		return nil
	}
	return r.cacheStore.InvalidateRole(ctx, roleID)
}

func (r *CachedPermissionResolver) InvalidateAll(ctx context.Context) error {
	if r.cacheStore == nil {
		return nil
	}
	return r.cacheStore.InvalidateAll(ctx)
}
