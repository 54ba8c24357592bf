package service

import (
	"context"
	"slices"
	"sync"
	"time"
)

// RolePermissions is the cached authorization view of one role.
type RolePermissions struct {
	RoleCode    string   `json:"role_code"`
	Permissions []string `json:"permissions"`
}

// RBACPermissionCacheStore caches RolePermissions per role id. InvalidateRole
// drops one role; InvalidateAll retires every entry written before the call.
type RBACPermissionCacheStore interface {
	Get(ctx context.Context, roleID uint) (*RolePermissions, bool, error)
	Set(ctx context.Context, roleID uint, perms RolePermissions, ttl time.Duration) error
	InvalidateRole(ctx context.Context, roleID uint) error
	InvalidateAll(ctx context.Context) error
}

type NoopRBACPermissionCacheStore struct{}

func NewNoopRBACPermissionCacheStore() *NoopRBACPermissionCacheStore {
	return &NoopRBACPermissionCacheStore{}
}

func (NoopRBACPermissionCacheStore) Get(context.Context, uint) (*RolePermissions, bool, error) {
	return nil, false, nil
}

func (NoopRBACPermissionCacheStore) Set(context.Context, uint, RolePermissions, time.Duration) error {
	return nil
}

func (NoopRBACPermissionCacheStore) InvalidateRole(context.Context, uint) error { return nil }

func (NoopRBACPermissionCacheStore) InvalidateAll(context.Context) error { return nil }

type cachedRole struct {
	perms      RolePermissions
	generation uint64
	expiresAt  time.Time
}

// InMemoryRBACPermissionCacheStore is the single-instance store used when no
// Redis is configured.
type InMemoryRBACPermissionCacheStore struct {
	mu         sync.Mutex
	roles      map[uint]cachedRole
	generation uint64
	now        func() time.Time
}

func NewInMemoryRBACPermissionCacheStore() *InMemoryRBACPermissionCacheStore {
	return &InMemoryRBACPermissionCacheStore{roles: make(map[uint]cachedRole), now: time.Now}
}

func (s *InMemoryRBACPermissionCacheStore) Get(_ context.Context, roleID uint) (*RolePermissions, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.roles[roleID]
	if !ok {
		return nil, false, nil
	}
	if entry.generation != s.generation || !s.now().Before(entry.expiresAt) {
		delete(s.roles, roleID)
		return nil, false, nil
	}
	out := RolePermissions{RoleCode: entry.perms.RoleCode, Permissions: slices.Clone(entry.perms.Permissions)}
	return &out, true, nil
}

func (s *InMemoryRBACPermissionCacheStore) Set(_ context.Context, roleID uint, perms RolePermissions, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	perms.Permissions = slices.Clone(perms.Permissions)
	s.roles[roleID] = cachedRole{perms: perms, generation: s.generation, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryRBACPermissionCacheStore) InvalidateRole(_ context.Context, roleID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, roleID)
	return nil
}

func (s *InMemoryRBACPermissionCacheStore) InvalidateAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	clear(s.roles)
	return nil
}
