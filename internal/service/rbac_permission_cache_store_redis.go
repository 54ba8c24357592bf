package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRBACPermissionCacheStore keeps one hash per role holding the role
// code, the comma-joined permission codes and the generation it was written
// under. Entries from an older generation read as misses.
type RedisRBACPermissionCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRBACPermissionCacheStore(client redis.UniversalClient, prefix string) *RedisRBACPermissionCacheStore {
	if prefix == "" {
		prefix = "rbacperm"
	}
	return &RedisRBACPermissionCacheStore{client: client, prefix: prefix}
}

func (s *RedisRBACPermissionCacheStore) Get(ctx context.Context, roleID uint) (*RolePermissions, bool, error) {
	if s.client == nil {
		return nil, false, nil
	}
	pipe := s.client.Pipeline()
	genCmd := pipe.Get(ctx, s.generationKey())
	fieldsCmd := pipe.HMGet(ctx, s.roleKey(roleID), "code", "perms", "gen")
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("rbac cache get: %w", err)
	}
	current, err := parseGeneration(genCmd)
	if err != nil {
		return nil, false, err
	}
	vals := fieldsCmd.Val()
	if len(vals) != 3 || vals[0] == nil || vals[2] == nil {
		return nil, false, nil
	}
	code, _ := vals[0].(string)
	perms, _ := vals[1].(string)
	written, err := strconv.ParseUint(fmt.Sprint(vals[2]), 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("rbac cache generation: %w", err)
	}
	if written != current {
		return nil, false, nil
	}
	out := &RolePermissions{RoleCode: code, Permissions: []string{}}
	if perms != "" {
		out.Permissions = strings.Split(perms, ",")
	}
	return out, true, nil
}

func (s *RedisRBACPermissionCacheStore) Set(ctx context.Context, roleID uint, perms RolePermissions, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	current, err := parseGeneration(s.client.Get(ctx, s.generationKey()))
	if err != nil {
		return err
	}
	key := s.roleKey(roleID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"code", perms.RoleCode,
		"perms", strings.Join(perms.Permissions, ","),
		"gen", current,
	)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rbac cache set: %w", err)
	}
	return nil
}

func (s *RedisRBACPermissionCacheStore) InvalidateRole(ctx context.Context, roleID uint) error {
	if s.client == nil {
		return nil
	}
	return s.client.Del(ctx, s.roleKey(roleID)).Err()
}

func (s *RedisRBACPermissionCacheStore) InvalidateAll(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, s.generationKey()).Err()
}

func (s *RedisRBACPermissionCacheStore) roleKey(roleID uint) string {
	return fmt.Sprintf("%s:role:%d", s.prefix, roleID)
}

func (s *RedisRBACPermissionCacheStore) generationKey() string {
	return s.prefix + ":generation"
}

func parseGeneration(cmd *redis.StringCmd) (uint64, error) {
	v, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rbac cache generation: %w", err)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rbac cache generation %q: %w", v, err)
	}
	return n, nil
}
