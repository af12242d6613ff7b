package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Change describes a permission identifier mutation for the lazy sweep.
type Change struct {
	Old  string
	New  string
	Drop bool
}

// PermissionCache stores per-user permission sets in Redis.
//
// Every invalidation bumps a version counter before deleting keys. A cache fill
// records the version before it reads the database and only writes if the
// version is unchanged, so a fill racing an invalidation can never leave a stale
// set behind.
type PermissionCache struct {
	client   *redis.Client
	ttl      time.Duration
	observer InvalidationObserver
}

// InvalidationObserver is told which strategy dropped cached sets.
type InvalidationObserver interface {
	PermissionCacheInvalidated(strategy string)
}

// WithObserver attaches an invalidation observer.
func (c *PermissionCache) WithObserver(o InvalidationObserver) *PermissionCache {
	if c != nil {
		c.observer = o
	}
	return c
}

// NewPermissionCache instantiates the cache helper.
func NewPermissionCache(client *redis.Client, ttl time.Duration) *PermissionCache {
	return &PermissionCache{client: client, ttl: ttl}
}

// Get returns the cached set. ok is false on a miss.
func (c *PermissionCache) Get(ctx context.Context, userID string) ([]string, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	members, err := c.client.SMembers(ctx, PermissionsKey(userID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("rbac: cache get: %w", err)
	}
	if len(members) == 0 {
		return nil, false, nil
	}
	perms := make([]string, 0, len(members))
	for _, m := range members {
		if m != emptyMarker {
			perms = append(perms, m)
		}
	}
	return perms, true, nil
}

// Version reads the invalidation counter.
func (c *PermissionCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rbac: cache version: %w", err)
	}
	return ver, nil
}

// Store writes perms for userID if no invalidation happened since version was read.
// It reports whether the set was written.
func (c *PermissionCache) Store(ctx context.Context, userID string, perms []string, version int64) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	key := PermissionsKey(userID)
	members := make([]any, 0, len(perms)+1)
	for _, p := range perms {
		members = append(members, p)
	}
	if len(members) == 0 {
		members = append(members, emptyMarker)
	}

	stored := false
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SAdd(ctx, key, members...)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, versionKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("rbac: cache store: %w", err)
	}
	return stored, nil
}

// Invalidate drops the cached sets of the given users.
func (c *PermissionCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.bump(ctx); err != nil {
		return err
	}
	c.observe("eager")
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = PermissionsKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("rbac: cache invalidate: %w", err)
	}
	return nil
}

// Sweep scans every cached set and applies ch: sets holding ch.Old are deleted
// when ch.Drop is set, otherwise ch.Old is replaced by ch.New. It returns the
// number of sets touched.
func (c *PermissionCache) Sweep(ctx context.Context, ch Change) (int, error) {
	if c == nil || c.client == nil || ch.Old == "" {
		return 0, nil
	}
	if !ch.Drop && ch.Old == ch.New {
		return 0, nil
	}
	if err := c.bump(ctx); err != nil {
		return 0, err
	}
	c.observe("sweep")
	touched := 0
	err := c.scan(ctx, func(key string) error {
		if ch.Drop {
			member, err := c.client.SIsMember(ctx, key, ch.Old).Result()
			if err != nil {
				return err
			}
			if member {
				touched++
				return c.client.Del(ctx, key).Err()
			}
			return nil
		}
		removed, err := c.client.SRem(ctx, key, ch.Old).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			return nil
		}
		touched++
		if ch.New == "" {
			return nil
		}
		// SREM may have emptied and removed the key, so the TTL is set again.
		_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, key, ch.New)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	})
	if err != nil {
		return touched, fmt.Errorf("rbac: cache sweep: %w", err)
	}
	return touched, nil
}

// Flush drops every cached set. Used when a change could grant permissions to
// users whose sets do not mention it yet.
func (c *PermissionCache) Flush(ctx context.Context) (int, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	if err := c.bump(ctx); err != nil {
		return 0, err
	}
	c.observe("flush")
	deleted := 0
	err := c.scan(ctx, func(key string) error {
		n, err := c.client.Del(ctx, key).Result()
		deleted += int(n)
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("rbac: cache flush: %w", err)
	}
	return deleted, nil
}

func (c *PermissionCache) observe(strategy string) {
	if c.observer != nil {
		c.observer.PermissionCacheInvalidated(strategy)
	}
}

func (c *PermissionCache) bump(ctx context.Context) error {
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		return fmt.Errorf("rbac: cache bump: %w", err)
	}
	return nil
}

func (c *PermissionCache) scan(ctx context.Context, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, permissionsPattern, 200).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := fn(key); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
