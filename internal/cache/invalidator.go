// Package cache implements effective-settings cache invalidation. Only the
// invalidation call lives here; what populates the cache is owned by the
// read-path consumers.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// KeyFor returns the cache key for one user's effective settings in a
// namespace. Shared with the read-path consumers.
func KeyFor(namespace, userID string) string {
	return fmt.Sprintf("settings:%s:user:%s", namespace, userID)
}

// RedisInvalidator drops cached effective settings from Redis.
type RedisInvalidator struct {
	client *redis.Client
}

// NewRedisInvalidator creates an invalidator over an existing Redis client.
func NewRedisInvalidator(client *redis.Client) *RedisInvalidator {
	return &RedisInvalidator{client: client}
}

// Invalidate deletes the cached effective settings for every user in the
// namespace. Missing keys are not an error.
func (r *RedisInvalidator) Invalidate(ctx context.Context, userIDs []string, namespace string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, KeyFor(namespace, id))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate %s for %d users: %w", namespace, len(userIDs), err)
	}
	return nil
}

// NopInvalidator is used when no cache is configured.
type NopInvalidator struct{}

// Invalidate does nothing.
func (NopInvalidator) Invalidate(context.Context, []string, string) error { return nil }
