package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bsn-realtime/internal/domain"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache key patterns:
// - user:{user_id} - 5m TTL, profile cache

const DefaultUserTTL = 5 * time.Minute

// UserSource is the system of record behind the profile cache.
type UserSource interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// ProfileCache is a read-through cache of user profiles. Redis failures fall
// back to the source; they never fail a lookup on their own.
type ProfileCache struct {
	client goredis.UniversalClient
	source UserSource
	ttl    time.Duration
	log    *zap.Logger
}

func NewProfileCache(client goredis.UniversalClient, source UserSource, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = DefaultUserTTL
	}
	return &ProfileCache{
		client: client,
		source: source,
		ttl:    ttl,
		log:    zap.L().With(zap.String("component", "profile_cache")),
	}
}

func userKey(id string) string { return fmt.Sprintf("user:%s", id) }

func (c *ProfileCache) GetUser(ctx context.Context, id string) (domain.User, error) {
	data, err := c.client.Get(ctx, userKey(id)).Bytes()
	switch {
	case err == nil:
		var u domain.User
		if jsonErr := json.Unmarshal(data, &u); jsonErr == nil {
			return u, nil
		}
		c.log.Warn("corrupt cache entry", zap.String("user_id", id))
	case errors.Is(err, goredis.Nil):
	default:
		c.log.Warn("cache read failed", zap.String("user_id", id), zap.Error(err))
	}

	u, err := c.source.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if err := c.Set(ctx, u); err != nil {
		c.log.Warn("cache write failed", zap.String("user_id", id), zap.Error(err))
	}
	return u, nil
}

// Set stores a profile in the cache.
func (c *ProfileCache) Set(ctx context.Context, u domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, userKey(u.ID), data, c.ttl).Err()
}

// Invalidate removes a user from the cache.
func (c *ProfileCache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, userKey(id)).Err()
}
