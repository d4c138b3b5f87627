package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:{user_id}:messages - window TTL, per-window message limit
// - ratelimit:{client_ip}:presence - window TTL, presence query limit

// RateLimitConfig contains configuration for rate limiting
type RateLimitConfig struct {
	MessageLimit  int           // Max messages per window
	MessageWindow time.Duration // Message rate limit window
	QueryLimit    int           // Max presence queries per window
	QueryWindow   time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MessageLimit:  60,
		MessageWindow: 60 * time.Second,
		QueryLimit:    120,
		QueryWindow:   60 * time.Second,
	}
}

// RateLimiter is a fixed window counter per user.
type RateLimiter struct {
	client goredis.UniversalClient
	config RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool          // Whether the action is allowed
	Remaining int           // Remaining actions in the window
	ResetIn   time.Duration // Time until the window resets
	Limit     int           // The limit for this action
}

func NewRateLimiter(client goredis.UniversalClient, config RateLimitConfig) *RateLimiter {
	if config.MessageLimit <= 0 {
		config.MessageLimit = DefaultRateLimitConfig().MessageLimit
	}
	if config.MessageWindow < time.Second {
		config.MessageWindow = DefaultRateLimitConfig().MessageWindow
	}
	if config.QueryLimit <= 0 {
		config.QueryLimit = DefaultRateLimitConfig().QueryLimit
	}
	if config.QueryWindow < time.Second {
		config.QueryWindow = DefaultRateLimitConfig().QueryWindow
	}
	return &RateLimiter{client: client, config: config}
}

// checkLimit increments and compares atomically.
var checkLimit = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	if current < limit then
		current = redis.call('INCR', key)
		if current == 1 then
			redis.call('EXPIRE', key, window)
		end
		local ttl = redis.call('TTL', key)
		return {1, limit - current, ttl}
	end
	return {0, 0, redis.call('TTL', key)}
`)

func messageKey(userID string) string { return fmt.Sprintf("ratelimit:%s:messages", userID) }

func queryKey(clientIP string) string { return fmt.Sprintf("ratelimit:%s:presence", clientIP) }

// AllowMessage checks if a user can send a message and consumes one unit.
func (r *RateLimiter) AllowMessage(ctx context.Context, userID string) (*RateLimitResult, error) {
	return r.allow(ctx, messageKey(userID), r.config.MessageLimit, r.config.MessageWindow)
}

// AllowPresenceQuery throttles the HTTP presence endpoint per client.
func (r *RateLimiter) AllowPresenceQuery(ctx context.Context, clientIP string) (*RateLimitResult, error) {
	return r.allow(ctx, queryKey(clientIP), r.config.QueryLimit, r.config.QueryWindow)
}

func (r *RateLimiter) allow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	res, err := checkLimit.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}
	return &RateLimitResult{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		ResetIn:   time.Duration(res[2]) * time.Second,
		Limit:     limit,
	}, nil
}

// ResetUser drops the user's counter.
func (r *RateLimiter) ResetUser(ctx context.Context, userID string) error {
	return r.client.Del(ctx, messageKey(userID)).Err()
}
