package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ParseURL accepts kv://host:port/db as an alias for redis://host:port/db.
func ParseURL(raw string) (*goredis.Options, error) {
	if rest, ok := strings.CutPrefix(raw, "kv://"); ok {
		raw = "redis://" + rest
	}
	opts, err := goredis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}

// NewClient creates a client for url. It does not dial.
func NewClient(url string) (*goredis.Client, error) {
	opts, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	return goredis.NewClient(opts), nil
}

// Ping is used by the health endpoint.
func Ping(ctx context.Context, client goredis.UniversalClient) error {
	return client.Ping(ctx).Err()
}
