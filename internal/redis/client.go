package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when a gateway session is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// Client wraps a Redis connection for rate limiting and gateway sessions.
type Client struct {
	rdb *goredis.Client
}

// NewClient creates a Redis client from a URL and verifies the connection.
func NewClient(redisURL string) (*Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	rdb := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

const sessionPrefix = "gw:session:"

// StoreSession records which user owns a gateway session, for RESUME checks.
func (c *Client) StoreSession(ctx context.Context, sessionID string, userID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, sessionPrefix+sessionID, userID, ttl).Err()
}

// GetSessionUserID returns the user that owns a gateway session.
func (c *Client) GetSessionUserID(ctx context.Context, sessionID string) (int64, error) {
	val, err := c.rdb.Get(ctx, sessionPrefix+sessionID).Result()
	if err == goredis.Nil {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("getting session: %w", err)
	}

	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing user ID: %w", err)
	}
	return userID, nil
}

// DeleteSession removes a gateway session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, sessionPrefix+sessionID).Err()
}

// rateLimitScript atomically increments a counter, sets its TTL on first use,
// and returns the count with the remaining TTL in milliseconds.
var rateLimitScript = goredis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// CheckRateLimit counts a request against a fixed window. It reports whether
// the request is allowed, the count so far and the milliseconds until reset.
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int64, int64, error) {
	res, err := rateLimitScript.Run(ctx, c.rdb, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("checking rate limit: %w", err)
	}
	if len(res) != 2 {
		return false, 0, 0, fmt.Errorf("checking rate limit: unexpected reply %v", res)
	}
	count, ttlMs := res[0], res[1]
	if ttlMs < 0 {
		ttlMs = window.Milliseconds()
	}
	return count <= int64(limit), count, ttlMs, nil
}
