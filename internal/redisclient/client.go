package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const lockKeyPrefix = "stock_lock:"

// releaseLockScript deletes the lock only when the stored token matches
// the caller's. A holder whose lock expired must not delete a lock that
// has since been re-acquired by someone else.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Acquire takes the lock for the given resource if it is not held. The
// token identifies the holder and the TTL bounds hold time if the holder
// crashes before releasing. Returns false when the lock is already held.
func (c *Client) Acquire(ctx context.Context, resource, token string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, lockKeyPrefix+resource, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire failed: %w", err)
	}
	return ok, nil
}

// Release removes the lock only if the stored token matches
func (c *Client) Release(ctx context.Context, resource, token string) error {
	if err := releaseLockScript.Run(ctx, c.rdb, []string{lockKeyPrefix + resource}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("lock release failed: %w", err)
	}
	return nil
}
