package redisclient

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"dubbing-service/pkg/config"
)

// KeyPrefix namespaces every key the service writes.
const KeyPrefix = "dubbing"

// Client wraps the go-redis client with the service's key conventions.
type Client struct {
	native *redis.Client
}

// New builds a redis client from configuration and pings it once.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  pickDuration(cfg.DialTimeout, 5*time.Second),
		ReadTimeout:  pickDuration(cfg.ReadTimeout, 3*time.Second),
		WriteTimeout: pickDuration(cfg.WriteTimeout, 3*time.Second),
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		_ = cli.Close()
		return nil, err
	}
	return Wrap(cli), nil
}

// Wrap adopts an existing go-redis client, e.g. one pointed at a test server.
func Wrap(cli *redis.Client) *Client {
	return &Client{native: cli}
}

// Key joins parts under KeyPrefix: Key("cancel", id) -> "dubbing:cancel:<id>".
func Key(parts ...string) string {
	return KeyPrefix + ":" + strings.Join(parts, ":")
}

// SetFlag marks key as present for ttl. A zero ttl keeps the flag until deleted.
func (c *Client) SetFlag(ctx context.Context, key string, ttl time.Duration) error {
	return c.native.Set(ctx, key, "1", ttl).Err()
}

// HasFlag reports whether key exists.
func (c *Client) HasFlag(ctx context.Context, key string) (bool, error) {
	n, err := c.native.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DelFlag removes key; a missing key is not an error.
func (c *Client) DelFlag(ctx context.Context, key string) error {
	return c.native.Del(ctx, key).Err()
}

// Raw exposes the underlying go-redis client.
func (c *Client) Raw() *redis.Client {
	return c.native
}

// Close stops the redis client and releases pooled connections.
func (c *Client) Close() error {
	return c.native.Close()
}

func pickDuration(v time.Duration, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
