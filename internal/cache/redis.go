package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend is the distributed tier. Any call may fail; Store treats failures as a fallback signal.
type Backend interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetEX(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// RedisBackend provides the distributed tier over go-redis
type RedisBackend struct {
	client *redis.Client
	mu     sync.RWMutex
}

// NewRedisBackend parses the URL and verifies the connection
func NewRedisBackend(redisURL string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Failover is handled by Store, so the client must not retry on its own
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 0
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 1 * time.Second
	opts.WriteTimeout = 1 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")

	return &RedisBackend{client: client}, nil
}

// NewRedisBackendFromClient wraps an existing client
func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Client returns the underlying Redis client
func (r *RedisBackend) Client() *redis.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}

// Close closes the Redis connection
func (r *RedisBackend) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks if Redis is healthy
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.Client().Ping(ctx).Err()
}

// Get retrieves a value by key; a missing key is not an error
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.Client().Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// SetEX stores a value with expiration
func (r *RedisBackend) SetEX(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.Client().SetEx(ctx, key, value, ttl).Err()
}

// Del removes keys and reports how many existed
func (r *RedisBackend) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return r.Client().Del(ctx, keys...).Result()
}

// Keys lists keys matching a glob pattern
func (r *RedisBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	return r.Client().Keys(ctx, pattern).Result()
}
