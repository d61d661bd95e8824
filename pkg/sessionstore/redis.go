package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig contains configuration options for the Redis store
type RedisConfig struct {
	// Client is the Redis client instance
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys
	// Default: "mcp:session:"
	KeyPrefix string

	// TTL is how long a record lives without a Touch.
	// Default: 30 minutes
	TTL time.Duration
}

// Redis stores records as JSON values with a sliding TTL.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedis creates a Redis-backed store.
func NewRedis(config RedisConfig) (*Redis, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "mcp:session:"
	}
	if config.TTL <= 0 {
		config.TTL = 30 * time.Minute
	}

	return &Redis{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
	}, nil
}

// Dial connects to addr and verifies the server answers.
func Dial(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedis(RedisConfig{Client: client})
}

func (s *Redis) key(id string) string {
	return s.keyPrefix + id
}

func (s *Redis) Put(ctx context.Context, rec Record) error {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.LastSeen = now

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Redis) Get(ctx context.Context, id string) (Record, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("failed to get session %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return rec, nil
}

// Touch refreshes LastSeen and the TTL.
func (s *Redis) Touch(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	rec.LastSeen = time.Now()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	// SetXX leaves a concurrently deleted record deleted.
	ok, err := s.client.SetXX(ctx, s.key(id), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to touch session %s: %w", id, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Redis) Close() error {
	return s.client.Close()
}
