package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// listPageSize is the SCAN count hint per page.
const listPageSize = 100

// RedisStore implements Store on a Redis backend.
type RedisStore struct {
	client *redis.Client
}

// Connect creates a Redis client and validates the connection with a ping.
func Connect(addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping key-value store: %w", err)
	}

	log.Println("connected to key-value store")
	return &RedisStore{client: client}, nil
}

// NewRedisStore wraps an existing client. Used by tests.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// GetJSON reads and decodes the JSON value at key into dest.
func (s *RedisStore) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes value as JSON and overwrites key with it.
func (s *RedisStore) PutJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Delete removes key from the store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// List returns one page of keys under prefix via SCAN.
func (s *RedisStore) List(ctx context.Context, prefix string, cursor uint64) ([]string, uint64, error) {
	keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", listPageSize).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("list %q: %w", prefix, err)
	}
	return keys, next, nil
}
