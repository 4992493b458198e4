package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps JSON documents in Redis under a common prefix with a sliding TTL.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore constructs a store. A zero ttl keeps keys without expiry.
func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// TTL reports the expiry applied on every write.
func (s *Store) TTL() time.Duration {
	if s == nil {
		return 0
	}
	return s.ttl
}

// GetJSON unmarshals the document stored at key into dst. It reports whether the key existed.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if s == nil || s.client == nil || key == "" {
		return false, nil
	}
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v and stores it, refreshing the TTL.
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	if s == nil || s.client == nil || key == "" {
		return errors.New("cache: store not configured")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, data, s.ttl).Err()
}

// Delete removes the document at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil || key == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}
