package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-gatekeeper/internal/ports"
)

// DefaultFlowPrefix namespaces login flow keys (OIDC state and nonce).
const DefaultFlowPrefix = "gatekeeper:flow:"

// FlowStore keeps short-lived login flow values in Redis.
type FlowStore struct {
	client redis.UniversalClient
	prefix string
}

var _ ports.FlowStateStore = (*FlowStore)(nil)

// NewFlowStore creates a FlowStore using DefaultFlowPrefix.
func NewFlowStore(client redis.UniversalClient) *FlowStore {
	return NewFlowStoreWithPrefix(client, DefaultFlowPrefix)
}

// NewFlowStoreWithPrefix creates a FlowStore with a custom key prefix.
func NewFlowStoreWithPrefix(client redis.UniversalClient, prefix string) *FlowStore {
	return &FlowStore{client: client, prefix: prefix}
}

// Set stores value under key. A non-positive ttl falls back to one minute so flow
// state can never outlive an abandoned login.
func (f *FlowStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := f.client.Set(ctx, f.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get returns nil, nil for missing keys.
func (f *FlowStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}
	val, err := f.client.Get(ctx, f.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// Delete reports whether a key was removed.
func (f *FlowStore) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}
	n, err := f.client.Del(ctx, f.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Health pings the Redis server.
func (f *FlowStore) Health(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}
