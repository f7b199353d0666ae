package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/arbdesk/internal/domain"
)

// FlagStore implements domain.FlagStore on plain Redis keys. Flags are set
// without TTL: an emergency flag stays up until an operator resolves the
// event, never by expiry.
type FlagStore struct {
	rdb *redis.Client
}

// NewFlagStore creates a FlagStore backed by the given Client.
func NewFlagStore(c *Client) *FlagStore {
	return &FlagStore{rdb: c.Underlying()}
}

func flagKey(key string) string {
	return "flag:" + key
}

// Set raises the flag for key with no expiry.
func (fs *FlagStore) Set(ctx context.Context, key string) error {
	if err := fs.rdb.Set(ctx, flagKey(key), "1", 0).Err(); err != nil {
		return fmt.Errorf("redis: set flag %s: %w", key, err)
	}
	return nil
}

// IsSet reports whether the flag for key is raised.
func (fs *FlagStore) IsSet(ctx context.Context, key string) (bool, error) {
	n, err := fs.rdb.Exists(ctx, flagKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check flag %s: %w", key, err)
	}
	return n > 0, nil
}

// Clear lowers the flag for key. Clearing an absent flag is a no-op.
func (fs *FlagStore) Clear(ctx context.Context, key string) error {
	if err := fs.rdb.Del(ctx, flagKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: clear flag %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.FlagStore = (*FlagStore)(nil)
