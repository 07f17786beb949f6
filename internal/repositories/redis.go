package repositories

import (
	"context"
	"fmt"

	"github.com/desertthunder/spotctl/internal/shared"
	"github.com/redis/rueidis"
)

// RedisKeyPrefix namespaces every key written by [RedisStore].
const RedisKeyPrefix = "spotctl:"

// RedisStore implements [Store] on Redis via rueidis.
//
// Reads bypass client-side caching so a value written by another process is seen immediately.
type RedisStore struct {
	client rueidis.Client
}

func NewRedisStore(client rueidis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreFromConfig connects to the server described by cfg.
func NewRedisStoreFromConfig(cfg shared.RedisConfig) (*RedisStore, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create redis client: %w", shared.ErrStoreUnavailable, err)
	}
	return NewRedisStore(client), nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	cmd := r.client.B().Get().Key(RedisKeyPrefix + key).Build()
	value, err := r.client.Do(ctx, cmd).ToString()
	if rueidis.IsRedisNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s from redis: %w", key, err)
	}
	return value, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	cmd := r.client.B().Set().Key(RedisKeyPrefix + key).Value(value).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set %s in redis: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, key string) error {
	cmd := r.client.B().Del().Key(RedisKeyPrefix + key).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to delete %s from redis: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	r.client.Close()
	return nil
}
