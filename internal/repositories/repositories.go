package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/spotctl/internal/shared"
)

// KeyDeviceID holds the selected playback device, encoded as "id;name".
const KeyDeviceID = "deviceId"

// Store is a string key/value store. Get reports whether the key was present.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context, key string) error
	Close() error
}

// StoreType names a [Store] backend.
type StoreType string

const (
	StoreTypeSQLite StoreType = "sqlite"
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// ParseStoreType converts a config or flag value to a [StoreType], ignoring case.
func ParseStoreType(s string) (StoreType, error) {
	switch t := StoreType(strings.ToLower(strings.TrimSpace(s))); t {
	case StoreTypeSQLite, StoreTypeMemory, StoreTypeRedis:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", shared.ErrUnknownStore, s)
	}
}

// NewStore opens the backend selected by cfg.Type.
func NewStore(cfg shared.StoreConfig) (Store, error) {
	t, err := ParseStoreType(cfg.Type)
	if err != nil {
		return nil, err
	}

	switch t {
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeRedis:
		return NewRedisStoreFromConfig(cfg.Redis)
	default:
		return NewSQLiteStoreFromConfig(cfg.SQLite)
	}
}
