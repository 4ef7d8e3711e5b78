package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Repository holds at most one challenge per user.
type Repository interface {
	// Get returns ErrNotFound when no challenge is stored.
	Get(ctx context.Context, userID string) (PendingChallenge, error)
	// Put replaces any existing challenge.
	Put(ctx context.Context, userID string, c PendingChallenge) error
	// Delete is a no-op when nothing is stored.
	Delete(ctx context.Context, userID string) error
	DeleteAll(ctx context.Context) error
}

// RepositoryConfig contains configuration for creating a challenge repository
type RepositoryConfig struct {
	DB      DBTX
	DataDir string
	Redis   *redis.Client
	// Window is used by the redis store to size key TTLs.
	Window time.Duration
}

// NewRepository creates a challenge repository based on the store type
func NewRepository(storeType string, config RepositoryConfig) (Repository, error) {
	switch storeType {
	case "redis":
		if config.Redis == nil {
			return nil, fmt.Errorf("redis client required for redis repository")
		}
		return NewRedisRepository(config.Redis, config.Window), nil
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresRepository(config.DB), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file repository")
		}
		return NewFileRepository(config.DataDir)
	case "inmem", "memory", "":
		return NewInMemRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported challenge store: %s (supported: redis, postgres, file, inmem)", storeType)
	}
}
