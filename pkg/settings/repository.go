package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/devicelimit/pkg/utils"
)

type InMemRepository struct {
	mutex  sync.RWMutex
	values map[string]int
}

func NewInMemRepository() *InMemRepository {
	return &InMemRepository{values: make(map[string]int)}
}

func (r *InMemRepository) GetInt(ctx context.Context, name string) (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	v, ok := r.values[name]
	if !ok {
		return 0, ErrNotSet
	}
	return v, nil
}

func (r *InMemRepository) SetInt(ctx context.Context, name string, value int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.values[name] = value
	return nil
}

func (r *InMemRepository) DeleteAll(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.values = make(map[string]int)
	return nil
}

const settingsFileName = "settings.json"

type FileRepository struct {
	path   string
	mutex  sync.RWMutex
	values map[string]int
}

func NewFileRepository(dataDir string) (*FileRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	repo := &FileRepository{path: filepath.Join(dataDir, settingsFileName), values: make(map[string]int)}
	if err := utils.ReadJSONFile(repo.path, &repo.values); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	if repo.values == nil {
		repo.values = make(map[string]int)
	}
	return repo, nil
}

func (r *FileRepository) GetInt(ctx context.Context, name string) (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	v, ok := r.values[name]
	if !ok {
		return 0, ErrNotSet
	}
	return v, nil
}

func (r *FileRepository) SetInt(ctx context.Context, name string, value int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	previous, existed := r.values[name]
	r.values[name] = value
	if err := utils.WriteJSONFile(r.path, r.values); err != nil {
		if existed {
			r.values[name] = previous
		} else {
			delete(r.values, name)
		}
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

func (r *FileRepository) DeleteAll(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	previous := r.values
	r.values = make(map[string]int)
	if err := utils.WriteJSONFile(r.path, r.values); err != nil {
		r.values = previous
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetInt(ctx context.Context, name string) (int, error) {
	var raw string
	err := r.db.QueryRow(ctx, `SELECT value FROM devicelimit_settings WHERE name = $1`, name).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotSet
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get setting %s: %w", name, err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("setting %s is not an integer: %w", name, err)
	}
	return v, nil
}

func (r *PostgresRepository) SetInt(ctx context.Context, name string, value int) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO devicelimit_settings (name, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		name, strconv.Itoa(value))
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", name, err)
	}
	return nil
}

func (r *PostgresRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM devicelimit_settings`); err != nil {
		return fmt.Errorf("failed to purge settings: %w", err)
	}
	return nil
}

// RepositoryConfig contains configuration for creating a settings repository
type RepositoryConfig struct {
	DB      DBTX
	DataDir string
}

// NewRepository creates a settings repository based on the persistence type
func NewRepository(persistenceType string, config RepositoryConfig) (Repository, error) {
	switch persistenceType {
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
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, inmem)", persistenceType)
	}
}
