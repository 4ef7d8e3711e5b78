package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrAlreadyExists = errors.New("account already exists")
)

type Repository interface {
	Create(ctx context.Context, a Account) (Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (Account, error)
	GetByUsername(ctx context.Context, username string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type InMemRepository struct {
	mutex    sync.RWMutex
	accounts map[uuid.UUID]Account
}

func NewInMemRepository() *InMemRepository {
	return &InMemRepository{accounts: make(map[uuid.UUID]Account)}
}

func (r *InMemRepository) Create(ctx context.Context, a Account) (Account, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, existing := range r.accounts {
		if strings.EqualFold(existing.Username, a.Username) {
			return Account{}, ErrAlreadyExists
		}
	}
	a.Roles = append([]string(nil), a.Roles...)
	r.accounts[a.ID] = a
	return a, nil
}

func (r *InMemRepository) GetByID(ctx context.Context, id uuid.UUID) (Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *InMemRepository) GetByUsername(ctx context.Context, username string) (Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, a := range r.accounts {
		if strings.EqualFold(a.Username, username) {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *InMemRepository) List(ctx context.Context) ([]Account, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r *InMemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.accounts, id)
	return nil
}

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, username, email, display_name, password_hash, roles, created_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.DisplayName, &a.PasswordHash, &a.Roles, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a Account) (Account, error) {
	if a.Roles == nil {
		a.Roles = []string{}
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO accounts (id, username, email, display_name, password_hash, roles, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username) DO NOTHING
		RETURNING `+accountColumns,
		a.ID, a.Username, a.Email, a.DisplayName, a.PasswordHash, a.Roles, a.CreatedAt)
	created, err := scanAccount(row)
	if errors.Is(err, ErrNotFound) {
		return Account{}, ErrAlreadyExists
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to create account: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return a, err
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(username) = lower($1)`, username))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return a, err
}

func (r *PostgresRepository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// RepositoryConfig contains configuration for creating an account repository
type RepositoryConfig struct {
	DB      DBTX
	DataDir string
}

// NewRepository creates an account repository based on the persistence type
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
