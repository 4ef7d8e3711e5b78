package account

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/devicelimit/pkg/utils"
)

const accountsFileName = "accounts.json"

// storedAccount exists because Account hides its hash from JSON.
type storedAccount struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"password_hash"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
}

// FileRepository keeps accounts in memory and rewrites dataDir/accounts.json on change.
type FileRepository struct {
	*InMemRepository
	path string
}

func NewFileRepository(dataDir string) (*FileRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	repo := &FileRepository{InMemRepository: NewInMemRepository(), path: filepath.Join(dataDir, accountsFileName)}

	var stored []storedAccount
	if err := utils.ReadJSONFile(repo.path, &stored); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	for _, s := range stored {
		repo.accounts[s.ID] = Account(s)
	}
	return repo, nil
}

func (r *FileRepository) Create(ctx context.Context, a Account) (Account, error) {
	created, err := r.InMemRepository.Create(ctx, a)
	if err != nil {
		return Account{}, err
	}
	if err := r.save(); err != nil {
		_ = r.InMemRepository.Delete(ctx, a.ID)
		return Account{}, err
	}
	return created, nil
}

func (r *FileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.InMemRepository.Delete(ctx, id); err != nil {
		return err
	}
	return r.save()
}

func (r *FileRepository) save() error {
	r.mutex.RLock()
	stored := make([]storedAccount, 0, len(r.accounts))
	for _, a := range r.accounts {
		stored = append(stored, storedAccount(a))
	}
	r.mutex.RUnlock()

	if err := utils.WriteJSONFile(r.path, stored); err != nil {
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}
