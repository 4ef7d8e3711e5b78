package challenge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tendant/devicelimit/pkg/utils"
)

const challengeFileName = "device_challenges.json"

type FileRepository struct {
	path       string
	challenges map[string]PendingChallenge
	mutex      sync.RWMutex
}

func NewFileRepository(dataDir string) (*FileRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	repo := &FileRepository{
		path:       filepath.Join(dataDir, challengeFileName),
		challenges: make(map[string]PendingChallenge),
	}
	if err := utils.ReadJSONFile(repo.path, &repo.challenges); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	if repo.challenges == nil {
		repo.challenges = make(map[string]PendingChallenge)
	}
	return repo, nil
}

func (r *FileRepository) Get(ctx context.Context, userID string) (PendingChallenge, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	c, ok := r.challenges[userID]
	if !ok {
		return PendingChallenge{}, ErrNotFound
	}
	return c, nil
}

func (r *FileRepository) Put(ctx context.Context, userID string, c PendingChallenge) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous, existed := r.challenges[userID]
	r.challenges[userID] = c
	if err := utils.WriteJSONFile(r.path, r.challenges); err != nil {
		if existed {
			r.challenges[userID] = previous
		} else {
			delete(r.challenges, userID)
		}
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

func (r *FileRepository) Delete(ctx context.Context, userID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous, existed := r.challenges[userID]
	if !existed {
		return nil
	}
	delete(r.challenges, userID)
	if err := utils.WriteJSONFile(r.path, r.challenges); err != nil {
		r.challenges[userID] = previous
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

func (r *FileRepository) DeleteAll(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous := r.challenges
	r.challenges = make(map[string]PendingChallenge)
	if err := utils.WriteJSONFile(r.path, r.challenges); err != nil {
		r.challenges = previous
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}
