package challenge

import (
	"context"
	"sync"
)

type InMemRepository struct {
	mutex      sync.RWMutex
	challenges map[string]PendingChallenge
}

func NewInMemRepository() *InMemRepository {
	return &InMemRepository{challenges: make(map[string]PendingChallenge)}
}

func (r *InMemRepository) Get(ctx context.Context, userID string) (PendingChallenge, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	c, ok := r.challenges[userID]
	if !ok {
		return PendingChallenge{}, ErrNotFound
	}
	return c, nil
}

func (r *InMemRepository) Put(ctx context.Context, userID string, c PendingChallenge) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.challenges[userID] = c
	return nil
}

func (r *InMemRepository) Delete(ctx context.Context, userID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.challenges, userID)
	return nil
}

func (r *InMemRepository) DeleteAll(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.challenges = make(map[string]PendingChallenge)
	return nil
}
