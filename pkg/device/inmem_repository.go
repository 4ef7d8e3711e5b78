package device

import (
	"context"
	"sync"
)

// InMemRegistryRepository implements RegistryRepository using in-memory storage
type InMemRegistryRepository struct {
	mutex      sync.RWMutex
	registries map[string][]DeviceRecord
}

// NewInMemRegistryRepository creates a new in-memory registry repository
func NewInMemRegistryRepository() *InMemRegistryRepository {
	return &InMemRegistryRepository{
		registries: make(map[string][]DeviceRecord),
	}
}

func (r *InMemRegistryRepository) Get(ctx context.Context, userID string) ([]DeviceRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return cloneRecords(r.registries[userID]), nil
}

func (r *InMemRegistryRepository) Put(ctx context.Context, userID string, records []DeviceRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if len(records) == 0 {
		delete(r.registries, userID)
		return nil
	}
	r.registries[userID] = cloneRecords(records)
	return nil
}

func (r *InMemRegistryRepository) Delete(ctx context.Context, userID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.registries, userID)
	return nil
}

func (r *InMemRegistryRepository) DeleteAll(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.registries = make(map[string][]DeviceRecord)
	return nil
}
