package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tendant/devicelimit/pkg/utils"
)

const registryFileName = "device_registry.json"

// FileRegistryRepository implements RegistryRepository using a JSON file
type FileRegistryRepository struct {
	path       string
	registries map[string][]DeviceRecord
	mutex      sync.RWMutex
}

// NewFileRegistryRepository loads (or creates) dataDir/device_registry.json.
func NewFileRegistryRepository(dataDir string) (*FileRegistryRepository, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	repo := &FileRegistryRepository{
		path:       filepath.Join(dataDir, registryFileName),
		registries: make(map[string][]DeviceRecord),
	}
	if err := utils.ReadJSONFile(repo.path, &repo.registries); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	if repo.registries == nil {
		repo.registries = make(map[string][]DeviceRecord)
	}
	return repo, nil
}

func (r *FileRegistryRepository) Get(ctx context.Context, userID string) ([]DeviceRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return cloneRecords(r.registries[userID]), nil
}

func (r *FileRegistryRepository) Put(ctx context.Context, userID string, records []DeviceRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous, existed := r.registries[userID]
	if len(records) == 0 {
		delete(r.registries, userID)
	} else {
		r.registries[userID] = cloneRecords(records)
	}

	if err := utils.WriteJSONFile(r.path, r.registries); err != nil {
		if existed {
			r.registries[userID] = previous
		} else {
			delete(r.registries, userID)
		}
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

func (r *FileRegistryRepository) Delete(ctx context.Context, userID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous, existed := r.registries[userID]
	if !existed {
		return nil
	}
	delete(r.registries, userID)
	if err := utils.WriteJSONFile(r.path, r.registries); err != nil {
		r.registries[userID] = previous
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}

func (r *FileRegistryRepository) DeleteAll(ctx context.Context) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	previous := r.registries
	r.registries = make(map[string][]DeviceRecord)
	if err := utils.WriteJSONFile(r.path, r.registries); err != nil {
		r.registries = previous
		return fmt.Errorf("failed to save: %w", err)
	}
	return nil
}
