package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrRegistryFull is returned by Approve when the device is new and the registry is at its limit.
var ErrRegistryFull = errors.New("device registry is full")

// RegistryService applies list semantics on top of a RegistryRepository.
// Callers that need read-modify-write atomicity per account must serialise calls themselves.
type RegistryService struct {
	repo RegistryRepository
}

func NewRegistryService(repo RegistryRepository) *RegistryService {
	return &RegistryService{repo: repo}
}

func (s *RegistryService) List(ctx context.Context, userID string) ([]DeviceRecord, error) {
	records, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load device registry: %w", err)
	}
	return records, nil
}

func (s *RegistryService) Contains(ctx context.Context, userID, deviceID string) (bool, error) {
	records, err := s.List(ctx, userID)
	if err != nil {
		return false, err
	}
	return IndexOf(records, deviceID) >= 0, nil
}

func (s *RegistryService) Count(ctx context.Context, userID string) (int, error) {
	records, err := s.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Approve appends record unless its id is already present. A limit <= 0 disables the
// capacity check. The returned bool reports whether the registry changed.
func (s *RegistryService) Approve(ctx context.Context, userID string, record DeviceRecord, limit int) (bool, error) {
	records, err := s.List(ctx, userID)
	if err != nil {
		return false, err
	}
	if IndexOf(records, record.ID) >= 0 {
		return false, nil
	}
	if limit > 0 && len(records) >= limit {
		return false, ErrRegistryFull
	}

	record.Status = StatusApproved
	if record.DeviceClass == "" {
		record.DeviceClass = ClassifyUserAgent(record.UserAgent)
	}
	records = append(records, record)
	if err := s.repo.Put(ctx, userID, records); err != nil {
		return false, fmt.Errorf("failed to save device registry: %w", err)
	}

	slog.Info("Device approved", "userID", userID, "deviceID", record.ID, "count", len(records))
	return true, nil
}

// Remove filters deviceID out of the registry. Removing an unknown id is a no-op.
func (s *RegistryService) Remove(ctx context.Context, userID, deviceID string) (bool, error) {
	records, err := s.List(ctx, userID)
	if err != nil {
		return false, err
	}
	idx := IndexOf(records, deviceID)
	if idx < 0 {
		return false, nil
	}

	records = append(records[:idx], records[idx+1:]...)
	if err := s.repo.Put(ctx, userID, records); err != nil {
		return false, fmt.Errorf("failed to save device registry: %w", err)
	}

	slog.Info("Device removed", "userID", userID, "deviceID", deviceID)
	return true, nil
}

// Reset deletes the whole registry for userID.
func (s *RegistryService) Reset(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to reset device registry: %w", err)
	}
	return nil
}

// Purge deletes every registry.
func (s *RegistryService) Purge(ctx context.Context) error {
	if err := s.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to purge device registries: %w", err)
	}
	return nil
}
