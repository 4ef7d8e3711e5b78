package device

import (
	"context"
)

// RegistryRepository stores each account's device list as a single value.
// Get returns an empty slice, not an error, for an account with no registry.
type RegistryRepository interface {
	Get(ctx context.Context, userID string) ([]DeviceRecord, error)
	Put(ctx context.Context, userID string, records []DeviceRecord) error
	Delete(ctx context.Context, userID string) error
	// DeleteAll removes every registry.
	DeleteAll(ctx context.Context) error
}

func cloneRecords(records []DeviceRecord) []DeviceRecord {
	out := make([]DeviceRecord, len(records))
	copy(out, records)
	return out
}
