// Package settings stores the process-wide device limit.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	dlerrors "github.com/tendant/devicelimit/pkg/errors"
)

const (
	DefaultDeviceLimit = 3
	MinDeviceLimit     = 1

	deviceLimitKey = "device_limit"
)

// ErrNotSet is returned by a Repository when no value is stored for a key.
var ErrNotSet = errors.New("setting not set")

// Repository is a small key/value store for integer settings.
type Repository interface {
	GetInt(ctx context.Context, name string) (int, error)
	SetInt(ctx context.Context, name string, value int) error
	DeleteAll(ctx context.Context) error
}

type Service struct {
	repo         Repository
	defaultLimit int
}

// NewService falls back to defaultLimit while no value has been stored.
// A defaultLimit below 1 is replaced by DefaultDeviceLimit.
func NewService(repo Repository, defaultLimit int) *Service {
	if defaultLimit < MinDeviceLimit {
		defaultLimit = DefaultDeviceLimit
	}
	return &Service{repo: repo, defaultLimit: defaultLimit}
}

func (s *Service) GetDeviceLimit(ctx context.Context) (int, error) {
	limit, err := s.repo.GetInt(ctx, deviceLimitKey)
	if errors.Is(err, ErrNotSet) {
		return s.defaultLimit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read device limit: %w", err)
	}
	if limit < MinDeviceLimit {
		slog.Warn("Stored device limit below minimum, using default", "stored", limit, "default", s.defaultLimit)
		return s.defaultLimit, nil
	}
	return limit, nil
}

func (s *Service) SetDeviceLimit(ctx context.Context, limit int) error {
	if limit < MinDeviceLimit {
		return dlerrors.InvalidInput("device_limit", fmt.Sprintf("must be at least %d", MinDeviceLimit))
	}
	if err := s.repo.SetInt(ctx, deviceLimitKey, limit); err != nil {
		return fmt.Errorf("failed to save device limit: %w", err)
	}
	slog.Info("Device limit updated", "limit", limit)
	return nil
}

// Reset removes every stored setting so defaults apply again.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to reset settings: %w", err)
	}
	return nil
}
