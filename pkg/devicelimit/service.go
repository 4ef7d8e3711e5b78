package devicelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/devicelimit/pkg/account"
	"github.com/tendant/devicelimit/pkg/challenge"
	"github.com/tendant/devicelimit/pkg/device"
	dlerrors "github.com/tendant/devicelimit/pkg/errors"
	"github.com/tendant/devicelimit/pkg/geo"
	"github.com/tendant/devicelimit/pkg/nonce"
	"github.com/tendant/devicelimit/pkg/notification"
	"github.com/tendant/devicelimit/pkg/session"
	"github.com/tendant/devicelimit/pkg/settings"
)

type Service struct {
	registry            *device.RegistryService
	challenges          challenge.Repository
	settings            *settings.Service
	accounts            *account.Service
	notificationManager *notification.NotificationManager
	nonces              *nonce.Manager
	locator             geo.Locator
	config              Config
	now                 func() time.Time
	locks               *keyedMutex
}

func NewService(
	registry *device.RegistryService,
	challenges challenge.Repository,
	settingsService *settings.Service,
	accounts *account.Service,
	notificationManager *notification.NotificationManager,
	nonces *nonce.Manager,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		registry:            registry,
		challenges:          challenges,
		settings:            settingsService,
		accounts:            accounts,
		notificationManager: notificationManager,
		nonces:              nonces,
		locator:             geo.NoopLocator{},
		config:              DefaultConfig(),
		now:                 time.Now,
		locks:               newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid devicelimit config: %w", err)
	}
	return s, nil
}

func (s *Service) Config() Config {
	return s.config
}

// requireCapability fails closed: no actor is Unauthorized, a missing capability Forbidden.
func requireCapability(actor *session.AuthUser, capability string) error {
	if actor == nil {
		return dlerrors.Unauthorized(dlerrors.MsgUnauthorized)
	}
	if !actor.HasCapability(capability) {
		slog.Warn("capability check failed", "user", actor, "capability", capability)
		return dlerrors.Forbidden(dlerrors.MsgUnauthorized)
	}
	return nil
}

// IssueNonce issues an anti-forgery token for an administrative action on behalf of actor.
func (s *Service) IssueNonce(actor *session.AuthUser, action string) (string, error) {
	if err := requireCapability(actor, account.CapabilityManageOptions); err != nil {
		return "", err
	}
	return s.nonces.Issue(action, actor.UserID)
}

// CheckNonce verifies a token issued by IssueNonce for the same actor and action.
func (s *Service) CheckNonce(actor *session.AuthUser, action, token string) error {
	if actor == nil {
		return dlerrors.Unauthorized(dlerrors.MsgUnauthorized)
	}
	return s.nonces.Verify(token, action, actor.UserID)
}

// loadLimit returns the configured device limit.
func (s *Service) loadLimit(ctx context.Context) (int, error) {
	limit, err := s.settings.GetDeviceLimit(ctx)
	if err != nil {
		return 0, dlerrors.InternalWrap(err, "failed to load device limit")
	}
	return limit, nil
}
