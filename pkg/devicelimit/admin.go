package devicelimit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/devicelimit/pkg/account"
	"github.com/tendant/devicelimit/pkg/device"
	dlerrors "github.com/tendant/devicelimit/pkg/errors"
	"github.com/tendant/devicelimit/pkg/notification"
	"github.com/tendant/devicelimit/pkg/session"
)

// RemoveDevice deletes deviceID from userID's registry. Removing an id that is not
// registered succeeds and changes nothing.
func (s *Service) RemoveDevice(ctx context.Context, actor *session.AuthUser, userID, deviceID string) (bool, error) {
	if err := requireCapability(actor, account.CapabilityManageOptions); err != nil {
		return false, err
	}
	if userID == "" {
		return false, dlerrors.MissingData("user_id")
	}
	if deviceID == "" {
		return false, dlerrors.MissingData("device_id")
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	removed, err := s.registry.Remove(ctx, userID, deviceID)
	if err != nil {
		return false, dlerrors.InternalWrap(err, "failed to remove device")
	}
	slog.Info("Remove device requested", "actor", actor.UserID, "userID", userID, "deviceID", deviceID, "removed", removed)
	return removed, nil
}

// ResetAll forgets every device of userID along with any pending challenge.
func (s *Service) ResetAll(ctx context.Context, actor *session.AuthUser, userID string) error {
	if err := requireCapability(actor, account.CapabilityManageOptions); err != nil {
		return err
	}
	if userID == "" {
		return dlerrors.MissingData("user_id")
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	if err := s.registry.Reset(ctx, userID); err != nil {
		return dlerrors.InternalWrap(err, "failed to reset devices")
	}
	if err := s.challenges.Delete(ctx, userID); err != nil {
		return dlerrors.InternalWrap(err, "failed to delete challenge")
	}
	slog.Info("Devices reset", "actor", actor.UserID, "userID", userID)
	return nil
}

// ListDevices returns userID's registry for an administrator.
func (s *Service) ListDevices(ctx context.Context, actor *session.AuthUser, userID string) ([]device.DeviceRecord, error) {
	if err := requireCapability(actor, account.CapabilityManageOptions); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, dlerrors.InvalidInput("user_id", "must be a uuid")
	}
	records, err := s.registry.List(ctx, userID)
	if err != nil {
		return nil, dlerrors.InternalWrap(err, "failed to list devices")
	}
	return records, nil
}

// ListOwnDevices returns the registry of the logged-in actor.
func (s *Service) ListOwnDevices(ctx context.Context, actor *session.AuthUser) ([]device.DeviceRecord, error) {
	if actor == nil {
		return nil, dlerrors.Unauthorized(dlerrors.MsgUnauthorized)
	}
	records, err := s.registry.List(ctx, actor.UserID)
	if err != nil {
		return nil, dlerrors.InternalWrap(err, "failed to list devices")
	}
	return records, nil
}

func (s *Service) GetDeviceLimit(ctx context.Context, actor *session.AuthUser) (int, error) {
	if err := requireCapability(actor, account.CapabilityManageOptions); err != nil {
		return 0, err
	}
	return s.loadLimit(ctx)
}

// UpdateDeviceLimit stores a new limit. Registries already above it are left alone;
// their owners cannot add devices until enough are removed.
func (s *Service) UpdateDeviceLimit(ctx context.Context, actor *session.AuthUser, limit int) error {
	if err := requireCapability(actor, account.CapabilityManageOptions); err != nil {
		return err
	}
	if err := s.settings.SetDeviceLimit(ctx, limit); err != nil {
		if dlerrors.IsCode(err, dlerrors.ErrCodeInvalidInput) {
			return err
		}
		return dlerrors.InternalWrap(err, "failed to save device limit")
	}
	slog.Info("Device limit changed", "actor", actor.UserID, "limit", limit)
	return nil
}

type ActivateResult struct {
	// DeviceApproved is true when the actor's current device became their first device.
	DeviceApproved bool
}

// Activate sends a test email to the actor. Nothing changes if it cannot be delivered.
// On success the actor's current device is approved when their registry is empty, so the
// administrator is not locked out by their own gate.
func (s *Service) Activate(ctx context.Context, actor *session.AuthUser, login LoginContext) (ActivateResult, error) {
	if err := requireCapability(actor, account.CapabilityManageOptions); err != nil {
		return ActivateResult{}, err
	}
	id, err := uuid.Parse(actor.UserID)
	if err != nil {
		return ActivateResult{}, dlerrors.InvalidInput("user_id", "must be a uuid")
	}
	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return ActivateResult{}, err
	}

	if acct.Email == "" {
		return ActivateResult{}, dlerrors.EmailDeliveryFailed(dlerrors.MissingData("email"))
	}
	if err := s.notificationManager.Send(notification.ActivationTestNotice, notification.EmailSystem, notification.NotificationData{
		To:   acct.Email,
		Data: map[string]string{"Name": acct.Name()},
	}); err != nil {
		slog.Error("Activation test email failed", "userID", actor.UserID, "error", err)
		return ActivateResult{}, dlerrors.EmailDeliveryFailed(err)
	}

	userID := acct.ID.String()
	unlock := s.locks.Lock(userID)
	defer unlock()

	count, err := s.registry.Count(ctx, userID)
	if err != nil {
		return ActivateResult{}, dlerrors.InternalWrap(err, "failed to count devices")
	}
	if count > 0 || login.DeviceID == "" {
		return ActivateResult{}, nil
	}

	limit, err := s.loadLimit(ctx)
	if err != nil {
		return ActivateResult{}, err
	}
	approved, err := s.registry.Approve(ctx, userID, device.DeviceRecord{
		ID:        login.DeviceID,
		UserAgent: login.UserAgent,
		IP:        login.IP,
		FirstSeen: s.now(),
		Country:   s.locator.Country(login.IP),
	}, limit)
	if err != nil {
		return ActivateResult{}, dlerrors.InternalWrap(err, "failed to approve device")
	}
	slog.Info("Device login limit activated", "actor", actor.UserID, "deviceApproved", approved)
	return ActivateResult{DeviceApproved: approved}, nil
}

// Uninstall removes every registry, every pending challenge and the stored limit.
func (s *Service) Uninstall(ctx context.Context, actor *session.AuthUser) error {
	if err := requireCapability(actor, account.CapabilityManageOptions); err != nil {
		return err
	}
	if err := s.registry.Purge(ctx); err != nil {
		return dlerrors.InternalWrap(err, "failed to purge devices")
	}
	if err := s.challenges.DeleteAll(ctx); err != nil {
		return dlerrors.InternalWrap(err, "failed to purge challenges")
	}
	if err := s.settings.Reset(ctx); err != nil {
		return dlerrors.InternalWrap(err, "failed to reset settings")
	}
	slog.Warn("Device login limit data purged", "actor", actor.UserID)
	return nil
}
