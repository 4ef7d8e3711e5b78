package devicelimit

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"github.com/tendant/devicelimit/pkg/account"
	"github.com/tendant/devicelimit/pkg/challenge"
	"github.com/tendant/devicelimit/pkg/device"
	dlerrors "github.com/tendant/devicelimit/pkg/errors"
	"github.com/tendant/devicelimit/pkg/nonce"
)

type VerifyResult struct {
	Account account.Account
	Device  device.DeviceRecord
	// Appended is false when the device was already in the registry.
	Appended    bool
	RedirectURL string
}

// Verify checks a submitted code for username. The nonce must have been issued for
// ActionVerifyDevice and the same username. A wrong or expired code leaves the pending
// challenge in place.
func (s *Service) Verify(ctx context.Context, username, otp, nonceToken string) (VerifyResult, error) {
	if err := s.nonces.Verify(nonceToken, nonce.ActionVerifyDevice, username); err != nil {
		return VerifyResult{}, err
	}

	acct, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if dlerrors.IsCode(err, dlerrors.ErrCodeNotFound) {
			return VerifyResult{}, dlerrors.InvalidOrExpiredCode()
		}
		return VerifyResult{}, dlerrors.InternalWrap(err, "failed to load account")
	}

	userID := acct.ID.String()
	unlock := s.locks.Lock(userID)
	defer unlock()

	pending, err := s.challenges.Get(ctx, userID)
	if errors.Is(err, challenge.ErrNotFound) {
		return VerifyResult{}, dlerrors.InvalidOrExpiredCode()
	}
	if err != nil {
		return VerifyResult{}, dlerrors.InternalWrap(err, "failed to load challenge")
	}

	now := s.now()
	otp = strings.TrimSpace(otp)
	if !pending.Live(now, s.config.OTPWindow) || subtle.ConstantTimeCompare([]byte(otp), []byte(pending.OTP)) != 1 {
		slog.Info("Verification rejected", "userID", userID, "expired", pending.Expired(now, s.config.OTPWindow))
		return VerifyResult{}, dlerrors.InvalidOrExpiredCode()
	}

	limit, err := s.loadLimit(ctx)
	if err != nil {
		return VerifyResult{}, err
	}

	record := device.DeviceRecord{
		ID:          pending.DeviceID,
		UserAgent:   pending.UserAgent,
		IP:          pending.IP,
		FirstSeen:   now,
		DeviceClass: pending.DeviceClass,
		Country:     s.locator.Country(pending.IP),
	}
	appended, err := s.registry.Approve(ctx, userID, record, limit)
	if errors.Is(err, device.ErrRegistryFull) {
		// the limit was lowered or filled since the code was sent; the code can never succeed
		if delErr := s.challenges.Delete(ctx, userID); delErr != nil {
			return VerifyResult{}, dlerrors.InternalWrap(delErr, "failed to delete challenge")
		}
		slog.Warn("Device limit reached at verification", "userID", userID, "limit", limit)
		return VerifyResult{}, dlerrors.DeviceLimitReached(limit)
	}
	if err != nil {
		return VerifyResult{}, dlerrors.InternalWrap(err, "failed to approve device")
	}

	if err := s.challenges.Delete(ctx, userID); err != nil {
		return VerifyResult{}, dlerrors.InternalWrap(err, "failed to delete challenge")
	}

	slog.Info("Device verified", "userID", userID, "deviceID", record.ID, "appended", appended)
	return VerifyResult{
		Account:     acct,
		Device:      record,
		Appended:    appended,
		RedirectURL: s.config.DashboardPath,
	}, nil
}

// Page is what the verification form needs to render.
type Page struct {
	Username         string
	Nonce            string
	RemainingSeconds int
	// AlreadyApproved means the caller's device is registered and the form is not needed.
	AlreadyApproved bool
	RedirectURL     string
}

// VerificationPage prepares the code entry form for username as seen from deviceID.
// An unknown username gets a form with no countdown rather than an error.
func (s *Service) VerificationPage(ctx context.Context, username, deviceID string) (Page, error) {
	if username == "" {
		return Page{}, dlerrors.MissingData("log")
	}

	token, err := s.nonces.Issue(nonce.ActionVerifyDevice, username)
	if err != nil {
		return Page{}, dlerrors.InternalWrap(err, "failed to issue nonce")
	}
	page := Page{Username: username, Nonce: token}

	acct, err := s.accounts.FindByUsername(ctx, username)
	if dlerrors.IsCode(err, dlerrors.ErrCodeNotFound) {
		return page, nil
	}
	if err != nil {
		return Page{}, dlerrors.InternalWrap(err, "failed to load account")
	}
	userID := acct.ID.String()

	if deviceID != "" {
		known, err := s.registry.Contains(ctx, userID, deviceID)
		if err != nil {
			return Page{}, dlerrors.InternalWrap(err, "failed to check device registry")
		}
		if known {
			page.AlreadyApproved = true
			page.RedirectURL = s.config.DashboardPath
			return page, nil
		}
	}

	pending, err := s.challenges.Get(ctx, userID)
	switch {
	case err == nil:
		page.RemainingSeconds = int(pending.Remaining(s.now(), s.config.OTPWindow).Seconds())
	case errors.Is(err, challenge.ErrNotFound):
	default:
		return Page{}, dlerrors.InternalWrap(err, "failed to load challenge")
	}
	return page, nil
}
