package devicelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/devicelimit/pkg/account"
	"github.com/tendant/devicelimit/pkg/challenge"
	"github.com/tendant/devicelimit/pkg/device"
	dlerrors "github.com/tendant/devicelimit/pkg/errors"
	"github.com/tendant/devicelimit/pkg/notification"
	"github.com/tendant/devicelimit/pkg/utils"
)

type Outcome string

const (
	OutcomeAllow  Outcome = "allow"
	OutcomeVerify Outcome = "verify"
)

// LoginContext describes the client attempting to log in.
type LoginContext struct {
	DeviceID  string
	UserAgent string
	IP        string
}

type Decision struct {
	Outcome     Outcome
	RedirectURL string
}

// Gate decides whether an authenticated account may proceed from the device in login.
// It returns DEVICE_LIMIT_REACHED or EMAIL_DELIVERY_FAILED errors when the login must fail.
func (s *Service) Gate(ctx context.Context, acct account.Account, login LoginContext) (Decision, error) {
	userID := acct.ID.String()
	unlock := s.locks.Lock(userID)
	defer unlock()

	known, err := s.registry.Contains(ctx, userID, login.DeviceID)
	if err != nil {
		return Decision{}, dlerrors.InternalWrap(err, "failed to check device registry")
	}
	if known {
		slog.Debug("Known device", "userID", userID, "deviceID", login.DeviceID)
		return Decision{Outcome: OutcomeAllow}, nil
	}

	now := s.now()
	pending, err := s.challenges.Get(ctx, userID)
	switch {
	case err == nil:
		if pending.Live(now, s.config.OTPWindow) {
			slog.Info("Pending challenge still live", "userID", userID, "deviceID", pending.DeviceID)
			return s.verifyDecision(acct), nil
		}
		if err := s.challenges.Delete(ctx, userID); err != nil {
			return Decision{}, dlerrors.InternalWrap(err, "failed to delete expired challenge")
		}
		slog.Info("Expired challenge removed", "userID", userID, "createdAt", pending.CreatedAt)
	case errors.Is(err, challenge.ErrNotFound):
	default:
		return Decision{}, dlerrors.InternalWrap(err, "failed to load challenge")
	}

	limit, err := s.loadLimit(ctx)
	if err != nil {
		return Decision{}, err
	}
	count, err := s.registry.Count(ctx, userID)
	if err != nil {
		return Decision{}, dlerrors.InternalWrap(err, "failed to count devices")
	}
	if count >= limit {
		slog.Warn("Device limit reached", "userID", userID, "count", count, "limit", limit)
		return Decision{}, dlerrors.DeviceLimitReached(limit)
	}

	if err := s.issueChallenge(ctx, acct, login); err != nil {
		return Decision{}, err
	}
	return s.verifyDecision(acct), nil
}

func (s *Service) verifyDecision(acct account.Account) Decision {
	return Decision{Outcome: OutcomeVerify, RedirectURL: s.config.VerifyURL(acct.Username)}
}

// issueChallenge stores a new challenge and emails its code. A failed delivery removes
// the challenge again so no unusable code is left behind.
func (s *Service) issueChallenge(ctx context.Context, acct account.Account, login LoginContext) error {
	userID := acct.ID.String()
	code, err := challenge.GenerateCode()
	if err != nil {
		return dlerrors.InternalWrap(err, "failed to generate code")
	}

	pending := challenge.PendingChallenge{
		OTP:         code,
		DeviceID:    login.DeviceID,
		UserAgent:   login.UserAgent,
		IP:          login.IP,
		DeviceClass: device.ClassifyUserAgent(login.UserAgent),
		CreatedAt:   s.now(),
		Status:      challenge.StatusPending,
	}
	if err := s.challenges.Put(ctx, userID, pending); err != nil {
		return dlerrors.InternalWrap(err, "failed to save challenge")
	}

	if sendErr := s.sendCode(acct, code); sendErr != nil {
		slog.Error("Failed to send verification code", "userID", userID, "error", sendErr)
		if err := s.challenges.Delete(ctx, userID); err != nil {
			slog.Error("Failed to roll back challenge", "userID", userID, "error", err)
			return dlerrors.InternalWrap(errors.Join(sendErr, err), "failed to roll back challenge")
		}
		return dlerrors.EmailDeliveryFailed(sendErr)
	}

	slog.Info("Verification code sent", "userID", userID, "email", utils.MaskEmail(acct.Email), "deviceID", login.DeviceID, "deviceClass", pending.DeviceClass)
	return nil
}

func (s *Service) sendCode(acct account.Account, code string) error {
	if acct.Email == "" {
		return fmt.Errorf("account %s has no email address", acct.Username)
	}
	return s.notificationManager.Send(notification.DeviceOTPNotice, notification.EmailSystem, notification.NotificationData{
		To: acct.Email,
		Data: map[string]string{
			"Name": acct.Name(),
			"Code": code,
		},
	})
}
