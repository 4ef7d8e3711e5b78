// Package challenge keeps the single pending one-time-code challenge per account.
//
// Expiry is evaluated lazily from CreatedAt on every read. Stores never decide validity
// on their own; a Redis TTL only reclaims keys well after the window has closed.
package challenge

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/tendant/devicelimit/pkg/device"
)

// DefaultWindow is how long a code stays valid after it is issued.
const DefaultWindow = 10 * time.Minute

const (
	codeMin = 100000
	codeMax = 999999
)

type Status string

const StatusPending Status = "pending"

// ErrNotFound is returned when the account has no pending challenge.
var ErrNotFound = errors.New("challenge not found")

type PendingChallenge struct {
	OTP         string             `json:"otp"`
	DeviceID    string             `json:"device"`
	UserAgent   string             `json:"agent"`
	IP          string             `json:"ip_address"`
	DeviceClass device.DeviceClass `json:"device_type"`
	CreatedAt   time.Time          `json:"time"`
	Status      Status             `json:"status"`
}

// Expired reports whether more than window has elapsed since the challenge was created.
// A challenge exactly window old is still live.
func (c PendingChallenge) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(c.CreatedAt) > window
}

// Live reports whether the challenge is pending and inside its window.
func (c PendingChallenge) Live(now time.Time, window time.Duration) bool {
	return c.Status == StatusPending && !c.Expired(now, window)
}

// Remaining returns the time left in the window, never negative.
func (c PendingChallenge) Remaining(now time.Time, window time.Duration) time.Duration {
	left := window - now.Sub(c.CreatedAt)
	if left < 0 {
		return 0
	}
	return left
}

// GenerateCode returns a 6-digit code drawn uniformly from [100000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}
