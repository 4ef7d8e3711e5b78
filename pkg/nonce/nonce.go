// Package nonce issues anti-forgery tokens bound to an action and a subject.
//
// A nonce is an HS256 JWT carrying the action name, the subject (a username or user id)
// and an expiry. It is signed with a key derived from the configured secret through HKDF,
// so a nonce never verifies against a session verifier holding the same secret.
package nonce

import (
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	dlerrors "github.com/tendant/devicelimit/pkg/errors"
	"golang.org/x/crypto/hkdf"
)

const DefaultLifetime = 12 * time.Hour

const keyInfo = "devicelimit/nonce/v1"

const (
	ActionVerifyDevice   = "verify_device"
	ActionDeleteDevice   = "delete_device"
	ActionResetDevices   = "reset_devices"
	ActionUpdateSettings = "update_settings"
	ActionActivate       = "activate"
	ActionUninstall      = "uninstall"
)

// AdminActions are the actions an administrator can request a nonce for.
var AdminActions = []string{ActionDeleteDevice, ActionResetDevices, ActionUpdateSettings, ActionActivate, ActionUninstall}

type Claims struct {
	Action string `json:"act"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret   []byte
	issuer   string
	lifetime time.Duration
	now      func() time.Time
}

type Option func(*Manager)

func WithLifetime(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lifetime = d
		}
	}
}

func WithIssuer(issuer string) Option {
	return func(m *Manager) { m.issuer = issuer }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(secret string, opts ...Option) *Manager {
	m := &Manager{
		secret:   deriveKey(secret),
		lifetime: DefaultLifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// deriveKey expands secret into the nonce signing key.
func deriveKey(secret string) []byte {
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		// only reachable when more than 255 blocks are requested
		panic(fmt.Sprintf("failed to derive nonce key: %v", err))
	}
	return key
}

// Issue returns a signed nonce for action on behalf of subject.
func (m *Manager) Issue(action, subject string) (string, error) {
	now := m.now()
	claims := Claims{
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.lifetime)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign nonce: %w", err)
	}
	return signed, nil
}

// Verify fails with an INVALID_NONCE error unless token was issued by this manager for
// the same action and subject and has not expired.
func (m *Manager) Verify(token, action, subject string) error {
	if token == "" {
		return dlerrors.InvalidNonce(fmt.Errorf("missing nonce"))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return dlerrors.InvalidNonce(err)
	}
	if claims.Action != action {
		return dlerrors.InvalidNonce(fmt.Errorf("nonce issued for %q, not %q", claims.Action, action))
	}
	if claims.Subject != subject {
		return dlerrors.InvalidNonce(fmt.Errorf("nonce subject mismatch"))
	}
	if m.issuer != "" && claims.Issuer != m.issuer {
		return dlerrors.InvalidNonce(fmt.Errorf("nonce issuer mismatch"))
	}
	return nil
}
