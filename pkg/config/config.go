package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DeviceLimitConfig controls the gate itself.
type DeviceLimitConfig struct {
	// DefaultLimit is used until an administrator stores a different value.
	DefaultLimit int           `env:"DEVICE_LIMIT_DEFAULT" env-default:"3"`
	OTPWindow    time.Duration `env:"DEVICE_LIMIT_OTP_WINDOW" env-default:"10m"`

	// PersistenceType selects storage for registries, settings and accounts: inmem, file or postgres.
	PersistenceType string `env:"DEVICE_LIMIT_PERSISTENCE" env-default:"inmem"`
	// ChallengeStore selects storage for pending challenges: inmem, file, redis or postgres.
	ChallengeStore string `env:"DEVICE_LIMIT_CHALLENGE_STORE" env-default:"inmem"`
	DataDir        string `env:"DEVICE_LIMIT_DATA_DIR" env-default:"./data"`

	VerifyPath    string `env:"DEVICE_LIMIT_VERIFY_PATH" env-default:"/verify"`
	DashboardPath string `env:"DEVICE_LIMIT_DASHBOARD_PATH" env-default:"/admin"`
}

// CookieConfig applies to both the device cookie and the session cookie.
type CookieConfig struct {
	DeviceCookieName string        `env:"DEVICE_COOKIE_NAME" env-default:"spdll_device_id"`
	DeviceCookieTTL  time.Duration `env:"DEVICE_COOKIE_TTL" env-default:"8760h"`
	Domain           string        `env:"COOKIE_DOMAIN" env-default:""`
	Path             string        `env:"COOKIE_PATH" env-default:"/"`
	// Secure forces the Secure flag even when the request arrived over plain HTTP
	// (e.g. TLS terminated at a proxy).
	Secure bool `env:"COOKIE_SECURE" env-default:"false"`
}

// JWTConfig signs session tokens and anti-forgery nonces.
type JWTConfig struct {
	Secret        string        `env:"JWT_SECRET"`
	// NonceSecret signs nonces. When empty, nonces use a key derived from Secret.
	NonceSecret   string        `env:"NONCE_SECRET"`
	Issuer        string        `env:"JWT_ISSUER" env-default:"devicelimit"`
	SessionExpiry time.Duration `env:"SESSION_EXPIRY" env-default:"24h"`
	NonceExpiry   time.Duration `env:"NONCE_EXPIRY" env-default:"12h"`
}

// NonceSigningSecret returns the secret nonce keys are derived from.
func (j JWTConfig) NonceSigningSecret() string {
	if j.NonceSecret != "" {
		return j.NonceSecret
	}
	return j.Secret
}

// ProxyConfig lists the reverse proxies whose X-Forwarded-For and X-Real-IP headers
// are believed. Entries are addresses or CIDR ranges.
type ProxyConfig struct {
	TrustedProxies []string `env:"TRUSTED_PROXIES" env-separator:","`
}

// IsPostgres reports whether a persistence or challenge store name selects Postgres.
func IsPostgres(storeType string) bool {
	return storeType == "postgres" || storeType == "postgresql"
}

// GeoIPConfig enables country tagging when a MaxMind database is present.
type GeoIPConfig struct {
	DBPath string `env:"GEOIP_DB_PATH" env-default:""`
}

// AdminConfig bootstraps the first administrator account.
type AdminConfig struct {
	Username string `env:"ADMIN_USERNAME" env-default:"admin"`
	Email    string `env:"ADMIN_EMAIL" env-default:"admin@example.com"`
	Password string `env:"ADMIN_PASSWORD" env-default:""`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" env-default:"info"`
}

// SlogLevel maps the configured level name to a slog.Level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SameSite returns the SameSite mode for gate cookies.
func (c CookieConfig) SameSite() http.SameSite {
	return http.SameSiteLaxMode
}
