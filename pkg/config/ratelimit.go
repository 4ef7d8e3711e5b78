package config

import "time"

// RateLimitConfig limits login and verification attempts per client IP, and
// verification attempts per username.
type RateLimitConfig struct {
	Enabled             bool          `env:"RATE_LIMIT_ENABLED" env-default:"true"`
	LoginCapacity       int           `env:"RATE_LIMIT_LOGIN_CAPACITY" env-default:"10"`
	LoginPerMinute      float64       `env:"RATE_LIMIT_LOGIN_PER_MINUTE" env-default:"10"`
	VerifyCapacity      int           `env:"RATE_LIMIT_VERIFY_CAPACITY" env-default:"5"`
	VerifyPerMinute     float64       `env:"RATE_LIMIT_VERIFY_PER_MINUTE" env-default:"5"`
	VerifyUserCapacity  int           `env:"RATE_LIMIT_VERIFY_USER_CAPACITY" env-default:"10"`
	VerifyUserPerMinute float64       `env:"RATE_LIMIT_VERIFY_USER_PER_MINUTE" env-default:"1"`
	BucketTTL           time.Duration `env:"RATE_LIMIT_BUCKET_TTL" env-default:"1h"`
}

// LoginRefillRate returns the login refill rate in tokens per second
func (c RateLimitConfig) LoginRefillRate() float64 {
	return c.LoginPerMinute / 60.0
}

// VerifyRefillRate returns the verification refill rate in tokens per second
func (c RateLimitConfig) VerifyRefillRate() float64 {
	return c.VerifyPerMinute / 60.0
}

// VerifyUserRefillRate returns the per-username verification refill rate in tokens per second
func (c RateLimitConfig) VerifyUserRefillRate() float64 {
	return c.VerifyUserPerMinute / 60.0
}
