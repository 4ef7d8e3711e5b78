package devicelimit

import (
	"fmt"
	"net/url"
	"time"

	"github.com/tendant/devicelimit/pkg/challenge"
)

// Config holds configuration for the Service
type Config struct {
	OTPWindow     time.Duration `json:"otp_window"`     // How long an emailed code stays valid (default: 10m)
	VerifyPath    string        `json:"verify_path"`    // Where Gate sends callers to enter their code
	DashboardPath string        `json:"dashboard_path"` // Where verified callers land
}

func DefaultConfig() Config {
	return Config{
		OTPWindow:     challenge.DefaultWindow,
		VerifyPath:    "/verify",
		DashboardPath: "/admin",
	}
}

func (c *Config) Validate() error {
	if c.OTPWindow <= 0 {
		return fmt.Errorf("otp_window must be positive, got %v", c.OTPWindow)
	}
	if c.VerifyPath == "" {
		return fmt.Errorf("verify_path is required")
	}
	return nil
}

// VerifyURL returns the verification page address for username.
func (c Config) VerifyURL(username string) string {
	return c.VerifyPath + "?" + url.Values{"log": {username}}.Encode()
}
