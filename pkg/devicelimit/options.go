package devicelimit

import (
	"time"

	"github.com/tendant/devicelimit/pkg/geo"
)

type Option func(*Service)

// WithConfig applies cfg. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		if cfg.OTPWindow > 0 {
			s.config.OTPWindow = cfg.OTPWindow
		}
		if cfg.VerifyPath != "" {
			s.config.VerifyPath = cfg.VerifyPath
		}
		if cfg.DashboardPath != "" {
			s.config.DashboardPath = cfg.DashboardPath
		}
	}
}

// WithLocator tags approved devices with a country code.
func WithLocator(locator geo.Locator) Option {
	return func(s *Service) {
		if locator != nil {
			s.locator = locator
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
