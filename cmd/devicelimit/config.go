package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/devicelimit/pkg/config"
)

type Config struct {
	AppConfig   app.AppConfig
	Database    config.DatabaseConfig
	Redis       config.RedisConfig
	Email       config.EmailConfig
	DeviceLimit config.DeviceLimitConfig
	Cookie      config.CookieConfig
	JWT         config.JWTConfig
	RateLimit   config.RateLimitConfig
	Proxy       config.ProxyConfig
	GeoIP       config.GeoIPConfig
	Admin       config.AdminConfig
	Log         config.LogConfig
}

func (c Config) needsPostgres() bool {
	return config.IsPostgres(c.DeviceLimit.PersistenceType) || config.IsPostgres(c.DeviceLimit.ChallengeStore)
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() {
	execPath, err := os.Executable()
	if err != nil {
		return
	}

	envFile := filepath.Join(filepath.Dir(execPath), ".env")
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		cwd, _ := os.Getwd()
		envFile = filepath.Join(cwd, ".env")
	}

	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Debug("No .env file found (using environment variables or defaults)")
		return
	}

	slog.Info("Loading configuration from .env file", "path", envFile)
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}
}
