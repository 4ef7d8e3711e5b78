package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinzhu/copier"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/tendant/devicelimit/pkg/account"
	"github.com/tendant/devicelimit/pkg/challenge"
	"github.com/tendant/devicelimit/pkg/config"
	"github.com/tendant/devicelimit/pkg/device"
	"github.com/tendant/devicelimit/pkg/devicelimit"
	"github.com/tendant/devicelimit/pkg/devicelimit/api"
	"github.com/tendant/devicelimit/pkg/geo"
	"github.com/tendant/devicelimit/pkg/nonce"
	"github.com/tendant/devicelimit/pkg/notification"
	"github.com/tendant/devicelimit/pkg/ratelimit"
	"github.com/tendant/devicelimit/pkg/session"
	"github.com/tendant/devicelimit/pkg/settings"
)

type stores struct {
	registry   device.RegistryRepository
	challenges challenge.Repository
	settings   settings.Repository
	accounts   account.Repository
}

func buildStores(cfg Config, pool *pgxpool.Pool, redisClient *redis.Client) (stores, error) {
	deviceCfg := device.RepositoryConfig{DataDir: cfg.DeviceLimit.DataDir}
	settingsCfg := settings.RepositoryConfig{DataDir: cfg.DeviceLimit.DataDir}
	accountCfg := account.RepositoryConfig{DataDir: cfg.DeviceLimit.DataDir}
	challengeCfg := challenge.RepositoryConfig{
		DataDir: cfg.DeviceLimit.DataDir,
		Redis:   redisClient,
		Window:  cfg.DeviceLimit.OTPWindow,
	}
	if pool != nil {
		deviceCfg.DB = pool
		settingsCfg.DB = pool
		accountCfg.DB = pool
		challengeCfg.DB = pool
	}

	var s stores
	var err error
	persistence := cfg.DeviceLimit.PersistenceType
	if s.registry, err = device.NewRegistryRepository(persistence, deviceCfg); err != nil {
		return stores{}, fmt.Errorf("failed to create device registry repository: %w", err)
	}
	if s.settings, err = settings.NewRepository(persistence, settingsCfg); err != nil {
		return stores{}, fmt.Errorf("failed to create settings repository: %w", err)
	}
	if s.accounts, err = account.NewRepository(persistence, accountCfg); err != nil {
		return stores{}, fmt.Errorf("failed to create account repository: %w", err)
	}
	if s.challenges, err = challenge.NewRepository(cfg.DeviceLimit.ChallengeStore, challengeCfg); err != nil {
		return stores{}, fmt.Errorf("failed to create challenge repository: %w", err)
	}
	return s, nil
}

func main() {
	loadEnvFile()

	cfg := Config{}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if err := config.Validate(cfg.DeviceLimit.ValidateDeviceLimit, cfg.JWT.ValidateJWT); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var pool *pgxpool.Pool
	if cfg.needsPostgres() {
		dbConfig := cfg.Database.ToDbConfig()
		var err error
		pool, err = dbutils.NewDbPool(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User, "error", err)
			os.Exit(-1)
		}
		defer pool.Close()
	}

	var redisClient *redis.Client
	if cfg.DeviceLimit.ChallengeStore == "redis" {
		redisClient = redis.NewClient(cfg.Redis.ToRedisOptions())
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Error("Failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	st, err := buildStores(cfg, pool, redisClient)
	if err != nil {
		slog.Error("Failed to create repositories", "persistence", cfg.DeviceLimit.PersistenceType, "challengeStore", cfg.DeviceLimit.ChallengeStore, "error", err)
		os.Exit(1)
	}

	notificationManager, err := notification.NewNotificationManager(
		notification.WithSMTP(cfg.Email.ToSMTPConfig()),
		notification.WithDefaultTemplates(),
	)
	if err != nil {
		slog.Error("Failed to create notification manager", "error", err)
		os.Exit(1)
	}

	locator, err := geo.NewLocator(cfg.GeoIP.DBPath)
	if err != nil {
		slog.Warn("GeoIP disabled", "path", cfg.GeoIP.DBPath, "error", err)
		locator = geo.NoopLocator{}
	}
	defer locator.Close()

	accounts := account.NewService(st.accounts)
	admin, generated, err := accounts.EnsureAdmin(ctx, account.AdminParams{
		Username: cfg.Admin.Username,
		Email:    cfg.Admin.Email,
		Password: cfg.Admin.Password,
	})
	if err != nil {
		slog.Error("Failed to bootstrap admin account", "username", cfg.Admin.Username, "error", err)
		os.Exit(1)
	}
	if generated != "" {
		slog.Warn("Generated admin password, set ADMIN_PASSWORD to choose one", "username", admin.Username, "password", generated)
	}

	var serviceConfig devicelimit.Config
	if err := copier.Copy(&serviceConfig, &cfg.DeviceLimit); err != nil {
		slog.Error("Failed to map device limit config", "error", err)
		os.Exit(1)
	}

	service, err := devicelimit.NewService(
		device.NewRegistryService(st.registry),
		st.challenges,
		settings.NewService(st.settings, cfg.DeviceLimit.DefaultLimit),
		accounts,
		notificationManager,
		nonce.NewManager(cfg.JWT.NonceSigningSecret(), nonce.WithIssuer(cfg.JWT.Issuer), nonce.WithLifetime(cfg.JWT.NonceExpiry)),
		devicelimit.WithConfig(serviceConfig),
		devicelimit.WithLocator(locator),
	)
	if err != nil {
		slog.Error("Failed to create device limit service", "error", err)
		os.Exit(1)
	}

	resolver := device.NewResolver(device.ResolverOptions{
		CookieName: cfg.Cookie.DeviceCookieName,
		Domain:     cfg.Cookie.Domain,
		Path:       cfg.Cookie.Path,
		TTL:        cfg.Cookie.DeviceCookieTTL,
		Secure:     cfg.Cookie.Secure,
	})

	sessions := session.NewIssuer(session.Options{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Expiry:   cfg.JWT.SessionExpiry,
		Domain:   cfg.Cookie.Domain,
		Path:     cfg.Cookie.Path,
		Secure:   cfg.Cookie.Secure,
		SameSite: cfg.Cookie.SameSite(),
	})

	ips, err := device.NewIPExtractor(cfg.Proxy.TrustedProxies)
	if err != nil {
		slog.Error("Invalid trusted proxy configuration", "error", err)
		os.Exit(1)
	}

	handleOpts := []api.Option{api.WithIPExtractor(ips)}
	if cfg.RateLimit.Enabled {
		byIP := ratelimit.IPKey(ips)
		loginLimiter := ratelimit.NewMiddleware("login", cfg.RateLimit.LoginCapacity, cfg.RateLimit.LoginRefillRate(), cfg.RateLimit.BucketTTL).WithKeyFunc(byIP)
		verifyLimiter := ratelimit.NewMiddleware("verify", cfg.RateLimit.VerifyCapacity, cfg.RateLimit.VerifyRefillRate(), cfg.RateLimit.BucketTTL).WithKeyFunc(byIP)
		verifyUserLimiter := ratelimit.NewMiddleware("verify_user", cfg.RateLimit.VerifyUserCapacity, cfg.RateLimit.VerifyUserRefillRate(), cfg.RateLimit.BucketTTL)
		defer loginLimiter.Stop()
		defer verifyLimiter.Stop()
		defer verifyUserLimiter.Stop()
		handleOpts = append(handleOpts,
			api.WithRateLimits(loginLimiter, verifyLimiter),
			api.WithVerifyUserLimit(verifyUserLimiter),
		)
	}
	handle := api.NewHandle(service, accounts, resolver, sessions, handleOpts...)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)
	server.R.Mount("/", api.Handler(handle, sessions.JWTAuth()))

	slog.Info("Device login limit started",
		"persistence", cfg.DeviceLimit.PersistenceType,
		"challengeStore", cfg.DeviceLimit.ChallengeStore,
		"otpWindow", cfg.DeviceLimit.OTPWindow,
		"rateLimit", cfg.RateLimit.Enabled,
	)
	server.Run()
}
