package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"samples-backend/internal/auth"
	"samples-backend/internal/config"
	"samples-backend/internal/db"
	"samples-backend/internal/maintenance"
	"samples-backend/internal/media"
	"samples-backend/internal/observability"
	"samples-backend/internal/ratelimit"
	"samples-backend/internal/sample"
	"samples-backend/internal/user"
)

type Options struct {
	LoadDotEnv bool
	// Serverless skips background goroutines, leaving sweeping to the cleanup
	// endpoint, and turns startup migrations off unless configured.
	Serverless bool
}

type Runtime struct {
	Handler http.Handler
	Logger  *observability.Logger
	Config  config.Config
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	cfg, err := config.Load(config.Options{DotEnv: options.LoadDotEnv, Serverless: options.Serverless})
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger()

	if err := observability.InitSentry(observability.SentryOptions{
		DSN:         cfg.SentryDSN,
		Environment: cfg.AppEnv,
		Release:     cfg.Release,
	}); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	startup, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	pool, err := db.Open(startup, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBConnMaxLifetime,
		MaxConnIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return nil, err
	}

	var closers []func() error
	fail := func(err error) (*Runtime, error) {
		for _, c := range closers {
			_ = c()
		}
		pool.Close()
		return nil, err
	}

	if cfg.RunMigrations {
		if err := db.RunMigrations(startup, pool); err != nil {
			return fail(fmt.Errorf("run migrations: %w", err))
		}
	}

	authRepo := auth.NewRepository(pool)

	refreshStore, closeStore, err := newRefreshStore(startup, cfg, authRepo)
	if err != nil {
		return fail(err)
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}
	logger.Info("refresh_store_selected", map[string]any{"store": cfg.RefreshStore})

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.JWTAllowEphemeral)
	if err != nil {
		return fail(err)
	}
	if tokens.Ephemeral() {
		fields := map[string]any{"detail": "JWT_SECRET is not set; tokens will not survive a restart"}
		if cfg.Production() {
			logger.Error("jwt_secret_ephemeral", fields)
		} else {
			logger.Warn("jwt_secret_ephemeral", fields)
		}
	}

	hasher := auth.NewPasswordHasher(cfg.PasswordHasher, cfg.BcryptCost)
	refresh := auth.NewRefreshTokens(refreshStore, cfg.RefreshTokenTTL)
	authService := auth.NewService(authRepo, tokens, refresh, hasher)

	created, err := authService.BootstrapAdmin(startup, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword)
	if err != nil {
		return fail(fmt.Errorf("bootstrap admin: %w", err))
	}
	if created {
		logger.Info("admin_bootstrapped", map[string]any{"username": cfg.AdminUsername})
	}

	images, err := newImageStore(cfg, logger)
	if err != nil {
		return fail(err)
	}

	samples := sample.NewService(sample.NewRepository(pool), authRepo, images, logger).
		WithFolder(cfg.CloudinaryFolder)
	profiles := user.NewService(authRepo, refresh, hasher, images, logger).
		WithFolder(cfg.CloudinaryFolder + "/profiles")

	standard := ratelimit.New(ratelimit.Policy{Name: "standard", Capacity: cfg.RateLimitStandard, Window: cfg.RateLimitWindow})
	authLimiter := ratelimit.New(ratelimit.Policy{Name: "auth", Capacity: cfg.RateLimitAuth, Window: cfg.RateLimitWindow})

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	if !options.Serverless {
		go ratelimit.RunSweeper(sweepCtx, cfg.RateLimitIdle, cfg.RateLimitIdle, func(removed int) {
			logger.Info("rate_limit_swept", map[string]any{"removed": removed})
		}, standard, authLimiter)
	}

	handler := NewHandler(Deps{
		Logger:    logger,
		Tokens:    tokens,
		Users:     authRepo,
		Admission: ratelimit.NewAdmission(standard, authLimiter, logger),
		CORS:      NewCORS(cfg.CORSAllowedOrigins),
		Database:  pool,
		Auth:      auth.NewHandler(authService),
		Samples:   sample.NewHandler(samples, cfg.MaxUploadBytes),
		Profile:   user.NewHandler(profiles, cfg.MaxUploadBytes),
		Cleanup: maintenance.NewCleanupHandler(
			refresh,
			logger,
			cfg.CronSecret,
			cfg.CleanupBatchSize,
			cfg.RateLimitIdle,
			standard, authLimiter,
		),
	})

	return &Runtime{
		Handler: handler,
		Logger:  logger,
		Config:  cfg,
		Close: func() error {
			stopSweeper()
			var firstErr error
			for _, c := range closers {
				if err := c(); err != nil && firstErr == nil {
					firstErr = err
				}
			}
			pool.Close()
			observability.FlushSentry()
			return firstErr
		},
	}, nil
}

func newRefreshStore(ctx context.Context, cfg config.Config, repo *auth.Repository) (auth.RefreshTokenRepository, func() error, error) {
	switch cfg.RefreshStore {
	case config.RefreshStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		store := auth.NewRedisRefreshTokens(client)
		return store, store.Close, nil
	case config.RefreshStoreMemory:
		return auth.NewMemoryRefreshTokens(), nil, nil
	default:
		return repo, nil, nil
	}
}

func newImageStore(cfg config.Config, logger *observability.Logger) (media.Store, error) {
	if cfg.CloudinaryURL == "" {
		logger.Warn("image_store_disabled", map[string]any{
			"detail": "CLOUDINARY_URL is not set; image uploads will be rejected",
		})
		return media.Disabled{}, nil
	}

	store, err := media.NewCloudinary(cfg.CloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return store, nil
}
