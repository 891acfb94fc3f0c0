package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	RefreshStorePostgres = "postgres"
	RefreshStoreRedis    = "redis"
	RefreshStoreMemory   = "memory"

	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

type Config struct {
	AppEnv  string
	Release string
	Port    string

	DatabaseURL       string
	DBMaxConns        int
	DBMinConns        int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	RunMigrations     bool

	JWTSecret         string
	JWTAllowEphemeral bool
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration

	RefreshStore  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PasswordHasher string
	BcryptCost     int

	RateLimitStandard int
	RateLimitAuth     int
	RateLimitWindow   time.Duration
	RateLimitIdle     time.Duration

	CloudinaryURL    string
	CloudinaryFolder string
	MaxUploadBytes   int64

	CORSAllowedOrigins []string

	SentryDSN        string
	CronSecret       string
	CleanupBatchSize int
	AdminUsername    string
	AdminEmail       string
	AdminPassword    string
}

type Options struct {
	// DotEnv seeds the environment from a .env file in the working directory.
	DotEnv bool
	// Serverless turns migrations off by default so cold starts skip them.
	Serverless bool
}

// Load reads configuration from the environment.
func Load(options Options) (Config, error) {
	if options.DotEnv {
		_ = godotenv.Load()
	}

	appEnv := envOrDefault("APP_ENV", "development")
	production := strings.EqualFold(appEnv, "production")

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:  appEnv,
		Release: envOrDefault("APP_RELEASE", os.Getenv("VERCEL_GIT_COMMIT_SHA")),
		Port:    envOrDefault("PORT", "8080"),

		DatabaseURL:       databaseURL,
		DBMaxConns:        envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMinConns:        envIntOrDefault("DB_MIN_CONNS", 1),
		DBConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
		RunMigrations:     EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", !options.Serverless),

		JWTSecret:         strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAllowEphemeral: EnvBoolOrDefault("JWT_ALLOW_EPHEMERAL_SECRET", !production),
		AccessTokenTTL:    envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 60),
		RefreshTokenTTL:   envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),

		RefreshStore:  strings.ToLower(envOrDefault("REFRESH_TOKEN_STORE", RefreshStorePostgres)),
		RedisAddr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envNonNegativeIntOrDefault("REDIS_DB", 0),

		PasswordHasher: strings.ToLower(envOrDefault("PASSWORD_HASHER", HasherBcrypt)),
		BcryptCost:     envIntOrDefault("BCRYPT_COST", 12),

		RateLimitStandard: envIntOrDefault("RATE_LIMIT_STANDARD", 100),
		RateLimitAuth:     envIntOrDefault("RATE_LIMIT_AUTH", 10),
		RateLimitWindow:   envSecondsOrDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitIdle:     envMinutesOrDefault("RATE_LIMIT_IDLE_MINUTES", 10),

		CloudinaryURL:    strings.TrimSpace(os.Getenv("CLOUDINARY_URL")),
		CloudinaryFolder: envOrDefault("CLOUDINARY_FOLDER", "kuspid-samples"),
		MaxUploadBytes:   int64(envIntOrDefault("MAX_UPLOAD_MB", 10)) << 20,

		CORSAllowedOrigins: corsOrigins(os.Getenv("FRONTEND_URL"), os.Getenv("CORS_ALLOWED_ORIGINS")),

		SentryDSN:        strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		CronSecret:       strings.TrimSpace(os.Getenv("CRON_SECRET")),
		CleanupBatchSize: envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
		AdminUsername:    strings.TrimSpace(os.Getenv("ADMIN_USERNAME")),
		AdminEmail:       strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword:    strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),
	}

	switch cfg.RefreshStore {
	case RefreshStorePostgres, RefreshStoreRedis, RefreshStoreMemory:
	default:
		return Config{}, fmt.Errorf("unsupported REFRESH_TOKEN_STORE: %s", cfg.RefreshStore)
	}

	switch cfg.PasswordHasher {
	case HasherBcrypt, HasherArgon2id:
	default:
		return Config{}, fmt.Errorf("unsupported PASSWORD_HASHER: %s", cfg.PasswordHasher)
	}

	return cfg, nil
}

func (c Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func corsOrigins(frontendURL, extra string) []string {
	origins := []string{
		"http://localhost:3000",
		"http://localhost:4200",
		"http://localhost:5173",
	}
	if frontendURL = strings.TrimSpace(frontendURL); frontendURL != "" {
		origins = append([]string{frontendURL}, origins...)
	}
	for _, origin := range strings.Split(extra, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envNonNegativeIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
