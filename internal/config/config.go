package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	AppEnv      string
	Port        string
	SentryDSN   string
	DatabaseURL string
	JWTSecret   string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	DB     DBConfig
	Hasher HasherConfig

	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration

	RunMigrations bool

	SeedUsername string
	SeedPassword string
}

type DBConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type HasherConfig struct {
	Workers    int
	QueueDepth int
	Cost       int
}

// Load reads the process environment once. When loadDotEnv is set a local
// .env file is merged first; a missing file is not an error.
func Load(loadDotEnv bool, runMigrationsDefault bool) (Config, error) {
	if loadDotEnv {
		_ = godotenv.Load()
	}

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:          envOrDefault("APP_ENV", "development"),
		Port:            envOrDefault("PORT", "8080"),
		SentryDSN:       strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		DatabaseURL:     databaseURL,
		JWTSecret:       jwtSecret,
		AccessTokenTTL:  envSecondsOrDefault("ACCESS_TOKEN_TTL_SECONDS", 900),
		RefreshTokenTTL: envSecondsOrDefault("REFRESH_TOKEN_TTL_SECONDS", 86400),
		DB: DBConfig{
			MaxOpenConns:    envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
			ConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
		},
		Hasher: HasherConfig{
			Workers:    envIntOrDefault("HASHER_WORKERS", runtime.NumCPU()),
			QueueDepth: envIntOrDefault("HASHER_QUEUE_DEPTH", 64),
			Cost:       envIntOrDefault("BCRYPT_COST", bcrypt.DefaultCost),
		},
		LoginRateLimitMax:    envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		LoginRateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
		RunMigrations:        EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", runMigrationsDefault),
		SeedUsername:         strings.TrimSpace(os.Getenv("SEED_USERNAME")),
		SeedPassword:         strings.TrimSpace(os.Getenv("SEED_PASSWORD")),
	}

	if (cfg.SeedUsername == "") != (cfg.SeedPassword == "") {
		return Config{}, fmt.Errorf("SEED_USERNAME and SEED_PASSWORD are required together")
	}

	return cfg, nil
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

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
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
