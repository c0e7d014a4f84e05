package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/soaringjerry/surveyhub/internal/utils"
)

type Config struct {
	Addr            string `validate:"required"`
	DBPath          string `validate:"required"`
	MigrationsDir   string
	UploadDir       string `validate:"required"`
	UploadURLPrefix string `validate:"required,startswith=/"`
	MaxUploadBytes  int64  `validate:"gt=0"`
	JWTSecret       string `validate:"required,min=16"`
	LogMode         string `validate:"oneof=dev prod"`
	LogRedaction    bool
	LogHashSalt     string
	RedisAddr       string        `validate:"omitempty,hostname_port"`
	CatalogTTL      time.Duration `validate:"gte=0"`
	CORSOrigins     []string
	TrustedProxies  []string `validate:"dive,ip|cidr"`
	SeedFile        string
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

const devSecret = "surveyhub-dev-secret-change-me"

// Load reads an optional .env file (existing environment wins) and builds a
// validated Config from SURVEY_* variables.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	cfg := &Config{
		Addr:            utils.SafeEnv("SURVEY_ADDR", ":8080"),
		DBPath:          utils.SafeEnv("SURVEY_DB_PATH", "./data/survey.db"),
		MigrationsDir:   os.Getenv("SURVEY_MIGRATIONS_DIR"),
		UploadDir:       utils.SafeEnv("SURVEY_UPLOAD_DIR", "./data/uploads"),
		UploadURLPrefix: strings.TrimRight(utils.SafeEnv("SURVEY_UPLOAD_URL_PREFIX", "/uploads"), "/"),
		MaxUploadBytes:  int64(utils.EnvInt("SURVEY_MAX_UPLOAD_MB", 20)) << 20,
		JWTSecret:       utils.SafeEnv("SURVEY_JWT_SECRET", devSecret),
		LogMode:         strings.ToLower(utils.SafeEnv("SURVEY_LOG_MODE", "dev")),
		LogRedaction:    utils.EnvBool("SURVEY_LOG_REDACTION", true),
		LogHashSalt:     os.Getenv("SURVEY_LOG_HASH_SALT"),
		RedisAddr:       os.Getenv("SURVEY_REDIS_ADDR"),
		CatalogTTL:      utils.EnvDuration("SURVEY_CATALOG_TTL", 5*time.Minute),
		CORSOrigins:     utils.EnvList("SURVEY_CORS_ORIGINS"),
		TrustedProxies:  utils.EnvList("SURVEY_TRUSTED_PROXIES"),
		SeedFile:        os.Getenv("SURVEY_SEED_FILE"),
		ShutdownTimeout: utils.EnvDuration("SURVEY_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if cfg.UploadURLPrefix == "" {
		cfg.UploadURLPrefix = "/uploads"
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// UsesDevSecret reports whether the built-in signing secret is in effect.
func (c *Config) UsesDevSecret() bool {
	return c.JWTSecret == devSecret
}
