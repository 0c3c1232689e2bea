package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/api/utils"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type EnvConfig struct {
	Port        string `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"colourstream"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"password"`
	DBName     string `envconfig:"DB_NAME" default:"colourstream"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT" required:"true"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY" required:"true"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY" required:"true"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"colourstream-uploads"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3UseSSL    bool   `envconfig:"S3_USE_SSL" default:"false"`

	ValkeyAddr     string `envconfig:"VALKEY_ADDR"` // empty = in-memory state
	ValkeyPassword string `envconfig:"VALKEY_PASSWORD"`
	ValkeyDB       int    `envconfig:"VALKEY_DB" default:"0"`

	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"` // empty = chat channel disabled
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID"`

	// MultipartThresholdBytes is the declared size above which the params
	// endpoint hands out a multipart session instead of a single PUT URL.
	MultipartThresholdBytes int64 `envconfig:"MULTIPART_THRESHOLD_BYTES" default:"104857600"`

	// ProgressMinIntervalSeconds / ProgressMinPercentDelta tune the
	// notification throttle.
	ProgressMinIntervalSeconds int     `envconfig:"PROGRESS_MIN_INTERVAL_SECONDS" default:"3"`
	ProgressMinPercentDelta    float64 `envconfig:"PROGRESS_MIN_PERCENT_DELTA" default:"5"`

	// ProgressGraceSeconds is how long completed per-upload state (and the
	// chat message anchor) survives before disposal.
	ProgressGraceSeconds int `envconfig:"PROGRESS_GRACE_SECONDS" default:"30"`

	// SessionIdleReapMinutes is the inactivity threshold the reaper uses
	// to abort abandoned sessions. 0 disables the in-process reaper.
	SessionIdleReapMinutes int `envconfig:"SESSION_IDLE_REAP_MINUTES" default:"360"`

	// StorageRetryAttempts bounds retries of transient storage failures.
	StorageRetryAttempts int `envconfig:"STORAGE_RETRY_ATTEMPTS" default:"3"`
}

func ValidateEnv() (*EnvConfig, error) {
	if utils.IsDev() {
		if err := godotenv.Load(); err != nil {
			log.Println("ℹ No .env file found")
		} else {
			log.Println("✓ Loaded .env file")
		}
	}

	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var errors []string

	if cfg.MultipartThresholdBytes <= 0 {
		errors = append(errors, "  ❌ MULTIPART_THRESHOLD_BYTES must be positive")
	}

	if (cfg.TelegramBotToken != "") != (cfg.TelegramChatID != "") {
		errors = append(errors, "  ❌ TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	if cfg.StorageRetryAttempts < 1 {
		errors = append(errors, "  ❌ STORAGE_RETRY_ATTEMPTS must be at least 1")
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return &cfg, nil
}

func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func (c *EnvConfig) Print(fmtr func(string, ...interface{})) {
	fmtr("📋 Configuration:\n")
	fmtr("  Environment: %s\n", c.Environment)
	fmtr("  Port: %s\n", c.Port)
	fmtr("  Database: %s@%s:%d/%s (sslmode=%s)\n", c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
	fmtr("  S3: %s bucket=%s region=%s (ssl=%v)\n", c.S3Endpoint, c.S3Bucket, c.S3Region, c.S3UseSSL)
	fmtr("  S3 Access Key: %s\n", MaskSecret(c.S3AccessKey))
	fmtr("  Multipart threshold: %d bytes\n", c.MultipartThresholdBytes)

	if c.ValkeyAddr != "" {
		fmtr("  Valkey: %s (db=%d)\n", c.ValkeyAddr, c.ValkeyDB)
	} else {
		fmtr("  Valkey: ✗ Disabled (in-memory state)\n")
	}

	if c.TelegramBotToken != "" {
		fmtr("  Telegram: ✓ Enabled (token: %s)\n", MaskSecret(c.TelegramBotToken))
	} else {
		fmtr("  Telegram: ✗ Disabled\n")
	}
}
