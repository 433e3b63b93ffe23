// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Port           string        `env:"MEMOS_PORT" env-default:"8000"`
	DBPath         string        `env:"MEMOS_DB_PATH" env-default:"memos.db"`
	LogLevel       string        `env:"MEMOS_LOG_LEVEL" env-default:"info"`
	LogPretty      bool          `env:"MEMOS_LOG_PRETTY" env-default:"false"`
	SessionTTL     time.Duration `env:"MEMOS_SESSION_TTL" env-default:"168h"`
	CookieSecure   bool          `env:"MEMOS_COOKIE_SECURE" env-default:"false"`
	AllowedOrigin  string        `env:"MEMOS_ALLOWED_ORIGIN" env-default:"http://localhost:5173"`
	LoginRateLimit int           `env:"MEMOS_LOGIN_RATE_LIMIT" env-default:"10"`

	// Backups stay off until a bucket, credentials and passphrase are set.
	BackupEndpoint   string        `env:"MEMOS_BACKUP_ENDPOINT"`
	BackupBucket     string        `env:"MEMOS_BACKUP_BUCKET"`
	BackupRegion     string        `env:"MEMOS_BACKUP_REGION" env-default:"us-east-1"`
	BackupAccessKey  string        `env:"MEMOS_BACKUP_ACCESS_KEY"`
	BackupSecretKey  string        `env:"MEMOS_BACKUP_SECRET_KEY"`
	BackupPassphrase string        `env:"MEMOS_BACKUP_PASSPHRASE"`
	BackupInterval   time.Duration `env:"MEMOS_BACKUP_INTERVAL" env-default:"24h"`
	BackupRetention  time.Duration `env:"MEMOS_BACKUP_RETENTION" env-default:"720h"`
}

type ClientConfig struct {
	APIURL string `env:"MEMOS_API_URL" env-default:"http://localhost:8000/api"`
}

// Load reads a .env file when present, then the MEMOS_* environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func LoadClient() (ClientConfig, error) {
	_ = godotenv.Load()

	var cfg ClientConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("parse client config: %w", err)
	}
	return cfg, nil
}
