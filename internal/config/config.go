package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	ListenAddr string `env:"APP_LISTEN_ADDR" default:":8080"`
	BaseURL    string `env:"APP_BASE_URL" default:"http://localhost:8080"`

	DBDSN      string `env:"APP_DB_DSN"`
	DBHost     string `env:"APP_DB_HOST"`
	DBPort     string `env:"APP_DB_PORT" default:"5432"`
	DBName     string `env:"APP_DB_NAME"`
	DBUser     string `env:"APP_DB_USER"`
	DBPassword string `env:"APP_DB_PASSWORD"`
	DBSSLMode  string `env:"APP_DB_SSLMODE" default:"disable"`

	OAuthClientID     string `env:"APP_OAUTH_CLIENT_ID"`
	OAuthClientSecret string `env:"APP_OAUTH_CLIENT_SECRET"`
	OAuthIssuerURL    string `env:"APP_OAUTH_ISSUER_URL"`
	OAuthRedirectPath string `env:"APP_OAUTH_REDIRECT_PATH" default:"/auth/callback"`

	SessionSecret string        `env:"APP_SESSION_SECRET"`
	SessionMaxAge time.Duration `env:"APP_SESSION_MAX_AGE" default:"168h"`

	// AdminEmails are treated as admins on every request, in addition to
	// users whose stored role is ADMIN. The role itself is never changed.
	AdminEmails []string `env:"APP_ADMIN_EMAILS"`

	// KeysEncryptionKey seals app keys at rest: 64 hex characters.
	KeysEncryptionKey string `env:"APP_KEYS_ENCRYPTION_KEY"`

	RedisURL           string        `env:"APP_REDIS_URL"`
	RevalidateInterval time.Duration `env:"APP_REVALIDATE_INTERVAL" default:"60s"`

	SMTPAddr     string `env:"APP_SMTP_ADDR"`
	SMTPUsername string `env:"APP_SMTP_USERNAME"`
	SMTPPassword string `env:"APP_SMTP_PASSWORD"`
	SMTPFrom     string `env:"APP_SMTP_FROM" default:"notifications@localhost"`

	LogLevel  string `env:"APP_LOG_LEVEL" default:"info"`
	LogFormat string `env:"APP_LOG_FORMAT" default:"text"`

	PrometheusEnabled bool     `env:"APP_PROMETHEUS_ENDPOINT_ENABLED" default:"false"`
	TrustedProxies    []string `env:"APP_TRUSTED_PROXIES"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, &env.Options{SliceSep: ","}); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if cfg.DBDSN == "" {
		cfg.DBDSN = composeDSN(&cfg)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.TrustedProxies) == 0 {
		slog.Warn("no APP_TRUSTED_PROXIES configured; forwarded headers from any peer will be trusted")
	}

	return &cfg, nil
}

// KeysEncryptionKeyBytes returns the decoded app keys encryption key.
func (c *Config) KeysEncryptionKeyBytes() []byte {
	b, _ := hex.DecodeString(c.KeysEncryptionKey)
	return b
}

func composeDSN(cfg *Config) string {
	if cfg.DBHost == "" || cfg.DBName == "" || cfg.DBUser == "" || cfg.DBPassword == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
}

func validate(cfg *Config) error {
	if cfg.DBDSN == "" {
		return errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if cfg.OAuthClientID == "" || cfg.OAuthClientSecret == "" {
		return errors.New("oauth configuration is required: client id and secret")
	}
	if cfg.OAuthIssuerURL == "" {
		return errors.New("APP_OAUTH_ISSUER_URL is required")
	}
	if cfg.SessionSecret == "" {
		return errors.New("APP_SESSION_SECRET is required")
	}
	if len(cfg.SessionSecret) < 32 {
		return fmt.Errorf("APP_SESSION_SECRET must be at least 32 characters long (got %d)", len(cfg.SessionSecret))
	}

	if cfg.KeysEncryptionKey == "" {
		return errors.New("APP_KEYS_ENCRYPTION_KEY is required")
	}
	keyBytes, err := hex.DecodeString(cfg.KeysEncryptionKey)
	if err != nil {
		return fmt.Errorf("APP_KEYS_ENCRYPTION_KEY must be valid hex: %w", err)
	}
	if len(keyBytes) != 32 {
		return fmt.Errorf("APP_KEYS_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
	}

	if cfg.RevalidateInterval <= 0 {
		return errors.New("APP_REVALIDATE_INTERVAL must be positive")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("APP_LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}
	return nil
}
