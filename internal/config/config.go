package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string   `mapstructure:"PORT"`
	Env             string   `mapstructure:"ENV"`
	DatabaseURL     string   `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins     []string `mapstructure:"CORS_ORIGINS"`
	JWTSigningKey   string   `mapstructure:"JWT_SIGNING_KEY"`
	NPHIESBaseURL   string   `mapstructure:"NPHIES_BASE_URL"`
	NPHIESLicenseID string   `mapstructure:"NPHIES_LICENSE_ID"`
	ProviderID      string   `mapstructure:"PROVIDER_ID"`
	PayerID         string   `mapstructure:"PAYER_ID"`
	HTTPTimeoutSec  int      `mapstructure:"HTTP_TIMEOUT_SEC"`
	PollRetryMillis int      `mapstructure:"POLL_RETRY_MS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("HTTP_TIMEOUT_SEC", 30)
	v.SetDefault("POLL_RETRY_MS", 3000)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SIGNING_KEY")
	v.BindEnv("NPHIES_BASE_URL")
	v.BindEnv("NPHIES_LICENSE_ID")
	v.BindEnv("PROVIDER_ID")
	v.BindEnv("PAYER_ID")
	v.BindEnv("HTTP_TIMEOUT_SEC")
	v.BindEnv("POLL_RETRY_MS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.NPHIESBaseURL == "" {
		return nil, fmt.Errorf("NPHIES_BASE_URL is required")
	}
	if !cfg.IsDev() && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("JWT_SIGNING_KEY is required outside development")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// HTTPTimeout returns the exchange client timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// PollRetryDelay is the deferred re-poll interval used by the scheduler after
// an acknowledgment arrives without a final ClaimResponse.
func (c *Config) PollRetryDelay() time.Duration {
	return time.Duration(c.PollRetryMillis) * time.Millisecond
}
