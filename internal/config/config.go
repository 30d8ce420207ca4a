package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	LogLevel    string   `mapstructure:"LOG_LEVEL"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	DefaultClinic  string `mapstructure:"DEFAULT_CLINIC"`

	PHIEncryptionKey string `mapstructure:"PHI_ENCRYPTION_KEY"`

	ReassessmentIntervalDays int           `mapstructure:"REASSESSMENT_INTERVAL_DAYS"`
	StageCacheTTL            time.Duration `mapstructure:"STAGE_CACHE_TTL"`
	ReconcileInterval        time.Duration `mapstructure:"RECONCILE_INTERVAL"`

	ClinicName        string `mapstructure:"CLINIC_NAME"`
	ClinicOpen        string `mapstructure:"CLINIC_OPEN"`
	ClinicClose       string `mapstructure:"CLINIC_CLOSE"`
	ClinicSlotMinutes int    `mapstructure:"CLINIC_SLOT_MINUTES"`
	ClinicTimezone    string `mapstructure:"CLINIC_TIMEZONE"`

	SendGridBaseURL   string `mapstructure:"SENDGRID_BASE_URL"`
	SendGridAPIKey    string `mapstructure:"SENDGRID_API_KEY"`
	SendGridFromEmail string `mapstructure:"SENDGRID_FROM_EMAIL"`
	SendGridFromName  string `mapstructure:"SENDGRID_FROM_NAME"`

	FollowUpGeneratorURL string `mapstructure:"FOLLOWUP_GENERATOR_URL"`

	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL", "CORS_ORIGINS",
	"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY", "DEFAULT_CLINIC",
	"PHI_ENCRYPTION_KEY",
	"REASSESSMENT_INTERVAL_DAYS", "STAGE_CACHE_TTL", "RECONCILE_INTERVAL",
	"CLINIC_NAME", "CLINIC_OPEN", "CLINIC_CLOSE", "CLINIC_SLOT_MINUTES", "CLINIC_TIMEZONE",
	"SENDGRID_BASE_URL", "SENDGRID_API_KEY", "SENDGRID_FROM_EMAIL", "SENDGRID_FROM_NAME",
	"FOLLOWUP_GENERATOR_URL",
	"MIGRATIONS_DIR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DEFAULT_CLINIC", "default")
	v.SetDefault("REASSESSMENT_INTERVAL_DAYS", 30)
	v.SetDefault("STAGE_CACHE_TTL", "24h")
	v.SetDefault("RECONCILE_INTERVAL", "1m")
	v.SetDefault("CLINIC_NAME", "Celloxen Clinic")
	v.SetDefault("CLINIC_OPEN", "09:00")
	v.SetDefault("CLINIC_CLOSE", "17:00")
	v.SetDefault("CLINIC_SLOT_MINUTES", 45)
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("SENDGRID_BASE_URL", "https://api.sendgrid.com")
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil || (len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",")) {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// EmailEnabled reports whether outbound mail goes to SendGrid. Without an
// API key messages are only recorded.
func (c *Config) EmailEnabled() bool {
	return c.SendGridAPIKey != "" && c.SendGridFromEmail != ""
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_SIGNING_KEY must be set so tokens are verified. In production,
// PHI_ENCRYPTION_KEY is required and must be a valid 64-character hex
// string (32 bytes when decoded).
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY must be set when ENV is %q", c.Env)
	}
	if c.ReassessmentIntervalDays <= 0 {
		return fmt.Errorf("REASSESSMENT_INTERVAL_DAYS must be positive, got %d", c.ReassessmentIntervalDays)
	}
	if c.StageCacheTTL <= 0 {
		return fmt.Errorf("STAGE_CACHE_TTL must be positive")
	}
	if c.ClinicSlotMinutes <= 0 {
		return fmt.Errorf("CLINIC_SLOT_MINUTES must be positive, got %d", c.ClinicSlotMinutes)
	}
	if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
		return fmt.Errorf("CLINIC_TIMEZONE: %w", err)
	}

	if c.IsProduction() && c.PHIEncryptionKey == "" {
		return fmt.Errorf("PHI_ENCRYPTION_KEY is required in production")
	}
	if c.PHIEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.PHIEncryptionKey)
		if err != nil {
			return fmt.Errorf("PHI_ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("PHI_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}
	return nil
}
