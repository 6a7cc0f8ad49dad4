package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	AIBaseURL        string `mapstructure:"AI_BASE_URL"`
	AIAPIKey         string `mapstructure:"AI_API_KEY"`
	AIModel          string `mapstructure:"AI_MODEL"`
	AITimeoutSeconds int    `mapstructure:"AI_TIMEOUT_SECONDS"`

	TriageMaxRetries        int `mapstructure:"TRIAGE_MAX_RETRIES"`
	TriageRetryDelaySeconds int `mapstructure:"TRIAGE_RETRY_DELAY_SECONDS"`

	EscalationMinutes    int `mapstructure:"ESCALATION_MINUTES"`
	SweepIntervalSeconds int `mapstructure:"SWEEP_INTERVAL_SECONDS"`

	SlackEnabled    bool   `mapstructure:"SLACK_ENABLED"`
	SlackWebhookURL string `mapstructure:"SLACK_WEBHOOK_URL"`
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
	v.SetDefault("AI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("AI_TIMEOUT_SECONDS", 30)
	v.SetDefault("TRIAGE_MAX_RETRIES", 3)
	v.SetDefault("TRIAGE_RETRY_DELAY_SECONDS", 5)
	v.SetDefault("ESCALATION_MINUTES", 2)
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 60)
	v.SetDefault("SLACK_ENABLED", false)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("AI_BASE_URL")
	v.BindEnv("AI_API_KEY")
	v.BindEnv("AI_MODEL")
	v.BindEnv("AI_TIMEOUT_SECONDS")
	v.BindEnv("TRIAGE_MAX_RETRIES")
	v.BindEnv("TRIAGE_RETRY_DELAY_SECONDS")
	v.BindEnv("ESCALATION_MINUTES")
	v.BindEnv("SWEEP_INTERVAL_SECONDS")
	v.BindEnv("SLACK_ENABLED")
	v.BindEnv("SLACK_WEBHOOK_URL")

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

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AITimeout returns the hard deadline applied to each AI provider call.
func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AITimeoutSeconds) * time.Second
}

// TriageRetryDelay returns the base delay for triage retry backoff.
func (c *Config) TriageRetryDelay() time.Duration {
	return time.Duration(c.TriageRetryDelaySeconds) * time.Second
}

// EscalationThreshold returns how long an emergency referral may stay
// unacknowledged before the sweeper escalates it.
func (c *Config) EscalationThreshold() time.Duration {
	return time.Duration(c.EscalationMinutes) * time.Minute
}

// SweepInterval returns how often the escalation sweeper runs.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// Validate checks that the configuration is safe to run. In production the
// staff token secret must be set so JWT authentication is enforced, and an AI
// API key is required because triage cannot reach a provider without one.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.IsProduction() && c.AIAPIKey == "" {
		return fmt.Errorf("AI_API_KEY is required in production")
	}
	if c.TriageMaxRetries < 0 {
		return fmt.Errorf("TRIAGE_MAX_RETRIES must be >= 0, got %d", c.TriageMaxRetries)
	}
	if c.TriageRetryDelaySeconds <= 0 {
		return fmt.Errorf("TRIAGE_RETRY_DELAY_SECONDS must be > 0, got %d", c.TriageRetryDelaySeconds)
	}
	if c.EscalationMinutes <= 0 {
		return fmt.Errorf("ESCALATION_MINUTES must be > 0, got %d", c.EscalationMinutes)
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be > 0, got %d", c.SweepIntervalSeconds)
	}
	if c.SlackEnabled && c.SlackWebhookURL == "" {
		return fmt.Errorf("SLACK_WEBHOOK_URL is required when SLACK_ENABLED is true")
	}
	return nil
}
