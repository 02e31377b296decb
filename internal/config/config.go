// Package config loads relay settings from .env, an optional YAML file and the
// process environment, in that order of precedence (environment wins).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// SessionTTL is how long a login session stays valid.
	SessionTTL = 30 * 24 * time.Hour

	defaultGoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultGoogleTokenURL    = "https://oauth2.googleapis.com/token"
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	defaultScriptMetricsURL  = "https://script.googleapis.com"
)

// Config contains runtime configuration values.
type Config struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	DatabaseDriver string `yaml:"database_driver"`
	DatabaseDSN    string `yaml:"database_dsn"`

	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	OAuthRedirectURL   string `yaml:"oauth_redirect_url"`
	FrontendOrigin     string `yaml:"frontend_origin"`

	GoogleAuthURL        string `yaml:"google_auth_url"`
	GoogleTokenURL       string `yaml:"google_token_url"`
	GoogleUserInfoURL    string `yaml:"google_userinfo_url"`
	ScriptMetricsBaseURL string `yaml:"script_metrics_base_url"`

	SweepSchedule string `yaml:"sweep_schedule"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	RateLimitRPM int    `yaml:"rate_limit_rpm"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`

	OutboundTimeout time.Duration `yaml:"outbound_timeout"`
	SessionTTL      time.Duration `yaml:"-"`
}

// Load reads configuration with sane defaults and validates it.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path := strings.TrimSpace(os.Getenv("RELAY_CONFIG_FILE")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Host, "HOST")
	setString(&cfg.Port, "PORT")
	setString(&cfg.DatabaseDriver, "DATABASE_DRIVER")
	setString(&cfg.DatabaseDSN, "DATABASE_DSN")
	setString(&cfg.GoogleClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&cfg.OAuthRedirectURL, "OAUTH_REDIRECT_URL")
	setString(&cfg.FrontendOrigin, "FRONTEND_ORIGIN")
	setString(&cfg.GoogleAuthURL, "GOOGLE_AUTH_URL")
	setString(&cfg.GoogleTokenURL, "GOOGLE_TOKEN_URL")
	setString(&cfg.GoogleUserInfoURL, "GOOGLE_USERINFO_URL")
	setString(&cfg.ScriptMetricsBaseURL, "SCRIPT_METRICS_BASE_URL")
	setString(&cfg.SweepSchedule, "SWEEP_SCHEDULE")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.RedisDB, "REDIS_DB")
	setInt(&cfg.RateLimitRPM, "RATE_LIMIT_RPM")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	setDuration(&cfg.OutboundTimeout, "OUTBOUND_TIMEOUT")
	setDuration(&cfg.SessionTTL, "SESSION_TTL")
}

func (c *Config) applyDefaults() {
	defaultString(&c.Host, "127.0.0.1")
	defaultString(&c.Port, "8080")
	defaultString(&c.DatabaseDriver, DriverSQLite)
	defaultString(&c.DatabaseDSN, "relay.db")
	defaultString(&c.GoogleAuthURL, defaultGoogleAuthURL)
	defaultString(&c.GoogleTokenURL, defaultGoogleTokenURL)
	defaultString(&c.GoogleUserInfoURL, defaultGoogleUserInfoURL)
	defaultString(&c.ScriptMetricsBaseURL, defaultScriptMetricsURL)
	defaultString(&c.SweepSchedule, "@every 1h")
	defaultString(&c.LogLevel, "info")
	defaultString(&c.LogFormat, "json")
	if _, ok := os.LookupEnv("RATE_LIMIT_RPM"); !ok && c.RateLimitRPM == 0 {
		c.RateLimitRPM = 600
	}
	if c.OutboundTimeout <= 0 {
		c.OutboundTimeout = 30 * time.Second
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = SessionTTL
	}
	c.DatabaseDriver = strings.ToLower(c.DatabaseDriver)
	c.FrontendOrigin = strings.TrimRight(c.FrontendOrigin, "/")
}

// Validate reports the first missing or malformed setting.
func (c Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{"GOOGLE_CLIENT_ID", c.GoogleClientID},
		{"GOOGLE_CLIENT_SECRET", c.GoogleClientSecret},
		{"OAUTH_REDIRECT_URL", c.OAuthRedirectURL},
		{"FRONTEND_ORIGIN", c.FrontendOrigin},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DatabaseDriver)
	}
	if c.RateLimitRPM < 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must not be negative")
	}
	return nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}

func defaultString(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}
