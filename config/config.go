package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Booking      BookingConfig      `yaml:"booking"`
	Auth         AuthConfig         `yaml:"auth"`
	Notification NotificationConfig `yaml:"notification"`
	Reminder     ReminderConfig     `yaml:"reminder"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port                int     `yaml:"port"`
	RateLimitPerSec     float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst      int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds     int     `yaml:"cache_ttl_seconds"`
	ReadTimeoutSeconds  int     `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int     `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSecs int     `yaml:"shutdown_timeout_seconds"`

	// RedisAddr switches the rate limiter to a shared Redis fixed window.
	RedisAddr           string `yaml:"redis_addr"`
	RedisPassword       string `yaml:"redis_password"`
	RedisLimitPerMinute int    `yaml:"redis_limit_per_minute"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// BookingConfig holds settings of the booking rules.
type BookingConfig struct {
	// Timezone in which slot dates and times are interpreted.
	Timezone string         `yaml:"timezone"`
	Location *time.Location `yaml:"-"`
}

// AuthConfig holds the bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// NotificationConfig holds the configuration for the notification worker pool.
type NotificationConfig struct {
	PoolSize            int           `yaml:"pool_size"`
	PollIntervalSeconds int           `yaml:"poll_interval_seconds"`
	PollInterval        time.Duration `yaml:"-"`
	MaxAttempts         int           `yaml:"max_attempts"`
	BackoffSeconds      int           `yaml:"backoff_seconds"`
	LeaseSeconds        int           `yaml:"lease_seconds"`
	SMTP                SMTPConfig    `yaml:"smtp"`
	Push                PushConfig    `yaml:"push"`
}

// SMTPConfig holds the outgoing mail relay. An empty host logs emails instead.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ReminderConfig holds the reminder scan schedule.
type ReminderConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration from the given path. A .env file next to the
// working directory is loaded first so that BOOKING_* overrides can live there.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env file")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"BOOKING_DATABASE_DSN", &cfg.Database.DSN},
		{"BOOKING_JWT_SECRET", &cfg.Auth.JWTSecret},
		{"BOOKING_SMTP_PASSWORD", &cfg.Notification.SMTP.Password},
		{"BOOKING_VAPID_PRIVATE_KEY", &cfg.Notification.Push.PrivateKey},
		{"BOOKING_REDIS_ADDR", &cfg.Server.RedisAddr},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.key); ok {
			*o.dst = v
		}
	}
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}
	if cfg.Server.RedisLimitPerMinute <= 0 {
		cfg.Server.RedisLimitPerMinute = 120
	}
	if cfg.Server.ReadTimeoutSeconds <= 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds <= 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Server.ShutdownTimeoutSecs <= 0 {
		cfg.Server.ShutdownTimeoutSecs = 5
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "":
		cfg.Database.Driver = "postgres"
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes <= 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}

	if cfg.Booking.Timezone == "" {
		cfg.Booking.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Booking.Timezone)
	if err != nil {
		return fmt.Errorf("booking.timezone: %w", err)
	}
	cfg.Booking.Location = loc

	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (or set BOOKING_JWT_SECRET)")
	}

	if cfg.Notification.PoolSize <= 0 {
		log.Info().Msg("notification.pool_size is not set or invalid; defaulting to 1")
		cfg.Notification.PoolSize = 1
	}
	if cfg.Notification.PollIntervalSeconds <= 0 {
		cfg.Notification.PollIntervalSeconds = 10
	}
	cfg.Notification.PollInterval = time.Duration(cfg.Notification.PollIntervalSeconds) * time.Second
	if cfg.Notification.MaxAttempts <= 0 {
		cfg.Notification.MaxAttempts = 5
	}
	if cfg.Notification.BackoffSeconds <= 0 {
		cfg.Notification.BackoffSeconds = 30
	}
	if cfg.Notification.LeaseSeconds <= 0 {
		cfg.Notification.LeaseSeconds = 60
	}
	if cfg.Notification.SMTP.Port <= 0 {
		cfg.Notification.SMTP.Port = 25
	}
	if cfg.Notification.SMTP.From == "" {
		cfg.Notification.SMTP.From = "no-reply@careers.local"
	}
	if cfg.Notification.Push.TTL <= 0 {
		cfg.Notification.Push.TTL = 3600
	}

	if cfg.Reminder.Schedule == "" {
		cfg.Reminder.Schedule = "*/5 * * * *"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	return nil
}
