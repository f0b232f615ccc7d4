// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

// PolicyConfig is the cancellation policy used when neither the resource nor
// its unit defines one.
type PolicyConfig struct {
	MinNoticeHours    int64  `yaml:"min_notice_hours"`
	BlockInsideWindow bool   `yaml:"block_inside_window"`
	FeeCents          int64  `yaml:"fee_cents"`
	FeePercent        *int64 `yaml:"fee_percent,omitempty"`
}

type BookingConfig struct {
	SlotMinutes       int          `yaml:"slot_minutes"`
	MaxOccurrences    int          `yaml:"max_occurrences"`
	RecurrenceWorkers int          `yaml:"recurrence_workers"`
	ReminderHours     int          `yaml:"reminder_hours"`
	LifecycleCron     string       `yaml:"lifecycle_cron"`
	ReminderCron      string       `yaml:"reminder_cron"`
	DefaultPolicy     PolicyConfig `yaml:"default_policy"`
}

type NotificationsConfig struct {
	Region          string `yaml:"region"`
	Sender          string `yaml:"sender"`
	AccessKeyID     string `yaml:"-"` // Loaded from environment
	SecretAccessKey string `yaml:"-"` // Loaded from environment
}

type PaymentsConfig struct {
	QueueURL string `yaml:"queue_url"`
	Region   string `yaml:"region"`
}

type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
	Password  string        `yaml:"-"` // Loaded from environment
}

// RateLimitConfig throttles booking writes. Zero limits disable a layer.
type RateLimitConfig struct {
	Window     time.Duration `yaml:"window"`
	MaxPerUser int           `yaml:"max_per_user"`
	MaxPerIP   int           `yaml:"max_per_ip"`
	TrustProxy bool          `yaml:"trust_proxy"`
}

type Config struct {
	App struct {
		Name            string        `yaml:"name"`
		Environment     string        `yaml:"environment"`
		Port            int           `yaml:"port"`
		BaseURL         string        `yaml:"base_url"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`

	Booking BookingConfig `yaml:"booking"`

	Notifications NotificationsConfig `yaml:"notifications"`

	Payments PaymentsConfig `yaml:"payments"`

	Cache CacheConfig `yaml:"cache"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`

	Features struct {
		EnableMetrics   bool `yaml:"enable_metrics"`
		EnableScheduler bool `yaml:"enable_scheduler"`
		EnableDebug     bool `yaml:"enable_debug"`
	} `yaml:"features"`
}

// Defaults returns a configuration with every optional value filled in.
// The default cancellation policy allows free cancellation up to 4 hours
// before start and charges 10.00 inside that window.
func Defaults() Config {
	var cfg Config
	cfg.App.Environment = "development"
	cfg.App.ShutdownTimeout = 30 * time.Second
	cfg.Database.Driver = "sqlite"
	cfg.Booking = BookingConfig{
		SlotMinutes:       60,
		MaxOccurrences:    365,
		RecurrenceWorkers: 4,
		ReminderHours:     24,
		LifecycleCron:     "*/5 * * * *",
		ReminderCron:      "0 * * * *",
		DefaultPolicy: PolicyConfig{
			MinNoticeHours: 4,
			FeeCents:       1000,
		},
	}
	cfg.Cache.TTL = 10 * time.Minute
	cfg.RateLimit = RateLimitConfig{Window: time.Minute, MaxPerUser: 30, MaxPerIP: 120}
	cfg.Features.EnableScheduler = true
	return cfg
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over Defaults, pulls secrets from the environment and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Load sensitive values from environment
	cfg.Notifications.AccessKeyID = os.Getenv("AWS_SES_ACCESS_KEY_ID")
	cfg.Notifications.SecretAccessKey = os.Getenv("AWS_SES_SECRET_ACCESS_KEY")
	cfg.Cache.Password = os.Getenv("REDIS_PASSWORD")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if err := c.Booking.validate(); err != nil {
		return fmt.Errorf("booking: %w", err)
	}
	if c.Notifications.Sender != "" && c.Notifications.Region == "" {
		return fmt.Errorf("notifications region is required when a sender is configured")
	}
	if c.Payments.QueueURL != "" && c.Payments.Region == "" {
		return fmt.Errorf("payments region is required when a queue is configured")
	}
	if c.RateLimit.MaxPerUser < 0 || c.RateLimit.MaxPerIP < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.Cache.RedisAddr != "" && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}

	return nil
}

func (b BookingConfig) validate() error {
	if b.SlotMinutes <= 0 {
		return fmt.Errorf("slot_minutes must be positive")
	}
	if b.MaxOccurrences <= 0 {
		return fmt.Errorf("max_occurrences must be positive")
	}
	if b.RecurrenceWorkers <= 0 {
		return fmt.Errorf("recurrence_workers must be positive")
	}
	if b.ReminderHours < 0 {
		return fmt.Errorf("reminder_hours must not be negative")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, expr := range map[string]string{"lifecycle_cron": b.LifecycleCron, "reminder_cron": b.ReminderCron} {
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("%s %q: %w", name, expr, err)
		}
	}
	p := b.DefaultPolicy
	if p.MinNoticeHours < 0 || p.FeeCents < 0 {
		return fmt.Errorf("default_policy values must not be negative")
	}
	if p.FeePercent != nil && (*p.FeePercent < 0 || *p.FeePercent > 100) {
		return fmt.Errorf("default_policy fee_percent must be between 0 and 100")
	}
	if p.BlockInsideWindow && p.MinNoticeHours == 0 {
		return fmt.Errorf("default_policy blocks inside an empty window")
	}
	return nil
}
