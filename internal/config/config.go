package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	SMTP         SMTPConfig         `yaml:"smtp"`
	SendGrid     SendGridConfig     `yaml:"sendgrid"`
	Email        EmailConfig        `yaml:"email"`
	Log          LogConfig          `yaml:"log"`
	LateFee      LateFeeConfig      `yaml:"late_fee"`
	Reminder     ReminderConfig     `yaml:"reminder"`
	Notification NotificationConfig `yaml:"notification"`
	Jobs         JobsConfig         `yaml:"jobs"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
}

// ServerConfig contains the metrics and health listener settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// SMTPConfig contains email service settings
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// SendGridConfig contains SendGrid API settings
type SendGridConfig struct {
	APIKey string `yaml:"api_key"`
}

// EmailConfig selects the outbound email provider
type EmailConfig struct {
	Provider      string  `yaml:"provider"` // "smtp", "sendgrid" or "log"
	From          string  `yaml:"from"`
	FromName      string  `yaml:"from_name"`
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// LateFeeConfig is the late fee policy
type LateFeeConfig struct {
	DailyRateCents int64 `yaml:"daily_rate_cents"`
	GraceDays      int   `yaml:"grace_days"`
	MaxFeeCents    int64 `yaml:"max_fee_cents"` // 0 means uncapped
	MaxRetries     int   `yaml:"max_retries"`
}

// ReminderConfig contains rental reminder settings
type ReminderConfig struct {
	DefaultOffsets []int `yaml:"default_offsets"`
	LookaheadDays  int   `yaml:"lookahead_days"`
}

// NotificationConfig contains queued notification settings
type NotificationConfig struct {
	LookbackMinutes int `yaml:"lookback_minutes"`
	RetentionDays   int `yaml:"retention_days"`
}

// JobsConfig contains job execution settings
type JobsConfig struct {
	Workers int `yaml:"workers"`
}

// SchedulerConfig contains cron schedule settings (with seconds field)
type SchedulerConfig struct {
	ReminderScan      string `yaml:"reminder_scan"`
	LateFeeScan       string `yaml:"late_fee_scan"`
	CleanupSweep      string `yaml:"cleanup_sweep"`
	ScheduledDispatch string `yaml:"scheduled_dispatch"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// SMTP
	if val := os.Getenv("SMTP_HOST"); val != "" {
		c.SMTP.Host = val
	}
	if val := os.Getenv("SMTP_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.SMTP.Port)
	}
	if val := os.Getenv("SMTP_USER"); val != "" {
		c.SMTP.User = val
	}
	if val := os.Getenv("SMTP_PASSWORD"); val != "" {
		c.SMTP.Password = val
	}

	// Email
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.SendGrid.APIKey = val
	}
	if val := os.Getenv("EMAIL_PROVIDER"); val != "" {
		c.Email.Provider = val
	}
	if val := os.Getenv("EMAIL_FROM"); val != "" {
		c.Email.From = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Late fee
	if val := os.Getenv("LATE_FEE_DAILY_RATE_CENTS"); val != "" {
		fmt.Sscanf(val, "%d", &c.LateFee.DailyRateCents)
	}

	// Reminder offsets, comma separated ("3,1")
	if val := os.Getenv("REMINDER_DEFAULT_OFFSETS"); val != "" {
		var offsets []int
		for _, part := range strings.Split(val, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err == nil {
				offsets = append(offsets, n)
			}
		}
		if len(offsets) > 0 {
			c.Reminder.DefaultOffsets = offsets
		}
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port == 0 {
		c.Server.Port = 9090
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	// Email validation
	if c.Email.Provider == "" {
		c.Email.Provider = "smtp"
	}
	switch c.Email.Provider {
	case "smtp":
		if c.SMTP.Host == "" {
			return fmt.Errorf("SMTP host is required")
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return fmt.Errorf("invalid SMTP port: %d", c.SMTP.Port)
		}
	case "sendgrid":
		if c.SendGrid.APIKey == "" {
			return fmt.Errorf("SendGrid API key is required")
		}
	case "log":
	default:
		return fmt.Errorf("unknown email provider: %q", c.Email.Provider)
	}
	if c.Email.From == "" {
		return fmt.Errorf("email from address is required")
	}
	if c.Email.RatePerSecond <= 0 {
		c.Email.RatePerSecond = 10
	}

	// Late fee defaults
	if c.LateFee.DailyRateCents < 0 {
		return fmt.Errorf("late fee daily rate must not be negative: %d", c.LateFee.DailyRateCents)
	}
	if c.LateFee.DailyRateCents == 0 {
		c.LateFee.DailyRateCents = 500 // Default $5.00 per day
	}
	if c.LateFee.GraceDays < 0 {
		return fmt.Errorf("late fee grace days must not be negative: %d", c.LateFee.GraceDays)
	}
	if c.LateFee.MaxRetries <= 0 {
		c.LateFee.MaxRetries = 3
	}

	// Reminder defaults
	if len(c.Reminder.DefaultOffsets) == 0 {
		c.Reminder.DefaultOffsets = []int{3, 1}
	}
	for _, off := range c.Reminder.DefaultOffsets {
		if off < 0 {
			return fmt.Errorf("reminder offsets must not be negative: %d", off)
		}
	}
	if c.Reminder.LookaheadDays <= 0 {
		c.Reminder.LookaheadDays = 1
	}

	// Notification defaults
	if c.Notification.LookbackMinutes <= 0 {
		c.Notification.LookbackMinutes = 60
	}
	if c.Notification.RetentionDays <= 0 {
		c.Notification.RetentionDays = 90
	}

	if c.Jobs.Workers <= 0 {
		c.Jobs.Workers = 4
	}

	// Scheduler defaults
	if c.Scheduler.ReminderScan == "" {
		c.Scheduler.ReminderScan = "0 */5 * * * *" // Every 5 minutes
	}
	if c.Scheduler.LateFeeScan == "" {
		c.Scheduler.LateFeeScan = "0 0 1 * * *" // 1 AM UTC
	}
	if c.Scheduler.CleanupSweep == "" {
		c.Scheduler.CleanupSweep = "0 0 3 * * *" // 3 AM UTC
	}
	if c.Scheduler.ScheduledDispatch == "" {
		c.Scheduler.ScheduledDispatch = "0 */5 * * * *" // Every 5 minutes
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the metrics listener address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// NotificationLookback returns the scheduled dispatch lookback window
func (c *Config) NotificationLookback() time.Duration {
	return time.Duration(c.Notification.LookbackMinutes) * time.Minute
}
