// Package config defines the application's root configuration, loaded via
// Viper from file and environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	AddSource   bool   `mapstructure:"add_source"`
	ServiceName string `mapstructure:"service_name"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

// PostgresConfig holds settings for the database connection.
type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig holds settings for the relay slot backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BrowserConfig holds settings for the headless browser process.
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless"`
	NoSandbox     bool   `mapstructure:"no_sandbox"`
	DisableDevShm bool   `mapstructure:"disable_dev_shm"`
	ExecPath      string `mapstructure:"exec_path"`
}

// HarvestConfig holds settings for the scraping session itself.
type HarvestConfig struct {
	// BaseURL is the registry portal entry point.
	BaseURL string `mapstructure:"base_url"`
	// MaxAttempts bounds each CAPTCHA checkpoint's retry loop.
	MaxAttempts int `mapstructure:"max_attempts"`
	// WaitTimeout bounds every element wait.
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	// SettleDelay is the short pause allowed after scrolls and clicks.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// CaptchaWait bounds how long a run waits for a human-supplied answer.
	CaptchaWait time.Duration `mapstructure:"captcha_wait"`
	// PollInterval is the relay slot polling cadence.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// RelayTTL is how long a submitted CAPTCHA value stays valid.
	RelayTTL time.Duration `mapstructure:"relay_ttl"`
}

// ServerConfig holds settings for the operator-facing HTTP surface.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers default values so the app can run with a minimal
// config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "deedharvest")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("redis.addr", "127.0.0.1:6379")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.disable_dev_shm", true)

	v.SetDefault("harvest.base_url", "https://sampada.mpigr.gov.in")
	v.SetDefault("harvest.max_attempts", 10)
	v.SetDefault("harvest.wait_timeout", 30*time.Second)
	v.SetDefault("harvest.settle_delay", 500*time.Millisecond)
	v.SetDefault("harvest.captcha_wait", 180*time.Second)
	v.SetDefault("harvest.poll_interval", time.Second)
	v.SetDefault("harvest.relay_ttl", 5*time.Minute)

	v.SetDefault("server.addr", ":8080")
}

// Load unmarshals the configuration from the given Viper instance and
// validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// mid-run failures.
func (c *Config) Validate() error {
	if c.Harvest.BaseURL == "" {
		return fmt.Errorf("harvest.base_url must not be empty")
	}
	if c.Harvest.MaxAttempts <= 0 {
		return fmt.Errorf("harvest.max_attempts must be positive, got %d", c.Harvest.MaxAttempts)
	}
	if c.Harvest.WaitTimeout <= 0 {
		return fmt.Errorf("harvest.wait_timeout must be positive, got %s", c.Harvest.WaitTimeout)
	}
	if c.Harvest.PollInterval <= 0 {
		return fmt.Errorf("harvest.poll_interval must be positive, got %s", c.Harvest.PollInterval)
	}
	if c.Harvest.CaptchaWait < c.Harvest.PollInterval {
		return fmt.Errorf("harvest.captcha_wait (%s) must be at least harvest.poll_interval (%s)",
			c.Harvest.CaptchaWait, c.Harvest.PollInterval)
	}
	if c.Harvest.RelayTTL <= 0 {
		return fmt.Errorf("harvest.relay_ttl must be positive, got %s", c.Harvest.RelayTTL)
	}
	return nil
}
