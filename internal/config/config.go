package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Contact       ContactConfig       `mapstructure:"contact"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Sync          SyncConfig          `mapstructure:"sync"`
	HomeAssistant HomeAssistantConfig `mapstructure:"home_assistant"`
	MQTT          MQTTConfig          `mapstructure:"mqtt"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ContactConfig holds Contact Energy API credentials
type ContactConfig struct {
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// CacheConfig holds read-cache configuration
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SyncConfig holds sync and backfill configuration
type SyncConfig struct {
	Interval            time.Duration `mapstructure:"interval"`
	WarmupDelay         time.Duration `mapstructure:"warmup_delay"`
	RegularDays         int           `mapstructure:"regular_days"`
	RegularMonths       int           `mapstructure:"regular_months"`
	BackfillMaxDays     int           `mapstructure:"backfill_max_days"`
	EmptyDaysThreshold  int           `mapstructure:"empty_days_threshold"`
	APIDelay            time.Duration `mapstructure:"api_delay"`
	BackfillMonths      int           `mapstructure:"backfill_months"`
	BackfillStartOffset int           `mapstructure:"backfill_start_offset"`
}

// HomeAssistantConfig holds the notification target configuration
type HomeAssistantConfig struct {
	URL               string `mapstructure:"url"`
	Token             string `mapstructure:"token"`
	WebhookID         string `mapstructure:"webhook_id"`
	EntitiesToRefresh string `mapstructure:"entities_to_refresh"`
}

// MQTTConfig holds optional MQTT publishing configuration
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Config file is optional
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration primarily from environment variables
func LoadFromEnv() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Read from .env file if it exists
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// Database defaults
	v.SetDefault("database.path", "./data/wattsync.db")

	// Upstream defaults
	v.SetDefault("contact.min_interval", time.Second)

	// Cache defaults
	v.SetDefault("cache.ttl", 15*time.Minute)

	// Sync defaults. The upstream publishes data 3-4 days late, so the
	// adaptive backfill starts 5 days back by default.
	v.SetDefault("sync.interval", time.Hour)
	v.SetDefault("sync.warmup_delay", 30*time.Second)
	v.SetDefault("sync.regular_days", 7)
	v.SetDefault("sync.regular_months", 2)
	v.SetDefault("sync.backfill_max_days", 730)
	v.SetDefault("sync.empty_days_threshold", 3)
	v.SetDefault("sync.api_delay", 2*time.Second)
	v.SetDefault("sync.backfill_months", 12)
	v.SetDefault("sync.backfill_start_offset", 5)

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.topic_prefix", "wattsync")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	bindEnv := func(key string, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			slog.Warn("failed to bind environment variable",
				slog.String("key", key),
				slog.String("env_var", envVar),
				slog.String("error", err.Error()))
		}
	}

	// Upstream credentials from environment
	bindEnv("contact.username", "CONTACT_USERNAME")
	bindEnv("contact.password", "CONTACT_PASSWORD")
	bindEnv("contact.api_key", "CONTACT_API_KEY")
	bindEnv("contact.base_url", "CONTACT_BASE_URL")

	// Database path
	bindEnv("database.path", "DATABASE_PATH")

	// Server config
	bindEnv("server.host", "SERVER_HOST")
	bindEnv("server.port", "SERVER_PORT")

	// Home Assistant integration
	bindEnv("home_assistant.url", "HA_URL")
	bindEnv("home_assistant.token", "HA_TOKEN")
	bindEnv("home_assistant.webhook_id", "HA_WEBHOOK_ID")
	bindEnv("home_assistant.entities_to_refresh", "HA_ENTITIES_TO_REFRESH")

	// MQTT
	bindEnv("mqtt.enabled", "MQTT_ENABLED")
	bindEnv("mqtt.broker", "MQTT_BROKER")
	bindEnv("mqtt.username", "MQTT_USERNAME")
	bindEnv("mqtt.password", "MQTT_PASSWORD")

	// Logging
	bindEnv("logging.level", "LOG_LEVEL")
	bindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Contact.Username == "" {
		return fmt.Errorf("CONTACT_USERNAME is required")
	}
	if c.Contact.Password == "" {
		return fmt.Errorf("CONTACT_PASSWORD is required")
	}
	if c.Sync.EmptyDaysThreshold < 1 {
		return fmt.Errorf("sync.empty_days_threshold must be at least 1")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("MQTT_BROKER is required when MQTT is enabled")
	}
	return nil
}
