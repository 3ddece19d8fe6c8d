package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is loaded once at startup and treated as read-only afterwards.
type Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKey       string `yaml:"access_key"`
	SecretKey       string `yaml:"secret_key"`
	BucketName      string `yaml:"bucket_name"`   // base bucket; enables folder mode when set
	CustomDomain    string `yaml:"custom_domain"` // host used for unsigned public URLs
	PathStyleAccess bool   `yaml:"path_style_access"`

	// Prefix (or folder name) -> retention days.
	ExpiringPrefixes map[string]int `yaml:"expiring_prefixes"`
	ExpiringBuckets  map[string]int `yaml:"expiring_buckets"` // older spelling, merged into ExpiringPrefixes

	Logging       LoggingConfig       `yaml:"logging"`
	Server        ServerConfig        `yaml:"server"`
	Lifecycle     LifecycleConfig     `yaml:"lifecycle"`
	Notifications NotificationsConfig `yaml:"notifications"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Inventory     InventoryConfig     `yaml:"inventory"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type ServerConfig struct {
	Address             string `yaml:"address"`
	Port                int    `yaml:"port"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
}

type LifecycleConfig struct {
	ReconcileIntervalSecs int `yaml:"reconcile_interval_secs"` // 0 disables periodic reconcile
}

type InventoryConfig struct {
	Containers   []string `yaml:"containers"`
	Dest         string   `yaml:"dest"` // defaults to the reported container
	IntervalSecs int      `yaml:"interval_secs"`
}

// RateLimitConfig throttles backend calls. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	Burst          int     `yaml:"burst"`
	Reject         bool    `yaml:"reject"` // fail fast instead of waiting
}

type NotificationsConfig struct {
	NATS  NATSConfig  `yaml:"nats"`
	Kafka KafkaConfig `yaml:"kafka"`
	Redis RedisConfig `yaml:"redis"`
	File  FileConfig  `yaml:"file"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	Topic          string   `yaml:"topic"`
	Sync           bool     `yaml:"sync"` // wait for broker acks in Publish
	BatchSize      int      `yaml:"batch_size"`
	BatchTimeoutMS int      `yaml:"batch_timeout_ms"`
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
	ListKey string `yaml:"list_key"`
}

// FileConfig appends events to a local JSON-lines file.
type FileConfig struct {
	Path string `yaml:"path"`
}

func defaults() *Config {
	return &Config{
		Region:          "us-east-1",
		PathStyleAccess: true,
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Address:             "0.0.0.0",
			Port:                9100,
			ShutdownTimeoutSecs: 30,
		},
		Lifecycle: LifecycleConfig{
			ReconcileIntervalSecs: 3600,
		},
		Inventory: InventoryConfig{
			IntervalSecs: 86400,
		},
	}
}

// Load reads a YAML file, applies defaults and environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.mergeExpiring()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// FromEnv builds a config from defaults and VAULTOSS_* environment variables only.
func FromEnv() (*Config, error) {
	cfg := defaults()
	cfg.applyEnv()
	cfg.mergeExpiring()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.Endpoint, "VAULTOSS_ENDPOINT")
	setString(&c.Region, "VAULTOSS_REGION")
	setString(&c.AccessKey, "VAULTOSS_ACCESS_KEY")
	setString(&c.SecretKey, "VAULTOSS_SECRET_KEY")
	setString(&c.BucketName, "VAULTOSS_BUCKET_NAME")
	setString(&c.CustomDomain, "VAULTOSS_CUSTOM_DOMAIN")
	setString(&c.Logging.Level, "VAULTOSS_LOG_LEVEL")
	if v := os.Getenv("VAULTOSS_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.PathStyleAccess = b
		}
	}
}

func (c *Config) mergeExpiring() {
	if len(c.ExpiringBuckets) == 0 {
		return
	}
	if c.ExpiringPrefixes == nil {
		c.ExpiringPrefixes = make(map[string]int, len(c.ExpiringBuckets))
	}
	for prefix, days := range c.ExpiringBuckets {
		if _, ok := c.ExpiringPrefixes[prefix]; !ok {
			c.ExpiringPrefixes[prefix] = days
		}
	}
	c.ExpiringBuckets = nil
}

// Validate checks that the config can build a backend client.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint must be an absolute URL, got %q", c.Endpoint)
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("access_key and secret_key are required")
	}
	if c.RateLimit.RequestsPerSec < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	for prefix, days := range c.ExpiringPrefixes {
		if days <= 0 {
			return fmt.Errorf("expiring prefix %q: days must be positive, got %d", prefix, days)
		}
	}
	return nil
}

// FolderMode reports whether a base bucket is configured.
func (c *Config) FolderMode() bool {
	return c.BucketName != ""
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
