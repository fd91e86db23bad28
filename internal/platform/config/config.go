// Package config loads runtime configuration from a YAML file with
// environment-variable overrides so main stays lean and deployments can tweak
// single values without shipping a new file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Retry holds the single injectable retry policy passed into the blob client.
type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxJitter   time.Duration `yaml:"max_jitter"`
}

// Config captures every tunable of the card service.
type Config struct {
	ServerAddr string `yaml:"server_addr"`
	LogLevel   string `yaml:"log_level"`

	// SiteOrigin is the public origin embedded in QR verification URLs.
	// There is deliberately no localhost default: an empty origin with no
	// request-derived base URL is a reported error, never a broken QR code.
	SiteOrigin string `yaml:"site_origin"`

	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	KafkaGroup   string   `yaml:"kafka_group"`

	BlobBackendURL string        `yaml:"blob_backend_url"`
	BlobTimeout    time.Duration `yaml:"blob_timeout"`
	BlobRetry      Retry         `yaml:"blob_retry"`

	AssetsDir string `yaml:"assets_dir"`

	// AdminTokenHash is a bcrypt hash of the admin API token.
	AdminTokenHash string `yaml:"admin_token_hash"`

	// FetchURLSigningKey signs the short-lived image fetch links.
	FetchURLSigningKey string        `yaml:"fetch_url_signing_key"`
	FetchURLTTL        time.Duration `yaml:"fetch_url_ttl"`

	// CardTTL is applied as expires_at when a card row is created.
	CardTTL       time.Duration `yaml:"card_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Load reads the YAML file at path (if it exists), applies environment
// overrides, and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrideString(&c.ServerAddr, "CAMPUSCARD_ADDR")
	overrideString(&c.LogLevel, "CAMPUSCARD_LOG_LEVEL")
	overrideString(&c.SiteOrigin, "CAMPUSCARD_SITE_ORIGIN")
	overrideString(&c.DatabaseURL, "CAMPUSCARD_DATABASE_URL")
	overrideString(&c.RedisURL, "CAMPUSCARD_REDIS_URL")
	overrideStringSlice(&c.KafkaBrokers, "CAMPUSCARD_KAFKA_BROKERS")
	overrideString(&c.KafkaTopic, "CAMPUSCARD_KAFKA_TOPIC")
	overrideString(&c.KafkaGroup, "CAMPUSCARD_KAFKA_GROUP")
	overrideString(&c.BlobBackendURL, "CAMPUSCARD_BLOB_URL")
	overrideString(&c.AssetsDir, "CAMPUSCARD_ASSETS_DIR")
	overrideString(&c.AdminTokenHash, "CAMPUSCARD_ADMIN_TOKEN_HASH")
	overrideString(&c.FetchURLSigningKey, "CAMPUSCARD_FETCH_SIGNING_KEY")
	overrideDuration(&c.BlobTimeout, "CAMPUSCARD_BLOB_TIMEOUT")
	overrideDuration(&c.SweepInterval, "CAMPUSCARD_SWEEP_INTERVAL")
	overrideInt(&c.BlobRetry.MaxAttempts, "CAMPUSCARD_BLOB_RETRY_ATTEMPTS")
}

func (c *Config) applyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.BlobTimeout == 0 {
		c.BlobTimeout = 10 * time.Second
	}
	if c.BlobRetry.MaxAttempts == 0 {
		c.BlobRetry.MaxAttempts = 3
	}
	if c.BlobRetry.BaseDelay == 0 {
		c.BlobRetry.BaseDelay = 200 * time.Millisecond
	}
	if c.BlobRetry.MaxJitter == 0 {
		c.BlobRetry.MaxJitter = 100 * time.Millisecond
	}
	if c.FetchURLTTL == 0 {
		c.FetchURLTTL = 5 * time.Minute
	}
	if c.CardTTL == 0 {
		c.CardTTL = 4 * 365 * 24 * time.Hour
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 6 * time.Hour
	}
	if c.KafkaGroup == "" {
		c.KafkaGroup = "campuscard-approvals"
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// overrideStringSlice reads a comma-separated list from the environment.
func overrideStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
	}
}

func overrideDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
