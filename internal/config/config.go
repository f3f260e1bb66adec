package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	SchemaVersion       = 1
	DefaultPath         = "/etc/airthings/config.yaml"
	DefaultGRPCAddr     = "0.0.0.0:9000"
	DefaultHTTPAddr     = "0.0.0.0:8080"
	DefaultDashboardDir = "/var/lib/airthings/dashboards"
	DefaultLogLevel     = "info"

	DefaultAuthURL         = "https://accounts-api.airthings.com/v1/token"
	DefaultBaseURL         = "https://consumer-api.airthings.com"
	DefaultScope           = "read:device:current_values"
	DefaultUnit            = "metric"
	DefaultPollInterval    = 5 * time.Minute
	DefaultMaxConcurrency  = 1
	DefaultMaxPages        = 100
	DefaultRequestsPerHour = 120

	DefaultMQTTTopicPrefix = "airthings"
	DefaultMQTTClientID    = "airthingsd"

	EnvConfigPath   = "AIRTHINGS_CONFIG"
	EnvClientID     = "AIRTHINGS_CLIENT_ID"
	EnvClientSecret = "AIRTHINGS_CLIENT_SECRET"
)

// Config is the daemon configuration file.
type Config struct {
	SchemaVersion int              `yaml:"schema_version"`
	LogLevel      string           `yaml:"log_level"`
	Core          CoreConfig       `yaml:"core"`
	Airthings     *AirthingsConfig `yaml:"airthings"`
	MQTT          *MQTTConfig      `yaml:"mqtt"`
}

type CoreConfig struct {
	GRPCAddr     string `yaml:"grpc_addr"`
	HTTPAddr     string `yaml:"http_addr"`
	DashboardDir string `yaml:"dashboard_dir"`
}

// AirthingsConfig configures the cloud API client and sync cadence.
type AirthingsConfig struct {
	ClientID        string        `yaml:"client_id"`
	ClientSecret    string        `yaml:"client_secret"`
	CredentialsFile string        `yaml:"credentials_file"`
	AuthURL         string        `yaml:"auth_url"`
	BaseURL         string        `yaml:"base_url"`
	Scope           string        `yaml:"scope"`
	Unit            string        `yaml:"unit"`
	SerialNumbers   []string      `yaml:"serial_numbers"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxConcurrency  int           `yaml:"max_concurrency"`
	MaxPages        int           `yaml:"max_pages"`
	AccountCacheTTL time.Duration `yaml:"account_cache_ttl"`
	RequestsPerHour int           `yaml:"requests_per_hour"`
}

// MQTTConfig enables publishing device state to a broker.
type MQTTConfig struct {
	Broker       string `yaml:"broker"`
	ClientID     string `yaml:"client_id"`
	Username     string `yaml:"username"`
	PasswordFile string `yaml:"password_file"`
	TopicPrefix  string `yaml:"topic_prefix"`
}

// LoadEnv reads .env files into the process environment. Missing files are
// ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// PathFromEnv returns the config path, honoring AIRTHINGS_CONFIG.
func PathFromEnv(fallback string) string {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path
	}
	if fallback == "" {
		return DefaultPath
	}
	return fallback
}

// Load parses the YAML config file, applies env overrides and defaults, and
// validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes config bytes. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	id := strings.TrimSpace(os.Getenv(EnvClientID))
	secret := strings.TrimSpace(os.Getenv(EnvClientSecret))
	if id == "" && secret == "" {
		return
	}
	if cfg.Airthings == nil {
		cfg.Airthings = &AirthingsConfig{}
	}
	if id != "" {
		cfg.Airthings.ClientID = id
	}
	if secret != "" {
		cfg.Airthings.ClientSecret = secret
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.Core.GRPCAddr == "" {
		cfg.Core.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.DashboardDir == "" {
		cfg.Core.DashboardDir = DefaultDashboardDir
	}

	if at := cfg.Airthings; at != nil {
		if at.AuthURL == "" {
			at.AuthURL = DefaultAuthURL
		}
		if at.BaseURL == "" {
			at.BaseURL = DefaultBaseURL
		}
		if at.Scope == "" {
			at.Scope = DefaultScope
		}
		if at.Unit == "" {
			at.Unit = DefaultUnit
		}
		if at.PollInterval == 0 {
			at.PollInterval = DefaultPollInterval
		}
		if at.MaxConcurrency == 0 {
			at.MaxConcurrency = DefaultMaxConcurrency
		}
		if at.MaxPages == 0 {
			at.MaxPages = DefaultMaxPages
		}
		if at.RequestsPerHour == 0 {
			at.RequestsPerHour = DefaultRequestsPerHour
		}
	}

	if m := cfg.MQTT; m != nil {
		if m.TopicPrefix == "" {
			m.TopicPrefix = DefaultMQTTTopicPrefix
		}
		if m.ClientID == "" {
			m.ClientID = DefaultMQTTClientID
		}
	}
}

// Validate enforces required invariants beyond YAML typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}
	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}
	if cfg.Core.DashboardDir == "" {
		return fmt.Errorf("core.dashboard_dir is required")
	}

	if at := cfg.Airthings; at != nil {
		if at.CredentialsFile == "" && (at.ClientID == "" || at.ClientSecret == "") {
			return fmt.Errorf("airthings.client_id and airthings.client_secret (or airthings.credentials_file) are required")
		}
		if at.PollInterval < time.Minute {
			return fmt.Errorf("airthings.poll_interval must be at least 1m")
		}
		if at.MaxConcurrency < 0 {
			return fmt.Errorf("airthings.max_concurrency must be positive")
		}
		if at.MaxPages < 0 {
			return fmt.Errorf("airthings.max_pages must be positive")
		}
		if at.AccountCacheTTL < 0 {
			return fmt.Errorf("airthings.account_cache_ttl must not be negative")
		}
		if at.RequestsPerHour < 0 {
			return fmt.Errorf("airthings.requests_per_hour must be positive")
		}
	}

	if m := cfg.MQTT; m != nil && m.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}

	return nil
}

// EnabledPlugins maps enabled plugin IDs based on config presence.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.Airthings != nil {
		enabled["airthings"] = true
	}
	return enabled
}
