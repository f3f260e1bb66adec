package airthings

import (
	"fmt"
	"strings"
	"time"

	"github.com/joshp123/gohome-airthings/internal/config"
	"github.com/joshp123/gohome-airthings/internal/oauth"
)

// Config defines runtime configuration for the Airthings client and syncer.
type Config struct {
	Credentials     oauth.Credentials
	AuthURL         string
	BaseURL         string
	Scope           string
	Unit            Unit
	SerialNumbers   []string
	PollInterval    time.Duration
	MaxConcurrency  int
	MaxPages        int
	AccountCacheTTL time.Duration
	RequestsPerHour int
}

func (c Config) withDefaults() Config {
	if c.AuthURL == "" {
		c.AuthURL = config.DefaultAuthURL
	}
	if c.BaseURL == "" {
		c.BaseURL = config.DefaultBaseURL
	}
	if c.Scope == "" {
		c.Scope = config.DefaultScope
	}
	if c.Unit == "" {
		c.Unit = UnitMetric
	}
	if c.PollInterval <= 0 {
		c.PollInterval = config.DefaultPollInterval
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = config.DefaultMaxConcurrency
	}
	if c.MaxPages <= 0 {
		c.MaxPages = config.DefaultMaxPages
	}
	if c.RequestsPerHour <= 0 {
		c.RequestsPerHour = config.DefaultRequestsPerHour
	}
	return c
}

// ConfigFromFile converts the file section into runtime config, reading the
// credentials file when one is configured.
func ConfigFromFile(cfg *config.AirthingsConfig) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("airthings config is required")
	}

	creds := oauth.Credentials{
		SchemaVersion: oauth.SchemaVersion,
		ClientID:      strings.TrimSpace(cfg.ClientID),
		ClientSecret:  strings.TrimSpace(cfg.ClientSecret),
	}
	if creds.ClientID == "" && creds.ClientSecret == "" && cfg.CredentialsFile != "" {
		loaded, err := oauth.LoadCredentials(cfg.CredentialsFile)
		if err != nil {
			return Config{}, err
		}
		creds = loaded
	}
	if err := creds.Validate(); err != nil {
		return Config{}, fmt.Errorf("airthings credentials: %w", err)
	}

	unit, err := ParseUnit(cfg.Unit)
	if err != nil {
		return Config{}, err
	}

	serials := make([]string, 0, len(cfg.SerialNumbers))
	for _, sn := range cfg.SerialNumbers {
		if sn = strings.TrimSpace(sn); sn != "" {
			serials = append(serials, sn)
		}
	}

	return Config{
		Credentials:     creds,
		AuthURL:         strings.TrimSpace(cfg.AuthURL),
		BaseURL:         strings.TrimSpace(cfg.BaseURL),
		Scope:           strings.TrimSpace(cfg.Scope),
		Unit:            unit,
		SerialNumbers:   serials,
		PollInterval:    cfg.PollInterval,
		MaxConcurrency:  cfg.MaxConcurrency,
		MaxPages:        cfg.MaxPages,
		AccountCacheTTL: cfg.AccountCacheTTL,
		RequestsPerHour: cfg.RequestsPerHour,
	}.withDefaults(), nil
}
