package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const minimalConfig = `
schema_version: 1
airthings:
  client_id: id
  client_secret: secret
`

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvClientID, "")
	t.Setenv(EnvClientSecret, "")
	t.Setenv(EnvConfigPath, "")
}

func TestParseAppliesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(minimalConfig))
	require.NoError(t, err)
	require.Equal(t, DefaultLogLevel, cfg.LogLevel)
	require.Equal(t, DefaultGRPCAddr, cfg.Core.GRPCAddr)
	require.Equal(t, DefaultHTTPAddr, cfg.Core.HTTPAddr)
	require.Equal(t, DefaultAuthURL, cfg.Airthings.AuthURL)
	require.Equal(t, DefaultBaseURL, cfg.Airthings.BaseURL)
	require.Equal(t, DefaultScope, cfg.Airthings.Scope)
	require.Equal(t, DefaultUnit, cfg.Airthings.Unit)
	require.Equal(t, DefaultPollInterval, cfg.Airthings.PollInterval)
	require.Equal(t, DefaultMaxPages, cfg.Airthings.MaxPages)
	require.Nil(t, cfg.MQTT)
	require.Equal(t, map[string]bool{"airthings": true}, EnabledPlugins(cfg))
}

func TestParseFullConfig(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(`
schema_version: 1
log_level: debug
core:
  grpc_addr: 127.0.0.1:9100
airthings:
  credentials_file: /run/secrets/airthings.json
  unit: imperial
  serial_numbers: ["2930012345", "2960054321"]
  poll_interval: 10m
  max_concurrency: 4
  account_cache_ttl: 1h
mqtt:
  broker: tcp://localhost:1883
`))
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "127.0.0.1:9100", cfg.Core.GRPCAddr)
	require.Equal(t, "/run/secrets/airthings.json", cfg.Airthings.CredentialsFile)
	require.Equal(t, []string{"2930012345", "2960054321"}, cfg.Airthings.SerialNumbers)
	require.Equal(t, 10*time.Minute, cfg.Airthings.PollInterval)
	require.Equal(t, 4, cfg.Airthings.MaxConcurrency)
	require.Equal(t, time.Hour, cfg.Airthings.AccountCacheTTL)
	require.Equal(t, DefaultMQTTTopicPrefix, cfg.MQTT.TopicPrefix)
	require.Equal(t, DefaultMQTTClientID, cfg.MQTT.ClientID)
}

func TestParseRejects(t *testing.T) {
	clearEnv(t)

	tests := map[string]string{
		"unknown key":    "schema_version: 1\nbogus: true\n",
		"schema version": "schema_version: 2\n",
		"credentials":    "schema_version: 1\nairthings:\n  client_id: id\n",
		"poll interval":  "schema_version: 1\nairthings:\n  client_id: id\n  client_secret: s\n  poll_interval: 30s\n",
		"mqtt broker":    "schema_version: 1\nmqtt:\n  topic_prefix: x\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			require.Error(t, err)
		})
	}
}

func TestParseEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvClientID, "env-id")
	t.Setenv(EnvClientSecret, "env-secret")

	cfg, err := Parse([]byte("schema_version: 1\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Airthings)
	require.Equal(t, "env-id", cfg.Airthings.ClientID)
	require.Equal(t, "env-secret", cfg.Airthings.ClientSecret)
}

func TestLoadAndPathFromEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0o600))

	require.Equal(t, DefaultPath, PathFromEnv(""))
	require.Equal(t, "fallback.yaml", PathFromEnv("fallback.yaml"))
	t.Setenv(EnvConfigPath, path)
	require.Equal(t, path, PathFromEnv("fallback.yaml"))

	cfg, err := Load(PathFromEnv(""))
	require.NoError(t, err)
	require.Equal(t, "id", cfg.Airthings.ClientID)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	const key = "AIRTHINGS_DOTENV_MARKER"
	t.Cleanup(func() { _ = os.Unsetenv(key) })
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(key+"=from-dotenv\n"), 0o600))

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), envFile))
	require.Equal(t, "from-dotenv", os.Getenv(key))
}
