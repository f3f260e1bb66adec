package airthings

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/joshp123/gohome-airthings/internal/config"
	"github.com/joshp123/gohome-airthings/internal/core"
)

func TestNewPluginDisabledWithoutSection(t *testing.T) {
	_, ok := NewPlugin(&config.Config{}, zerolog.Nop())
	require.False(t, ok)
}

func TestNewPluginFromConfig(t *testing.T) {
	plugin, ok := NewPlugin(&config.Config{
		Airthings: &config.AirthingsConfig{
			ClientID:     "id",
			ClientSecret: "secret",
			PollInterval: 10 * time.Minute,
		},
	}, zerolog.Nop())
	require.True(t, ok)
	require.Equal(t, core.HealthHealthy, plugin.Health())
	require.NoError(t, core.ValidatePlugins([]core.Plugin{plugin}))
	require.Equal(t, []string{ServiceName}, plugin.Manifest().Services)
	require.NotEmpty(t, plugin.AgentsMD())
	require.NotEmpty(t, plugin.Collectors())
}

func TestNewPluginBadCredentialsFile(t *testing.T) {
	plugin, ok := NewPlugin(&config.Config{
		Airthings: &config.AirthingsConfig{CredentialsFile: filepath.Join(t.TempDir(), "missing.json")},
	}, zerolog.Nop())
	require.True(t, ok)
	require.Equal(t, core.HealthError, plugin.Health())
	require.NotEmpty(t, plugin.HealthMessage())
	require.Nil(t, plugin.Collectors())
}

func TestNewPluginUnreachableBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	plugin, ok := NewPlugin(&config.Config{
		Airthings: &config.AirthingsConfig{ClientID: "id", ClientSecret: "secret"},
		MQTT:      &config.MQTTConfig{Broker: "tcp://" + addr},
	}, zerolog.Nop())
	require.True(t, ok)
	require.Equal(t, core.HealthError, plugin.Health())
	require.Contains(t, plugin.HealthMessage(), "mqtt connect")
}

func TestConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airthings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version":1,"client_id":"file-id","client_secret":"file-secret"}`), 0o600))

	cfg, err := ConfigFromFile(&config.AirthingsConfig{
		CredentialsFile: path,
		Unit:            "imperial",
		SerialNumbers:   []string{" 2930012345 ", ""},
	})
	require.NoError(t, err)
	require.Equal(t, "file-id", cfg.Credentials.ClientID)
	require.Equal(t, UnitImperial, cfg.Unit)
	require.Equal(t, []string{"2930012345"}, cfg.SerialNumbers)
	require.Equal(t, config.DefaultBaseURL, cfg.BaseURL)
	require.Equal(t, config.DefaultMaxPages, cfg.MaxPages)

	_, err = ConfigFromFile(&config.AirthingsConfig{ClientID: "id", ClientSecret: "secret", Unit: "kelvin"})
	require.Error(t, err)
}
