package airthings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDeviceType(t *testing.T) {
	require.Equal(t, DeviceTypeWaveRadon, ParseDeviceType("WAVE_GEN2"))
	require.Equal(t, "Wave Radon", ParseDeviceType("WAVE_GEN2").ProductName())
	require.Equal(t, "Corentium Home 2", ParseDeviceType("RAVEN_RADON").ProductName())
	require.Equal(t, DeviceTypeHub, ParseDeviceType("HUB"))
	require.Equal(t, DeviceTypeUnknown, ParseDeviceType("wave_plus"))
	require.Equal(t, "Unknown", DeviceTypeUnknown.ProductName())
}

func TestParseUnit(t *testing.T) {
	unit, err := ParseUnit("")
	require.NoError(t, err)
	require.Equal(t, UnitMetric, unit)

	unit, err = ParseUnit(" Imperial ")
	require.NoError(t, err)
	require.Equal(t, UnitImperial, unit)

	_, err = ParseUnit("kelvin")
	require.Error(t, err)
}

func TestDeviceRecordedAt(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, raw := range []string{"2026-01-02T03:04:05", "2026-01-02T03:04:05Z", "2026-01-02T04:04:05+01:00"} {
		at, ok := Device{Recorded: ptr(raw)}.RecordedAt()
		require.True(t, ok, raw)
		require.True(t, want.Equal(at), raw)
	}

	_, ok := Device{}.RecordedAt()
	require.False(t, ok)
	_, ok = Device{Recorded: ptr("yesterday")}.RecordedAt()
	require.False(t, ok)
}
