package airthings

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func gatherValues(t *testing.T, collector prometheus.Collector) map[string][]float64 {
	t.Helper()
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(collector))
	families, err := registry.Gather()
	require.NoError(t, err)

	out := make(map[string][]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			out[family.GetName()] = append(out[family.GetName()], metric.GetGauge().GetValue())
		}
	}
	return out
}

func TestMetricsCollectorWithoutSnapshot(t *testing.T) {
	api := twoDeviceAPI()
	syncer := NewSyncer(api, SyncOptions{}, zerolog.Nop())

	values := gatherValues(t, NewMetricsCollector(syncer))
	require.Equal(t, []float64{0}, values["airthings_snapshot_available"])
	require.NotContains(t, values, "airthings_sensor_value")
	require.Zero(t, api.tokenCalls)
}

func TestMetricsCollectorExportsReadings(t *testing.T) {
	api := twoDeviceAPI()
	api.readings["acc-1"][0].Recorded = ptr("2026-01-02T03:04:05Z")
	syncer := NewSyncer(api, SyncOptions{}, zerolog.Nop())
	_, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	values := gatherValues(t, NewMetricsCollector(syncer))
	require.Equal(t, []float64{1}, values["airthings_snapshot_available"])
	require.Len(t, values["airthings_device_info"], 2)
	require.ElementsMatch(t, []float64{600, 80, 3}, values["airthings_sensor_value"])
	require.Equal(t, []float64{float64(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Unix())}, values["airthings_recorded_timestamp_seconds"])
	require.Equal(t, 1, api.accountCalls)
}
