package airthings

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airthings_sync_total",
			Help: "Completed sync passes by result",
		},
		[]string{"result"},
	)
	syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "airthings_sync_duration_seconds",
		Help:    "Wall time of a sync pass",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})
	lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "airthings_last_success_timestamp_seconds",
		Help: "Last successful sync timestamp (epoch seconds)",
	})
	syncedDevices = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "airthings_devices",
		Help: "Devices returned by the last successful sync",
	})
)

// SyncCollectors returns the sync pipeline metrics.
func SyncCollectors() []prometheus.Collector {
	return []prometheus.Collector{syncTotal, syncDuration, lastSuccess, syncedDevices}
}

// Snapshotter exposes the last successful sync result.
type Snapshotter interface {
	Latest() (map[string]Device, time.Time, bool)
}

// MetricsCollector exports the latest device readings. It never calls the
// API; scrapes read whatever the poller last stored.
type MetricsCollector struct {
	source Snapshotter
	mu     sync.Mutex

	up          prometheus.Gauge
	snapshotAge prometheus.Gauge
	info        *prometheus.GaugeVec
	sensor      *prometheus.GaugeVec
	recorded    *prometheus.GaugeVec
}

func NewMetricsCollector(source Snapshotter) *MetricsCollector {
	return &MetricsCollector{
		source: source,
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airthings_snapshot_available",
			Help: "1 once a sync has succeeded",
		}),
		snapshotAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airthings_snapshot_age_seconds",
			Help: "Seconds since the exported snapshot was taken",
		}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airthings_device_info",
			Help: "Airthings device info",
		}, []string{"serial", "type", "product", "name", "home"}),
		sensor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airthings_sensor_value",
			Help: "Current sensor value as reported by the device",
		}, []string{"serial", "name", "sensor", "unit"}),
		recorded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airthings_recorded_timestamp_seconds",
			Help: "When the device last recorded its readings (epoch seconds)",
		}, []string{"serial"}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.up.Describe(ch)
	c.snapshotAge.Describe(ch)
	c.info.Describe(ch)
	c.sensor.Describe(ch)
	c.recorded.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.info.Reset()
	c.sensor.Reset()
	c.recorded.Reset()

	devices, at, ok := c.source.Latest()
	if !ok {
		c.up.Set(0)
		c.snapshotAge.Set(0)
		c.collectAll(ch)
		return
	}
	c.up.Set(1)
	c.snapshotAge.Set(time.Since(at).Seconds())

	serials := make([]string, 0, len(devices))
	for serial := range devices {
		serials = append(serials, serial)
	}
	sort.Strings(serials)

	for _, serial := range serials {
		device := devices[serial]
		home := ""
		if device.Home != nil {
			home = *device.Home
		}
		c.info.With(prometheus.Labels{
			"serial":  serial,
			"type":    string(device.Type),
			"product": device.ProductName,
			"name":    device.Name,
			"home":    home,
		}).Set(1)

		for _, reading := range device.Sensors {
			c.sensor.With(prometheus.Labels{
				"serial": serial,
				"name":   device.Name,
				"sensor": reading.Kind,
				"unit":   reading.Unit,
			}).Set(reading.Value)
		}
		if ts, ok := device.RecordedAt(); ok {
			c.recorded.WithLabelValues(serial).Set(float64(ts.Unix()))
		}
	}

	c.collectAll(ch)
}

func (c *MetricsCollector) collectAll(ch chan<- prometheus.Metric) {
	c.up.Collect(ch)
	c.snapshotAge.Collect(ch)
	c.info.Collect(ch)
	c.sensor.Collect(ch)
	c.recorded.Collect(ch)
}
