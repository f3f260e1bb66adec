package airthings

import (
	"fmt"
	"strings"
	"time"
)

// DeviceType is the closed set of Airthings product codes.
type DeviceType string

const (
	DeviceTypeRenew          DeviceType = "AP_1"
	DeviceTypeCorentiumHome2 DeviceType = "RAVEN_RADON"
	DeviceTypeHub            DeviceType = "HUB"
	DeviceTypeViewPlus       DeviceType = "VIEW_PLUS"
	DeviceTypeViewPollution  DeviceType = "VIEW_POLLUTION"
	DeviceTypeViewRadon      DeviceType = "VIEW_RADON"
	DeviceTypeWave           DeviceType = "WAVE"
	DeviceTypeWaveEnhance    DeviceType = "WAVE_ENHANCE"
	DeviceTypeWaveMini       DeviceType = "WAVE_MINI"
	DeviceTypeWavePlus       DeviceType = "WAVE_PLUS"
	DeviceTypeWaveRadon      DeviceType = "WAVE_GEN2"
	DeviceTypeUnknown        DeviceType = "UNKNOWN"
)

var productNames = map[DeviceType]string{
	DeviceTypeRenew:          "Renew",
	DeviceTypeCorentiumHome2: "Corentium Home 2",
	DeviceTypeHub:            "Hub",
	DeviceTypeViewPlus:       "View Plus",
	DeviceTypeViewPollution:  "View Pollution",
	DeviceTypeViewRadon:      "View Radon",
	DeviceTypeWave:           "Wave Gen 1",
	DeviceTypeWaveEnhance:    "Wave Enhance",
	DeviceTypeWaveMini:       "Wave Mini",
	DeviceTypeWavePlus:       "Wave Plus",
	DeviceTypeWaveRadon:      "Wave Radon",
}

// ParseDeviceType maps a raw product code to a DeviceType. Unrecognized
// codes become DeviceTypeUnknown.
func ParseDeviceType(raw string) DeviceType {
	value := DeviceType(raw)
	if _, ok := productNames[value]; ok {
		return value
	}
	return DeviceTypeUnknown
}

// ProductName returns the display name for the device type.
func (t DeviceType) ProductName() string {
	if name, ok := productNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Unit selects the measurement system for sensor values.
type Unit string

const (
	UnitMetric   Unit = "metric"
	UnitImperial Unit = "imperial"
)

func ParseUnit(raw string) (Unit, error) {
	switch Unit(strings.ToLower(strings.TrimSpace(raw))) {
	case "", UnitMetric:
		return UnitMetric, nil
	case UnitImperial:
		return UnitImperial, nil
	default:
		return "", fmt.Errorf("unknown unit %q (want metric or imperial)", raw)
	}
}

// BatterySensor is the kind of the synthetic reading built from a reported
// battery percentage.
const BatterySensor = "battery"

// SensorReading is one current value reported by a device.
type SensorReading struct {
	Kind  string  `json:"sensorType"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// DeviceRecord is a device registered to an account.
type DeviceRecord struct {
	SerialNumber string
	Name         string
	Home         *string
	Type         string
	Sensors      []string
}

// SensorsRecord holds the current readings for one serial number.
type SensorsRecord struct {
	SerialNumber      string
	Sensors           []SensorReading
	Recorded          *string
	BatteryPercentage *int
}

// SensorsPage is one page of the sensors endpoint.
type SensorsPage struct {
	Results    []SensorsRecord
	HasNext    bool
	TotalPages int
}

// Device is a device joined with its current readings.
type Device struct {
	SerialNumber string          `json:"serialNumber"`
	Type         DeviceType      `json:"type"`
	ProductName  string          `json:"productName"`
	Name         string          `json:"name"`
	Home         *string         `json:"home,omitempty"`
	Recorded     *string         `json:"recorded,omitempty"`
	Sensors      []SensorReading `json:"sensors"`
}

// RecordedAt parses the reading timestamp reported by the device.
func (d Device) RecordedAt() (time.Time, bool) {
	ts := parseTimestamp(d.Recorded)
	if ts == nil {
		return time.Time{}, false
	}
	return *ts, true
}

func parseTimestamp(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.ParseInLocation(layout, *value, time.UTC); err == nil {
			return &ts
		}
	}
	return nil
}
