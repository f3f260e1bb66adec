package airthings

import (
	"github.com/rs/zerolog"
)

// Reconcile joins device records with reading entries by serial number.
// HUB devices are skipped, and devices without readings in this pass are
// left out. Readings for one serial spread over several entries are merged
// in arrival order.
func Reconcile(devices []DeviceRecord, readings []SensorsRecord, logger zerolog.Logger) map[string]Device {
	merged := make(map[string]*SensorsRecord, len(readings))
	for _, reading := range readings {
		if reading.SerialNumber == "" {
			logger.Debug().Int("sensors", len(reading.Sensors)).Msg("dropping reading without serial number")
			continue
		}
		entry, ok := merged[reading.SerialNumber]
		if !ok {
			entry = &SensorsRecord{SerialNumber: reading.SerialNumber}
			merged[reading.SerialNumber] = entry
		}
		entry.Sensors = append(entry.Sensors, reading.Sensors...)
		if reading.Recorded != nil {
			entry.Recorded = reading.Recorded
		}
		if reading.BatteryPercentage != nil {
			entry.BatteryPercentage = reading.BatteryPercentage
		}
	}

	out := make(map[string]Device, len(devices))
	for _, record := range devices {
		deviceType := ParseDeviceType(record.Type)
		if deviceType == DeviceTypeHub {
			continue
		}
		if deviceType == DeviceTypeUnknown && record.Type != string(DeviceTypeUnknown) {
			logger.Debug().Str("serial", record.SerialNumber).Str("type", record.Type).Msg("unrecognized device type")
		}

		reading, ok := merged[record.SerialNumber]
		if !ok {
			logger.Debug().Str("serial", record.SerialNumber).Msg("no readings for device")
			continue
		}

		sensors := make([]SensorReading, 0, len(reading.Sensors)+1)
		sensors = append(sensors, reading.Sensors...)
		if reading.BatteryPercentage != nil {
			sensors = append(sensors, SensorReading{
				Kind:  BatterySensor,
				Value: float64(*reading.BatteryPercentage),
				Unit:  "%",
			})
		}

		out[record.SerialNumber] = Device{
			SerialNumber: record.SerialNumber,
			Type:         deviceType,
			ProductName:  deviceType.ProductName(),
			Name:         record.Name,
			Home:         record.Home,
			Recorded:     reading.Recorded,
			Sensors:      sensors,
		}
	}
	return out
}
