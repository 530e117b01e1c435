package models

import "time"

// MetricSet chart values of one reading. nil means "no data", which is
// different from a zero reading.
type MetricSet struct {
	GasLevel          *float64 `json:"gas_level"`
	TankLevel         *float64 `json:"tank_level"`
	ConnectionQuality *int     `json:"connection_quality"`
	BatteryLevel      *int     `json:"battery_level"`
}

// MetricsOf projects a reading onto the chart axes.
func MetricsOf(r ReadingRecord) MetricSet {
	gas := r.Measurement
	tank := r.TankLevel
	conn := r.ConnectionStrength
	battery := r.Battery.Level()
	return MetricSet{
		GasLevel:          &gas,
		TankLevel:         &tank,
		ConnectionQuality: &conn,
		BatteryLevel:      &battery,
	}
}

// IsEmpty reports whether every metric is unset.
func (m MetricSet) IsEmpty() bool {
	return m.GasLevel == nil && m.TankLevel == nil && m.ConnectionQuality == nil && m.BatteryLevel == nil
}

// DeviceMetrics one device's contribution to a comparison row.
type DeviceMetrics struct {
	MetricSet
	SourceReadingID string    `json:"source_reading_id"`
	Annotations     []Comment `json:"annotations"`
}

// AlignedRow one abscissa point of the chart.
// Single-device rows use Metrics; comparison rows use Devices.
type AlignedRow struct {
	Timestamp       time.Time                `json:"timestamp"`
	DisplayLabel    string                   `json:"display_label"`
	Gap             bool                     `json:"gap,omitempty"`
	Metrics         *MetricSet               `json:"metrics,omitempty"`
	Devices         map[string]DeviceMetrics `json:"devices,omitempty"`
	SourceReadingID string                   `json:"source_reading_id,omitempty"`
	Annotations     []Comment                `json:"annotations"`
}

// Metric names accepted by AlignedRow.Value. They match the legacy
// "{deviceId}_{metric}" keys of comparison rows.
const (
	MetricGasLevel   = "gasLevel"
	MetricTankLevel  = "tankLevel"
	MetricConnection = "connection"
	MetricBattery    = "battery"
)

// Value looks up one device metric of a comparison row, the typed form of the
// legacy row["<deviceId>_<metric>"] access. ok is false when the device did
// not report at this instant.
func (r AlignedRow) Value(deviceID, metric string) (float64, bool) {
	dm, found := r.Devices[deviceID]
	if !found {
		return 0, false
	}
	switch metric {
	case MetricGasLevel:
		if dm.GasLevel != nil {
			return *dm.GasLevel, true
		}
	case MetricTankLevel:
		if dm.TankLevel != nil {
			return *dm.TankLevel, true
		}
	case MetricConnection:
		if dm.ConnectionQuality != nil {
			return float64(*dm.ConnectionQuality), true
		}
	case MetricBattery:
		if dm.BatteryLevel != nil {
			return float64(*dm.BatteryLevel), true
		}
	}
	return 0, false
}

// HasAnnotations is true when at least one comment is attached.
func (r AlignedRow) HasAnnotations() bool {
	return len(r.Annotations) > 0
}
