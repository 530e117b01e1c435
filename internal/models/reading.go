package models

import (
	"strings"
	"time"
)

// Battery coarse battery state reported by a cylinder sensor
type Battery string

const (
	BatteryFull    Battery = "Full"
	BatteryOk      Battery = "Ok"
	BatteryLow     Battery = "Low"
	BatteryUnknown Battery = "Unknown"
)

// ParseBattery never fails: anything outside Full/Ok/Low is Unknown.
func ParseBattery(s string) Battery {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return BatteryFull
	case "ok":
		return BatteryOk
	case "low":
		return BatteryLow
	default:
		return BatteryUnknown
	}
}

// Level maps the state onto the chart's percentage axis.
func (b Battery) Level() int {
	switch b {
	case BatteryFull:
		return 100
	case BatteryOk:
		return 75
	case BatteryLow:
		return 25
	default:
		return 0
	}
}

// ReadingRecord one sensor sample (sensor_data row).
// Values are never mutated after construction; an update for the same ID is a
// new ReadingRecord that replaces the old one.
type ReadingRecord struct {
	ID                 string    `json:"id"`
	DeviceID           string    `json:"device_id"`
	DeviceTitle        string    `json:"title_name"`
	Timestamp          time.Time `json:"created_at"`
	Measurement        float64   `json:"measurement"`         // gas level %, nominally 0-100
	TankLevel          float64   `json:"tank_level"`          // depth, unit tagged upstream
	ConnectionStrength int       `json:"connection_strength"` // 0-100
	Battery            Battery   `json:"battery"`
	BatteryText        string    `json:"battery_text,omitempty"` // as reported, before normalization
}

// ExportBattery battery as the sensor reported it, or the normalized state
// when the raw text is not known.
func (r ReadingRecord) ExportBattery() string {
	if text := strings.TrimSpace(r.BatteryText); text != "" {
		return text
	}
	return string(r.Battery)
}

// SensorDataRow wire shape of a sensor_data row as the hosted backend and the
// change feeds deliver it. Battery stays free text until normalized.
type SensorDataRow struct {
	ID                 string    `json:"id"`
	DeviceID           string    `json:"device_id"`
	TitleName          string    `json:"title_name"`
	TankLevel          float64   `json:"tank_level"`
	TankLevelUnit      string    `json:"tank_level_unit,omitempty"`
	Battery            string    `json:"battery"`
	ConnectionStrength int       `json:"connection_strength"`
	Measurement        float64   `json:"measurement"`
	MeasurementUnit    string    `json:"measurement_unit,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// ToRecord normalizes a wire row.
func (r SensorDataRow) ToRecord() ReadingRecord {
	return ReadingRecord{
		ID:                 r.ID,
		DeviceID:           r.DeviceID,
		DeviceTitle:        r.TitleName,
		Timestamp:          r.CreatedAt,
		Measurement:        r.Measurement,
		TankLevel:          r.TankLevel,
		ConnectionStrength: r.ConnectionStrength,
		Battery:            ParseBattery(r.Battery),
		BatteryText:        r.Battery,
	}
}

// EventKind change kind on the live feed
type EventKind string

const (
	EventInserted EventKind = "INSERT"
	EventUpdated  EventKind = "UPDATE"
)

// LiveEvent one normalized change from the live feed.
type LiveEvent struct {
	Kind   EventKind
	Record ReadingRecord
}

// ChangeMessage JSON payload carried by the live transports.
type ChangeMessage struct {
	Type   string        `json:"type"`
	Record SensorDataRow `json:"record"`
}

// Device roster entry (devices table), read-only here.
type Device struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Title   string `json:"title"`
	Color   string `json:"color"`
	Enabled bool   `json:"enabled"`
}
