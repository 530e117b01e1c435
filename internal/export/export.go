package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"tankwatch-chart/internal/models"
)

// ErrUnknownFormat export format not supported
var ErrUnknownFormat = errors.New("unknown export format")

// Format download format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts csv, json and xlsx, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType HTTP content type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Header column order of every format.
var Header = []string{
	"timestamp",
	"device_id",
	"device_title",
	"gas_level",
	"tank_level",
	"battery",
	"connection_strength",
}

// Record one exported reading.
type Record struct {
	Timestamp          time.Time `json:"timestamp"`
	DeviceID           string    `json:"device_id"`
	DeviceTitle        string    `json:"device_title"`
	GasLevel           float64   `json:"gas_level"`
	TankLevel          float64   `json:"tank_level"`
	Battery            string    `json:"battery"`
	ConnectionStrength int       `json:"connection_strength"`
}

// Flatten maps series records onto export rows.
func Flatten(records []models.ReadingRecord) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, Record{
			Timestamp:          r.Timestamp,
			DeviceID:           r.DeviceID,
			DeviceTitle:        r.DeviceTitle,
			GasLevel:           r.Measurement,
			TankLevel:          r.TankLevel,
			Battery:            r.ExportBattery(),
			ConnectionStrength: r.ConnectionStrength,
		})
	}
	return out
}

func (r Record) fields() []string {
	return []string{
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.DeviceID,
		r.DeviceTitle,
		strconv.FormatFloat(r.GasLevel, 'f', -1, 64),
		strconv.FormatFloat(r.TankLevel, 'f', -1, 64),
		r.Battery,
		strconv.Itoa(r.ConnectionStrength),
	}
}

// FileName sensor_data_<mode>_<range>[_<device>]_<yyyy-mm-dd>.<ext>
func FileName(scope models.Scope, deviceTitle string, format Format, day time.Time) string {
	parts := []string{"sensor_data", string(scope.Mode), string(scope.Range)}
	if scope.Mode == models.ModeSingle {
		name := deviceTitle
		if name == "" {
			name = scope.DeviceID
		}
		if s := slug.Make(name); s != "" {
			parts = append(parts, s)
		}
	}
	parts = append(parts, day.Format("2006-01-02"))
	return strings.Join(parts, "_") + "." + string(format)
}

// Write encodes records in format.
func Write(w io.Writer, format Format, records []Record) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, records)
	case FormatJSON:
		return writeJSON(w, records)
	case FormatXLSX:
		return writeXLSX(w, records)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(r.fields()); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
