package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tankwatch-chart/internal/models"
)

const readingColumns = `id, device_id, title_name, measurement, tank_level, connection_strength, battery, created_at`

// ReadingRepository sensor_data queries
type ReadingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReadingRepository creates a new reading repository
func NewReadingRepository(db *sql.DB, logger *zap.Logger) *ReadingRepository {
	return &ReadingRepository{
		db:     db,
		logger: logger,
	}
}

// ReadingsSince returns readings created at or after since, oldest first.
// An empty deviceID selects every device.
func (r *ReadingRepository) ReadingsSince(ctx context.Context, since time.Time, deviceID string) ([]models.ReadingRecord, error) {
	query := `SELECT ` + readingColumns + ` FROM sensor_data WHERE created_at >= $1`
	args := []any{since}
	if deviceID != "" {
		query += ` AND device_id = $2`
		args = append(args, deviceID)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	records := make([]models.ReadingRecord, 0)
	for rows.Next() {
		var (
			rec     models.ReadingRecord
			title   sql.NullString
			battery sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.DeviceID,
			&title,
			&rec.Measurement,
			&rec.TankLevel,
			&rec.ConnectionStrength,
			&battery,
			&rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		rec.DeviceTitle = title.String
		rec.Battery = models.ParseBattery(battery.String)
		rec.BatteryText = battery.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}

	return records, nil
}
