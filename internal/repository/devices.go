package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"tankwatch-chart/internal/models"
)

// DeviceRepository devices table (read-only)
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{
		db:     db,
		logger: logger,
	}
}

// ListEnabledDevices returns devices with enabled = TRUE ordered by name.
func (r *DeviceRepository) ListEnabledDevices(ctx context.Context) ([]models.Device, error) {
	query := `
		SELECT id, name, title, color, enabled
		FROM devices
		WHERE enabled = TRUE
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := make([]models.Device, 0)
	for rows.Next() {
		var (
			d     models.Device
			title sql.NullString
			color sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.Name, &title, &color, &d.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d.Title = title.String
		d.Color = color.String
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}
