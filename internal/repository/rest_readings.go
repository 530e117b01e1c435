package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"tankwatch-chart/common/config"
	"tankwatch-chart/internal/models"
)

const sensorDataPath = "/rest/v1/sensor_data"

// RestReadingSource reads sensor_data from a hosted PostgREST endpoint.
type RestReadingSource struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewRestReadingSource creates a client for cfg.BaseURL.
func NewRestReadingSource(cfg *config.RESTConfig, logger *zap.Logger) *RestReadingSource {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(30*time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(5*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("apikey", cfg.APIKey).
		SetAuthToken(cfg.APIKey)

	return &RestReadingSource{
		httpClient: client,
		logger:     logger,
	}
}

// ReadingsSince same contract as ReadingRepository.ReadingsSince.
func (s *RestReadingSource) ReadingsSince(ctx context.Context, since time.Time, deviceID string) ([]models.ReadingRecord, error) {
	params := map[string]string{
		"select":     "*",
		"created_at": "gte." + since.UTC().Format(time.RFC3339Nano),
		"order":      "created_at.asc",
	}
	if deviceID != "" {
		params["device_id"] = "eq." + deviceID
	}

	var rows []models.SensorDataRow
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&rows).
		Get(sensorDataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to call readings API: %w", err)
	}
	if resp.IsError() {
		s.logger.Error("Readings API returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("body", resp.String()),
		)
		return nil, fmt.Errorf("readings API error: status %d", resp.StatusCode())
	}

	records := make([]models.ReadingRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.ToRecord())
	}
	return records, nil
}
