package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tankwatch-chart/common/config"
	"tankwatch-chart/internal/models"
)

func TestRestReadingSource_ReadingsSince(t *testing.T) {
	since := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sensorDataPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "*", q.Get("select"))
		assert.Equal(t, "gte.2024-05-01T09:00:00Z", q.Get("created_at"))
		assert.Equal(t, "created_at.asc", q.Get("order"))
		assert.Equal(t, "eq.dev-1", q.Get("device_id"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"r1","device_id":"dev-1","title_name":"LPG","tank_level":40,"battery":"Low",
			 "connection_strength":80,"measurement":61.5,"created_at":"2024-05-01T09:05:00Z"}
		]`))
	}))
	defer srv.Close()

	src := NewRestReadingSource(&config.RESTConfig{BaseURL: srv.URL, APIKey: "anon-key"}, zap.NewNop())

	got, err := src.ReadingsSince(context.Background(), since, "dev-1")

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, models.BatteryLow, got[0].Battery)
	assert.Equal(t, 61.5, got[0].Measurement)
	assert.True(t, got[0].Timestamp.Equal(since.Add(5*time.Minute)))
}

func TestRestReadingSource_AllDevicesOmitsFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("device_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	src := NewRestReadingSource(&config.RESTConfig{BaseURL: srv.URL}, zap.NewNop())

	got, err := src.ReadingsSince(context.Background(), time.Now(), "")

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRestReadingSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid api key"}`))
	}))
	defer srv.Close()

	src := NewRestReadingSource(&config.RESTConfig{BaseURL: srv.URL, APIKey: "bad"}, zap.NewNop())

	_, err := src.ReadingsSince(context.Background(), time.Now(), "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
