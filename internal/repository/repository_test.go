package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tankwatch-chart/internal/models"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var readingCols = []string{"id", "device_id", "title_name", "measurement", "tank_level", "connection_strength", "battery", "created_at"}

func TestReadingsSince_SingleDevice(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReadingRepository(db, zap.NewNop())

	since := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(readingCols).
		AddRow("r1", "dev-1", "LPG 15kg", 55.5, 41.2, 88, "Full", since.Add(time.Minute)).
		AddRow("r2", "dev-1", nil, 55.0, 41.0, 87, "weird", since.Add(2*time.Minute))

	mock.ExpectQuery(regexp.QuoteMeta(`FROM sensor_data WHERE created_at >= $1 AND device_id = $2 ORDER BY created_at ASC`)).
		WithArgs(since, "dev-1").
		WillReturnRows(rows)

	got, err := repo.ReadingsSince(context.Background(), since, "dev-1")

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "LPG 15kg", got[0].DeviceTitle)
	assert.Equal(t, models.BatteryFull, got[0].Battery)
	assert.Equal(t, "", got[1].DeviceTitle)
	assert.Equal(t, models.BatteryUnknown, got[1].Battery)
	assert.Equal(t, "weird", got[1].BatteryText)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadingsSince_AllDevices(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReadingRepository(db, zap.NewNop())

	since := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM sensor_data WHERE created_at >= $1 ORDER BY created_at ASC`)).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows(readingCols))

	got, err := repo.ReadingsSince(context.Background(), since, "")

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Len(t, got, 0)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadingsSince_QueryError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewReadingRepository(db, zap.NewNop())

	mock.ExpectQuery(`FROM sensor_data`).WillReturnError(errors.New("db down"))

	_, err := repo.ReadingsSince(context.Background(), time.Now(), "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query readings")
}

func TestListEnabledDevices(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewDeviceRepository(db, zap.NewNop())

	rows := sqlmock.NewRows([]string{"id", "name", "title", "color", "enabled"}).
		AddRow("dev-1", "kitchen", "LPG 15kg", "#8884d8", true).
		AddRow("dev-2", "garage", nil, nil, true)
	mock.ExpectQuery(`SELECT id, name, title, color, enabled\s+FROM devices\s+WHERE enabled = TRUE`).
		WillReturnRows(rows)

	devices, err := repo.ListEnabledDevices(context.Background())

	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "#8884d8", devices[0].Color)
	assert.Equal(t, "", devices[1].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListComments(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCommentRepository(db, zap.NewNop())

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "source_reading_id", "text", "author", "created_at"}).
		AddRow("c2", "r1", "refilled", "ops", ts.Add(time.Hour)).
		AddRow("c1", nil, "orphan", nil, ts)
	mock.ExpectQuery(`ORDER BY created_at DESC`).WillReturnRows(rows)

	comments, err := repo.ListComments(context.Background())

	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "c2", comments[0].ID)
	assert.Equal(t, "", comments[1].SourceReadingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertComment_Success(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCommentRepository(db, zap.NewNop())

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO comments`).
		WithArgs(sqlmock.AnyArg(), "r1", "valve replaced", "ops").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	c, err := repo.InsertComment(context.Background(), models.NewComment{
		SourceReadingID: "r1",
		Text:            "  valve replaced ",
		Author:          "ops",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "valve replaced", c.Text)
	assert.Equal(t, created, c.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertComment_Validation(t *testing.T) {
	db, _ := setupMockDB(t)
	repo := NewCommentRepository(db, zap.NewNop())

	_, err := repo.InsertComment(context.Background(), models.NewComment{SourceReadingID: "r1", Text: "  "})
	assert.True(t, errors.Is(err, ErrInvalidComment))

	_, err = repo.InsertComment(context.Background(), models.NewComment{Text: "x"})
	assert.True(t, errors.Is(err, ErrInvalidComment))
}

func TestInsertComment_DBError(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCommentRepository(db, zap.NewNop())

	mock.ExpectQuery(`INSERT INTO comments`).WillReturnError(errors.New("constraint"))

	_, err := repo.InsertComment(context.Background(), models.NewComment{SourceReadingID: "r1", Text: "x"})

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidComment))
}
