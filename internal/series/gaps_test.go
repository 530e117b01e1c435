package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tankwatch-chart/internal/models"
)

func TestAnnotate_InsertsMarkerForLongInterval(t *testing.T) {
	records := []models.ReadingRecord{
		rec("a", "d1", 0, 50),
		rec("b", "d1", 25*time.Minute, 51),
	}

	rows := Annotate(records, models.Range24h, DefaultGapThreshold)

	require.Len(t, rows, 3)
	assert.False(t, rows[0].Gap)
	assert.True(t, rows[1].Gap)
	assert.Equal(t, base.Add(5*time.Minute), rows[1].Timestamp)
	assert.True(t, rows[1].Metrics.IsEmpty())
	assert.Empty(t, rows[1].SourceReadingID)
	assert.Equal(t, "b", rows[2].SourceReadingID)
}

func TestAnnotate_ExactThresholdIsNotAGap(t *testing.T) {
	records := []models.ReadingRecord{
		rec("a", "d1", 0, 50),
		rec("b", "d1", 10*time.Minute, 51),
	}

	rows := Annotate(records, models.Range3h, DefaultGapThreshold)

	require.Len(t, rows, 2)
	assert.False(t, rows[0].Gap)
	assert.False(t, rows[1].Gap)
}

func TestAnnotate_NoLeadingMarker(t *testing.T) {
	rows := Annotate([]models.ReadingRecord{rec("a", "d1", 0, 50)}, models.Range3h, DefaultGapThreshold)

	require.Len(t, rows, 1)
	assert.False(t, rows[0].Gap)
	assert.Equal(t, 50.0, *rows[0].Metrics.GasLevel)
	assert.Equal(t, 75, *rows[0].Metrics.BatteryLevel)
}

func TestAnnotate_EmptySeries(t *testing.T) {
	rows := Annotate(nil, models.Range3h, DefaultGapThreshold)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestAnnotate_MultipleGaps(t *testing.T) {
	records := []models.ReadingRecord{
		rec("a", "d1", 0, 1),
		rec("b", "d1", 11*time.Minute, 2),
		rec("c", "d1", 12*time.Minute, 3),
		rec("d", "d1", time.Hour, 4),
	}

	rows := Annotate(records, models.Range6h, DefaultGapThreshold)

	gaps := 0
	for _, row := range rows {
		if row.Gap {
			gaps++
		}
	}
	assert.Equal(t, 2, gaps)
	assert.Len(t, rows, 6)
}

func TestAnnotate_CustomThreshold(t *testing.T) {
	records := []models.ReadingRecord{
		rec("a", "d1", 0, 1),
		rec("b", "d1", 3*time.Minute, 2),
	}

	rows := Annotate(records, models.Range3h, 2*time.Minute)

	require.Len(t, rows, 3)
	assert.Equal(t, base.Add(time.Minute), rows[1].Timestamp)
}

func TestAnnotate_LabelsFollowRange(t *testing.T) {
	records := []models.ReadingRecord{rec("a", "d1", 0, 1)}

	assert.Equal(t, "12:00", Annotate(records, models.Range3h, 0)[0].DisplayLabel)
	assert.Equal(t, "May 01 12:00", Annotate(records, models.Range1w, 0)[0].DisplayLabel)
	assert.Equal(t, "May 01", Annotate(records, models.Range1m, 0)[0].DisplayLabel)
}

func TestAnnotate_SameTimestampCollapses(t *testing.T) {
	records := []models.ReadingRecord{
		rec("a", "d1", 0, 1),
		rec("b", "d1", 0, 2),
	}

	rows := Annotate(records, models.Range3h, DefaultGapThreshold)

	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].SourceReadingID)
}

func TestAnnotate_MarkerOffsetIndependentOfThreshold(t *testing.T) {
	records := []models.ReadingRecord{
		rec("a", "d1", 0, 50),
		rec("b", "d1", 30*time.Minute, 51),
	}

	rows := Annotate(records, models.Range24h, 20*time.Minute)

	require.Len(t, rows, 3)
	assert.True(t, rows[1].Gap)
	assert.Equal(t, base.Add(GapMarkerOffset), rows[1].Timestamp)
}

func TestAnnotate_ShortThresholdKeepsMarkerBetweenSamples(t *testing.T) {
	records := []models.ReadingRecord{
		rec("a", "d1", 0, 50),
		rec("b", "d1", 4*time.Minute, 51),
	}

	rows := Annotate(records, models.Range24h, 3*time.Minute)

	require.Len(t, rows, 3)
	assert.True(t, rows[1].Gap)
	assert.Equal(t, base.Add(2*time.Minute), rows[1].Timestamp)
}
