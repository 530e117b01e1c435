package series

import (
	"time"

	"tankwatch-chart/internal/models"
)

// DefaultGapThreshold samples further apart than this are treated as a
// connectivity lapse.
const DefaultGapThreshold = 10 * time.Minute

// GapMarkerOffset distance of a gap marker from the sample before the gap.
const GapMarkerOffset = 5 * time.Minute

// Annotate turns a single device's ordered series into chart rows, inserting
// one gap marker GapMarkerOffset after the earlier sample of every interval
// longer than threshold. Intervals shorter than twice the offset (only
// possible with a threshold below 10m) get the marker at their midpoint so it
// stays between the two samples. An interval of exactly threshold is not a
// gap, and the first sample never gets a leading marker.
//
// Records sharing a timestamp collapse into one row, the later record winning.
func Annotate(records []models.ReadingRecord, rng models.TimeRange, threshold time.Duration) []models.AlignedRow {
	if threshold <= 0 {
		threshold = DefaultGapThreshold
	}
	layout := rng.LabelLayout()

	rows := make([]models.AlignedRow, 0, len(records))
	for i, rec := range records {
		if i > 0 {
			prev := records[i-1].Timestamp
			if rec.Timestamp.Equal(prev) {
				rows[len(rows)-1] = sampleRow(rec, layout)
				continue
			}
			if interval := rec.Timestamp.Sub(prev); interval > threshold {
				rows = append(rows, gapRow(prev.Add(markerOffset(interval)), layout))
			}
		}
		rows = append(rows, sampleRow(rec, layout))
	}
	return rows
}

func markerOffset(interval time.Duration) time.Duration {
	if interval < 2*GapMarkerOffset {
		return interval / 2
	}
	return GapMarkerOffset
}

func sampleRow(rec models.ReadingRecord, layout string) models.AlignedRow {
	metrics := models.MetricsOf(rec)
	return models.AlignedRow{
		Timestamp:       rec.Timestamp,
		DisplayLabel:    rec.Timestamp.Format(layout),
		Metrics:         &metrics,
		SourceReadingID: rec.ID,
		Annotations:     []models.Comment{},
	}
}

func gapRow(ts time.Time, layout string) models.AlignedRow {
	return models.AlignedRow{
		Timestamp:    ts,
		DisplayLabel: ts.Format(layout),
		Gap:          true,
		Metrics:      &models.MetricSet{},
		Annotations:  []models.Comment{},
	}
}
