package series

import (
	"sort"
	"time"

	"tankwatch-chart/internal/models"
)

// Align pivots a multi-device series into comparison rows, one per distinct
// instant. Grouping is by exact timestamp equality: two devices reporting
// half a second apart land in two rows, each populated only for its own
// device. Within a group a later record of the same device overwrites an
// earlier one.
func Align(records []models.ReadingRecord, rng models.TimeRange) []models.AlignedRow {
	return align(records, rng, func(t time.Time) time.Time { return t })
}

// AlignBucketed is the opt-in relaxation of Align: timestamps are truncated
// to bucket before grouping, so devices with independent clocks share rows.
// A non-positive bucket falls back to exact alignment.
func AlignBucketed(records []models.ReadingRecord, rng models.TimeRange, bucket time.Duration) []models.AlignedRow {
	if bucket <= 0 {
		return Align(records, rng)
	}
	return align(records, rng, func(t time.Time) time.Time { return t.Truncate(bucket) })
}

func align(records []models.ReadingRecord, rng models.TimeRange, keyFn func(time.Time) time.Time) []models.AlignedRow {
	layout := rng.LabelLayout()
	byInstant := make(map[int64]int)
	rows := make([]models.AlignedRow, 0)

	for _, rec := range records {
		ts := keyFn(rec.Timestamp)
		k := ts.UnixNano()
		idx, ok := byInstant[k]
		if !ok {
			rows = append(rows, models.AlignedRow{
				Timestamp:    ts,
				DisplayLabel: ts.Format(layout),
				Devices:      make(map[string]models.DeviceMetrics),
				Annotations:  []models.Comment{},
			})
			idx = len(rows) - 1
			byInstant[k] = idx
		}
		rows[idx].Devices[rec.DeviceID] = models.DeviceMetrics{
			MetricSet:       models.MetricsOf(rec),
			SourceReadingID: rec.ID,
			Annotations:     []models.Comment{},
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
	return rows
}

// FilterDevices keeps records whose device is in allowed.
func FilterDevices(records []models.ReadingRecord, allowed map[string]bool) []models.ReadingRecord {
	out := make([]models.ReadingRecord, 0, len(records))
	for _, rec := range records {
		if allowed[rec.DeviceID] {
			out = append(out, rec)
		}
	}
	return out
}
