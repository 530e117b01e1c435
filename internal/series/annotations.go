package series

import (
	"sort"

	"tankwatch-chart/internal/models"
)

// Join attaches comments to rows by source reading ID and returns new rows;
// the input is not modified. Comments are ordered newest first (ties keep the
// store's order). Rows without matches, gap markers included, get an empty
// non-nil slice. Comparison rows carry comments per device reading and the
// union on the row itself.
func Join(rows []models.AlignedRow, comments []models.Comment) []models.AlignedRow {
	byReading := indexComments(comments)

	out := make([]models.AlignedRow, len(rows))
	for i, row := range rows {
		joined := row
		if row.Devices != nil {
			joined.Devices = make(map[string]models.DeviceMetrics, len(row.Devices))
			var all []models.Comment
			for _, deviceID := range sortedDevices(row.Devices) {
				dm := row.Devices[deviceID]
				dm.Annotations = lookup(byReading, dm.SourceReadingID)
				all = append(all, dm.Annotations...)
				joined.Devices[deviceID] = dm
			}
			joined.Annotations = newestFirst(all)
		} else {
			joined.Annotations = lookup(byReading, row.SourceReadingID)
		}
		out[i] = joined
	}
	return out
}

func indexComments(comments []models.Comment) map[string][]models.Comment {
	byReading := make(map[string][]models.Comment)
	for _, c := range comments {
		if c.SourceReadingID == "" {
			continue
		}
		byReading[c.SourceReadingID] = append(byReading[c.SourceReadingID], c)
	}
	for id, list := range byReading {
		byReading[id] = newestFirst(list)
	}
	return byReading
}

func lookup(byReading map[string][]models.Comment, readingID string) []models.Comment {
	if readingID == "" {
		return []models.Comment{}
	}
	list := byReading[readingID]
	out := make([]models.Comment, len(list))
	copy(out, list)
	return out
}

func newestFirst(list []models.Comment) []models.Comment {
	out := make([]models.Comment, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func sortedDevices(devices map[string]models.DeviceMetrics) []string {
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
