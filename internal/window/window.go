package window

import (
	"fmt"
	"time"

	"github.com/sosodev/duration"

	"tankwatch-chart/internal/models"
)

// rangeDurations ISO-8601 length of each chart range. 1w is seven days and
// 1m is thirty days, not calendar units.
var rangeDurations = map[models.TimeRange]string{
	models.Range3h:  "PT3H",
	models.Range6h:  "PT6H",
	models.Range24h: "PT24H",
	models.Range1w:  "P7D",
	models.Range1m:  "P30D",
}

// Window time span [Start, End] of a fetch.
type Window struct {
	Start time.Time
	End   time.Time
}

// Length of a range.
func Length(rng models.TimeRange) (time.Duration, error) {
	iso, ok := rangeDurations[rng]
	if !ok {
		return 0, fmt.Errorf("%w: %q", models.ErrInvalidRange, rng)
	}
	d, err := duration.Parse(iso)
	if err != nil {
		return 0, fmt.Errorf("parse range %s: %w", iso, err)
	}
	return d.ToTimeDuration(), nil
}

// Resolve anchors a range at now.
func Resolve(rng models.TimeRange, now time.Time) (Window, error) {
	d, err := Length(rng)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: now.Add(-d), End: now}, nil
}

// ISO returns the ISO-8601 form of a range, e.g. "P7D" for 1w.
func ISO(rng models.TimeRange) string {
	return rangeDurations[rng]
}
