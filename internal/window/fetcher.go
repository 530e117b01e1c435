package window

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"tankwatch-chart/internal/models"
)

// ReadingSource historical query against the readings table: every reading
// created at or after since, ascending, optionally restricted to one device.
type ReadingSource interface {
	ReadingsSince(ctx context.Context, since time.Time, deviceID string) ([]models.ReadingRecord, error)
}

// FetchError wraps a failed window query.
type FetchError struct {
	Range    models.TimeRange
	DeviceID string
	Err      error
}

func (e *FetchError) Error() string {
	if e.DeviceID == "" {
		return fmt.Sprintf("fetch %s window: %v", e.Range, e.Err)
	}
	return fmt.Sprintf("fetch %s window for device %s: %v", e.Range, e.DeviceID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsFetchError reports whether err came from a window fetch.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// Fetcher resolves chart ranges into historical queries.
type Fetcher struct {
	source ReadingSource
	logger *zap.Logger
	now    func() time.Time
}

// NewFetcher creates a fetcher over source.
func NewFetcher(source ReadingSource, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the fetcher's clock.
func (f *Fetcher) WithClock(now func() time.Time) *Fetcher {
	f.now = now
	return f
}

// Fetch returns the readings of the window [now-range, now], ascending by
// timestamp. An empty deviceID fetches every device.
func (f *Fetcher) Fetch(ctx context.Context, rng models.TimeRange, deviceID string) ([]models.ReadingRecord, error) {
	w, err := Resolve(rng, f.now())
	if err != nil {
		return nil, &FetchError{Range: rng, DeviceID: deviceID, Err: err}
	}

	records, err := f.source.ReadingsSince(ctx, w.Start, deviceID)
	if err != nil {
		return nil, &FetchError{Range: rng, DeviceID: deviceID, Err: err}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	f.logger.Debug("Fetched window",
		zap.String("range", string(rng)),
		zap.String("device_id", deviceID),
		zap.Time("since", w.Start),
		zap.Int("count", len(records)),
	)
	return records, nil
}
