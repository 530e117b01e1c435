package consumer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tankwatch-chart/internal/models"
)

var (
	// ErrMalformedChange payload is not a usable change message.
	ErrMalformedChange = errors.New("malformed change message")
	// ErrUnsupportedChange change kind other than insert/update.
	ErrUnsupportedChange = errors.New("unsupported change kind")
)

// ParseChange decodes a transport payload into a live event.
func ParseChange(payload []byte) (models.LiveEvent, error) {
	var msg models.ChangeMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.LiveEvent{}, fmt.Errorf("%w: %v", ErrMalformedChange, err)
	}

	kind := models.EventKind(strings.ToUpper(msg.Type))
	switch kind {
	case models.EventInserted, models.EventUpdated:
	default:
		return models.LiveEvent{}, fmt.Errorf("%w: %q", ErrUnsupportedChange, msg.Type)
	}

	if msg.Record.ID == "" || msg.Record.DeviceID == "" || msg.Record.CreatedAt.IsZero() {
		return models.LiveEvent{}, fmt.Errorf("%w: record id, device_id and created_at are required", ErrMalformedChange)
	}

	return models.LiveEvent{Kind: kind, Record: msg.Record.ToRecord()}, nil
}

// Filter relevance of live events to one view.
type Filter struct {
	Mode     models.Mode
	DeviceID string
	// Enabled roster for comparison mode; nil means every device.
	Enabled map[string]bool
}

// Allows reports whether a record of deviceID belongs to the view.
func (f Filter) Allows(deviceID string) bool {
	if f.Mode == models.ModeSingle {
		return deviceID == f.DeviceID
	}
	if f.Enabled == nil {
		return true
	}
	return f.Enabled[deviceID]
}

// Ingestor parses deliveries and applies the view filter, keeping counts.
type Ingestor struct {
	metrics *Metrics
	logger  *zap.Logger
}

// NewIngestor creates an ingestor reporting into metrics.
func NewIngestor(metrics *Metrics, logger *zap.Logger) *Ingestor {
	return &Ingestor{metrics: metrics, logger: logger}
}

// Ingest returns the event and true when it should reach the view's series.
func (i *Ingestor) Ingest(d Delivery, filter Filter) (models.LiveEvent, bool) {
	i.metrics.IncrementReceived()

	evt, err := ParseChange(d.Payload)
	if err != nil {
		if errors.Is(err, ErrUnsupportedChange) {
			i.metrics.IncrementFiltered()
			return models.LiveEvent{}, false
		}
		i.metrics.IncrementMalformed()
		i.logger.Warn("Dropping malformed live message",
			zap.String("message_id", d.ID),
			zap.Error(err),
		)
		return models.LiveEvent{}, false
	}

	if !filter.Allows(evt.Record.DeviceID) {
		i.metrics.IncrementFiltered()
		return models.LiveEvent{}, false
	}

	i.metrics.IncrementForwarded()
	i.logger.Debug("Live event forwarded",
		zap.String("kind", string(evt.Kind)),
		zap.String("reading_id", evt.Record.ID),
		zap.String("device_id", evt.Record.DeviceID),
	)
	return evt, true
}
