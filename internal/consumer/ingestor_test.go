package consumer

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tankwatch-chart/internal/models"
)

const insertPayload = `{"type":"INSERT","record":{"id":"r1","device_id":"dev-1","title_name":"LPG",
	"tank_level":40,"battery":"ok","connection_strength":90,"measurement":55,"created_at":"2024-05-01T10:00:00Z"}}`

func TestParseChange_Insert(t *testing.T) {
	evt, err := ParseChange([]byte(insertPayload))

	require.NoError(t, err)
	assert.Equal(t, models.EventInserted, evt.Kind)
	assert.Equal(t, "r1", evt.Record.ID)
	assert.Equal(t, models.BatteryOk, evt.Record.Battery)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), evt.Record.Timestamp.UTC())
}

func TestParseChange_LowercaseUpdate(t *testing.T) {
	evt, err := ParseChange([]byte(`{"type":"update","record":{"id":"r1","device_id":"d","created_at":"2024-05-01T10:00:00Z"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.EventUpdated, evt.Kind)
}

func TestParseChange_Errors(t *testing.T) {
	_, err := ParseChange([]byte(`{not json`))
	assert.True(t, errors.Is(err, ErrMalformedChange))

	_, err = ParseChange([]byte(`{"type":"INSERT","record":{"device_id":"d"}}`))
	assert.True(t, errors.Is(err, ErrMalformedChange))

	_, err = ParseChange([]byte(`{"type":"DELETE","record":{"id":"r1"}}`))
	assert.True(t, errors.Is(err, ErrUnsupportedChange))
}

func TestFilter_Allows(t *testing.T) {
	single := Filter{Mode: models.ModeSingle, DeviceID: "dev-1"}
	assert.True(t, single.Allows("dev-1"))
	assert.False(t, single.Allows("dev-2"))

	multi := Filter{Mode: models.ModeMulti, Enabled: map[string]bool{"dev-1": true}}
	assert.True(t, multi.Allows("dev-1"))
	assert.False(t, multi.Allows("dev-3"))

	assert.True(t, Filter{Mode: models.ModeMulti}.Allows("anything"))
}

func TestIngestor_CountsEveryOutcome(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	ing := NewIngestor(metrics, zap.NewNop())
	filter := Filter{Mode: models.ModeSingle, DeviceID: "dev-1"}

	evt, ok := ing.Ingest(Delivery{Payload: []byte(insertPayload)}, filter)
	assert.True(t, ok)
	assert.Equal(t, "r1", evt.Record.ID)

	_, ok = ing.Ingest(Delivery{Payload: []byte(insertPayload)}, Filter{Mode: models.ModeSingle, DeviceID: "other"})
	assert.False(t, ok)

	_, ok = ing.Ingest(Delivery{Payload: []byte(`garbage`)}, filter)
	assert.False(t, ok)

	snapshot := metrics.GetSnapshot()
	assert.Equal(t, int64(3), snapshot.MessagesReceived)
	assert.Equal(t, int64(1), snapshot.MessagesForwarded)
	assert.Equal(t, int64(1), snapshot.MessagesFiltered)
	assert.Equal(t, int64(1), snapshot.MessagesMalformed)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.received))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.malformed))
}

func TestLiveness_TimeoutAndRecovery(t *testing.T) {
	l := NewLiveness(3 * time.Minute)
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, models.LivenessUnknown, l.State().Status)
	assert.False(t, l.Expire(t0.Add(time.Hour)), "never connected stays Unknown")

	l.Observe(t0)
	assert.Equal(t, models.LivenessConnected, l.State().Status)
	deadline, ok := l.Deadline()
	require.True(t, ok)
	assert.Equal(t, t0.Add(3*time.Minute), deadline)

	assert.False(t, l.Expire(t0.Add(2*time.Minute)))
	assert.True(t, l.Expire(t0.Add(3*time.Minute)))
	state := l.State()
	assert.Equal(t, models.LivenessAwaiting, state.Status)
	assert.Equal(t, models.DegradeTimeout, state.Reason)
	assert.Equal(t, t0, *state.LastEventAt)

	l.Observe(t0.Add(5 * time.Minute))
	state = l.State()
	assert.Equal(t, models.LivenessConnected, state.Status)
	assert.Equal(t, models.DegradeNone, state.Reason)
}

func TestLiveness_TransportLostIsImmediate(t *testing.T) {
	l := NewLiveness(time.Minute)
	l.Observe(time.Now())
	l.TransportLost()

	state := l.State()
	assert.Equal(t, models.LivenessAwaiting, state.Status)
	assert.Equal(t, models.DegradeTransportLost, state.Reason)
	_, ok := l.Deadline()
	assert.False(t, ok)
}

func TestLiveness_StateIsACopy(t *testing.T) {
	l := NewLiveness(time.Minute)
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l.Observe(t0)

	s := l.State()
	*s.LastEventAt = t0.Add(time.Hour)

	assert.Equal(t, t0, *l.State().LastEventAt)
}
