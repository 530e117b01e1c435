package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tankwatch-chart/internal/cache"
	"tankwatch-chart/internal/consumer"
	"tankwatch-chart/internal/models"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func reading(id, device string, offset time.Duration) models.ReadingRecord {
	return models.ReadingRecord{
		ID:          id,
		DeviceID:    device,
		DeviceTitle: "Tank " + device,
		Timestamp:   base.Add(offset),
		Measurement: 50,
		Battery:     models.BatteryOk,
	}
}

func change(kind string, rec models.ReadingRecord) consumer.Delivery {
	payload, _ := json.Marshal(models.ChangeMessage{
		Type: kind,
		Record: models.SensorDataRow{
			ID:          rec.ID,
			DeviceID:    rec.DeviceID,
			TitleName:   rec.DeviceTitle,
			Measurement: rec.Measurement,
			Battery:     string(rec.Battery),
			CreatedAt:   rec.Timestamp,
		},
	})
	return consumer.Delivery{ID: rec.ID, Payload: payload, ReceivedAt: time.Now()}
}

func testTiming() Timing {
	return Timing{
		ReconcileInterval: time.Hour,
		PostEventDelay:    10 * time.Millisecond,
		LivenessTimeout:   time.Hour,
		GapThreshold:      10 * time.Minute,
		RetryDelay:        20 * time.Millisecond,
		FetchTimeout:      5 * time.Second,
		ResubscribeMin:    10 * time.Millisecond,
		ResubscribeMax:    40 * time.Millisecond,
	}
}

// fetchCall one pending Fetch; the test answers it with reply.
type fetchCall struct {
	rng      models.TimeRange
	deviceID string
	replyCh  chan fetchReply
}

type fetchReply struct {
	records []models.ReadingRecord
	err     error
}

func (c fetchCall) reply(records ...models.ReadingRecord) {
	c.replyCh <- fetchReply{records: records}
}

func (c fetchCall) fail(err error) {
	c.replyCh <- fetchReply{err: err}
}

type fakeFetcher struct {
	calls chan fetchCall
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(chan fetchCall, 32)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, rng models.TimeRange, deviceID string) ([]models.ReadingRecord, error) {
	call := fetchCall{rng: rng, deviceID: deviceID, replyCh: make(chan fetchReply, 1)}
	select {
	case f.calls <- call:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-call.replyCh:
		return r.records, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeFetcher) next(t *testing.T) fetchCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("no fetch issued")
		return fetchCall{}
	}
}

type fakeSub struct {
	events chan consumer.Delivery
	lost   chan error
	closed chan struct{}
	once   sync.Once
}

func (s *fakeSub) Events() <-chan consumer.Delivery { return s.events }
func (s *fakeSub) Lost() <-chan error               { return s.lost }

func (s *fakeSub) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSub) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *fakeSub) send(t *testing.T, d consumer.Delivery) {
	t.Helper()
	select {
	case s.events <- d:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery not consumed")
	}
}

type fakeSource struct {
	mu   sync.Mutex
	err  error
	subs chan *fakeSub
}

func newFakeSource() *fakeSource {
	return &fakeSource{subs: make(chan *fakeSub, 16)}
}

func (s *fakeSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSource) Subscribe(context.Context) (consumer.Subscription, error) {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	sub := &fakeSub{
		events: make(chan consumer.Delivery),
		lost:   make(chan error, 1),
		closed: make(chan struct{}),
	}
	s.subs <- sub
	return sub, nil
}

func (s *fakeSource) next(t *testing.T) *fakeSub {
	t.Helper()
	select {
	case sub := <-s.subs:
		return sub
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription opened")
		return nil
	}
}

// MockComments CommentLister mock
type MockComments struct {
	mock.Mock
}

func (m *MockComments) ListComments(ctx context.Context) ([]models.Comment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Comment), args.Error(1)
}

// MockDevices DeviceLister mock
type MockDevices struct {
	mock.Mock
}

func (m *MockDevices) ListEnabledDevices(ctx context.Context) ([]models.Device, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Device), args.Error(1)
}

type fakeRowStore struct {
	mu     sync.Mutex
	stored map[string]*models.ViewSnapshot
	evicts []string
}

func newFakeRowStore() *fakeRowStore {
	return &fakeRowStore{stored: make(map[string]*models.ViewSnapshot)}
}

func (s *fakeRowStore) Store(_ context.Context, snap *models.ViewSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored[snap.ViewID] = snap
	return nil
}

func (s *fakeRowStore) Load(_ context.Context, viewID string) (*models.ViewSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.stored[viewID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return snap, nil
}

func (s *fakeRowStore) Evict(_ context.Context, viewID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stored, viewID)
	s.evicts = append(s.evicts, viewID)
	return nil
}

func (s *fakeRowStore) get(viewID string) *models.ViewSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored[viewID]
}

func snapshotNow(v *ChartView) (*models.ViewSnapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return v.Snapshot(ctx)
}

// eventually polls the view until cond holds and returns the matching snapshot.
func eventually(t *testing.T, v *ChartView, cond func(*models.ViewSnapshot) bool, msg string) *models.ViewSnapshot {
	t.Helper()
	var last *models.ViewSnapshot
	require.Eventually(t, func() bool {
		snap, err := snapshotNow(v)
		if err != nil {
			return false
		}
		last = snap
		return cond(snap)
	}, 2*time.Second, 5*time.Millisecond, msg)
	return last
}

func seriesIDs(snap *models.ViewSnapshot) []string {
	ids := make([]string, 0, len(snap.Series))
	for _, r := range snap.Series {
		ids = append(ids, r.ID)
	}
	return ids
}

func sameIDs(snap *models.ViewSnapshot, want ...string) bool {
	got := seriesIDs(snap)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
