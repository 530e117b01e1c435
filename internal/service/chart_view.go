package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"tankwatch-chart/internal/consumer"
	"tankwatch-chart/internal/models"
	"tankwatch-chart/internal/series"
)

// Fetcher window query
type Fetcher interface {
	Fetch(ctx context.Context, rng models.TimeRange, deviceID string) ([]models.ReadingRecord, error)
}

// CommentLister annotation store read side
type CommentLister interface {
	ListComments(ctx context.Context) ([]models.Comment, error)
}

// DeviceLister device roster
type DeviceLister interface {
	ListEnabledDevices(ctx context.Context) ([]models.Device, error)
}

// RowStore shared cache of rendered views
type RowStore interface {
	Store(ctx context.Context, snapshot *models.ViewSnapshot) error
	Load(ctx context.Context, viewID string) (*models.ViewSnapshot, error)
	Evict(ctx context.Context, viewID string) error
}

// Timing chart view timings.
type Timing struct {
	ReconcileInterval time.Duration
	PostEventDelay    time.Duration
	LivenessTimeout   time.Duration
	GapThreshold      time.Duration
	RetryDelay        time.Duration
	AlignBucket       time.Duration // 0 = exact timestamp alignment
	FetchTimeout      time.Duration
	ResubscribeMin    time.Duration
	ResubscribeMax    time.Duration
}

// DefaultTiming production timings.
func DefaultTiming() Timing {
	return Timing{
		ReconcileInterval: 2 * time.Minute,
		PostEventDelay:    time.Second,
		LivenessTimeout:   consumer.DefaultLivenessTimeout,
		GapThreshold:      series.DefaultGapThreshold,
		RetryDelay:        10 * time.Second,
		FetchTimeout:      30 * time.Second,
		ResubscribeMin:    time.Second,
		ResubscribeMax:    30 * time.Second,
	}
}

// ViewDeps collaborators shared by every view. Comments, Devices and Cache
// are optional.
type ViewDeps struct {
	Fetcher  Fetcher
	Source   consumer.EventSource
	Ingestor *consumer.Ingestor
	Comments CommentLister
	Devices  DeviceLister
	Cache    RowStore
	Logger   *zap.Logger

	metrics *viewMetrics
}

type scopeRequest struct {
	scope models.Scope
}

type visibilityRequest struct {
	deviceID string
	visible  bool
}

type subscribeResult struct {
	generation uint64
	sub        consumer.Subscription
	err        error
}

type fetchResult struct {
	generation uint64
	seq        uint64
	mark       series.Mark
	reason     string
	records    []models.ReadingRecord
	err        error
}

type commentsResult struct {
	seq      uint64
	comments []models.Comment
	err      error
}

// ChartView one live chart: a window snapshot kept current by live events
// and periodic re-fetches, rendered into rows. All view state is owned by the
// goroutine started in Start; the exported methods talk to it over channels.
type ChartView struct {
	id      string
	initial models.Scope
	deps    ViewDeps
	timing  Timing
	logger  *zap.Logger
	now     func() time.Time

	scopeCh      chan scopeRequest
	visibilityCh chan visibilityRequest
	commentsCh   chan struct{}
	devicesCh    chan []models.Device
	snapshotCh   chan chan *models.ViewSnapshot

	subDone      chan subscribeResult
	fetchDone    chan fetchResult
	commentsDone chan commentsResult
	cacheCh      chan *models.ViewSnapshot

	cancel  context.CancelFunc
	stopped chan struct{}
	writers sync.WaitGroup
}

// NewChartView creates a view; it does nothing until Start.
func NewChartView(id string, scope models.Scope, deps ViewDeps, timing Timing) (*ChartView, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.metrics == nil {
		deps.metrics = newViewMetrics(nil)
	}
	if deps.Ingestor == nil {
		deps.Ingestor = consumer.NewIngestor(consumer.NewMetrics(nil), logger)
	}
	return &ChartView{
		id:      id,
		initial: scope.Normalized(),
		deps:    deps,
		timing:  timing,
		logger:  logger.With(zap.String("view_id", id)),
		now:     time.Now,

		scopeCh:      make(chan scopeRequest),
		visibilityCh: make(chan visibilityRequest),
		commentsCh:   make(chan struct{}, 1),
		devicesCh:    make(chan []models.Device),
		snapshotCh:   make(chan chan *models.ViewSnapshot),

		subDone:      make(chan subscribeResult),
		fetchDone:    make(chan fetchResult),
		commentsDone: make(chan commentsResult),
		cacheCh:      make(chan *models.ViewSnapshot, 1),

		stopped: make(chan struct{}),
	}, nil
}

// ID view identifier
func (v *ChartView) ID() string {
	return v.id
}

// Start runs the view until ctx is done or Stop is called.
func (v *ChartView) Start(ctx context.Context) {
	ctx, v.cancel = context.WithCancel(ctx)
	go v.run(ctx)
	if v.deps.Cache != nil {
		v.writers.Add(1)
		go v.cacheWriter(ctx)
	}
}

// Stop tears the view down and waits until its resources are released.
func (v *ChartView) Stop() {
	if v.cancel == nil {
		return
	}
	v.cancel()
	<-v.stopped
	v.writers.Wait()
}

// SetScope switches range, mode or device. The current series is dropped
// and reseeded; fetches issued for the old scope are discarded on arrival.
func (v *ChartView) SetScope(ctx context.Context, scope models.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	select {
	case v.scopeCh <- scopeRequest{scope: scope}:
		return nil
	case <-v.stopped:
		return models.ErrViewClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetVisibility shows or hides one device in comparison mode.
func (v *ChartView) SetVisibility(ctx context.Context, deviceID string, visible bool) error {
	select {
	case v.visibilityCh <- visibilityRequest{deviceID: deviceID, visible: visible}:
		return nil
	case <-v.stopped:
		return models.ErrViewClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateDevices replaces the device roster used for relevance and rendering.
func (v *ChartView) UpdateDevices(ctx context.Context, devices []models.Device) error {
	select {
	case v.devicesCh <- devices:
		return nil
	case <-v.stopped:
		return models.ErrViewClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NotifyComments schedules a comment reload; bursts coalesce.
func (v *ChartView) NotifyComments() {
	select {
	case v.commentsCh <- struct{}{}:
	default:
	}
}

// Snapshot current rendering of the view.
func (v *ChartView) Snapshot(ctx context.Context) (*models.ViewSnapshot, error) {
	reply := make(chan *models.ViewSnapshot, 1)
	select {
	case v.snapshotCh <- reply:
	case <-v.stopped:
		return nil, models.ErrViewClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-v.stopped:
		return nil, models.ErrViewClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// viewState owned by the run goroutine.
type viewState struct {
	scope      models.Scope
	generation uint64

	series   *series.Reconciler
	liveness *consumer.Liveness
	status   models.LivenessStatus // last status reported to metrics

	comments       []models.Comment
	commentSeq     uint64
	commentApplied uint64

	enabled map[string]bool // nil until the roster is known
	hidden  map[string]bool

	rows         []models.AlignedRow
	fetchSeq     uint64
	fetchApplied uint64
	lastFetchAt  *time.Time
	lastFetchErr error
	seeded       bool // a fetch was issued for this generation
	backoff      time.Duration
	updatedAt    time.Time
}

func (st *viewState) filter() consumer.Filter {
	return consumer.Filter{Mode: st.scope.Mode, DeviceID: st.scope.DeviceID, Enabled: st.enabled}
}

func (v *ChartView) run(ctx context.Context) {
	defer close(v.stopped)

	st := &viewState{
		scope:  v.initial,
		series: series.NewReconciler(),
		hidden: make(map[string]bool),
	}
	res := &resources{}
	v.deps.metrics.openViews.Inc()
	defer func() {
		res.release()
		v.reportStatus(st, "")
		v.deps.metrics.openViews.Dec()
		v.logger.Info("Chart view stopped")
	}()

	v.logger.Info("Chart view started",
		zap.String("range", string(st.scope.Range)),
		zap.String("mode", string(st.scope.Mode)),
		zap.String("device_id", st.scope.DeviceID),
	)

	v.loadDevices(ctx)
	v.loadComments(ctx, st)
	v.enterScope(ctx, st, res)

	for {
		select {
		case <-ctx.Done():
			return

		case d, ok := <-res.events():
			if !ok {
				v.onLost(st, res, res.closeReason())
				continue
			}
			v.onDelivery(st, res, d)

		case err := <-res.lost():
			v.onLost(st, res, err)

		case <-res.reconcileC():
			v.fetch(ctx, st, "periodic")

		case <-res.postEvent.C():
			res.postEvent.Fired()
			v.fetch(ctx, st, "post_event")

		case <-res.retry.C():
			res.retry.Fired()
			v.fetch(ctx, st, "retry")

		case <-res.liveness.C():
			res.liveness.Fired()
			v.onLivenessTimer(st, res)

		case <-res.resubscribe.C():
			res.resubscribe.Fired()
			v.subscribe(ctx, st)

		case r := <-v.subDone:
			v.onSubscribed(ctx, st, res, r)

		case r := <-v.fetchDone:
			v.onFetched(st, res, r)

		case r := <-v.commentsDone:
			v.onComments(st, r)

		case <-v.commentsCh:
			v.loadComments(ctx, st)

		case devices := <-v.devicesCh:
			v.applyDevices(st, devices)

		case req := <-v.scopeCh:
			req.scope = req.scope.Normalized()
			if req.scope == st.scope {
				continue
			}
			v.logger.Info("View scope changed",
				zap.String("range", string(req.scope.Range)),
				zap.String("mode", string(req.scope.Mode)),
				zap.String("device_id", req.scope.DeviceID),
			)
			st.scope = req.scope
			v.enterScope(ctx, st, res)

		case req := <-v.visibilityCh:
			if req.visible {
				delete(st.hidden, req.deviceID)
			} else {
				st.hidden[req.deviceID] = true
			}
			v.recompute(st)

		case reply := <-v.snapshotCh:
			reply <- v.snapshot(st)
		}
	}
}

// enterScope releases everything held for the previous scope and starts
// over: new generation, empty series, fresh subscription.
func (v *ChartView) enterScope(ctx context.Context, st *viewState, res *resources) {
	res.release()

	st.generation++
	st.series.Reset()
	st.liveness = consumer.NewLiveness(v.timing.LivenessTimeout)
	v.reportStatus(st, st.liveness.State().Status)
	st.lastFetchAt = nil
	st.lastFetchErr = nil
	st.seeded = false
	st.backoff = 0
	v.recompute(st)

	res.reconcile = time.NewTicker(v.timing.ReconcileInterval)
	v.subscribe(ctx, st)
}

func (v *ChartView) subscribe(ctx context.Context, st *viewState) {
	gen := st.generation
	go func() {
		sub, err := v.deps.Source.Subscribe(ctx)
		select {
		case v.subDone <- subscribeResult{generation: gen, sub: sub, err: err}:
		case <-ctx.Done():
			if sub != nil {
				sub.Close()
			}
		}
	}()
}

func (v *ChartView) onSubscribed(ctx context.Context, st *viewState, res *resources, r subscribeResult) {
	if r.generation != st.generation {
		if r.sub != nil {
			r.sub.Close()
		}
		return
	}

	if r.err != nil {
		v.logger.Warn("Live subscription failed", zap.Error(r.err))
		st.liveness.TransportLost()
		v.reportStatus(st, st.liveness.State().Status)
		v.scheduleResubscribe(st, res)
		if !st.seeded {
			v.fetch(ctx, st, "seed")
		}
		return
	}

	res.dropSubscription()
	res.sub = r.sub
	st.backoff = 0

	// Catch up on whatever was written before the feed was attached.
	v.fetch(ctx, st, "subscribe")
}

func (v *ChartView) onLost(st *viewState, res *resources, err error) {
	v.logger.Warn("Live subscription lost", zap.Error(err))
	res.dropSubscription()
	res.liveness.Stop()
	st.liveness.TransportLost()
	v.reportStatus(st, st.liveness.State().Status)
	v.scheduleResubscribe(st, res)
}

func (v *ChartView) scheduleResubscribe(st *viewState, res *resources) {
	delay := st.backoff
	if delay <= 0 {
		delay = v.timing.ResubscribeMin
	}
	res.resubscribe.Arm(delay)

	st.backoff = delay * 2
	if st.backoff > v.timing.ResubscribeMax {
		st.backoff = v.timing.ResubscribeMax
	}
	v.logger.Debug("Resubscribe scheduled", zap.Duration("backoff", delay))
}

func (v *ChartView) onDelivery(st *viewState, res *resources, d consumer.Delivery) {
	st.liveness.Observe(v.now())
	v.reportStatus(st, st.liveness.State().Status)
	res.liveness.Arm(v.timing.LivenessTimeout)

	evt, ok := v.deps.Ingestor.Ingest(d, st.filter())
	if !ok {
		return
	}

	st.series.Apply(evt)
	res.postEvent.ArmIfIdle(v.timing.PostEventDelay)
	v.recompute(st)
}

func (v *ChartView) onLivenessTimer(st *viewState, res *resources) {
	now := v.now()
	if st.liveness.Expire(now) {
		v.logger.Info("Live channel silent, awaiting data",
			zap.Duration("timeout", v.timing.LivenessTimeout),
		)
		v.reportStatus(st, st.liveness.State().Status)
		return
	}
	if deadline, ok := st.liveness.Deadline(); ok {
		res.liveness.Arm(deadline.Sub(now))
	}
}

func (v *ChartView) fetch(ctx context.Context, st *viewState, reason string) {
	st.seeded = true
	st.fetchSeq++
	req := fetchResult{
		generation: st.generation,
		seq:        st.fetchSeq,
		mark:       st.series.Mark(),
		reason:     reason,
	}
	scope := st.scope

	go func() {
		fctx, cancel := context.WithTimeout(ctx, v.timing.FetchTimeout)
		req.records, req.err = v.deps.Fetcher.Fetch(fctx, scope.Range, scope.FetchDeviceID())
		cancel()

		select {
		case v.fetchDone <- req:
		case <-ctx.Done():
		}
	}()
}

func (v *ChartView) onFetched(st *viewState, res *resources, r fetchResult) {
	if r.generation != st.generation || r.seq < st.fetchApplied {
		v.deps.metrics.fetches.WithLabelValues("stale").Inc()
		v.logger.Debug("Discarding stale window fetch",
			zap.Uint64("generation", r.generation),
			zap.Uint64("seq", r.seq),
			zap.String("reason", r.reason),
		)
		return
	}

	if r.err != nil {
		v.deps.metrics.fetches.WithLabelValues("failed").Inc()
		st.lastFetchErr = r.err
		v.logger.Warn("Window fetch failed, keeping last series",
			zap.String("reason", r.reason),
			zap.Duration("retry_in", v.timing.RetryDelay),
			zap.Error(r.err),
		)
		res.retry.ArmIfIdle(v.timing.RetryDelay)
		return
	}

	v.deps.metrics.fetches.WithLabelValues("applied").Inc()
	st.series.Replace(r.records, r.mark)
	st.fetchApplied = r.seq
	now := v.now()
	st.lastFetchAt = &now
	st.lastFetchErr = nil
	res.retry.Stop()

	v.logger.Debug("Window fetch applied",
		zap.String("reason", r.reason),
		zap.Int("records", len(r.records)),
		zap.Int("provisional_kept", st.series.ProvisionalCount()),
	)
	v.recompute(st)
}

func (v *ChartView) loadComments(ctx context.Context, st *viewState) {
	if v.deps.Comments == nil {
		return
	}
	st.commentSeq++
	seq := st.commentSeq

	go func() {
		comments, err := v.deps.Comments.ListComments(ctx)
		select {
		case v.commentsDone <- commentsResult{seq: seq, comments: comments, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (v *ChartView) onComments(st *viewState, r commentsResult) {
	if r.seq < st.commentApplied {
		return
	}
	if r.err != nil {
		v.logger.Warn("Failed to load comments", zap.Error(r.err))
		return
	}
	st.commentApplied = r.seq
	st.comments = r.comments
	v.recompute(st)
}

func (v *ChartView) loadDevices(ctx context.Context) {
	if v.deps.Devices == nil {
		return
	}
	go func() {
		devices, err := v.deps.Devices.ListEnabledDevices(ctx)
		if err != nil {
			v.logger.Warn("Failed to load device roster", zap.Error(err))
			return
		}
		select {
		case v.devicesCh <- devices:
		case <-ctx.Done():
		}
	}()
}

func (v *ChartView) applyDevices(st *viewState, devices []models.Device) {
	enabled := make(map[string]bool, len(devices))
	for _, d := range devices {
		if d.Enabled {
			enabled[d.ID] = true
		}
	}
	st.enabled = enabled
	v.recompute(st)
}

// recompute derives the chart rows from the series. Rows are rebuilt, never
// edited in place, so published snapshots stay valid.
func (v *ChartView) recompute(st *viewState) {
	records := st.series.Records()

	var rows []models.AlignedRow
	if st.scope.Mode == models.ModeSingle {
		rows = series.Annotate(records, st.scope.Range, v.timing.GapThreshold)
	} else {
		visible := make(map[string]bool)
		for _, r := range records {
			if _, seen := visible[r.DeviceID]; seen {
				continue
			}
			visible[r.DeviceID] = !st.hidden[r.DeviceID] && (st.enabled == nil || st.enabled[r.DeviceID])
		}
		rows = series.AlignBucketed(series.FilterDevices(records, visible), st.scope.Range, v.timing.AlignBucket)
	}

	st.rows = series.Join(rows, st.comments)
	st.updatedAt = v.now()

	if v.deps.Cache != nil {
		v.storeRows(v.snapshot(st))
	}
}

func (v *ChartView) snapshot(st *viewState) *models.ViewSnapshot {
	snap := &models.ViewSnapshot{
		ViewID:           v.id,
		Scope:            st.scope,
		Liveness:         st.liveness.State(),
		Rows:             st.rows,
		RecordCount:      st.series.Len(),
		ProvisionalCount: st.series.ProvisionalCount(),
		UpdatedAt:        st.updatedAt,
		Series:           st.series.Records(),
	}
	if st.lastFetchAt != nil {
		at := *st.lastFetchAt
		snap.LastFetchAt = &at
	}
	if st.lastFetchErr != nil {
		snap.LastFetchError = st.lastFetchErr.Error()
	}
	for id := range st.hidden {
		snap.HiddenDevices = append(snap.HiddenDevices, id)
	}
	sort.Strings(snap.HiddenDevices)
	return snap
}

// storeRows hands the latest snapshot to the cache writer, replacing one
// that has not been written yet.
func (v *ChartView) storeRows(snap *models.ViewSnapshot) {
	select {
	case v.cacheCh <- snap:
		return
	default:
	}
	select {
	case <-v.cacheCh:
	default:
	}
	select {
	case v.cacheCh <- snap:
	default:
	}
}

func (v *ChartView) cacheWriter(ctx context.Context) {
	defer v.writers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-v.cacheCh:
			sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := v.deps.Cache.Store(sctx, snap); err != nil {
				v.logger.Warn("Failed to cache view rows", zap.Error(err))
			}
			cancel()
		}
	}
}

// reportStatus moves this view between the liveness gauge buckets; an empty
// next status removes it.
func (v *ChartView) reportStatus(st *viewState, next models.LivenessStatus) {
	if st.status == next {
		return
	}
	if st.status != "" {
		v.deps.metrics.liveness.WithLabelValues(string(st.status)).Dec()
	}
	if next != "" {
		v.deps.metrics.liveness.WithLabelValues(string(next)).Inc()
	}
	st.status = next
}
