package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"tankwatch-chart/internal/cache"
	"tankwatch-chart/internal/models"
)

// ViewManager keeps the open chart views by ID.
type ViewManager struct {
	mu       sync.RWMutex
	views    map[string]*ChartView
	deps     ViewDeps
	timing   Timing
	maxViews int
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewViewManager views share deps; maxViews <= 0 means no limit.
func NewViewManager(deps ViewDeps, timing Timing, maxViews int, reg prometheus.Registerer) *ViewManager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.metrics = newViewMetrics(reg)
	ctx, cancel := context.WithCancel(context.Background())
	return &ViewManager{
		views:    make(map[string]*ChartView),
		deps:     deps,
		timing:   timing,
		maxViews: maxViews,
		logger:   deps.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Open starts a view for scope and returns its ID.
func (m *ViewManager) Open(scope models.Scope) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxViews > 0 && len(m.views) >= m.maxViews {
		return "", models.ErrTooManyViews
	}

	id := uuid.NewString()
	view, err := NewChartView(id, scope, m.deps, m.timing)
	if err != nil {
		return "", err
	}
	view.Start(m.ctx)
	m.views[id] = view

	m.logger.Info("Chart view opened",
		zap.String("view_id", id),
		zap.Int("open_views", len(m.views)),
	)
	return id, nil
}

func (m *ViewManager) get(id string) (*ChartView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	view, ok := m.views[id]
	if !ok {
		return nil, models.ErrViewNotFound
	}
	return view, nil
}

// Snapshot renders an open view, falling back to the shared cache for views
// owned by another process.
func (m *ViewManager) Snapshot(ctx context.Context, id string) (*models.ViewSnapshot, error) {
	view, err := m.get(id)
	if err == nil {
		return view.Snapshot(ctx)
	}
	if m.deps.Cache == nil {
		return nil, err
	}

	snap, cacheErr := m.deps.Cache.Load(ctx, id)
	if cacheErr != nil {
		if !errors.Is(cacheErr, cache.ErrCacheMiss) {
			m.logger.Warn("Failed to load cached view", zap.String("view_id", id), zap.Error(cacheErr))
		}
		return nil, models.ErrViewNotFound
	}
	return snap, nil
}

// SetScope changes an open view's scope.
func (m *ViewManager) SetScope(ctx context.Context, id string, scope models.Scope) error {
	view, err := m.get(id)
	if err != nil {
		return err
	}
	return view.SetScope(ctx, scope)
}

// SetVisibility toggles a device of an open view.
func (m *ViewManager) SetVisibility(ctx context.Context, id, deviceID string, visible bool) error {
	view, err := m.get(id)
	if err != nil {
		return err
	}
	return view.SetVisibility(ctx, deviceID, visible)
}

// Close stops a view and drops its cached rows.
func (m *ViewManager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	view, ok := m.views[id]
	delete(m.views, id)
	m.mu.Unlock()
	if !ok {
		return models.ErrViewNotFound
	}

	view.Stop()
	if m.deps.Cache != nil {
		if err := m.deps.Cache.Evict(ctx, id); err != nil {
			m.logger.Warn("Failed to evict cached view", zap.String("view_id", id), zap.Error(err))
		}
	}
	m.logger.Info("Chart view closed", zap.String("view_id", id))
	return nil
}

// NotifyComments tells every view to reload comments.
func (m *ViewManager) NotifyComments() {
	for _, view := range m.snapshotViews() {
		view.NotifyComments()
	}
}

// UpdateDevices pushes a new roster to every view.
func (m *ViewManager) UpdateDevices(ctx context.Context, devices []models.Device) {
	for _, view := range m.snapshotViews() {
		if err := view.UpdateDevices(ctx, devices); err != nil && !errors.Is(err, models.ErrViewClosed) {
			m.logger.Warn("Failed to update device roster",
				zap.String("view_id", view.ID()),
				zap.Error(err),
			)
		}
	}
}

// Len number of open views.
func (m *ViewManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.views)
}

// CloseAll stops every view.
func (m *ViewManager) CloseAll() {
	m.mu.Lock()
	views := m.views
	m.views = make(map[string]*ChartView)
	m.mu.Unlock()

	m.cancel()
	for _, view := range views {
		view.Stop()
	}
}

func (m *ViewManager) snapshotViews() []*ChartView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	views := make([]*ChartView, 0, len(m.views))
	for _, view := range m.views {
		views = append(views, view)
	}
	return views
}
