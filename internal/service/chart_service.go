package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"tankwatch-chart/common/database"
	rediscommon "tankwatch-chart/common/redis"
	"tankwatch-chart/internal/cache"
	"tankwatch-chart/internal/config"
	"tankwatch-chart/internal/consumer"
	"tankwatch-chart/internal/httpapi"
	"tankwatch-chart/internal/repository"
	"tankwatch-chart/internal/window"
)

// ChartService live chart sync service
type ChartService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	metrics     *consumer.Metrics
	devices     *repository.DeviceRepository
	commentFeed *repository.CommentFeed
	manager     *ViewManager
	server      *http.Server
}

// NewChartService connects the backends and builds the view manager and API.
func NewChartService(cfg *config.Config, logger *zap.Logger) (*ChartService, error) {
	db, err := database.Connect(context.Background(), &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Chart.LiveTransport == config.TransportRedis || cfg.Chart.CacheRows {
		redisClient, err = rediscommon.Connect(context.Background(), &cfg.Redis)
		if err != nil {
			database.Close(db)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Historical readings
	var readings window.ReadingSource
	switch cfg.Chart.ReadingSource {
	case config.SourceREST:
		readings = repository.NewRestReadingSource(&cfg.REST, logger)
	default:
		readings = repository.NewReadingRepository(db, logger)
	}

	// Live changes
	var source consumer.EventSource
	switch cfg.Chart.LiveTransport {
	case config.TransportMQTT:
		source = consumer.NewMQTTSource(&cfg.MQTT, cfg.Chart.LiveTopic, logger)
	default:
		source = consumer.NewRedisStreamSource(redisClient, cfg.Chart.LiveStream, logger)
	}

	metrics := consumer.NewMetrics(registry)
	comments := repository.NewCommentRepository(db, logger)
	devices := repository.NewDeviceRepository(db, logger)

	deps := ViewDeps{
		Fetcher:  window.NewFetcher(readings, logger),
		Source:   source,
		Ingestor: consumer.NewIngestor(metrics, logger),
		Comments: comments,
		Devices:  devices,
		Logger:   logger,
	}
	if cfg.Chart.CacheRows {
		deps.Cache = cache.NewRowCache(cache.NewRedisKVStore(redisClient), 2*cfg.Chart.ReconcileInterval, logger)
	}

	var commentFeed *repository.CommentFeed
	if cfg.Chart.CommentFeed {
		commentFeed, err = repository.NewCommentFeed(cfg.Database.GetDSN(), logger)
		if err != nil {
			logger.Warn("Comment feed unavailable, comments refresh on insert and scope change only", zap.Error(err))
			commentFeed = nil
		}
	}

	manager := NewViewManager(deps, timingFromConfig(cfg), cfg.Chart.MaxViews, registry)

	router := httpapi.NewRouter(logger)
	router.RegisterViewRoutes(httpapi.NewViewHandler(manager, logger))
	router.RegisterCommentRoutes(httpapi.NewCommentHandler(comments, manager.NotifyComments, logger))
	router.RegisterMetrics(registry)

	return &ChartService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		metrics:     metrics,
		devices:     devices,
		commentFeed: commentFeed,
		manager:     manager,
		server: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func timingFromConfig(cfg *config.Config) Timing {
	t := DefaultTiming()
	t.ReconcileInterval = cfg.Chart.ReconcileInterval
	t.PostEventDelay = cfg.Chart.PostEventDelay
	t.LivenessTimeout = cfg.Chart.LivenessTimeout
	t.GapThreshold = cfg.Chart.GapThreshold
	t.RetryDelay = cfg.Chart.RetryDelay
	t.AlignBucket = cfg.Chart.AlignBucket
	return t
}

// Start runs the background tasks and serves the API until ctx is done or
// the listener fails.
func (s *ChartService) Start(ctx context.Context) error {
	s.logger.Info("Starting chart sync service",
		zap.String("reading_source", s.config.Chart.ReadingSource),
		zap.String("live_transport", s.config.Chart.LiveTransport),
		zap.Bool("comment_feed", s.commentFeed != nil),
		zap.Bool("cache_rows", s.config.Chart.CacheRows),
		zap.String("addr", s.config.HTTP.Addr),
	)

	go s.metrics.Report(ctx, s.logger, s.config.Chart.MetricsReport)
	go s.startDevicePolling(ctx)
	if s.commentFeed != nil {
		go s.commentFeed.Run(ctx, func(op string) {
			s.logger.Debug("Comments changed", zap.String("op", op))
			s.manager.NotifyComments()
		})
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// startDevicePolling refreshes the device roster of every open view.
func (s *ChartService) startDevicePolling(ctx context.Context) {
	ticker := time.NewTicker(s.config.Chart.DeviceRefresh)
	defer ticker.Stop()

	s.logger.Info("Starting device roster polling",
		zap.Duration("interval", s.config.Chart.DeviceRefresh),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.manager.Len() == 0 {
				continue
			}
			devices, err := s.devices.ListEnabledDevices(ctx)
			if err != nil {
				s.logger.Error("Failed to refresh device roster", zap.Error(err))
				continue
			}
			s.manager.UpdateDevices(ctx, devices)
		}
	}
}

// Stop shuts the API down, stops every view and closes the backends.
func (s *ChartService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping chart sync service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error shutting down http server", zap.Error(err))
	}

	s.manager.CloseAll()

	if s.commentFeed != nil {
		if err := s.commentFeed.Close(); err != nil {
			s.logger.Error("Error closing comment feed", zap.Error(err))
		}
	}

	if err := rediscommon.Close(s.redisClient); err != nil {
		s.logger.Error("Error closing redis connection", zap.Error(err))
	}

	if err := database.Close(s.db); err != nil {
		s.logger.Error("Error closing database connection", zap.Error(err))
	}

	s.logger.Info("Chart sync service stopped")
	return nil
}
