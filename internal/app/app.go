package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/advisorhub/retentionservice/internal/cache"
	"github.com/advisorhub/retentionservice/internal/config"
	"github.com/advisorhub/retentionservice/internal/crm/repo/postgres"
	"github.com/advisorhub/retentionservice/internal/events"
	"github.com/advisorhub/retentionservice/internal/log"
	"github.com/advisorhub/retentionservice/internal/metrics"
	"github.com/advisorhub/retentionservice/internal/service"
	"github.com/advisorhub/retentionservice/internal/tracing"
)

// App wires the retention worker: the analytics service over the
// PostgreSQL store, plus its optional collaborators (Redis score cache,
// Kafka lifecycle publisher, metrics server, tracing).
type App struct {
	config        *config.Config
	logger        *zap.Logger
	store         *postgres.Store
	scoreCache    *cache.Cache
	publisher     events.Publisher
	metricsServer *metrics.Server
	service       *service.AnalyticsService
	shutdownTrace func()
}

// New creates a new application instance
func New(cfg *config.Config) (*App, error) {
	if err := log.Init(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := log.L(context.Background())

	logger.Info("Initializing retention analytics worker",
		zap.Int("metrics_port", cfg.Metrics.Port),
		zap.Int("interval_seconds", cfg.Worker.IntervalSeconds))

	var shutdownTrace func()
	if cfg.Tracing.Enabled {
		tcfg := tracing.DefaultConfig()
		tcfg.ServiceName = cfg.Tracing.ServiceName
		tcfg.JaegerEndpoint = cfg.Tracing.JaegerEndpoint
		tcfg.SamplingRatio = cfg.Tracing.SamplingRatio
		var err error
		shutdownTrace, err = tracing.Init(tcfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	store, err := postgres.NewStore(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	// Redis is optional; a miss just means every score is recomputed.
	var scoreCache *cache.ScoreCache
	redisCache, err := cache.NewCache(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis initialization failed, continuing without score cache",
			zap.Error(err),
			zap.String("redis_addr", cfg.Redis.GetRedisAddr()))
		redisCache = nil
	} else {
		scoreCache = cache.NewScoreCache(redisCache, time.Duration(cfg.Redis.ScoreTTLSeconds)*time.Second)
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Kafka.Enabled {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize kafka publisher: %w", err)
		}
		publisher = kp
	}

	return &App{
		config:        cfg,
		logger:        logger,
		store:         store,
		scoreCache:    redisCache,
		publisher:     publisher,
		metricsServer: metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port), logger),
		service:       service.NewAnalyticsService(store, cfg.Scoring, scoreCache, publisher),
		shutdownTrace: shutdownTrace,
	}, nil
}

// Service exposes the wired analytics service
func (a *App) Service() *service.AnalyticsService {
	return a.service
}

// Run starts the metrics server and the periodic scoring cycle, and
// blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	go func() {
		if err := a.metricsServer.Start(ctx); err != nil {
			a.logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	interval := time.Duration(a.config.Worker.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Info("Retention worker started", zap.Duration("interval", interval))

	// Run one cycle immediately rather than waiting a full interval.
	a.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Retention worker stopping")
			return nil
		case <-ticker.C:
			a.runCycle(ctx)
		}
	}
}

// runCycle recomputes all health scores, opens churn events for newly
// degraded clients and resolves pending events against observed outcomes.
func (a *App) runCycle(ctx context.Context) {
	start := time.Now()
	asOf := time.Now().UTC()

	scored, err := a.service.BulkComputeHealthScores(ctx, asOf)
	if err != nil {
		log.Error(ctx, "Bulk score recomputation failed", zap.Error(err))
		return
	}

	opened, err := a.service.ScanChurnRisk(ctx, asOf)
	if err != nil {
		log.Error(ctx, "Churn risk scan failed", zap.Error(err))
		return
	}

	retained, churned, err := a.service.ResolveChurnEvents(ctx, asOf)
	if err != nil {
		log.Error(ctx, "Churn event resolution failed", zap.Error(err))
		return
	}

	log.Info(ctx, "Scoring cycle complete",
		zap.Int("clients_scored", scored),
		zap.Int("churn_events_opened", opened),
		zap.Int("churn_events_retained", retained),
		zap.Int("churn_events_churned", churned),
		zap.Duration("elapsed", time.Since(start)))
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down retention worker")

	if err := a.metricsServer.Shutdown(ctx); err != nil {
		a.logger.Error("Failed to shut down metrics server", zap.Error(err))
	}

	if err := a.publisher.Close(); err != nil {
		a.logger.Error("Failed to close event publisher", zap.Error(err))
	}

	if a.scoreCache != nil {
		if err := a.scoreCache.Close(); err != nil {
			a.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("Failed to close store", zap.Error(err))
		}
	}

	if a.shutdownTrace != nil {
		a.shutdownTrace()
	}

	a.logger.Info("Shutdown complete")
	return nil
}
