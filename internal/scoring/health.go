package scoring

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/advisorhub/retentionservice/internal/cache"
	"github.com/advisorhub/retentionservice/internal/config"
	"github.com/advisorhub/retentionservice/internal/crm/repo"
	"github.com/advisorhub/retentionservice/internal/domain"
	"github.com/advisorhub/retentionservice/internal/log"
	"github.com/advisorhub/retentionservice/internal/metrics"
	"github.com/advisorhub/retentionservice/internal/paging"
)

// Calculator computes composite health scores. Per-client computations are
// fully independent; bulk recomputation runs them on a bounded worker pool.
type Calculator struct {
	store     repo.Store
	cfg       config.ScoringConfig
	snapshots *SnapshotBuilder
	scores    *cache.ScoreCache // optional
}

// NewCalculator creates a new health score calculator. scoreCache may be
// nil when no cache is configured.
func NewCalculator(store repo.Store, cfg config.ScoringConfig, scoreCache *cache.ScoreCache) *Calculator {
	return &Calculator{
		store:     store,
		cfg:       cfg,
		snapshots: NewSnapshotBuilder(store, cfg),
		scores:    scoreCache,
	}
}

// ComputeHealthScore computes, persists and returns the health score for
// one client as of the given date. The office reference is computed fresh.
func (c *Calculator) ComputeHealthScore(ctx context.Context, clientID uuid.UUID, asOf time.Time) (domain.HealthScore, error) {
	ref, err := c.snapshots.BuildOfficeReference(ctx, asOf)
	if err != nil {
		return domain.HealthScore{}, err
	}
	return c.ComputeWithReference(ctx, clientID, asOf, ref)
}

// ComputeWithReference computes, persists and returns the health score for
// one client against an explicit office reference snapshot.
func (c *Calculator) ComputeWithReference(ctx context.Context, clientID uuid.UUID, asOf time.Time, ref domain.OfficeReference) (domain.HealthScore, error) {
	if _, err := c.store.Client().GetByID(ctx, clientID); err != nil {
		return domain.HealthScore{}, err
	}

	snap, err := c.snapshots.Build(ctx, clientID, asOf)
	if err != nil {
		return domain.HealthScore{}, err
	}

	score := domain.HealthScore{
		ClientID:   clientID,
		Score:      ScoreSnapshot(snap, ref, c.cfg),
		ComputedAt: time.Now().UTC(),
	}
	score.Classification = domain.Classify(score.Score)

	if err := c.store.HealthScore().Upsert(ctx, score); err != nil {
		return domain.HealthScore{}, err
	}

	if c.scores != nil {
		if err := c.scores.SetScore(ctx, score); err != nil {
			log.Warn(ctx, "Failed to cache health score",
				zap.String("client_id", clientID.String()), zap.Error(err))
		}
	}

	metrics.ScoresComputed.WithLabelValues(string(score.Classification)).Inc()
	return score, nil
}

// BulkComputeHealthScores recomputes scores for every active client as of
// the given date. Computation is bounded by the configured concurrency and
// completes or fails as a batch: a store-level failure aborts, while
// clients with sparse data still score normally. Returns the number of
// clients successfully recomputed.
func (c *Calculator) BulkComputeHealthScores(ctx context.Context, asOf time.Time) (int, error) {
	start := time.Now()
	defer metrics.BulkComputeDuration.Observe(time.Since(start).Seconds())

	clients, err := paging.FetchAll(ctx, "clients", c.cfg.PageSize,
		func(ctx context.Context, limit, offset int) ([]domain.Client, error) {
			return c.store.Client().ListActive(ctx, limit, offset)
		})
	if err != nil {
		return 0, err
	}

	ref, err := c.snapshots.BuildOfficeReference(ctx, asOf)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, c.cfg.BulkConcurrency)
	var wg sync.WaitGroup
	var succeeded atomic.Int64
	var errOnce sync.Once
	var firstErr error

	for _, client := range clients {
		wg.Add(1)
		sem <- struct{}{}
		go func(client domain.Client) {
			defer wg.Done()
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			if _, err := c.ComputeWithReference(ctx, client.ID, asOf, ref); err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			succeeded.Add(1)
		}(client)
	}
	wg.Wait()

	if firstErr != nil {
		log.Error(ctx, "Bulk health score recomputation aborted",
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int("total", len(clients)),
			zap.Error(firstErr))
		return int(succeeded.Load()), firstErr
	}

	log.Info(ctx, "Bulk health score recomputation finished",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int("total", len(clients)),
		zap.Duration("elapsed", time.Since(start)))
	return int(succeeded.Load()), nil
}

// Subscores holds the five normalized 0-100 sub-scores before weighting
type Subscores struct {
	Recency    float64
	Frequency  float64
	Value      float64
	Trend      float64
	Engagement float64
}

// ComputeSubscores normalizes a snapshot's signals against the office
// reference. Pure function shared with the churn predictor.
func ComputeSubscores(snap domain.ClientActivitySnapshot, ref domain.OfficeReference, cfg config.ScoringConfig) Subscores {
	return Subscores{
		Recency:    recencyScore(snap, cfg),
		Frequency:  frequencyScore(snap, ref),
		Value:      valueScore(snap, ref),
		Trend:      trendScore(snap),
		Engagement: engagementScore(snap, ref),
	}
}

// ScoreSnapshot computes the composite 0-100 score for a snapshot against
// an office reference. Pure function: identical inputs yield the identical
// score.
func ScoreSnapshot(snap domain.ClientActivitySnapshot, ref domain.OfficeReference, cfg config.ScoringConfig) float64 {
	s := ComputeSubscores(snap, ref, cfg)
	score := cfg.RecencyWeight*s.Recency +
		cfg.FrequencyWeight*s.Frequency +
		cfg.ValueWeight*s.Value +
		cfg.TrendWeight*s.Trend +
		cfg.EngageWeight*s.Engagement
	return clamp(score, 0, 100)
}

// recencyScore decreases linearly from 100 at zero days to 0 at the
// staleness horizon. A client with no revenue history scores 0 by
// definition.
func recencyScore(snap domain.ClientActivitySnapshot, cfg config.ScoringConfig) float64 {
	if !snap.HasRevenueHistory() {
		return 0
	}
	days := float64(snap.DaysSinceLastRevenue)
	horizon := float64(cfg.StalenessHorizonDays)
	return clamp(100*(1-days/horizon), 0, 100)
}

// frequencyScore normalizes operations-per-month against the office-wide
// reference frequency, saturating at 100.
func frequencyScore(snap domain.ClientActivitySnapshot, ref domain.OfficeReference) float64 {
	ops := meanOps(snap.MonthlyOperationCounts)
	if ref.ReferenceMonthlyOps <= 0 {
		if ops > 0 {
			return 100
		}
		return 0
	}
	return clamp(100*ops/ref.ReferenceMonthlyOps, 0, 100)
}

// valueScore compares trailing average monthly revenue to the office-wide
// median; at or above the median saturates at 100. A client with no
// revenue history scores 0 by definition.
func valueScore(snap domain.ClientActivitySnapshot, ref domain.OfficeReference) float64 {
	if !snap.HasRevenueHistory() {
		return 0
	}
	if ref.MedianMonthlyRevenue <= 0 {
		if snap.AverageMonthlyRevenue > 0 {
			return 100
		}
		return 0
	}
	return clamp(100*snap.AverageMonthlyRevenue/ref.MedianMonthlyRevenue, 0, 100)
}

// trendScore maps the capped month-over-month slope onto 0-100. Flat
// revenue scores 75, growth tops out at 100, a halved-or-worse month
// bottoms out at 0. Fewer than two observed months is treated as flat
// rather than penalized.
func trendScore(snap domain.ClientActivitySnapshot) float64 {
	if !snap.HasRevenueHistory() {
		return 0
	}
	if len(snap.MonthlyRevenue) < 2 {
		return 75
	}
	t := snap.RevenueTrend
	if t >= 0 {
		return clamp(75+25*t, 0, 100)
	}
	return clamp(75+75*t, 0, 100)
}

// engagementScore normalizes the trailing interaction count against the
// office-wide reference, saturating at 100.
func engagementScore(snap domain.ClientActivitySnapshot, ref domain.OfficeReference) float64 {
	count := float64(snap.InteractionCount90d)
	if ref.ReferenceInteractions90d <= 0 {
		if count > 0 {
			return 100
		}
		return 0
	}
	return clamp(100*count/ref.ReferenceInteractions90d, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
