package scoring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/advisorhub/retentionservice/internal/config"
	"github.com/advisorhub/retentionservice/internal/crm/repo"
	"github.com/advisorhub/retentionservice/internal/domain"
	"github.com/advisorhub/retentionservice/internal/paging"
)

// SnapshotBuilder derives ClientActivitySnapshots from raw revenue and
// interaction history. Snapshots are computed on demand and never stored.
type SnapshotBuilder struct {
	store repo.Store
	cfg   config.ScoringConfig
}

func NewSnapshotBuilder(store repo.Store, cfg config.ScoringConfig) *SnapshotBuilder {
	return &SnapshotBuilder{store: store, cfg: cfg}
}

// Build computes the activity snapshot for one client as of the given date.
// A client with no revenue history is a valid snapshot, not an error.
func (b *SnapshotBuilder) Build(ctx context.Context, clientID uuid.UUID, asOf time.Time) (domain.ClientActivitySnapshot, error) {
	snap := domain.ClientActivitySnapshot{
		ClientID:             clientID,
		AsOf:                 asOf,
		DaysSinceLastRevenue: -1,
	}

	events, err := paging.FetchAll(ctx, "revenue", b.cfg.PageSize,
		func(ctx context.Context, limit, offset int) ([]domain.RevenueEvent, error) {
			return b.store.Revenue().ListByClient(ctx, clientID, limit, offset)
		})
	if err != nil {
		return domain.ClientActivitySnapshot{}, err
	}

	asOfMonth := domain.MonthStart(asOf)
	var firstMonth, lastMonth time.Time
	for _, e := range events {
		if e.Date.After(asOfMonth) {
			continue
		}
		if firstMonth.IsZero() || e.Date.Before(firstMonth) {
			firstMonth = e.Date
		}
		if e.Date.After(lastMonth) {
			lastMonth = e.Date
		}
	}

	if !lastMonth.IsZero() {
		// Revenue dates are month-granular; measure staleness from the
		// end of the last revenue month so a posting this month counts
		// as current.
		lastActivity := domain.AddMonths(lastMonth, 1).Add(-24 * time.Hour)
		if lastActivity.After(asOf) {
			lastActivity = asOf
		}
		snap.DaysSinceLastRevenue = int(asOf.Sub(lastActivity).Hours() / 24)
	}

	// Trailing window covers only months the client's history spans:
	// shorter histories are computed over the months that exist, not
	// padded with zeros.
	if !firstMonth.IsZero() {
		windowStart := domain.AddMonths(asOfMonth, -(b.cfg.TrailingMonths - 1))
		if firstMonth.After(windowStart) {
			windowStart = firstMonth
		}
		months := domain.MonthsBetween(windowStart, asOfMonth) + 1

		counts := make([]int, months)
		totals := make([]float64, months)
		for _, e := range events {
			if e.Date.Before(windowStart) || e.Date.After(asOfMonth) {
				continue
			}
			idx := domain.MonthsBetween(windowStart, e.Date)
			counts[idx]++
			totals[idx] += e.Amount
		}
		snap.MonthlyOperationCounts = counts
		snap.MonthlyRevenue = totals

		var sum float64
		for _, t := range totals {
			sum += t
		}
		snap.AverageMonthlyRevenue = sum / float64(months)
		snap.RevenueTrend = monthOverMonthTrend(totals)
	}

	engagementFrom := asOf.AddDate(0, 0, -b.cfg.EngagementWindowDays)
	interactions, err := paging.FetchAll(ctx, "interactions", b.cfg.PageSize,
		func(ctx context.Context, limit, offset int) ([]domain.Interaction, error) {
			return b.store.Interaction().ListByClient(ctx, clientID, engagementFrom, asOf, limit, offset)
		})
	if err != nil {
		return domain.ClientActivitySnapshot{}, err
	}
	snap.InteractionCount90d = len(interactions)

	return snap, nil
}

// monthOverMonthTrend computes the slope between the last two observed
// months as a ratio of the earlier month, capped to [-1, 1] so a single
// outlier month cannot dominate.
func monthOverMonthTrend(totals []float64) float64 {
	if len(totals) < 2 {
		return 0
	}
	prev, curr := totals[len(totals)-2], totals[len(totals)-1]
	if prev <= 0 {
		if curr > 0 {
			return 1
		}
		return 0
	}
	trend := (curr - prev) / prev
	if trend > 1 {
		trend = 1
	}
	if trend < -1 {
		trend = -1
	}
	return trend
}
