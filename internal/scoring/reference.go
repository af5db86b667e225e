package scoring

import (
	"context"
	"sort"
	"time"

	"github.com/advisorhub/retentionservice/internal/domain"
	"github.com/advisorhub/retentionservice/internal/paging"
)

// BuildOfficeReference computes the office-wide normalization snapshot used
// by the value, frequency and engagement sub-scores. It is computed once per
// bulk run and passed explicitly so scoring is reproducible and testable in
// isolation.
func (b *SnapshotBuilder) BuildOfficeReference(ctx context.Context, asOf time.Time) (domain.OfficeReference, error) {
	clients, err := paging.FetchAll(ctx, "clients", b.cfg.PageSize,
		func(ctx context.Context, limit, offset int) ([]domain.Client, error) {
			return b.store.Client().ListActive(ctx, limit, offset)
		})
	if err != nil {
		return domain.OfficeReference{}, err
	}

	ref := domain.OfficeReference{
		ActiveClients: len(clients),
		ComputedAt:    time.Now().UTC(),
	}

	var revenues []float64
	var opsSum, interactionSum float64
	var withHistory int
	for _, c := range clients {
		snap, err := b.Build(ctx, c.ID, asOf)
		if err != nil {
			return domain.OfficeReference{}, err
		}
		if snap.HasRevenueHistory() {
			revenues = append(revenues, snap.AverageMonthlyRevenue)
			opsSum += meanOps(snap.MonthlyOperationCounts)
			withHistory++
		}
		interactionSum += float64(snap.InteractionCount90d)
	}

	// Median average-monthly revenue across clients that ever posted
	// revenue. Clients without history are excluded so a wave of new
	// leads does not drag the reference to zero.
	if len(revenues) > 0 {
		sort.Float64s(revenues)
		mid := len(revenues) / 2
		if len(revenues)%2 == 1 {
			ref.MedianMonthlyRevenue = revenues[mid]
		} else {
			ref.MedianMonthlyRevenue = (revenues[mid-1] + revenues[mid]) / 2
		}
	}
	if withHistory > 0 {
		ref.ReferenceMonthlyOps = opsSum / float64(withHistory)
	}
	if len(clients) > 0 {
		ref.ReferenceInteractions90d = interactionSum / float64(len(clients))
	}

	return ref, nil
}

func meanOps(counts []int) float64 {
	if len(counts) == 0 {
		return 0
	}
	var sum int
	for _, c := range counts {
		sum += c
	}
	return float64(sum) / float64(len(counts))
}
