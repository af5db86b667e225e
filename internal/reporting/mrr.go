package reporting

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/advisorhub/retentionservice/internal/domain"
	"github.com/advisorhub/retentionservice/internal/metrics"
	"github.com/advisorhub/retentionservice/internal/paging"
)

// reconcileTolerance absorbs float64 summation noise; any larger mismatch
// between the decomposition and the raw delta is a data or logic bug.
const reconcileTolerance = 1e-6

// RevenueMrrReport decomposes month-over-month revenue movement into
// New/Expansion/Contraction/Churn per client, summed per month over
// [from, to). The net movement of each month must reconcile to the raw
// office-wide revenue delta; a mismatch surfaces as InconsistentState.
func (r *Reporter) RevenueMrrReport(ctx context.Context, from, to time.Time) ([]domain.MRRMovement, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "RevenueMrrReport")
	defer span.End()
	defer metrics.ObserveReport("mrr", time.Now())

	from = domain.MonthStart(from)
	to = domain.MonthStart(to)
	if !from.Before(to) {
		return nil, domain.NewInvalidInputError("empty date range",
			fmt.Sprintf("from %s, to %s", domain.MonthKey(from), domain.MonthKey(to)))
	}

	// The first month in range compares against the month before it.
	fetchFrom := domain.AddMonths(from, -1)
	events, err := paging.FetchAll(ctx, "revenue", r.cfg.PageSize,
		func(ctx context.Context, limit, offset int) ([]domain.RevenueEvent, error) {
			return r.store.Revenue().ListByDateRange(ctx, fetchFrom, to, limit, offset)
		})
	if err != nil {
		return nil, err
	}

	// month key -> client -> revenue total
	byMonth := make(map[string]map[uuid.UUID]float64)
	for _, e := range events {
		key := domain.MonthKey(e.Date)
		if byMonth[key] == nil {
			byMonth[key] = make(map[uuid.UUID]float64)
		}
		byMonth[key][e.ClientID] += e.Amount
	}

	var report []domain.MRRMovement
	for month := from; month.Before(to); month = domain.AddMonths(month, 1) {
		current := byMonth[domain.MonthKey(month)]
		prior := byMonth[domain.MonthKey(domain.AddMonths(month, -1))]

		movement := decomposeMonth(domain.MonthKey(month), current, prior)

		var currentTotal, priorTotal float64
		for _, v := range current {
			currentTotal += v
		}
		for _, v := range prior {
			priorTotal += v
		}
		rawDelta := currentTotal - priorTotal
		if math.Abs(movement.Net-rawDelta) > reconcileTolerance {
			return nil, domain.NewInconsistentStateError(
				"MRR decomposition does not reconcile to the raw revenue delta",
				fmt.Sprintf("month %s: net %.6f, raw delta %.6f", movement.Month, movement.Net, rawDelta))
		}

		report = append(report, movement)
	}
	return report, nil
}

// decomposeMonth classifies each client's revenue delta against the same
// client's prior month:
//   - New: prior 0 (or no history), current > 0 — full current amount
//   - Expansion: prior > 0, current > prior — the positive delta
//   - Contraction: prior > 0, 0 < current < prior — the negative delta
//   - Churn: prior > 0, current 0 — the full prior amount, negated
func decomposeMonth(month string, current, prior map[uuid.UUID]float64) domain.MRRMovement {
	movement := domain.MRRMovement{Month: month}

	for clientID, curr := range current {
		prev := prior[clientID]
		switch {
		case prev <= 0 && curr > 0:
			movement.New += curr
		case prev > 0 && curr > prev:
			movement.Expansion += curr - prev
		case prev > 0 && curr > 0 && curr < prev:
			movement.Contraction += curr - prev
		}
	}
	for clientID, prev := range prior {
		if prev > 0 && current[clientID] == 0 {
			movement.Churn -= prev
		}
	}

	movement.Net = movement.New + movement.Expansion + movement.Contraction + movement.Churn
	return movement
}
