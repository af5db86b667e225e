package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/advisorhub/retentionservice/internal/config"
	"github.com/advisorhub/retentionservice/internal/crm/repo/memory"
	"github.com/advisorhub/retentionservice/internal/domain"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func seedRevenue(store *memory.Store, clientID uuid.UUID, date time.Time, amount float64) {
	store.SeedRevenue(domain.RevenueEvent{ID: uuid.New(), ClientID: clientID, Date: date, Amount: amount})
}

func TestRevenueMrrReport_Decomposition(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := NewReporter(store, config.DefaultScoring(), nil)

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	// A expands 100 -> 150, B churns 200 -> 0, C is new at 80.
	seedRevenue(store, a, month(2025, 1), 100)
	seedRevenue(store, a, month(2025, 2), 150)
	seedRevenue(store, b, month(2025, 1), 200)
	seedRevenue(store, c, month(2025, 2), 80)

	report, err := r.RevenueMrrReport(ctx, month(2025, 2), month(2025, 3))
	require.NoError(t, err)
	require.Len(t, report, 1)

	feb := report[0]
	require.Equal(t, "2025-02", feb.Month)
	require.InDelta(t, 80, feb.New, 1e-9)
	require.InDelta(t, 50, feb.Expansion, 1e-9)
	require.Zero(t, feb.Contraction)
	require.InDelta(t, -200, feb.Churn, 1e-9)
	require.InDelta(t, -70, feb.Net, 1e-9)
}

func TestRevenueMrrReport_Contraction(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := NewReporter(store, config.DefaultScoring(), nil)

	a := uuid.New()
	seedRevenue(store, a, month(2025, 1), 500)
	seedRevenue(store, a, month(2025, 2), 300)

	report, err := r.RevenueMrrReport(ctx, month(2025, 2), month(2025, 3))
	require.NoError(t, err)
	require.Len(t, report, 1)
	require.InDelta(t, -200, report[0].Contraction, 1e-9)
	require.Zero(t, report[0].New)
	require.Zero(t, report[0].Expansion)
	require.Zero(t, report[0].Churn)
	require.InDelta(t, -200, report[0].Net, 1e-9)
}

func TestRevenueMrrReport_FirstMonthAllNew(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := NewReporter(store, config.DefaultScoring(), nil)

	a, b := uuid.New(), uuid.New()
	seedRevenue(store, a, month(2025, 1), 100)
	seedRevenue(store, b, month(2025, 1), 200)

	report, err := r.RevenueMrrReport(ctx, month(2025, 1), month(2025, 2))
	require.NoError(t, err)
	require.Len(t, report, 1)
	require.InDelta(t, 300, report[0].New, 1e-9)
	require.InDelta(t, 300, report[0].Net, 1e-9)
}

func TestRevenueMrrReport_MultipleEventsSameMonthAggregate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := NewReporter(store, config.DefaultScoring(), nil)

	a := uuid.New()
	seedRevenue(store, a, month(2025, 1), 100)
	seedRevenue(store, a, month(2025, 2), 60)
	seedRevenue(store, a, month(2025, 2), 70)

	report, err := r.RevenueMrrReport(ctx, month(2025, 2), month(2025, 3))
	require.NoError(t, err)
	// 100 -> 130 is expansion of 30, not churn plus new.
	require.InDelta(t, 30, report[0].Expansion, 1e-9)
	require.Zero(t, report[0].New)
	require.Zero(t, report[0].Churn)
}

func TestRevenueMrrReport_EmptyRangeRejected(t *testing.T) {
	store := memory.NewStore()
	r := NewReporter(store, config.DefaultScoring(), nil)

	_, err := r.RevenueMrrReport(context.Background(), month(2025, 3), month(2025, 3))
	require.True(t, domain.HasCode(err, domain.ErrCodeInvalidInput), "got %v", err)

	_, err = r.RevenueMrrReport(context.Background(), month(2025, 4), month(2025, 3))
	require.True(t, domain.HasCode(err, domain.ErrCodeInvalidInput), "got %v", err)
}

func TestRevenueMrrReport_QuietMonthIsZeroMovement(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := NewReporter(store, config.DefaultScoring(), nil)

	report, err := r.RevenueMrrReport(ctx, month(2025, 1), month(2025, 4))
	require.NoError(t, err)
	require.Len(t, report, 3)
	for _, m := range report {
		require.Zero(t, m.Net)
	}
}
