package churn

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

func seedAtRiskClient(store *memory.Store) uuid.UUID {
	id := uuid.New()
	store.SeedClient(domain.Client{ID: id, Name: "fading", AssessorID: uuid.New(), Active: true})
	_ = store.HealthScore().Upsert(context.Background(), domain.HealthScore{
		ClientID:       id,
		Score:          10,
		Classification: domain.ClassificationLost,
		ComputedAt:     time.Now().UTC(),
	})
	return id
}

func TestPredictProbability_Bounds(t *testing.T) {
	cfg := config.DefaultScoring()

	empty := domain.ClientActivitySnapshot{DaysSinceLastRevenue: -1}
	require.InDelta(t, 100, PredictProbability(empty, domain.OfficeReference{}, cfg), 1e-9,
		"a client with no signals at all is maximally at risk")

	healthy := domain.ClientActivitySnapshot{
		DaysSinceLastRevenue:   0,
		MonthlyOperationCounts: []int{1, 1},
		MonthlyRevenue:         []float64{1000, 1000},
		AverageMonthlyRevenue:  1000,
		InteractionCount90d:    4,
	}
	ref := domain.OfficeReference{
		MedianMonthlyRevenue:     1000,
		ReferenceMonthlyOps:      1,
		ReferenceInteractions90d: 4,
	}
	// 100 - (.45*100 + .30*75 + .15*100 + .10*100)
	require.InDelta(t, 7.5, PredictProbability(healthy, ref, cfg), 1e-9)
}

func TestScan_OpensOneEventPerDegradedClient(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cfg := config.DefaultScoring()
	asOf := time.Now().UTC()

	clientID := seedAtRiskClient(store)
	p := NewPredictor(store, cfg, nil)

	opened, err := p.Scan(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, 1, opened)

	pending, err := store.ChurnEvent().GetPendingByClient(ctx, clientID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	require.Equal(t, domain.ChurnStatusPending, pending.Status)
	require.GreaterOrEqual(t, pending.PredictedProbability, 0.0)
	require.LessOrEqual(t, pending.PredictedProbability, 100.0)
}

func TestScan_SecondScanOpensNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cfg := config.DefaultScoring()
	asOf := time.Now().UTC()

	seedAtRiskClient(store)
	p := NewPredictor(store, cfg, nil)

	opened, err := p.Scan(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, 1, opened)

	opened, err = p.Scan(ctx, asOf)
	require.NoError(t, err)
	require.Zero(t, opened, "a second scan without a resolution must open nothing")

	all, err := store.ChurnEvent().List(ctx, 100, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestScan_SkipsHealthyClients(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cfg := config.DefaultScoring()

	id := uuid.New()
	store.SeedClient(domain.Client{ID: id, Name: "fine", AssessorID: uuid.New(), Active: true})
	require.NoError(t, store.HealthScore().Upsert(ctx, domain.HealthScore{
		ClientID: id, Score: 80, Classification: domain.ClassificationHealthy, ComputedAt: time.Now().UTC(),
	}))

	p := NewPredictor(store, cfg, nil)
	opened, err := p.Scan(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, opened)
}

func TestResolvePending_RetainedOnNewRevenue(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cfg := config.DefaultScoring()
	now := time.Now().UTC()

	clientID := seedAtRiskClient(store)
	p := NewPredictor(store, cfg, nil)

	_, err := p.Scan(ctx, now)
	require.NoError(t, err)

	// Revenue posted in the month the event opened counts as reactivation.
	store.SeedRevenue(domain.RevenueEvent{ID: uuid.New(), ClientID: clientID, Date: now, Amount: 250})

	retained, churned, err := p.ResolvePending(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, retained)
	require.Zero(t, churned)

	pending, err := store.ChurnEvent().GetPendingByClient(ctx, clientID)
	require.NoError(t, err)
	require.Nil(t, pending)
}

func TestResolvePending_ChurnedAfterInactivityWindow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cfg := config.DefaultScoring() // 90 day inactivity window
	now := time.Now().UTC()

	clientID := seedAtRiskClient(store)
	p := NewPredictor(store, cfg, nil)

	_, err := p.Scan(ctx, now)
	require.NoError(t, err)

	// Before the window elapses the event stays pending.
	retained, churned, err := p.ResolvePending(ctx, now.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.Zero(t, retained)
	require.Zero(t, churned)

	retained, churned, err = p.ResolvePending(ctx, now.AddDate(0, 0, 91))
	require.NoError(t, err)
	require.Zero(t, retained)
	require.Equal(t, 1, churned)

	pending, err := store.ChurnEvent().GetPendingByClient(ctx, clientID)
	require.NoError(t, err)
	require.Nil(t, pending)

	// A later scan may open a fresh event now that none is pending.
	opened, err := p.Scan(ctx, now.AddDate(0, 0, 92))
	require.NoError(t, err)
	require.Equal(t, 1, opened)
}

func TestSummary_RollsUpAllOutcomes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Now().UTC()

	mk := func(status domain.ChurnStatus, prob float64) {
		_, err := store.ChurnEvent().Insert(ctx, domain.ChurnEvent{
			ID:                   uuid.New(),
			ClientID:             uuid.New(),
			PredictedProbability: prob,
			Status:               status,
			CreatedAt:            now,
		})
		require.NoError(t, err)
	}
	mk(domain.ChurnStatusPending, 90)
	mk(domain.ChurnStatusRetained, 60)
	mk(domain.ChurnStatusChurned, 30)

	p := NewPredictor(store, config.DefaultScoring(), nil)
	summary, err := p.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Total)
	require.Equal(t, 1, summary.Pending)
	require.Equal(t, 1, summary.Retained)
	require.Equal(t, 1, summary.Churned)
	require.InDelta(t, 60, summary.MeanPredictedProbability, 1e-9)
}
