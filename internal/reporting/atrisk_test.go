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
	"github.com/advisorhub/retentionservice/internal/playbook"
)

func seedScoredClient(t *testing.T, store *memory.Store, name string, score float64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	store.SeedClient(domain.Client{ID: id, Name: name, AssessorID: uuid.New(), Active: true})
	require.NoError(t, store.HealthScore().Upsert(context.Background(), domain.HealthScore{
		ClientID:       id,
		Score:          score,
		Classification: domain.Classify(score),
		ComputedAt:     time.Now().UTC(),
	}))
	return id
}

func TestAtRiskClients_DefaultsToCriticalAndLost(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := NewReporter(store, config.DefaultScoring(), nil)

	seedScoredClient(t, store, "Healthy", 90)
	critical := seedScoredClient(t, store, "Critical", 30)
	lost := seedScoredClient(t, store, "Lost", 5)

	rows, err := r.AtRiskClients(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	seen := map[uuid.UUID]domain.AtRiskClient{}
	for _, row := range rows {
		seen[row.ClientID] = row
		require.GreaterOrEqual(t, row.ChurnProbability, 0.0)
		require.LessOrEqual(t, row.ChurnProbability, 100.0)
	}
	require.Contains(t, seen, critical)
	require.Contains(t, seen, lost)
	require.Equal(t, "Critical", seen[critical].ClientName)
}

func TestAtRiskClients_ExplicitFilter(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := NewReporter(store, config.DefaultScoring(), nil)

	seedScoredClient(t, store, "Attention", 60)
	seedScoredClient(t, store, "Critical", 30)

	rows, err := r.AtRiskClients(ctx, []domain.Classification{domain.ClassificationAttention})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "Attention", rows[0].ClientName)
}

func TestAtRiskClients_UnknownFilterRejected(t *testing.T) {
	store := memory.NewStore()
	r := NewReporter(store, config.DefaultScoring(), nil)

	_, err := r.AtRiskClients(context.Background(), []domain.Classification{"urgent"})
	require.True(t, domain.HasCode(err, domain.ErrCodeInvalidInput), "got %v", err)
}

func TestAtRiskClients_UsesPendingChurnProbability(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := NewReporter(store, config.DefaultScoring(), nil)

	id := seedScoredClient(t, store, "Fading", 20)
	_, err := store.ChurnEvent().Insert(ctx, domain.ChurnEvent{
		ID:                   uuid.New(),
		ClientID:             id,
		PredictedProbability: 87.5,
		Status:               domain.ChurnStatusPending,
		CreatedAt:            time.Now().UTC(),
	})
	require.NoError(t, err)

	rows, err := r.AtRiskClients(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.InDelta(t, 87.5, rows[0].ChurnProbability, 1e-9,
		"the recorded probability of the open event wins over a fresh estimate")
}

func TestAtRiskClients_IncludesPlaybookProgress(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	engine := playbook.NewEngine(store, nil)
	r := NewReporter(store, config.DefaultScoring(), engine)

	id := seedScoredClient(t, store, "Fading", 20)

	templateID := uuid.New()
	require.NoError(t, store.SeedTemplate(domain.PlaybookTemplate{
		ID:                 templateID,
		Name:               "lost-winback",
		RiskClassification: domain.ClassificationLost,
		Steps: []domain.PlaybookStep{
			{Order: 1, ActionType: domain.ActionTypeCall, Description: "call", DeadlineDays: 1},
			{Order: 2, ActionType: domain.ActionTypeEscalation, Description: "escalate", DeadlineDays: 5},
		},
	}))
	_, err := engine.StartPlaybook(ctx, id, templateID)
	require.NoError(t, err)

	rows, err := r.AtRiskClients(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "lost-winback", rows[0].ActivePlaybook)
	require.NotNil(t, rows[0].NextAction)
	require.Equal(t, 1, rows[0].NextAction.Order)
}
