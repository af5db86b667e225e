package service

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

func newTestService(store *memory.Store) *AnalyticsService {
	return NewAnalyticsService(store, config.DefaultScoring(), nil, nil)
}

func TestService_RejectsNilIDs(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.NewStore())

	_, err := svc.ComputeHealthScore(ctx, uuid.Nil, time.Now().UTC())
	require.True(t, domain.HasCode(err, domain.ErrCodeInvalidInput))

	_, err = svc.StartPlaybook(ctx, uuid.Nil, uuid.New())
	require.True(t, domain.HasCode(err, domain.ErrCodeInvalidInput))

	_, err = svc.StartPlaybook(ctx, uuid.New(), uuid.Nil)
	require.True(t, domain.HasCode(err, domain.ErrCodeInvalidInput))

	require.True(t, domain.HasCode(svc.CompleteAction(ctx, uuid.Nil, ""), domain.ErrCodeInvalidInput))
	require.True(t, domain.HasCode(svc.SkipAction(ctx, uuid.Nil, ""), domain.ErrCodeInvalidInput))
	require.True(t, domain.HasCode(svc.AbandonPlaybook(ctx, uuid.Nil), domain.ErrCodeInvalidInput))
}

func TestService_ScoreThenScanThenReport(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newTestService(store)
	asOf := time.Now().UTC()

	// An engaged client and one that went quiet months ago.
	engaged := uuid.New()
	store.SeedClient(domain.Client{ID: engaged, Name: "Engaged", AssessorID: uuid.New(), Active: true})
	store.SeedRevenue(domain.RevenueEvent{ID: uuid.New(), ClientID: engaged, Date: domain.AddMonths(asOf, -1), Amount: 1000})
	store.SeedRevenue(domain.RevenueEvent{ID: uuid.New(), ClientID: engaged, Date: domain.MonthStart(asOf), Amount: 1000})

	quiet := uuid.New()
	store.SeedClient(domain.Client{ID: quiet, Name: "Quiet", AssessorID: uuid.New(), Active: true})
	store.SeedRevenue(domain.RevenueEvent{ID: uuid.New(), ClientID: quiet, Date: domain.AddMonths(asOf, -10), Amount: 50})

	n, err := svc.BulkComputeHealthScores(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	engagedScore, err := store.HealthScore().Get(ctx, engaged)
	require.NoError(t, err)
	quietScore, err := store.HealthScore().Get(ctx, quiet)
	require.NoError(t, err)
	require.Greater(t, engagedScore.Score, quietScore.Score)
	require.True(t, quietScore.Classification.IsAtRisk())

	opened, err := svc.ScanChurnRisk(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, 1, opened)

	rows, err := svc.AtRiskClients(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, quiet, rows[0].ClientID)

	summary, err := svc.ChurnSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Pending)
}

func TestService_PlaybookLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := newTestService(store)

	clientID := uuid.New()
	store.SeedClient(domain.Client{ID: clientID, Name: "Acme", AssessorID: uuid.New(), Active: true})

	templateID := uuid.New()
	require.NoError(t, store.SeedTemplate(domain.PlaybookTemplate{
		ID:                 templateID,
		Name:               "critical-outreach",
		RiskClassification: domain.ClassificationCritical,
		Steps: []domain.PlaybookStep{
			{Order: 1, ActionType: domain.ActionTypeCall, Description: "call", DeadlineDays: 2},
		},
	}))

	templates, err := svc.ListRetentionPlaybookTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)

	inst, err := svc.StartPlaybook(ctx, clientID, templateID)
	require.NoError(t, err)

	actions, err := store.Playbook().ListActions(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)

	require.NoError(t, svc.CompleteAction(ctx, actions[0].ID, "done"))

	got, err := store.Playbook().GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, domain.InstanceStatusCompleted, got.Status)
}
