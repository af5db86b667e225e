package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/advisorhub/retentionservice/internal/cache"
	"github.com/advisorhub/retentionservice/internal/churn"
	"github.com/advisorhub/retentionservice/internal/config"
	"github.com/advisorhub/retentionservice/internal/crm/repo"
	"github.com/advisorhub/retentionservice/internal/domain"
	"github.com/advisorhub/retentionservice/internal/events"
	"github.com/advisorhub/retentionservice/internal/playbook"
	"github.com/advisorhub/retentionservice/internal/reporting"
	"github.com/advisorhub/retentionservice/internal/scoring"
)

// AnalyticsService is the facade the reporting layer invokes in-process.
// It wires the calculator, churn predictor, playbook engine and reporter
// over one store.
type AnalyticsService struct {
	store      repo.Store
	cfg        config.ScoringConfig
	calculator *scoring.Calculator
	predictor  *churn.Predictor
	playbooks  *playbook.Engine
	reporter   *reporting.Reporter
}

// NewAnalyticsService creates the service. scoreCache and publisher are
// optional collaborators and may be nil.
func NewAnalyticsService(store repo.Store, cfg config.ScoringConfig, scoreCache *cache.ScoreCache, publisher events.Publisher) *AnalyticsService {
	playbooks := playbook.NewEngine(store, publisher)
	return &AnalyticsService{
		store:      store,
		cfg:        cfg,
		calculator: scoring.NewCalculator(store, cfg, scoreCache),
		predictor:  churn.NewPredictor(store, cfg, publisher),
		playbooks:  playbooks,
		reporter:   reporting.NewReporter(store, cfg, playbooks),
	}
}

// ComputeHealthScore recomputes and returns the health score for one client
func (s *AnalyticsService) ComputeHealthScore(ctx context.Context, clientID uuid.UUID, asOf time.Time) (domain.HealthScore, error) {
	if clientID == uuid.Nil {
		return domain.HealthScore{}, domain.NewInvalidInputError("client_id is required", "")
	}
	return s.calculator.ComputeHealthScore(ctx, clientID, asOf)
}

// BulkComputeHealthScores recomputes scores for all active clients and
// returns the number successfully recomputed
func (s *AnalyticsService) BulkComputeHealthScores(ctx context.Context, asOf time.Time) (int, error) {
	return s.calculator.BulkComputeHealthScores(ctx, asOf)
}

// ScanChurnRisk opens churn events for newly degraded clients
func (s *AnalyticsService) ScanChurnRisk(ctx context.Context, asOf time.Time) (int, error) {
	return s.predictor.Scan(ctx, asOf)
}

// ResolveChurnEvents closes pending churn events against observed outcomes
func (s *AnalyticsService) ResolveChurnEvents(ctx context.Context, asOf time.Time) (retained, churned int, err error) {
	return s.predictor.ResolvePending(ctx, asOf)
}

// ChurnSummary returns the aggregate churn event rollup
func (s *AnalyticsService) ChurnSummary(ctx context.Context) (domain.ChurnSummary, error) {
	return s.predictor.Summary(ctx)
}

// ListRetentionPlaybookTemplates returns all playbook templates
func (s *AnalyticsService) ListRetentionPlaybookTemplates(ctx context.Context) ([]domain.PlaybookTemplate, error) {
	return s.playbooks.ListTemplates(ctx)
}

// StartPlaybook starts a playbook instance for a client
func (s *AnalyticsService) StartPlaybook(ctx context.Context, clientID, templateID uuid.UUID) (domain.PlaybookInstance, error) {
	if clientID == uuid.Nil {
		return domain.PlaybookInstance{}, domain.NewInvalidInputError("client_id is required", "")
	}
	if templateID == uuid.Nil {
		return domain.PlaybookInstance{}, domain.NewInvalidInputError("template_id is required", "")
	}
	return s.playbooks.StartPlaybook(ctx, clientID, templateID)
}

// CompleteAction marks a pending retention action completed
func (s *AnalyticsService) CompleteAction(ctx context.Context, actionID uuid.UUID, notes string) error {
	if actionID == uuid.Nil {
		return domain.NewInvalidInputError("action_id is required", "")
	}
	return s.playbooks.CompleteAction(ctx, actionID, notes)
}

// SkipAction marks a pending retention action skipped
func (s *AnalyticsService) SkipAction(ctx context.Context, actionID uuid.UUID, notes string) error {
	if actionID == uuid.Nil {
		return domain.NewInvalidInputError("action_id is required", "")
	}
	return s.playbooks.SkipAction(ctx, actionID, notes)
}

// AbandonPlaybook closes a client's active playbook without finishing it
func (s *AnalyticsService) AbandonPlaybook(ctx context.Context, clientID uuid.UUID) error {
	if clientID == uuid.Nil {
		return domain.NewInvalidInputError("client_id is required", "")
	}
	return s.playbooks.AbandonPlaybook(ctx, clientID)
}

// AtRiskClients returns the operator at-risk view, optionally filtered by
// classification
func (s *AnalyticsService) AtRiskClients(ctx context.Context, classifications []domain.Classification) ([]domain.AtRiskClient, error) {
	return s.reporter.AtRiskClients(ctx, classifications)
}

// FunnelCohortReport returns cohort retention over the date range
func (s *AnalyticsService) FunnelCohortReport(ctx context.Context, from, to time.Time) ([]domain.CohortBucket, error) {
	return s.reporter.FunnelCohortReport(ctx, from, to)
}

// RevenueMrrReport returns the MRR movement decomposition over the date range
func (s *AnalyticsService) RevenueMrrReport(ctx context.Context, from, to time.Time) ([]domain.MRRMovement, error) {
	return s.reporter.RevenueMrrReport(ctx, from, to)
}
