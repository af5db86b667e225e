package churn

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/advisorhub/retentionservice/internal/config"
	"github.com/advisorhub/retentionservice/internal/crm/repo"
	"github.com/advisorhub/retentionservice/internal/domain"
	"github.com/advisorhub/retentionservice/internal/events"
	"github.com/advisorhub/retentionservice/internal/log"
	"github.com/advisorhub/retentionservice/internal/metrics"
	"github.com/advisorhub/retentionservice/internal/paging"
	"github.com/advisorhub/retentionservice/internal/scoring"
)

// Churn probability weights. Recency and trend dominate the estimate;
// monetary value is not a directional churn signal and is excluded.
const (
	recencyRiskWeight    = 0.45
	trendRiskWeight      = 0.30
	frequencyRiskWeight  = 0.15
	engagementRiskWeight = 0.10
)

// Predictor derives churn probabilities and manages the churn event
// lifecycle: open on risk degradation, resolve on observed outcome.
type Predictor struct {
	store     repo.Store
	cfg       config.ScoringConfig
	snapshots *scoring.SnapshotBuilder
	publisher events.Publisher // optional
}

// NewPredictor creates a new churn predictor. publisher may be nil.
func NewPredictor(store repo.Store, cfg config.ScoringConfig, publisher events.Publisher) *Predictor {
	return &Predictor{
		store:     store,
		cfg:       cfg,
		snapshots: scoring.NewSnapshotBuilder(store, cfg),
		publisher: publisher,
	}
}

// PredictProbability derives a 0-100 churn probability from the same
// signals as the health score, weighted for directional risk.
func PredictProbability(snap domain.ClientActivitySnapshot, ref domain.OfficeReference, cfg config.ScoringConfig) float64 {
	s := scoring.ComputeSubscores(snap, ref, cfg)
	retention := recencyRiskWeight*s.Recency +
		trendRiskWeight*s.Trend +
		frequencyRiskWeight*s.Frequency +
		engagementRiskWeight*s.Engagement
	p := 100 - retention
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}

// Scan opens a churn event for every client whose stored classification has
// degraded to critical or lost and who has no pending event yet. Running
// the scan twice without an intervening resolution opens nothing new.
// Returns the number of events opened.
func (p *Predictor) Scan(ctx context.Context, asOf time.Time) (int, error) {
	atRisk, err := paging.FetchAll(ctx, "health_scores", p.cfg.PageSize,
		func(ctx context.Context, limit, offset int) ([]domain.HealthScore, error) {
			return p.store.HealthScore().ListByClassification(ctx,
				[]domain.Classification{domain.ClassificationCritical, domain.ClassificationLost},
				limit, offset)
		})
	if err != nil {
		return 0, err
	}
	if len(atRisk) == 0 {
		return 0, nil
	}

	ref, err := p.snapshots.BuildOfficeReference(ctx, asOf)
	if err != nil {
		return 0, err
	}

	opened := 0
	for _, score := range atRisk {
		pending, err := p.store.ChurnEvent().GetPendingByClient(ctx, score.ClientID)
		if err != nil {
			return opened, err
		}
		if pending != nil {
			continue
		}

		snap, err := p.snapshots.Build(ctx, score.ClientID, asOf)
		if err != nil {
			return opened, err
		}

		event := domain.ChurnEvent{
			ID:                   uuid.New(),
			ClientID:             score.ClientID,
			PredictedProbability: PredictProbability(snap, ref, p.cfg),
			Status:               domain.ChurnStatusPending,
			CreatedAt:            time.Now().UTC(),
		}
		created, err := p.store.ChurnEvent().Insert(ctx, event)
		if err != nil {
			// A concurrent scan may have opened the event first; the
			// at-most-one-pending invariant is intact either way.
			if domain.HasCode(err, domain.ErrCodeInvariantViolation) {
				continue
			}
			return opened, err
		}
		opened++
		metrics.ChurnEventsOpened.Inc()

		p.publish(ctx, events.ChurnOpened(created))
		log.Info(ctx, "Churn event opened",
			zap.String("client_id", created.ClientID.String()),
			zap.Float64("predicted_probability", created.PredictedProbability))
	}
	return opened, nil
}

// ResolvePending closes pending churn events: to retained when the client
// has posted revenue since the event opened, to churned when the
// configured inactivity window has elapsed without any. Returns the counts
// of retained and churned resolutions.
func (p *Predictor) ResolvePending(ctx context.Context, asOf time.Time) (retained, churned int, err error) {
	pending, err := paging.FetchAll(ctx, "churn_events", p.cfg.PageSize,
		func(ctx context.Context, limit, offset int) ([]domain.ChurnEvent, error) {
			return p.store.ChurnEvent().ListPending(ctx, limit, offset)
		})
	if err != nil {
		return 0, 0, err
	}

	for _, event := range pending {
		active, err := p.hasRevenueSince(ctx, event.ClientID, event.CreatedAt, asOf)
		if err != nil {
			return retained, churned, err
		}

		switch {
		case active:
			if err := p.resolve(ctx, event, domain.ChurnStatusRetained, asOf); err != nil {
				return retained, churned, err
			}
			retained++
		case asOf.Sub(event.CreatedAt) >= time.Duration(p.cfg.ChurnInactivityDays)*24*time.Hour:
			if err := p.resolve(ctx, event, domain.ChurnStatusChurned, asOf); err != nil {
				return retained, churned, err
			}
			churned++
		}
	}
	return retained, churned, nil
}

func (p *Predictor) resolve(ctx context.Context, event domain.ChurnEvent, outcome domain.ChurnStatus, asOf time.Time) error {
	if err := p.store.ChurnEvent().Resolve(ctx, event.ID, outcome, asOf); err != nil {
		return err
	}
	metrics.ChurnEventsResolved.WithLabelValues(string(outcome)).Inc()
	p.publish(ctx, events.ChurnResolved(event, outcome))
	log.Info(ctx, "Churn event resolved",
		zap.String("client_id", event.ClientID.String()),
		zap.String("outcome", string(outcome)))
	return nil
}

// hasRevenueSince reports whether the client posted revenue in a month
// overlapping [since, until].
func (p *Predictor) hasRevenueSince(ctx context.Context, clientID uuid.UUID, since, until time.Time) (bool, error) {
	eventsList, err := paging.FetchAll(ctx, "revenue", p.cfg.PageSize,
		func(ctx context.Context, limit, offset int) ([]domain.RevenueEvent, error) {
			return p.store.Revenue().ListByClient(ctx, clientID, limit, offset)
		})
	if err != nil {
		return false, err
	}
	sinceMonth := domain.MonthStart(since)
	untilMonth := domain.MonthStart(until)
	for _, e := range eventsList {
		if !e.Date.Before(sinceMonth) && !e.Date.After(untilMonth) {
			return true, nil
		}
	}
	return false, nil
}

// Summary returns the operator-facing rollup over all churn events
func (p *Predictor) Summary(ctx context.Context) (domain.ChurnSummary, error) {
	all, err := paging.FetchAll(ctx, "churn_events", p.cfg.PageSize,
		func(ctx context.Context, limit, offset int) ([]domain.ChurnEvent, error) {
			return p.store.ChurnEvent().List(ctx, limit, offset)
		})
	if err != nil {
		return domain.ChurnSummary{}, err
	}

	summary := domain.ChurnSummary{Total: len(all)}
	var probabilitySum float64
	for _, e := range all {
		probabilitySum += e.PredictedProbability
		switch e.Status {
		case domain.ChurnStatusPending:
			summary.Pending++
		case domain.ChurnStatusRetained:
			summary.Retained++
		case domain.ChurnStatusChurned:
			summary.Churned++
		}
	}
	if summary.Total > 0 {
		summary.MeanPredictedProbability = probabilitySum / float64(summary.Total)
	}
	return summary, nil
}

func (p *Predictor) publish(ctx context.Context, event *events.Event) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		log.Warn(ctx, "Failed to publish lifecycle event",
			zap.String("event_type", event.Type), zap.Error(err))
	}
}
