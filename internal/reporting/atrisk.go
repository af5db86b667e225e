package reporting

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/advisorhub/retentionservice/internal/churn"
	"github.com/advisorhub/retentionservice/internal/domain"
	"github.com/advisorhub/retentionservice/internal/metrics"
	"github.com/advisorhub/retentionservice/internal/paging"
)

// AtRiskClients returns one row per client in the given risk bands,
// combining the stored health score with the churn probability, the active
// playbook name and the next pending action. An empty filter defaults to
// the bands that call for intervention (critical and lost).
func (r *Reporter) AtRiskClients(ctx context.Context, classifications []domain.Classification) ([]domain.AtRiskClient, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "AtRiskClients")
	defer span.End()
	defer metrics.ObserveReport("at_risk", time.Now())

	if len(classifications) == 0 {
		classifications = []domain.Classification{
			domain.ClassificationCritical,
			domain.ClassificationLost,
		}
	}
	for _, c := range classifications {
		if !c.IsValid() {
			return nil, domain.NewInvalidInputError("unknown classification filter", string(c))
		}
	}

	scores, err := paging.FetchAll(ctx, "health_scores", r.cfg.PageSize,
		func(ctx context.Context, limit, offset int) ([]domain.HealthScore, error) {
			return r.store.HealthScore().ListByClassification(ctx, classifications, limit, offset)
		})
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, nil
	}

	asOf := r.Now()
	ref, err := r.snapshots.BuildOfficeReference(ctx, asOf)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.AtRiskClient, 0, len(scores))
	for _, score := range scores {
		client, err := r.store.Client().GetByID(ctx, score.ClientID)
		if err != nil {
			return nil, err
		}

		row := domain.AtRiskClient{
			ClientID:       score.ClientID,
			ClientName:     client.Name,
			Score:          score.Score,
			Classification: score.Classification,
		}

		// Prefer the recorded probability of an open churn event; derive
		// a fresh one otherwise.
		pending, err := r.store.ChurnEvent().GetPendingByClient(ctx, score.ClientID)
		if err != nil {
			return nil, err
		}
		if pending != nil {
			row.ChurnProbability = pending.PredictedProbability
		} else {
			snap, err := r.snapshots.Build(ctx, score.ClientID, asOf)
			if err != nil {
				return nil, err
			}
			row.ChurnProbability = churn.PredictProbability(snap, ref, r.cfg)
		}

		if r.playbooks != nil {
			name, err := r.playbooks.ActivePlaybookName(ctx, score.ClientID)
			if err != nil {
				return nil, err
			}
			row.ActivePlaybook = name

			next, err := r.playbooks.NextAction(ctx, score.ClientID)
			if err != nil {
				return nil, err
			}
			row.NextAction = next
		}

		rows = append(rows, row)
	}
	return rows, nil
}
