package reporting

import (
	"time"

	"github.com/advisorhub/retentionservice/internal/config"
	"github.com/advisorhub/retentionservice/internal/crm/repo"
	"github.com/advisorhub/retentionservice/internal/playbook"
	"github.com/advisorhub/retentionservice/internal/scoring"
)

const tracerName = "github.com/advisorhub/retentionservice/internal/reporting"

// Reporter computes the read-only analytical reports: cohort retention,
// MRR decomposition, and the operator at-risk view. All reports are pure
// functions over snapshots fetched through the paginated aggregator.
type Reporter struct {
	store     repo.Store
	cfg       config.ScoringConfig
	snapshots *scoring.SnapshotBuilder
	playbooks *playbook.Engine

	// Now is injectable for deterministic future-month handling in tests
	Now func() time.Time
}

// NewReporter creates a new reporter
func NewReporter(store repo.Store, cfg config.ScoringConfig, playbooks *playbook.Engine) *Reporter {
	return &Reporter{
		store:     store,
		cfg:       cfg,
		snapshots: scoring.NewSnapshotBuilder(store, cfg),
		playbooks: playbooks,
		Now:       time.Now,
	}
}
