package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/advisorhub/retentionservice/internal/domain"
)

// All list methods take limit/offset and return rows under a stable order
// (date then id), so full-history aggregation never skips or duplicates a
// row across page boundaries.

type ClientRepository interface {
	// GetByID retrieves a client by ID
	GetByID(ctx context.Context, id uuid.UUID) (domain.Client, error)

	// ListActive retrieves a page of active clients
	ListActive(ctx context.Context, limit, offset int) ([]domain.Client, error)
}

type RevenueRepository interface {
	// Insert records a revenue posting
	Insert(ctx context.Context, event domain.RevenueEvent) (domain.RevenueEvent, error)

	// ListByClient retrieves a page of a client's revenue events, oldest first
	ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]domain.RevenueEvent, error)

	// ListByDateRange retrieves a page of revenue events dated in [from, to), oldest first
	ListByDateRange(ctx context.Context, from, to time.Time, limit, offset int) ([]domain.RevenueEvent, error)
}

type LeadRepository interface {
	// Insert records a new lead, used for playbook follow-up visibility
	Insert(ctx context.Context, lead domain.Lead) (domain.Lead, error)

	// Delete removes a lead, used only as a compensating rollback
	Delete(ctx context.Context, id uuid.UUID) error

	// ListByCreatedRange retrieves a page of leads created in [from, to), oldest first
	ListByCreatedRange(ctx context.Context, from, to time.Time, limit, offset int) ([]domain.Lead, error)
}

type InteractionRepository interface {
	// ListByClient retrieves a page of a client's interactions in [from, to), oldest first
	ListByClient(ctx context.Context, clientID uuid.UUID, from, to time.Time, limit, offset int) ([]domain.Interaction, error)
}

type HealthScoreRepository interface {
	// Upsert stores the latest score for a client, superseding any previous one
	Upsert(ctx context.Context, score domain.HealthScore) error

	// Get retrieves the latest score for a client
	Get(ctx context.Context, clientID uuid.UUID) (domain.HealthScore, error)

	// ListByClassification retrieves a page of latest scores in the given bands
	ListByClassification(ctx context.Context, classifications []domain.Classification, limit, offset int) ([]domain.HealthScore, error)
}

type ChurnEventRepository interface {
	// Insert opens a new churn event. Implementations must reject a second
	// pending event for the same client with an invariant violation.
	Insert(ctx context.Context, event domain.ChurnEvent) (domain.ChurnEvent, error)

	// GetPendingByClient retrieves the pending event for a client, nil if none
	GetPendingByClient(ctx context.Context, clientID uuid.UUID) (*domain.ChurnEvent, error)

	// ListPending retrieves a page of pending events, oldest first
	ListPending(ctx context.Context, limit, offset int) ([]domain.ChurnEvent, error)

	// List retrieves a page of all events, oldest first
	List(ctx context.Context, limit, offset int) ([]domain.ChurnEvent, error)

	// Resolve closes a pending event with its observed outcome
	Resolve(ctx context.Context, id uuid.UUID, status domain.ChurnStatus, resolvedAt time.Time) error
}

type PlaybookRepository interface {
	// ListTemplates retrieves all playbook templates
	ListTemplates(ctx context.Context) ([]domain.PlaybookTemplate, error)

	// GetTemplate retrieves a template by ID
	GetTemplate(ctx context.Context, id uuid.UUID) (domain.PlaybookTemplate, error)

	// GetActiveInstance retrieves the active instance for a client, nil if none
	GetActiveInstance(ctx context.Context, clientID uuid.UUID) (*domain.PlaybookInstance, error)

	// CreateInstance persists a new instance together with its materialized
	// actions as one unit
	CreateInstance(ctx context.Context, instance domain.PlaybookInstance, actions []domain.RetentionAction) error

	// DeleteInstance removes an instance and its actions, used only as a
	// compensating rollback when the paired lead cannot be created
	DeleteInstance(ctx context.Context, id uuid.UUID) error

	// UpdateInstanceStatus transitions an instance to a terminal status
	UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status domain.InstanceStatus, endedAt time.Time) error

	// GetInstance retrieves an instance by ID
	GetInstance(ctx context.Context, id uuid.UUID) (domain.PlaybookInstance, error)

	// GetAction retrieves an action by ID
	GetAction(ctx context.Context, id uuid.UUID) (domain.RetentionAction, error)

	// ListActions retrieves all actions of an instance ordered by step order
	ListActions(ctx context.Context, instanceID uuid.UUID) ([]domain.RetentionAction, error)

	// ResolveAction marks a pending action completed or skipped
	ResolveAction(ctx context.Context, id uuid.UUID, status domain.ActionStatus, notes string, resolvedAt time.Time) error
}

// Store bundles every repository the analytics engine consumes
type Store interface {
	Client() ClientRepository
	Revenue() RevenueRepository
	Lead() LeadRepository
	Interaction() InteractionRepository
	HealthScore() HealthScoreRepository
	ChurnEvent() ChurnEventRepository
	Playbook() PlaybookRepository
}
