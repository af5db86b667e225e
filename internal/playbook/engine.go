package playbook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/advisorhub/retentionservice/internal/crm/repo"
	"github.com/advisorhub/retentionservice/internal/domain"
	"github.com/advisorhub/retentionservice/internal/events"
	"github.com/advisorhub/retentionservice/internal/log"
	"github.com/advisorhub/retentionservice/internal/metrics"
)

// Engine manages retention playbook templates, per-client instances and
// their timed actions. It is the only component with externally visible
// mutated state: all mutations for a client are serialized behind a
// per-client lock to uphold the at-most-one-active-instance invariant.
type Engine struct {
	store     repo.Store
	publisher events.Publisher // optional

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewEngine creates a new playbook engine. publisher may be nil.
func NewEngine(store repo.Store, publisher events.Publisher) *Engine {
	return &Engine{
		store:     store,
		publisher: publisher,
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

func (e *Engine) clientLock(clientID uuid.UUID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[clientID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[clientID] = l
	}
	return l
}

// ListTemplates returns all playbook templates
func (e *Engine) ListTemplates(ctx context.Context) ([]domain.PlaybookTemplate, error) {
	return e.store.Playbook().ListTemplates(ctx)
}

// StartPlaybook starts a playbook for a client as one logical unit: it
// creates the instance, materializes every template step into a
// RetentionAction with its due date, and creates a follow-up lead tagged
// to the client's assessor so the intervention is visible in the sales
// pipeline. If the lead cannot be created the instance is rolled back.
func (e *Engine) StartPlaybook(ctx context.Context, clientID, templateID uuid.UUID) (domain.PlaybookInstance, error) {
	lock := e.clientLock(clientID)
	lock.Lock()
	defer lock.Unlock()

	client, err := e.store.Client().GetByID(ctx, clientID)
	if err != nil {
		return domain.PlaybookInstance{}, err
	}

	template, err := e.store.Playbook().GetTemplate(ctx, templateID)
	if err != nil {
		return domain.PlaybookInstance{}, err
	}
	if err := template.Validate(); err != nil {
		return domain.PlaybookInstance{}, err
	}

	active, err := e.store.Playbook().GetActiveInstance(ctx, clientID)
	if err != nil {
		return domain.PlaybookInstance{}, err
	}
	if active != nil {
		return domain.PlaybookInstance{}, domain.NewInvariantViolationError(
			"client already has an active playbook instance",
			fmt.Sprintf("client %s, instance %s", clientID, active.ID))
	}

	now := time.Now().UTC()
	instance := domain.PlaybookInstance{
		ID:         uuid.New(),
		ClientID:   clientID,
		TemplateID: templateID,
		StartedAt:  now,
		Status:     domain.InstanceStatusActive,
	}

	actions := make([]domain.RetentionAction, len(template.Steps))
	for i, step := range template.Steps {
		actions[i] = domain.RetentionAction{
			ID:          uuid.New(),
			InstanceID:  instance.ID,
			Order:       step.Order,
			ActionType:  step.ActionType,
			Description: step.Description,
			DueDate:     now.AddDate(0, 0, step.DeadlineDays),
			Status:      domain.ActionStatusPending,
		}
	}

	if err := e.store.Playbook().CreateInstance(ctx, instance, actions); err != nil {
		return domain.PlaybookInstance{}, err
	}

	lead := domain.Lead{
		ID:         uuid.New(),
		Name:       fmt.Sprintf("Retention follow-up: %s (%s)", client.Name, template.Name),
		Status:     domain.LeadStatusOpen,
		AssessorID: client.AssessorID,
		ClientID:   &clientID,
		CreatedAt:  now,
	}
	if _, err := e.store.Lead().Insert(ctx, lead); err != nil {
		// No orphaned instance without its CRM visibility: compensate by
		// rolling the instance back and fail the whole start.
		if rollbackErr := e.store.Playbook().DeleteInstance(ctx, instance.ID); rollbackErr != nil {
			log.Error(ctx, "Failed to roll back playbook instance after lead creation failure",
				zap.String("instance_id", instance.ID.String()),
				zap.Error(rollbackErr))
		}
		return domain.PlaybookInstance{}, fmt.Errorf("failed to create follow-up lead: %w", err)
	}

	metrics.PlaybooksStarted.WithLabelValues(template.Name).Inc()
	e.publish(ctx, events.PlaybookStarted(instance, template.Name))
	log.Info(ctx, "Playbook started",
		zap.String("client_id", clientID.String()),
		zap.String("template", template.Name),
		zap.String("instance_id", instance.ID.String()),
		zap.Int("actions", len(actions)))

	return instance, nil
}

// CompleteAction marks a pending action completed
func (e *Engine) CompleteAction(ctx context.Context, actionID uuid.UUID, notes string) error {
	return e.resolveAction(ctx, actionID, domain.ActionStatusCompleted, notes)
}

// SkipAction marks a pending action skipped
func (e *Engine) SkipAction(ctx context.Context, actionID uuid.UUID, notes string) error {
	return e.resolveAction(ctx, actionID, domain.ActionStatusSkipped, notes)
}

func (e *Engine) resolveAction(ctx context.Context, actionID uuid.UUID, status domain.ActionStatus, notes string) error {
	action, err := e.store.Playbook().GetAction(ctx, actionID)
	if err != nil {
		return err
	}
	instance, err := e.store.Playbook().GetInstance(ctx, action.InstanceID)
	if err != nil {
		return err
	}

	lock := e.clientLock(instance.ClientID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now().UTC()
	if err := e.store.Playbook().ResolveAction(ctx, actionID, status, notes, now); err != nil {
		return err
	}
	metrics.ActionsResolved.WithLabelValues(string(status)).Inc()
	log.Info(ctx, "Retention action resolved",
		zap.String("action_id", actionID.String()),
		zap.String("status", string(status)),
		zap.Int("order", action.Order))

	// Once every action is terminal the instance completes automatically;
	// it is never left active with no pending work.
	actions, err := e.store.Playbook().ListActions(ctx, instance.ID)
	if err != nil {
		return err
	}
	for _, a := range actions {
		if a.Status == domain.ActionStatusPending {
			return nil
		}
	}
	return e.endInstance(ctx, instance, domain.InstanceStatusCompleted, now)
}

// AbandonPlaybook closes a client's active playbook without finishing it
func (e *Engine) AbandonPlaybook(ctx context.Context, clientID uuid.UUID) error {
	lock := e.clientLock(clientID)
	lock.Lock()
	defer lock.Unlock()

	active, err := e.store.Playbook().GetActiveInstance(ctx, clientID)
	if err != nil {
		return err
	}
	if active == nil {
		return domain.NewNotFoundError("active playbook instance", clientID.String())
	}
	return e.endInstance(ctx, *active, domain.InstanceStatusAbandoned, time.Now().UTC())
}

func (e *Engine) endInstance(ctx context.Context, instance domain.PlaybookInstance, status domain.InstanceStatus, endedAt time.Time) error {
	if err := e.store.Playbook().UpdateInstanceStatus(ctx, instance.ID, status, endedAt); err != nil {
		return err
	}
	metrics.PlaybooksEnded.WithLabelValues(string(status)).Inc()
	e.publish(ctx, events.PlaybookEnded(instance, status))
	log.Info(ctx, "Playbook ended",
		zap.String("client_id", instance.ClientID.String()),
		zap.String("instance_id", instance.ID.String()),
		zap.String("status", string(status)))
	return nil
}

// NextAction returns the lowest-order pending action of a client's active
// instance, or nil when the client has no active instance or no pending
// action.
func (e *Engine) NextAction(ctx context.Context, clientID uuid.UUID) (*domain.RetentionAction, error) {
	active, err := e.store.Playbook().GetActiveInstance(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, nil
	}

	actions, err := e.store.Playbook().ListActions(ctx, active.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range actions {
		if a.Status == domain.ActionStatusPending {
			action := a
			return &action, nil
		}
	}
	return nil, nil
}

// ActivePlaybookName returns the template name of the client's active
// instance, or empty when none is active.
func (e *Engine) ActivePlaybookName(ctx context.Context, clientID uuid.UUID) (string, error) {
	active, err := e.store.Playbook().GetActiveInstance(ctx, clientID)
	if err != nil {
		return "", err
	}
	if active == nil {
		return "", nil
	}
	template, err := e.store.Playbook().GetTemplate(ctx, active.TemplateID)
	if err != nil {
		return "", err
	}
	return template.Name, nil
}

func (e *Engine) publish(ctx context.Context, event *events.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		log.Warn(ctx, "Failed to publish lifecycle event",
			zap.String("event_type", event.Type), zap.Error(err))
	}
}
