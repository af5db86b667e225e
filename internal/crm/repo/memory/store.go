package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/advisorhub/retentionservice/internal/crm/repo"
	"github.com/advisorhub/retentionservice/internal/domain"
)

// Store is an in-memory implementation of repo.Store, used by tests and
// local runs. List methods sort by (date, id) so pagination is stable.
type Store struct {
	mu           sync.RWMutex
	clients      map[uuid.UUID]domain.Client
	revenues     map[uuid.UUID]domain.RevenueEvent
	leads        map[uuid.UUID]domain.Lead
	interactions map[uuid.UUID]domain.Interaction
	scores       map[uuid.UUID]domain.HealthScore
	churnEvents  map[uuid.UUID]domain.ChurnEvent
	templates    map[uuid.UUID]domain.PlaybookTemplate
	instances    map[uuid.UUID]domain.PlaybookInstance
	actions      map[uuid.UUID]domain.RetentionAction
}

func NewStore() *Store {
	return &Store{
		clients:      make(map[uuid.UUID]domain.Client),
		revenues:     make(map[uuid.UUID]domain.RevenueEvent),
		leads:        make(map[uuid.UUID]domain.Lead),
		interactions: make(map[uuid.UUID]domain.Interaction),
		scores:       make(map[uuid.UUID]domain.HealthScore),
		churnEvents:  make(map[uuid.UUID]domain.ChurnEvent),
		templates:    make(map[uuid.UUID]domain.PlaybookTemplate),
		instances:    make(map[uuid.UUID]domain.PlaybookInstance),
		actions:      make(map[uuid.UUID]domain.RetentionAction),
	}
}

func (s *Store) Client() repo.ClientRepository           { return (*clientRepo)(s) }
func (s *Store) Revenue() repo.RevenueRepository         { return (*revenueRepo)(s) }
func (s *Store) Lead() repo.LeadRepository               { return (*leadRepo)(s) }
func (s *Store) Interaction() repo.InteractionRepository { return (*interactionRepo)(s) }
func (s *Store) HealthScore() repo.HealthScoreRepository { return (*scoreRepo)(s) }
func (s *Store) ChurnEvent() repo.ChurnEventRepository   { return (*churnRepo)(s) }
func (s *Store) Playbook() repo.PlaybookRepository       { return (*playbookRepo)(s) }

// Seed helpers for tests and local runs

func (s *Store) SeedClient(c domain.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = c
}

func (s *Store) SeedRevenue(e domain.RevenueEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Date = domain.MonthStart(e.Date)
	s.revenues[e.ID] = e
}

func (s *Store) SeedLead(l domain.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[l.ID] = l
}

func (s *Store) SeedInteraction(i domain.Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[i.ID] = i
}

// SeedTemplate validates and registers a playbook template
func (s *Store) SeedTemplate(t domain.PlaybookTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
	return nil
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// clientRepo

type clientRepo Store

func (r *clientRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return domain.Client{}, domain.NewNotFoundError("client", id.String())
	}
	return c, nil
}

func (r *clientRepo) ListActive(ctx context.Context, limit, offset int) ([]domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Client, 0, len(r.clients))
	for _, c := range r.clients {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, limit, offset), nil
}

// revenueRepo

type revenueRepo Store

func (r *revenueRepo) Insert(ctx context.Context, event domain.RevenueEvent) (domain.RevenueEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Date = domain.MonthStart(event.Date)
	r.revenues[event.ID] = event
	return event, nil
}

func (r *revenueRepo) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]domain.RevenueEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.RevenueEvent
	for _, e := range r.revenues {
		if e.ClientID == clientID {
			out = append(out, e)
		}
	}
	sortRevenues(out)
	return page(out, limit, offset), nil
}

func (r *revenueRepo) ListByDateRange(ctx context.Context, from, to time.Time, limit, offset int) ([]domain.RevenueEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.RevenueEvent
	for _, e := range r.revenues {
		if !e.Date.Before(from) && e.Date.Before(to) {
			out = append(out, e)
		}
	}
	sortRevenues(out)
	return page(out, limit, offset), nil
}

func sortRevenues(rows []domain.RevenueEvent) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].ID.String() < rows[j].ID.String()
	})
}

// leadRepo

type leadRepo Store

func (r *leadRepo) Insert(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	r.leads[lead.ID] = lead
	return lead, nil
}

func (r *leadRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.leads[id]; !ok {
		return domain.NewNotFoundError("lead", id.String())
	}
	delete(r.leads, id)
	return nil
}

func (r *leadRepo) ListByCreatedRange(ctx context.Context, from, to time.Time, limit, offset int) ([]domain.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Lead
	for _, l := range r.leads {
		if !l.CreatedAt.Before(from) && l.CreatedAt.Before(to) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, limit, offset), nil
}

// interactionRepo

type interactionRepo Store

func (r *interactionRepo) ListByClient(ctx context.Context, clientID uuid.UUID, from, to time.Time, limit, offset int) ([]domain.Interaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Interaction
	for _, it := range r.interactions {
		if it.ClientID == clientID && !it.OccurredAt.Before(from) && it.OccurredAt.Before(to) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, limit, offset), nil
}

// scoreRepo

type scoreRepo Store

func (r *scoreRepo) Upsert(ctx context.Context, score domain.HealthScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores[score.ClientID] = score
	return nil
}

func (r *scoreRepo) Get(ctx context.Context, clientID uuid.UUID) (domain.HealthScore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc, ok := r.scores[clientID]
	if !ok {
		return domain.HealthScore{}, domain.NewNotFoundError("health score", clientID.String())
	}
	return sc, nil
}

func (r *scoreRepo) ListByClassification(ctx context.Context, classifications []domain.Classification, limit, offset int) ([]domain.HealthScore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wanted := make(map[domain.Classification]bool, len(classifications))
	for _, c := range classifications {
		wanted[c] = true
	}
	var out []domain.HealthScore
	for _, sc := range r.scores {
		if len(wanted) == 0 || wanted[sc.Classification] {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].ClientID.String() < out[j].ClientID.String()
	})
	return page(out, limit, offset), nil
}

// churnRepo

type churnRepo Store

func (r *churnRepo) Insert(ctx context.Context, event domain.ChurnEvent) (domain.ChurnEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.Status == domain.ChurnStatusPending {
		for _, e := range r.churnEvents {
			if e.ClientID == event.ClientID && e.Status == domain.ChurnStatusPending {
				return domain.ChurnEvent{}, domain.NewInvariantViolationError(
					"client already has a pending churn event", event.ClientID.String())
			}
		}
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	r.churnEvents[event.ID] = event
	return event, nil
}

func (r *churnRepo) GetPendingByClient(ctx context.Context, clientID uuid.UUID) (*domain.ChurnEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.churnEvents {
		if e.ClientID == clientID && e.Status == domain.ChurnStatusPending {
			ev := e
			return &ev, nil
		}
	}
	return nil, nil
}

func (r *churnRepo) ListPending(ctx context.Context, limit, offset int) ([]domain.ChurnEvent, error) {
	return r.list(limit, offset, func(e domain.ChurnEvent) bool {
		return e.Status == domain.ChurnStatusPending
	})
}

func (r *churnRepo) List(ctx context.Context, limit, offset int) ([]domain.ChurnEvent, error) {
	return r.list(limit, offset, func(domain.ChurnEvent) bool { return true })
}

func (r *churnRepo) list(limit, offset int, keep func(domain.ChurnEvent) bool) ([]domain.ChurnEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ChurnEvent
	for _, e := range r.churnEvents {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, limit, offset), nil
}

func (r *churnRepo) Resolve(ctx context.Context, id uuid.UUID, status domain.ChurnStatus, resolvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.churnEvents[id]
	if !ok {
		return domain.NewNotFoundError("churn event", id.String())
	}
	if e.Status != domain.ChurnStatusPending {
		return domain.NewInvariantViolationError("churn event already resolved", id.String())
	}
	e.Status = status
	e.ResolvedAt = &resolvedAt
	r.churnEvents[id] = e
	return nil
}

// playbookRepo

type playbookRepo Store

func (r *playbookRepo) ListTemplates(ctx context.Context) ([]domain.PlaybookTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PlaybookTemplate, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *playbookRepo) GetTemplate(ctx context.Context, id uuid.UUID) (domain.PlaybookTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return domain.PlaybookTemplate{}, domain.NewNotFoundError("playbook template", id.String())
	}
	return t, nil
}

func (r *playbookRepo) GetActiveInstance(ctx context.Context, clientID uuid.UUID) (*domain.PlaybookInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.instances {
		if inst.ClientID == clientID && inst.Status == domain.InstanceStatusActive {
			i := inst
			return &i, nil
		}
	}
	return nil, nil
}

func (r *playbookRepo) CreateInstance(ctx context.Context, instance domain.PlaybookInstance, actions []domain.RetentionAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.ClientID == instance.ClientID && inst.Status == domain.InstanceStatusActive {
			return domain.NewInvariantViolationError(
				"client already has an active playbook instance", instance.ClientID.String())
		}
	}
	r.instances[instance.ID] = instance
	for _, a := range actions {
		r.actions[a.ID] = a
	}
	return nil
}

func (r *playbookRepo) DeleteInstance(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[id]; !ok {
		return domain.NewNotFoundError("playbook instance", id.String())
	}
	delete(r.instances, id)
	for aid, a := range r.actions {
		if a.InstanceID == id {
			delete(r.actions, aid)
		}
	}
	return nil
}

func (r *playbookRepo) UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status domain.InstanceStatus, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return domain.NewNotFoundError("playbook instance", id.String())
	}
	inst.Status = status
	inst.EndedAt = &endedAt
	r.instances[id] = inst
	return nil
}

func (r *playbookRepo) GetInstance(ctx context.Context, id uuid.UUID) (domain.PlaybookInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	if !ok {
		return domain.PlaybookInstance{}, domain.NewNotFoundError("playbook instance", id.String())
	}
	return inst, nil
}

func (r *playbookRepo) GetAction(ctx context.Context, id uuid.UUID) (domain.RetentionAction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[id]
	if !ok {
		return domain.RetentionAction{}, domain.NewNotFoundError("retention action", id.String())
	}
	return a, nil
}

func (r *playbookRepo) ListActions(ctx context.Context, instanceID uuid.UUID) ([]domain.RetentionAction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.RetentionAction
	for _, a := range r.actions {
		if a.InstanceID == instanceID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r *playbookRepo) ResolveAction(ctx context.Context, id uuid.UUID, status domain.ActionStatus, notes string, resolvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actions[id]
	if !ok {
		return domain.NewNotFoundError("retention action", id.String())
	}
	if a.Status != domain.ActionStatusPending {
		return domain.NewInvariantViolationError("action already resolved", id.String())
	}
	a.Status = status
	a.Notes = notes
	a.ResolvedAt = &resolvedAt
	r.actions[id] = a
	return nil
}
