package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/advisorhub/retentionservice/internal/crm/repo"
	"github.com/advisorhub/retentionservice/internal/domain"
)

const pgUniqueViolation = "23505"

// Store represents the PostgreSQL store implementation
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a new PostgreSQL store
func NewStore(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: pool}, nil
}

// NewStoreWithPool creates a new PostgreSQL store with an existing pool
func NewStoreWithPool(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	return &Store{db: pool}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

func (s *Store) Client() repo.ClientRepository           { return &clientRepository{s} }
func (s *Store) Revenue() repo.RevenueRepository         { return &revenueRepository{s} }
func (s *Store) Lead() repo.LeadRepository               { return &leadRepository{s} }
func (s *Store) Interaction() repo.InteractionRepository { return &interactionRepository{s} }
func (s *Store) HealthScore() repo.HealthScoreRepository { return &healthScoreRepository{s} }
func (s *Store) ChurnEvent() repo.ChurnEventRepository   { return &churnEventRepository{s} }
func (s *Store) Playbook() repo.PlaybookRepository       { return &playbookRepository{s} }

// clientRepository implements repo.ClientRepository

type clientRepository struct {
	store *Store
}

func (r *clientRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	var c domain.Client
	err := r.store.db.QueryRow(ctx,
		`SELECT id, name, assessor_id, active, created_at FROM clients WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.AssessorID, &c.Active, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Client{}, domain.NewNotFoundError("client", id.String())
	}
	if err != nil {
		return domain.Client{}, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

func (r *clientRepository) ListActive(ctx context.Context, limit, offset int) ([]domain.Client, error) {
	rows, err := r.store.db.Query(ctx,
		`SELECT id, name, assessor_id, active, created_at
		 FROM clients WHERE active
		 ORDER BY created_at, id
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list active clients: %w", err)
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.AssessorID, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// revenueRepository implements repo.RevenueRepository

type revenueRepository struct {
	store *Store
}

func (r *revenueRepository) Insert(ctx context.Context, event domain.RevenueEvent) (domain.RevenueEvent, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Date = domain.MonthStart(event.Date)
	_, err := r.store.db.Exec(ctx,
		`INSERT INTO revenue_events (id, client_id, date, amount) VALUES ($1, $2, $3, $4)`,
		event.ID, event.ClientID, event.Date, event.Amount)
	if err != nil {
		return domain.RevenueEvent{}, fmt.Errorf("failed to insert revenue event: %w", err)
	}
	return event, nil
}

func (r *revenueRepository) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]domain.RevenueEvent, error) {
	rows, err := r.store.db.Query(ctx,
		`SELECT id, client_id, date, amount
		 FROM revenue_events WHERE client_id = $1
		 ORDER BY date, id
		 LIMIT $2 OFFSET $3`, clientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list revenue events: %w", err)
	}
	defer rows.Close()
	return scanRevenueRows(rows)
}

func (r *revenueRepository) ListByDateRange(ctx context.Context, from, to time.Time, limit, offset int) ([]domain.RevenueEvent, error) {
	rows, err := r.store.db.Query(ctx,
		`SELECT id, client_id, date, amount
		 FROM revenue_events WHERE date >= $1 AND date < $2
		 ORDER BY date, id
		 LIMIT $3 OFFSET $4`, from, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list revenue events: %w", err)
	}
	defer rows.Close()
	return scanRevenueRows(rows)
}

func scanRevenueRows(rows pgx.Rows) ([]domain.RevenueEvent, error) {
	var out []domain.RevenueEvent
	for rows.Next() {
		var e domain.RevenueEvent
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Date, &e.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan revenue event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// leadRepository implements repo.LeadRepository

type leadRepository struct {
	store *Store
}

func (r *leadRepository) Insert(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	_, err := r.store.db.Exec(ctx,
		`INSERT INTO leads (id, name, status, assessor_id, client_id, created_at, converted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		lead.ID, lead.Name, lead.Status, lead.AssessorID, lead.ClientID, lead.CreatedAt, lead.ConvertedAt)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("failed to insert lead: %w", err)
	}
	return lead, nil
}

func (r *leadRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.store.db.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("lead", id.String())
	}
	return nil
}

func (r *leadRepository) ListByCreatedRange(ctx context.Context, from, to time.Time, limit, offset int) ([]domain.Lead, error) {
	rows, err := r.store.db.Query(ctx,
		`SELECT id, name, status, assessor_id, client_id, created_at, converted_at
		 FROM leads WHERE created_at >= $1 AND created_at < $2
		 ORDER BY created_at, id
		 LIMIT $3 OFFSET $4`, from, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		var l domain.Lead
		if err := rows.Scan(&l.ID, &l.Name, &l.Status, &l.AssessorID, &l.ClientID, &l.CreatedAt, &l.ConvertedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// interactionRepository implements repo.InteractionRepository

type interactionRepository struct {
	store *Store
}

func (r *interactionRepository) ListByClient(ctx context.Context, clientID uuid.UUID, from, to time.Time, limit, offset int) ([]domain.Interaction, error) {
	rows, err := r.store.db.Query(ctx,
		`SELECT id, client_id, occurred_at, channel
		 FROM interactions WHERE client_id = $1 AND occurred_at >= $2 AND occurred_at < $3
		 ORDER BY occurred_at, id
		 LIMIT $4 OFFSET $5`, clientID, from, to, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Interaction
	for rows.Next() {
		var it domain.Interaction
		if err := rows.Scan(&it.ID, &it.ClientID, &it.OccurredAt, &it.Channel); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// healthScoreRepository implements repo.HealthScoreRepository

type healthScoreRepository struct {
	store *Store
}

func (r *healthScoreRepository) Upsert(ctx context.Context, score domain.HealthScore) error {
	_, err := r.store.db.Exec(ctx,
		`INSERT INTO health_scores (client_id, score, classification, computed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (client_id) DO UPDATE
		 SET score = EXCLUDED.score,
		     classification = EXCLUDED.classification,
		     computed_at = EXCLUDED.computed_at`,
		score.ClientID, score.Score, score.Classification, score.ComputedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert health score: %w", err)
	}
	return nil
}

func (r *healthScoreRepository) Get(ctx context.Context, clientID uuid.UUID) (domain.HealthScore, error) {
	var sc domain.HealthScore
	err := r.store.db.QueryRow(ctx,
		`SELECT client_id, score, classification, computed_at FROM health_scores WHERE client_id = $1`,
		clientID,
	).Scan(&sc.ClientID, &sc.Score, &sc.Classification, &sc.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.HealthScore{}, domain.NewNotFoundError("health score", clientID.String())
	}
	if err != nil {
		return domain.HealthScore{}, fmt.Errorf("failed to get health score: %w", err)
	}
	return sc, nil
}

func (r *healthScoreRepository) ListByClassification(ctx context.Context, classifications []domain.Classification, limit, offset int) ([]domain.HealthScore, error) {
	bands := make([]string, len(classifications))
	for i, c := range classifications {
		bands[i] = string(c)
	}
	rows, err := r.store.db.Query(ctx,
		`SELECT client_id, score, classification, computed_at
		 FROM health_scores
		 WHERE cardinality($1::text[]) = 0 OR classification = ANY($1)
		 ORDER BY score, client_id
		 LIMIT $2 OFFSET $3`, bands, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list health scores: %w", err)
	}
	defer rows.Close()

	var out []domain.HealthScore
	for rows.Next() {
		var sc domain.HealthScore
		if err := rows.Scan(&sc.ClientID, &sc.Score, &sc.Classification, &sc.ComputedAt); err != nil {
			return nil, fmt.Errorf("failed to scan health score: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// churnEventRepository implements repo.ChurnEventRepository

type churnEventRepository struct {
	store *Store
}

func (r *churnEventRepository) Insert(ctx context.Context, event domain.ChurnEvent) (domain.ChurnEvent, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	_, err := r.store.db.Exec(ctx,
		`INSERT INTO churn_events (id, client_id, predicted_probability, status, created_at, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.ClientID, event.PredictedProbability, event.Status, event.CreatedAt, event.ResolvedAt)
	if err != nil {
		// A partial unique index on (client_id) WHERE status = 'pending'
		// backs the at-most-one-pending invariant.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ChurnEvent{}, domain.NewInvariantViolationError(
				"client already has a pending churn event", event.ClientID.String())
		}
		return domain.ChurnEvent{}, fmt.Errorf("failed to insert churn event: %w", err)
	}
	return event, nil
}

func (r *churnEventRepository) GetPendingByClient(ctx context.Context, clientID uuid.UUID) (*domain.ChurnEvent, error) {
	var e domain.ChurnEvent
	err := r.store.db.QueryRow(ctx,
		`SELECT id, client_id, predicted_probability, status, created_at, resolved_at
		 FROM churn_events WHERE client_id = $1 AND status = 'pending'`, clientID,
	).Scan(&e.ID, &e.ClientID, &e.PredictedProbability, &e.Status, &e.CreatedAt, &e.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending churn event: %w", err)
	}
	return &e, nil
}

func (r *churnEventRepository) ListPending(ctx context.Context, limit, offset int) ([]domain.ChurnEvent, error) {
	return r.list(ctx, `WHERE status = 'pending'`, limit, offset)
}

func (r *churnEventRepository) List(ctx context.Context, limit, offset int) ([]domain.ChurnEvent, error) {
	return r.list(ctx, ``, limit, offset)
}

func (r *churnEventRepository) list(ctx context.Context, where string, limit, offset int) ([]domain.ChurnEvent, error) {
	rows, err := r.store.db.Query(ctx,
		`SELECT id, client_id, predicted_probability, status, created_at, resolved_at
		 FROM churn_events `+where+`
		 ORDER BY created_at, id
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list churn events: %w", err)
	}
	defer rows.Close()

	var out []domain.ChurnEvent
	for rows.Next() {
		var e domain.ChurnEvent
		if err := rows.Scan(&e.ID, &e.ClientID, &e.PredictedProbability, &e.Status, &e.CreatedAt, &e.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan churn event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *churnEventRepository) Resolve(ctx context.Context, id uuid.UUID, status domain.ChurnStatus, resolvedAt time.Time) error {
	tag, err := r.store.db.Exec(ctx,
		`UPDATE churn_events SET status = $2, resolved_at = $3
		 WHERE id = $1 AND status = 'pending'`, id, status, resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to resolve churn event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("pending churn event", id.String())
	}
	return nil
}

// playbookRepository implements repo.PlaybookRepository

type playbookRepository struct {
	store *Store
}

func (r *playbookRepository) ListTemplates(ctx context.Context) ([]domain.PlaybookTemplate, error) {
	rows, err := r.store.db.Query(ctx,
		`SELECT id, name, risk_classification, steps FROM playbook_templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list playbook templates: %w", err)
	}
	defer rows.Close()

	var out []domain.PlaybookTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *playbookRepository) GetTemplate(ctx context.Context, id uuid.UUID) (domain.PlaybookTemplate, error) {
	row := r.store.db.QueryRow(ctx,
		`SELECT id, name, risk_classification, steps FROM playbook_templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PlaybookTemplate{}, domain.NewNotFoundError("playbook template", id.String())
	}
	return t, err
}

func scanTemplate(row pgx.Row) (domain.PlaybookTemplate, error) {
	var t domain.PlaybookTemplate
	var steps []byte
	if err := row.Scan(&t.ID, &t.Name, &t.RiskClassification, &steps); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PlaybookTemplate{}, err
		}
		return domain.PlaybookTemplate{}, fmt.Errorf("failed to scan playbook template: %w", err)
	}
	if err := json.Unmarshal(steps, &t.Steps); err != nil {
		return domain.PlaybookTemplate{}, fmt.Errorf("failed to decode template steps: %w", err)
	}
	return t, nil
}

func (r *playbookRepository) GetActiveInstance(ctx context.Context, clientID uuid.UUID) (*domain.PlaybookInstance, error) {
	var inst domain.PlaybookInstance
	err := r.store.db.QueryRow(ctx,
		`SELECT id, client_id, template_id, started_at, status, ended_at
		 FROM playbook_instances WHERE client_id = $1 AND status = 'active'`, clientID,
	).Scan(&inst.ID, &inst.ClientID, &inst.TemplateID, &inst.StartedAt, &inst.Status, &inst.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active playbook instance: %w", err)
	}
	return &inst, nil
}

func (r *playbookRepository) CreateInstance(ctx context.Context, instance domain.PlaybookInstance, actions []domain.RetentionAction) error {
	tx, err := r.store.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO playbook_instances (id, client_id, template_id, started_at, status, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		instance.ID, instance.ClientID, instance.TemplateID, instance.StartedAt, instance.Status, instance.EndedAt)
	if err != nil {
		// A partial unique index on (client_id) WHERE status = 'active'
		// backs the at-most-one-active invariant.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.NewInvariantViolationError(
				"client already has an active playbook instance", instance.ClientID.String())
		}
		return fmt.Errorf("failed to insert playbook instance: %w", err)
	}

	for _, a := range actions {
		_, err = tx.Exec(ctx,
			`INSERT INTO retention_actions (id, instance_id, step_order, action_type, description, due_date, status, resolved_at, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			a.ID, a.InstanceID, a.Order, a.ActionType, a.Description, a.DueDate, a.Status, a.ResolvedAt, a.Notes)
		if err != nil {
			return fmt.Errorf("failed to insert retention action: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *playbookRepository) DeleteInstance(ctx context.Context, id uuid.UUID) error {
	tx, err := r.store.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM retention_actions WHERE instance_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete retention actions: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM playbook_instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete playbook instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("playbook instance", id.String())
	}
	return tx.Commit(ctx)
}

func (r *playbookRepository) UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status domain.InstanceStatus, endedAt time.Time) error {
	tag, err := r.store.db.Exec(ctx,
		`UPDATE playbook_instances SET status = $2, ended_at = $3 WHERE id = $1`,
		id, status, endedAt)
	if err != nil {
		return fmt.Errorf("failed to update playbook instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("playbook instance", id.String())
	}
	return nil
}

func (r *playbookRepository) GetInstance(ctx context.Context, id uuid.UUID) (domain.PlaybookInstance, error) {
	var inst domain.PlaybookInstance
	err := r.store.db.QueryRow(ctx,
		`SELECT id, client_id, template_id, started_at, status, ended_at
		 FROM playbook_instances WHERE id = $1`, id,
	).Scan(&inst.ID, &inst.ClientID, &inst.TemplateID, &inst.StartedAt, &inst.Status, &inst.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PlaybookInstance{}, domain.NewNotFoundError("playbook instance", id.String())
	}
	if err != nil {
		return domain.PlaybookInstance{}, fmt.Errorf("failed to get playbook instance: %w", err)
	}
	return inst, nil
}

func (r *playbookRepository) GetAction(ctx context.Context, id uuid.UUID) (domain.RetentionAction, error) {
	var a domain.RetentionAction
	err := r.store.db.QueryRow(ctx,
		`SELECT id, instance_id, step_order, action_type, description, due_date, status, resolved_at, notes
		 FROM retention_actions WHERE id = $1`, id,
	).Scan(&a.ID, &a.InstanceID, &a.Order, &a.ActionType, &a.Description, &a.DueDate, &a.Status, &a.ResolvedAt, &a.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RetentionAction{}, domain.NewNotFoundError("retention action", id.String())
	}
	if err != nil {
		return domain.RetentionAction{}, fmt.Errorf("failed to get retention action: %w", err)
	}
	return a, nil
}

func (r *playbookRepository) ListActions(ctx context.Context, instanceID uuid.UUID) ([]domain.RetentionAction, error) {
	rows, err := r.store.db.Query(ctx,
		`SELECT id, instance_id, step_order, action_type, description, due_date, status, resolved_at, notes
		 FROM retention_actions WHERE instance_id = $1 ORDER BY step_order`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list retention actions: %w", err)
	}
	defer rows.Close()

	var out []domain.RetentionAction
	for rows.Next() {
		var a domain.RetentionAction
		if err := rows.Scan(&a.ID, &a.InstanceID, &a.Order, &a.ActionType, &a.Description, &a.DueDate, &a.Status, &a.ResolvedAt, &a.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan retention action: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *playbookRepository) ResolveAction(ctx context.Context, id uuid.UUID, status domain.ActionStatus, notes string, resolvedAt time.Time) error {
	tag, err := r.store.db.Exec(ctx,
		`UPDATE retention_actions SET status = $2, notes = $3, resolved_at = $4
		 WHERE id = $1 AND status = 'pending'`, id, status, notes, resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to resolve retention action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either unknown or already resolved; distinguish for the caller.
		var exists bool
		if scanErr := r.store.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM retention_actions WHERE id = $1)`, id).Scan(&exists); scanErr == nil && exists {
			return domain.NewInvariantViolationError("action already resolved", id.String())
		}
		return domain.NewNotFoundError("retention action", id.String())
	}
	return nil
}
