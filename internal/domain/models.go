package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Client is a CRM client owned by an assessor.
type Client struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	AssessorID uuid.UUID `json:"assessor_id"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// RevenueEvent is an immutable revenue posting fact. Date is month-granular:
// it is always normalized to the first day of its calendar month.
type RevenueEvent struct {
	ID       uuid.UUID `json:"id"`
	ClientID uuid.UUID `json:"client_id"`
	Date     time.Time `json:"date"`
	Amount   float64   `json:"amount"`
}

// LeadStatus represents the lifecycle status of a lead
type LeadStatus string

const (
	LeadStatusOpen      LeadStatus = "open"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusLost      LeadStatus = "lost"
)

// Lead is a CRM lead record. ClientID is set once the lead converts.
type Lead struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Status      LeadStatus `json:"status"`
	AssessorID  uuid.UUID  `json:"assessor_id"`
	ClientID    *uuid.UUID `json:"client_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ConvertedAt *time.Time `json:"converted_at,omitempty"`
}

// Interaction is a logged client touchpoint (call, meeting, message).
type Interaction struct {
	ID         uuid.UUID `json:"id"`
	ClientID   uuid.UUID `json:"client_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Channel    string    `json:"channel,omitempty"`
}

// Classification buckets a health score into a risk band
type Classification string

const (
	ClassificationHealthy   Classification = "healthy"
	ClassificationAttention Classification = "attention"
	ClassificationCritical  Classification = "critical"
	ClassificationLost      Classification = "lost"
)

// Classification thresholds. Boundaries are inclusive: a score of exactly
// 75 is healthy, exactly 50 is attention, exactly 25 is critical.
const (
	HealthyThreshold   = 75.0
	AttentionThreshold = 50.0
	CriticalThreshold  = 25.0
)

// Classify maps a 0-100 score onto its risk band
func Classify(score float64) Classification {
	switch {
	case score >= HealthyThreshold:
		return ClassificationHealthy
	case score >= AttentionThreshold:
		return ClassificationAttention
	case score >= CriticalThreshold:
		return ClassificationCritical
	default:
		return ClassificationLost
	}
}

// IsAtRisk reports whether the classification calls for intervention
func (c Classification) IsAtRisk() bool {
	return c == ClassificationCritical || c == ClassificationLost
}

// IsValid reports whether c is a known classification
func (c Classification) IsValid() bool {
	switch c {
	case ClassificationHealthy, ClassificationAttention, ClassificationCritical, ClassificationLost:
		return true
	}
	return false
}

// HealthScore is the latest composite score for a client. Superseded on
// each recomputation; no history is kept.
type HealthScore struct {
	ClientID       uuid.UUID      `json:"client_id"`
	Score          float64        `json:"score"`
	Classification Classification `json:"classification"`
	ComputedAt     time.Time      `json:"computed_at"`
}

// ClientActivitySnapshot is the derived activity picture for one client as
// of a given date. Computed on demand, never stored.
type ClientActivitySnapshot struct {
	ClientID uuid.UUID `json:"client_id"`
	AsOf     time.Time `json:"as_of"`

	// DaysSinceLastRevenue is -1 when the client has no revenue history.
	DaysSinceLastRevenue int `json:"days_since_last_revenue"`

	// MonthlyOperationCounts holds per-month revenue posting counts for
	// the months of history that exist, oldest first, capped at the
	// trailing window.
	MonthlyOperationCounts []int `json:"monthly_operation_counts"`

	// MonthlyRevenue holds per-month revenue totals aligned with
	// MonthlyOperationCounts.
	MonthlyRevenue []float64 `json:"monthly_revenue"`

	AverageMonthlyRevenue float64 `json:"average_monthly_revenue"`

	// RevenueTrend is the month-over-month slope of the last two observed
	// months, as a ratio of the earlier month (-1 means revenue halved
	// twice over, +1 means it doubled). Zero when fewer than two months
	// of history exist.
	RevenueTrend float64 `json:"revenue_trend"`

	InteractionCount90d int `json:"interaction_count_90d"`
}

// HasRevenueHistory reports whether the client ever posted revenue
func (s ClientActivitySnapshot) HasRevenueHistory() bool {
	return s.DaysSinceLastRevenue >= 0
}

// OfficeReference is the office-wide normalization snapshot, computed once
// per bulk run and passed explicitly so scoring stays reproducible.
type OfficeReference struct {
	MedianMonthlyRevenue     float64   `json:"median_monthly_revenue"`
	ReferenceMonthlyOps      float64   `json:"reference_monthly_ops"`
	ReferenceInteractions90d float64   `json:"reference_interactions_90d"`
	ActiveClients            int       `json:"active_clients"`
	ComputedAt               time.Time `json:"computed_at"`
}

// ChurnStatus represents the lifecycle status of a churn event
type ChurnStatus string

const (
	ChurnStatusPending  ChurnStatus = "pending"
	ChurnStatusRetained ChurnStatus = "retained"
	ChurnStatusChurned  ChurnStatus = "churned"
)

// ChurnEvent records a predicted churn and its eventual observed outcome.
// At most one pending event exists per client at a time.
type ChurnEvent struct {
	ID                   uuid.UUID   `json:"id"`
	ClientID             uuid.UUID   `json:"client_id"`
	PredictedProbability float64     `json:"predicted_probability"`
	Status               ChurnStatus `json:"status"`
	CreatedAt            time.Time   `json:"created_at"`
	ResolvedAt           *time.Time  `json:"resolved_at,omitempty"`
}

// ChurnSummary is the operator-facing rollup of churn events
type ChurnSummary struct {
	Total                    int     `json:"total"`
	Pending                  int     `json:"pending"`
	Retained                 int     `json:"retained"`
	Churned                  int     `json:"churned"`
	MeanPredictedProbability float64 `json:"mean_predicted_probability"`
}

// ActionType is the closed set of retention playbook action kinds
type ActionType string

const (
	ActionTypeCall       ActionType = "contact_call"
	ActionTypeMeeting    ActionType = "schedule_meeting"
	ActionTypeProposal   ActionType = "send_proposal"
	ActionTypeReview     ActionType = "portfolio_review"
	ActionTypeEscalation ActionType = "escalate_manager"
)

// IsValid reports whether t is a known action type
func (t ActionType) IsValid() bool {
	switch t {
	case ActionTypeCall, ActionTypeMeeting, ActionTypeProposal, ActionTypeReview, ActionTypeEscalation:
		return true
	}
	return false
}

// PlaybookStep is one ordered step of a playbook template
type PlaybookStep struct {
	Order        int        `json:"order"`
	ActionType   ActionType `json:"action_type"`
	Description  string     `json:"description"`
	DeadlineDays int        `json:"deadline_days"`
}

// PlaybookTemplate is immutable reference data describing an ordered
// retention play for a given risk classification.
type PlaybookTemplate struct {
	ID                 uuid.UUID      `json:"id"`
	Name               string         `json:"name"`
	RiskClassification Classification `json:"risk_classification"`
	Steps              []PlaybookStep `json:"steps"`
}

// Validate checks template shape at load time: non-empty name, a known
// risk classification, valid action types, non-negative deadlines, and
// step orders unique and contiguous starting at 1.
func (t PlaybookTemplate) Validate() error {
	if t.Name == "" {
		return NewInvalidInputError("playbook template name is required", t.ID.String())
	}
	if !t.RiskClassification.IsValid() {
		return NewInvalidInputError("unknown risk classification",
			fmt.Sprintf("template %s: %q", t.Name, t.RiskClassification))
	}
	if len(t.Steps) == 0 {
		return NewInvalidInputError("playbook template has no steps", t.Name)
	}
	for i, step := range t.Steps {
		if step.Order != i+1 {
			return NewInvalidInputError("step orders must be contiguous starting at 1",
				fmt.Sprintf("template %s: step %d has order %d", t.Name, i, step.Order))
		}
		if !step.ActionType.IsValid() {
			return NewInvalidInputError("unknown action type",
				fmt.Sprintf("template %s step %d: %q", t.Name, step.Order, step.ActionType))
		}
		if step.DeadlineDays < 0 {
			return NewInvalidInputError("deadline days cannot be negative",
				fmt.Sprintf("template %s step %d", t.Name, step.Order))
		}
	}
	return nil
}

// InstanceStatus represents the lifecycle status of a playbook instance
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusAbandoned InstanceStatus = "abandoned"
)

// IsTerminal reports whether the instance can no longer change
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusCompleted || s == InstanceStatusAbandoned
}

// PlaybookInstance is a per-client run of a playbook template. At most one
// active instance exists per client.
type PlaybookInstance struct {
	ID         uuid.UUID      `json:"id"`
	ClientID   uuid.UUID      `json:"client_id"`
	TemplateID uuid.UUID      `json:"template_id"`
	StartedAt  time.Time      `json:"started_at"`
	Status     InstanceStatus `json:"status"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
}

// ActionStatus represents the lifecycle status of a retention action
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusSkipped   ActionStatus = "skipped"
)

// RetentionAction is one materialized step of a running playbook instance.
// Actions resolve in any order; the "next action" shown to operators is the
// lowest-order pending one.
type RetentionAction struct {
	ID          uuid.UUID    `json:"id"`
	InstanceID  uuid.UUID    `json:"instance_id"`
	Order       int          `json:"order"`
	ActionType  ActionType   `json:"action_type"`
	Description string       `json:"description"`
	DueDate     time.Time    `json:"due_date"`
	Status      ActionStatus `json:"status"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
	Notes       string       `json:"notes,omitempty"`
}

// RetentionCell is one month-offset retention observation for a cohort.
// Future offsets are flagged rather than rendered as 0%.
type RetentionCell struct {
	Offset     int     `json:"offset"`
	Percentage float64 `json:"percentage"`
	IsFuture   bool    `json:"is_future"`
}

// CohortBucket is the derived retention picture for one acquisition cohort
type CohortBucket struct {
	CohortMonth         string          `json:"cohort_month"`
	TotalLeads          int             `json:"total_leads"`
	ConvertedLeads      int             `json:"converted_leads"`
	TrackedLeads        int             `json:"tracked_leads"`
	Retention           []RetentionCell `json:"retention"`
	FinalConversionRate float64         `json:"final_conversion_rate"`
}

// MRRMovement is the month-over-month revenue movement decomposition.
// Net = New + Expansion + Contraction + Churn, and must reconcile to the
// raw office-wide revenue delta for the month.
type MRRMovement struct {
	Month       string  `json:"month"`
	New         float64 `json:"new"`
	Expansion   float64 `json:"expansion"`
	Contraction float64 `json:"contraction"`
	Churn       float64 `json:"churn"`
	Net         float64 `json:"net"`
}

// AtRiskClient is one row of the operator at-risk view, joining the health
// score with churn probability and playbook progress.
type AtRiskClient struct {
	ClientID         uuid.UUID        `json:"client_id"`
	ClientName       string           `json:"client_name"`
	Score            float64          `json:"score"`
	Classification   Classification   `json:"classification"`
	ChurnProbability float64          `json:"churn_probability"`
	ActivePlaybook   string           `json:"active_playbook,omitempty"`
	NextAction       *RetentionAction `json:"next_action,omitempty"`
}

// MonthStart normalizes t to the first instant of its calendar month in UTC
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthKey formats t as a YYYY-MM month key
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// AddMonths returns the month start n calendar months after t
func AddMonths(t time.Time, n int) time.Time {
	return MonthStart(t).AddDate(0, n, 0)
}

// MonthsBetween returns the number of whole calendar months from a to b
func MonthsBetween(a, b time.Time) int {
	a, b = MonthStart(a), MonthStart(b)
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
