package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/advisorhub/retentionservice/internal/domain"
)

func TestChurnInsert_SecondPendingRejected(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	clientID := uuid.New()

	first := domain.ChurnEvent{ID: uuid.New(), ClientID: clientID, Status: domain.ChurnStatusPending, CreatedAt: time.Now()}
	if _, err := store.ChurnEvent().Insert(ctx, first); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	second := domain.ChurnEvent{ID: uuid.New(), ClientID: clientID, Status: domain.ChurnStatusPending, CreatedAt: time.Now()}
	_, err := store.ChurnEvent().Insert(ctx, second)
	if !domain.HasCode(err, domain.ErrCodeInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}

	// A resolved event does not block a new pending one.
	if err := store.ChurnEvent().Resolve(ctx, first.ID, domain.ChurnStatusChurned, time.Now()); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if _, err := store.ChurnEvent().Insert(ctx, second); err != nil {
		t.Fatalf("insert after resolution failed: %v", err)
	}
}

func TestChurnResolve_AlreadyResolvedRejected(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	ev := domain.ChurnEvent{ID: uuid.New(), ClientID: uuid.New(), Status: domain.ChurnStatusPending, CreatedAt: time.Now()}
	if _, err := store.ChurnEvent().Insert(ctx, ev); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := store.ChurnEvent().Resolve(ctx, ev.ID, domain.ChurnStatusRetained, time.Now()); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	err := store.ChurnEvent().Resolve(ctx, ev.ID, domain.ChurnStatusChurned, time.Now())
	if !domain.HasCode(err, domain.ErrCodeInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestCreateInstance_SecondActiveRejected(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	clientID := uuid.New()

	mk := func() domain.PlaybookInstance {
		return domain.PlaybookInstance{ID: uuid.New(), ClientID: clientID, TemplateID: uuid.New(),
			StartedAt: time.Now(), Status: domain.InstanceStatusActive}
	}
	if err := store.Playbook().CreateInstance(ctx, mk(), nil); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	err := store.Playbook().CreateInstance(ctx, mk(), nil)
	if !domain.HasCode(err, domain.ErrCodeInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestRevenueListByClient_StablePagination(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	clientID := uuid.New()

	for i := 0; i < 25; i++ {
		store.SeedRevenue(domain.RevenueEvent{
			ID:       uuid.New(),
			ClientID: clientID,
			Date:     time.Date(2024, time.Month(1+i%12), 1, 0, 0, 0, 0, time.UTC),
			Amount:   float64(i),
		})
	}

	seen := map[uuid.UUID]bool{}
	offset := 0
	for {
		pageRows, err := store.Revenue().ListByClient(ctx, clientID, 10, offset)
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		for _, e := range pageRows {
			if seen[e.ID] {
				t.Fatalf("event %s returned twice across pages", e.ID)
			}
			seen[e.ID] = true
		}
		if len(pageRows) < 10 {
			break
		}
		offset += 10
	}
	if len(seen) != 25 {
		t.Fatalf("expected 25 distinct events, got %d", len(seen))
	}
}

func TestLeadDelete_Unknown(t *testing.T) {
	store := NewStore()
	err := store.Lead().Delete(context.Background(), uuid.New())
	if !domain.HasCode(err, domain.ErrCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSeedTemplate_RejectsInvalid(t *testing.T) {
	store := NewStore()
	err := store.SeedTemplate(domain.PlaybookTemplate{
		ID:                 uuid.New(),
		Name:               "broken",
		RiskClassification: domain.ClassificationCritical,
		Steps:              []domain.PlaybookStep{{Order: 2, ActionType: domain.ActionTypeCall}},
	})
	if err == nil {
		t.Fatal("invalid template accepted")
	}
}
