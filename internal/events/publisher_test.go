package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/advisorhub/retentionservice/internal/domain"
)

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	if err := p.Publish(context.Background(), NewEvent(TypeChurnEventOpened, uuid.New(), nil)); err != nil {
		t.Fatalf("noop publish failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("noop close failed: %v", err)
	}
}

func TestChurnOpened_EventShape(t *testing.T) {
	ev := domain.ChurnEvent{
		ID:                   uuid.New(),
		ClientID:             uuid.New(),
		PredictedProbability: 72.5,
		Status:               domain.ChurnStatusPending,
		CreatedAt:            time.Now().UTC(),
	}

	event := ChurnOpened(ev)
	if event.Type != TypeChurnEventOpened {
		t.Errorf("type = %q", event.Type)
	}
	if event.ClientID != ev.ClientID.String() {
		t.Errorf("client_id = %q", event.ClientID)
	}
	if event.Data["churn_event_id"] != ev.ID.String() {
		t.Errorf("churn_event_id = %v", event.Data["churn_event_id"])
	}
	if event.Data["predicted_probability"] != 72.5 {
		t.Errorf("predicted_probability = %v", event.Data["predicted_probability"])
	}
	if event.Version != 1 {
		t.Errorf("version = %d", event.Version)
	}
	if event.ID == "" || event.Timestamp == 0 {
		t.Error("event id and timestamp must be set")
	}
}

func TestChurnResolved_CarriesOutcome(t *testing.T) {
	ev := domain.ChurnEvent{ID: uuid.New(), ClientID: uuid.New()}
	event := ChurnResolved(ev, domain.ChurnStatusRetained)
	if event.Type != TypeChurnEventResolved {
		t.Errorf("type = %q", event.Type)
	}
	if event.Data["outcome"] != "retained" {
		t.Errorf("outcome = %v", event.Data["outcome"])
	}
}

func TestPlaybookLifecycleEvents(t *testing.T) {
	inst := domain.PlaybookInstance{ID: uuid.New(), ClientID: uuid.New(), TemplateID: uuid.New()}

	started := PlaybookStarted(inst, "critical-outreach")
	if started.Type != TypePlaybookStarted {
		t.Errorf("type = %q", started.Type)
	}
	if started.Data["template"] != "critical-outreach" {
		t.Errorf("template = %v", started.Data["template"])
	}

	ended := PlaybookEnded(inst, domain.InstanceStatusAbandoned)
	if ended.Type != TypePlaybookEnded {
		t.Errorf("type = %q", ended.Type)
	}
	if ended.Data["status"] != "abandoned" {
		t.Errorf("status = %v", ended.Data["status"])
	}
}
