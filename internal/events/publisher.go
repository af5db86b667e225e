package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/advisorhub/retentionservice/internal/domain"
)

// Event types published on the retention lifecycle topic
const (
	TypeChurnEventOpened   = "churn_event.opened"
	TypeChurnEventResolved = "churn_event.resolved"
	TypePlaybookStarted    = "playbook.started"
	TypePlaybookEnded      = "playbook.ended"
)

// Event is a retention lifecycle domain event
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	ClientID  string                 `json:"client_id"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
	Version   int                    `json:"version"`
}

// NewEvent creates a new lifecycle event
func NewEvent(eventType string, clientID uuid.UUID, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		ClientID:  clientID.String(),
		Data:      data,
		Timestamp: time.Now().Unix(),
		Version:   1,
	}
}

// Publisher defines the interface for publishing lifecycle events.
// Publishing is best-effort and never part of a transactional boundary.
type Publisher interface {
	// Publish publishes an event
	Publish(ctx context.Context, event *Event) error

	// Close closes the publisher
	Close() error
}

// NoopPublisher is a no-operation publisher for tests and local runs
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event *Event) error { return nil }
func (NoopPublisher) Close() error                                    { return nil }

// KafkaPublisher publishes lifecycle events to a Kafka topic
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaPublisher creates a new Kafka publisher with a synchronous
// producer so publish failures surface to the caller.
func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}, nil
}

// Publish publishes an event, keyed by client id so per-client ordering is
// preserved within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.ClientID),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Published lifecycle event",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close closes the underlying producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// ChurnOpened builds the event for a newly opened churn event
func ChurnOpened(ev domain.ChurnEvent) *Event {
	return NewEvent(TypeChurnEventOpened, ev.ClientID, map[string]interface{}{
		"churn_event_id":        ev.ID.String(),
		"predicted_probability": ev.PredictedProbability,
	})
}

// ChurnResolved builds the event for a resolved churn event
func ChurnResolved(ev domain.ChurnEvent, outcome domain.ChurnStatus) *Event {
	return NewEvent(TypeChurnEventResolved, ev.ClientID, map[string]interface{}{
		"churn_event_id": ev.ID.String(),
		"outcome":        string(outcome),
	})
}

// PlaybookStarted builds the event for a started playbook instance
func PlaybookStarted(inst domain.PlaybookInstance, templateName string) *Event {
	return NewEvent(TypePlaybookStarted, inst.ClientID, map[string]interface{}{
		"instance_id": inst.ID.String(),
		"template_id": inst.TemplateID.String(),
		"template":    templateName,
	})
}

// PlaybookEnded builds the event for a playbook reaching a terminal status
func PlaybookEnded(inst domain.PlaybookInstance, status domain.InstanceStatus) *Event {
	return NewEvent(TypePlaybookEnded, inst.ClientID, map[string]interface{}{
		"instance_id": inst.ID.String(),
		"status":      string(status),
	})
}
