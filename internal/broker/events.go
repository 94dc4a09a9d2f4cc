package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"ecom-agent/internal/models"
	"ecom-agent/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing query outcome events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// QuestionKey partitions events by question, so repeats of the same
// question stay ordered
func QuestionKey(question string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return "question-" + hex.EncodeToString(sum[:8])
}

// PublishQueryAnswered publishes QueryAnswered event
func (ep *EventPublisher) PublishQueryAnswered(ctx context.Context, event *models.QueryAnsweredEvent) error {
	return ep.producer.PublishEvent(ctx, QuestionKey(event.Question), event)
}

// PublishQueryFailed publishes QueryFailed event
func (ep *EventPublisher) PublishQueryFailed(ctx context.Context, event *models.QueryFailedEvent) error {
	return ep.producer.PublishEvent(ctx, QuestionKey(event.Question), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onQueryAnswered func(context.Context, *models.QueryAnsweredEvent) error
	onQueryFailed   func(context.Context, *models.QueryFailedEvent) error
	logger          *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnQueryAnswered registers a handler for QueryAnswered events
func (eh *EventHandler) OnQueryAnswered(handler func(context.Context, *models.QueryAnsweredEvent) error) {
	eh.onQueryAnswered = handler
}

// OnQueryFailed registers a handler for QueryFailed events
func (eh *EventHandler) OnQueryFailed(handler func(context.Context, *models.QueryFailedEvent) error) {
	eh.onQueryFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID),
	)

	switch baseEvent.EventType {
	case models.EventTypeQueryAnswered:
		if eh.onQueryAnswered != nil {
			var event models.QueryAnsweredEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal QueryAnswered event: %w", err)
			}
			return eh.onQueryAnswered(ctx, &event)
		}

	case models.EventTypeQueryFailed:
		if eh.onQueryFailed != nil {
			var event models.QueryFailedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal QueryFailed event: %w", err)
			}
			return eh.onQueryFailed(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
