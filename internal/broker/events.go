package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"settlement-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing settlement domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSellerCredited publishes SellerCredited event
func (ep *EventPublisher) PublishSellerCredited(ctx context.Context, event *models.SellerCreditedEvent) error {
	key := fmt.Sprintf("seller-%d", event.SellerID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPayoutCompleted publishes PayoutCompleted event
func (ep *EventPublisher) PublishPayoutCompleted(ctx context.Context, event *models.PayoutCompletedEvent) error {
	key := fmt.Sprintf("seller-%d", event.SellerID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming collaborator events
type EventHandler struct {
	onPaymentPaid    func(context.Context, *models.PaymentPaidEvent) error
	onOrderDelivered func(context.Context, *models.OrderDeliveredEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentPaid registers a handler for PaymentPaid events
func (eh *EventHandler) OnPaymentPaid(handler func(context.Context, *models.PaymentPaidEvent) error) {
	eh.onPaymentPaid = handler
}

// OnOrderDelivered registers a handler for OrderDelivered events
func (eh *EventHandler) OnOrderDelivered(handler func(context.Context, *models.OrderDeliveredEvent) error) {
	eh.onOrderDelivered = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypePaymentPaid:
		if eh.onPaymentPaid != nil {
			var event models.PaymentPaidEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentPaid event: %w", err)
			}
			return eh.onPaymentPaid(ctx, &event)
		}

	case models.EventTypeOrderDelivered:
		if eh.onOrderDelivered != nil {
			var event models.OrderDeliveredEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderDelivered event: %w", err)
			}
			return eh.onOrderDelivered(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
