package worker

import (
	"context"
	"log"

	"settlement-service/internal/broker"
	"settlement-service/internal/service"
)

// SettlementWorker consumes collaborator events (payment confirmations,
// delivery confirmations) and drives the wallet settlement flow.
type SettlementWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(consumer *broker.Consumer, orchestrator *service.SettlementOrchestrator) *SettlementWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentPaid(orchestrator.HandlePaymentPaid)
	eventHandler.OnOrderDelivered(orchestrator.HandleOrderDelivered)

	return &SettlementWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *SettlementWorker) Start(ctx context.Context) error {
	log.Println("Starting settlement worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SettlementWorker) Stop() {
	if err := w.consumer.Close(); err != nil {
		log.Printf("Error closing settlement consumer: %v", err)
	}
}
