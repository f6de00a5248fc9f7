package service

import (
	"context"
	"fmt"
	"time"

	"settlement-service/internal/models"
	"settlement-service/internal/redisclient"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const eventIdempotencyTTL = 24 * time.Hour

// SettlementOrchestrator reacts to collaborator callbacks: a payment
// confirmation credits the sellers of an order, a delivery confirmation
// releases their pending balances. Events are deduplicated through a Redis
// fast path backed by the processed_events table.
type SettlementOrchestrator struct {
	store   *store.Store
	redis   *redisclient.Client
	wallets *WalletService
	logger  *zap.Logger
}

// NewSettlementOrchestrator creates a new settlement orchestrator
func NewSettlementOrchestrator(st *store.Store, redis *redisclient.Client, wallets *WalletService) *SettlementOrchestrator {
	return &SettlementOrchestrator{
		store:   st,
		redis:   redis,
		wallets: wallets,
		logger:  util.GetLogger(),
	}
}

// HandlePaymentPaid marks the order paid, confirms it and credits every
// seller's wallet from the fee outputs captured on the order items.
func (so *SettlementOrchestrator) HandlePaymentPaid(ctx context.Context, event *models.PaymentPaidEvent) error {
	ctx, span := util.StartSpan(ctx, "SettlementOrchestrator.HandlePaymentPaid")
	defer span.End()

	done, err := so.alreadyProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	order, err := so.store.GetOrderByID(ctx, event.OrderID)
	if err == models.ErrOrderNotFound {
		// payment callback for an order this core does not know; no money moves
		so.logger.Error("Payment callback for unknown order",
			zap.Int64("order_id", event.OrderID),
			zap.String("event_id", event.EventID))
		return so.markProcessed(ctx, event.EventID, event.EventType)
	}
	if err != nil {
		return err
	}

	refunded := false
	err = so.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := so.store.GetOrderTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if locked.PaymentStatus == models.PaymentStatusPaid {
			return nil
		}

		// cancellation won the race: stock is already released, so the
		// payment bounces instead of crediting sellers
		if locked.Status == models.OrderStatusCancelled {
			refunded = true
			return so.store.UpdateOrderPaymentStatus(ctx, tx, order.ID, models.PaymentStatusRefunded)
		}

		if err := so.store.UpdateOrderPaymentStatus(ctx, tx, order.ID, models.PaymentStatusPaid); err != nil {
			return err
		}
		if models.CanTransitionOrder(locked.Status, models.OrderStatusConfirmed) {
			return so.store.UpdateOrderStatus(ctx, tx, order.ID, models.OrderStatusConfirmed)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	if refunded {
		so.logger.Warn("Payment arrived for cancelled order, marked refunded",
			zap.Int64("order_id", order.ID),
			zap.String("tx_id", event.ProviderTxID))
		return so.markProcessed(ctx, event.EventID, event.EventType)
	}

	items, err := so.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	if err := so.wallets.CreditOrder(ctx, order, items); err != nil {
		return err
	}

	so.logger.Info("Order paid and sellers credited",
		zap.Int64("order_id", order.ID),
		zap.String("tx_id", event.ProviderTxID))

	return so.markProcessed(ctx, event.EventID, event.EventType)
}

// HandleOrderDelivered transitions the order to delivered and releases each
// seller's pending balance for it.
func (so *SettlementOrchestrator) HandleOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error {
	ctx, span := util.StartSpan(ctx, "SettlementOrchestrator.HandleOrderDelivered")
	defer span.End()

	done, err := so.alreadyProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	order, err := so.store.GetOrderByID(ctx, event.OrderID)
	if err == models.ErrOrderNotFound {
		so.logger.Error("Delivery callback for unknown order",
			zap.Int64("order_id", event.OrderID),
			zap.String("event_id", event.EventID))
		return so.markProcessed(ctx, event.EventID, event.EventType)
	}
	if err != nil {
		return err
	}

	err = so.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := so.store.GetOrderTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if locked.Status == models.OrderStatusDelivered {
			return nil
		}
		if !models.CanTransitionOrder(locked.Status, models.OrderStatusDelivered) {
			return &models.TransitionError{
				Entity:  "order",
				From:    locked.Status,
				To:      models.OrderStatusDelivered,
				Allowed: models.AllowedOrderTransitions(locked.Status),
			}
		}
		if err := so.store.UpdateOrderStatus(ctx, tx, order.ID, models.OrderStatusDelivered); err != nil {
			return err
		}
		return so.store.UpdateOrderShippingStatus(ctx, tx, order.ID, "delivered")
	})
	if err != nil {
		return err
	}

	items, err := so.store.GetOrderItems(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	if err := so.wallets.ReleaseOrderPending(ctx, order, items); err != nil {
		return err
	}

	so.logger.Info("Order delivered, pending balances released",
		zap.Int64("order_id", order.ID))

	return so.markProcessed(ctx, event.EventID, event.EventType)
}

func (so *SettlementOrchestrator) alreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	seen, err := so.redis.CheckIdempotencyKey(ctx, eventID)
	if err != nil {
		so.logger.Warn("Idempotency cache check failed, falling back to DB", zap.Error(err))
	} else if seen {
		so.logger.Info("Event already processed", zap.String("event_id", eventID))
		return true, nil
	}

	processed, err := so.store.IsEventProcessed(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		so.logger.Info("Event already processed", zap.String("event_id", eventID))
	}
	return processed, nil
}

func (so *SettlementOrchestrator) markProcessed(ctx context.Context, eventID, eventType string) error {
	if err := so.store.MarkEventProcessed(ctx, eventID, eventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	if err := so.redis.SetIdempotencyKey(ctx, eventID, "1", eventIdempotencyTTL); err != nil {
		so.logger.Warn("Failed to cache event idempotency key", zap.Error(err))
	}
	return nil
}
