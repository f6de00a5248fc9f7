package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"settlement-service/internal/broker"
	"settlement-service/internal/fees"
	"settlement-service/internal/models"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// orderNumberAttempts bounds the retries after an order-number collision;
// each attempt regenerates the random suffix.
const orderNumberAttempts = 3

// ShippingProvider supplies the shipping-cost share charged against a seller
// for one order line. Which carrier or payment collaborator computes it is
// outside the settlement core.
type ShippingProvider interface {
	ShareForLine(ctx context.Context, offer *models.Offer, quantity int) (decimal.Decimal, error)
}

// NoShipping charges no shipping share.
type NoShipping struct{}

func (NoShipping) ShareForLine(context.Context, *models.Offer, int) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

// OrderService turns validated carts into financially consistent orders and
// governs the order status state machine.
type OrderService struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	shipping       ShippingProvider
	feeConfig      fees.Config
	numberPrefix   string
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	st *store.Store,
	eventPublisher *broker.EventPublisher,
	shipping ShippingProvider,
	feeConfig fees.Config,
	numberPrefix string,
) *OrderService {
	return &OrderService{
		store:          st,
		eventPublisher: eventPublisher,
		shipping:       shipping,
		feeConfig:      feeConfig,
		numberPrefix:   numberPrefix,
		logger:         util.GetLogger(),
	}
}

// CreateFromCart converts a cart into an order as one all-or-nothing
// transaction: re-validation, price sync, per-line fee computation with the
// live category rate, atomic stock reservation, order persistence and cart
// conversion. Any failure rolls back every reservation taken in the attempt.
// An order-number collision retries the whole transaction with a fresh
// random suffix.
func (s *OrderService) CreateFromCart(ctx context.Context, cartID int64, addr models.ShippingAddress, notes string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateFromCart")
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderCreateLatency.Observe(time.Since(start).Seconds())
	}()

	var (
		order *models.Order
		items []models.OrderItem
	)

	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order, items, err = s.createAttempt(ctx, cartID, addr, notes)
		if err != nil && store.IsUniqueViolation(err) {
			s.logger.Warn("Order number collision, retrying",
				zap.Int64("cart_id", cartID),
				zap.Int("attempt", attempt+1))
			continue
		}
		break
	}
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber))

	s.publishOrderCreated(ctx, order, items)
	return order, nil
}

func (s *OrderService) createAttempt(ctx context.Context, cartID int64, addr models.ShippingAddress, notes string) (*models.Order, []models.OrderItem, error) {
	var (
		order      *models.Order
		orderItems []models.OrderItem
	)

	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		cart, err := s.store.GetCartTx(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if cart.Status != models.CartStatusActive {
			return models.ErrCartConverted
		}

		lines, err := s.store.GetCartItemsTx(ctx, tx, cartID)
		if err != nil {
			return fmt.Errorf("failed to load cart items: %w", err)
		}
		if len(lines) == 0 {
			return models.ErrEmptyCart
		}

		// Lock offer rows in ID order so concurrent checkouts of
		// overlapping carts cannot deadlock.
		sort.Slice(lines, func(i, j int) bool { return lines[i].OfferID < lines[j].OfferID })

		offers := make(map[int64]*models.Offer, len(lines))
		for _, line := range lines {
			if _, ok := offers[line.OfferID]; ok {
				continue
			}
			offer, err := s.store.GetOfferTx(ctx, tx, line.OfferID)
			if err == models.ErrOfferNotFound {
				continue
			}
			if err != nil {
				return err
			}
			offers[line.OfferID] = offer
		}

		if err := checkBlockingIssues(lines, offers); err != nil {
			return err
		}

		// Charge the current price, never a stale snapshot
		for i, line := range lines {
			offer := offers[line.OfferID]
			if !offer.Price.Equal(line.PriceAtAddition) {
				if err := s.store.SyncCartItemPrice(ctx, tx, line.ID, offer.Price); err != nil {
					return fmt.Errorf("failed to sync line price: %w", err)
				}
				lines[i].PriceAtAddition = offer.Price
			}
		}

		subtotal := decimal.Zero
		totalCommission := decimal.Zero
		orderItems = orderItems[:0]

		for _, line := range lines {
			offer := offers[line.OfferID]

			rate, err := s.store.CategoryCommissionRate(ctx, tx, offer.CategoryID)
			if err != nil {
				return fmt.Errorf("failed to read commission rate: %w", err)
			}

			share, err := s.shipping.ShareForLine(ctx, offer, line.Quantity)
			if err != nil {
				return fmt.Errorf("failed to compute shipping share: %w", err)
			}

			totalPrice := offer.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			breakdown, err := fees.Compute(s.feeConfig, totalPrice, rate, share)
			if err != nil {
				return err
			}

			ok, err := s.store.ReserveStock(ctx, tx, offer.ID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
				return &models.StockError{
					OfferID:     offer.ID,
					ProductName: offer.ProductName,
					Requested:   line.Quantity,
					Available:   offer.Stock,
				}
			}

			orderItems = append(orderItems, models.OrderItem{
				OfferID:           offer.ID,
				ProductID:         offer.ProductID,
				ProductName:       offer.ProductName,
				SellerID:          offer.SellerID,
				Quantity:          line.Quantity,
				UnitPrice:         offer.Price,
				TotalPrice:        breakdown.TotalPrice,
				CommissionRate:    breakdown.CommissionRate,
				CommissionAmount:  breakdown.CommissionAmount,
				MarketplaceFee:    breakdown.MarketplaceFee,
				WithholdingTax:    breakdown.WithholdingTax,
				ShippingCostShare: breakdown.ShippingCostShare,
				NetSellerAmount:   breakdown.NetSellerAmount,
			})

			subtotal = subtotal.Add(breakdown.TotalPrice)
			totalCommission = totalCommission.Add(breakdown.CommissionAmount)
		}

		seq, err := s.store.CountOrdersCreatedToday(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to count today's orders: %w", err)
		}

		order = &models.Order{
			OrderNumber:     buildOrderNumber(s.numberPrefix, seq+1, time.Now()),
			BuyerID:         cart.BuyerID,
			ShippingAddress: addr,
			Subtotal:        subtotal,
			TotalCommission: totalCommission,
			TotalAmount:     subtotal,
			Status:          models.OrderStatusPending,
			PaymentStatus:   models.PaymentStatusPending,
			ShippingStatus:  "not_shipped",
			Notes:           notes,
		}

		if err := s.store.CreateOrder(ctx, tx, order); err != nil {
			return err
		}

		for i := range orderItems {
			orderItems[i].OrderID = order.ID
			if err := s.store.CreateOrderItem(ctx, tx, &orderItems[i]); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}

		return s.store.MarkCartConverted(ctx, tx, cartID)
	})
	if err != nil {
		return nil, nil, err
	}

	return order, orderItems, nil
}

// checkBlockingIssues refuses checkout on unavailable or stock issues found
// against the row-locked offers.
func checkBlockingIssues(lines []models.CartItem, offers map[int64]*models.Offer) error {
	issues := buildCartIssues(lines, offers, time.Now())

	var blocking []models.CartIssue
	for _, issue := range issues {
		if issue.Blocking() {
			blocking = append(blocking, issue)
		}
	}
	if len(blocking) == 0 {
		return nil
	}

	for _, issue := range blocking {
		if issue.Type == models.IssueUnavailable {
			return &models.ValidationError{Issues: blocking}
		}
	}

	first := blocking[0]
	offer := offers[first.OfferID]
	return &models.StockError{
		OfferID:     first.OfferID,
		ProductName: first.ProductName,
		Available:   offer.Stock,
	}
}

// buildOrderNumber generates {prefix}{yymmdd}{4-digit daily sequence}{4-char
// random suffix}. The suffix keeps two checkouts landing on the same daily
// sequence from colliding; a residual collision is retried by the caller.
func buildOrderNumber(prefix string, seq int, t time.Time) string {
	suffix := strings.ToUpper(uuid.New().String()[:4])
	return fmt.Sprintf("%s%s%04d%s", prefix, t.Format("060102"), seq%10000, suffix)
}

// Cancel releases every reserved line quantity back to stock and flips the
// order to cancelled in one transaction, so stock release and status change
// are never observable independently.
func (s *OrderService) Cancel(ctx context.Context, orderID int64, reason string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		order, err := s.store.GetOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.CanBeCancelled() {
			return &models.TransitionError{
				Entity:  "order",
				From:    order.Status,
				To:      models.OrderStatusCancelled,
				Allowed: models.AllowedOrderTransitions(order.Status),
			}
		}

		items, err := s.store.GetOrderItemsTx(ctx, tx, orderID)
		if err != nil {
			return fmt.Errorf("failed to load order items: %w", err)
		}

		for _, item := range items {
			if err := s.store.ReleaseStock(ctx, tx, item.OfferID, item.Quantity); err != nil {
				return err
			}
		}

		return s.store.UpdateOrderStatus(ctx, tx, orderID, models.OrderStatusCancelled)
	})
	if err != nil {
		return err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", orderID),
		zap.String("reason", reason))

	s.publishOrderCancelled(ctx, orderID, reason)
	return nil
}

// Transition moves an order along the status table. Cancellation goes
// through Cancel so stock is released with the status flip.
func (s *OrderService) Transition(ctx context.Context, orderID int64, to string) error {
	if to == models.OrderStatusCancelled {
		return s.Cancel(ctx, orderID, "requested")
	}

	return s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		order, err := s.store.GetOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !models.CanTransitionOrder(order.Status, to) {
			return &models.TransitionError{
				Entity:  "order",
				From:    order.Status,
				To:      to,
				Allowed: models.AllowedOrderTransitions(order.Status),
			}
		}
		return s.store.UpdateOrderStatus(ctx, tx, orderID, to)
	})
}

// ListForBuyer retrieves a buyer's orders, newest first
func (s *OrderService) ListForBuyer(ctx context.Context, buyerID int64) ([]models.Order, error) {
	return s.store.GetOrdersByBuyer(ctx, buyerID)
}

// GetOrder retrieves an order with its items
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

func (s *OrderService) publishOrderCreated(ctx context.Context, order *models.Order, items []models.OrderItem) {
	lines := make([]models.OrderLineEventData, len(items))
	for i, item := range items {
		lines[i] = models.OrderLineEventData{
			OfferID:   item.OfferID,
			SellerID:  item.SellerID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BuyerID:     order.BuyerID,
		TotalAmount: order.TotalAmount,
		Items:       lines,
	}

	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

func (s *OrderService) publishOrderCancelled(ctx context.Context, orderID int64, reason string) {
	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: time.Now(),
		},
		OrderID: orderID,
		Reason:  reason,
	}

	if err := s.eventPublisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
}

// failureReason maps creation errors onto the failed-orders metric label
func failureReason(err error) string {
	switch {
	case err == models.ErrEmptyCart:
		return "empty_cart"
	case err == models.ErrCartConverted:
		return "cart_converted"
	default:
		if _, ok := err.(*models.StockError); ok {
			return "insufficient_stock"
		}
		if _, ok := err.(*models.ValidationError); ok {
			return "validation_failed"
		}
		return "db_error"
	}
}
