package store

import (
	"context"
	"database/sql"

	"settlement-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrder persists a new order inside the creation transaction
func (s *Store) CreateOrder(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (
			order_number, buyer_id,
			ship_recipient, ship_phone, ship_line1, ship_line2, ship_city, ship_postal_code,
			subtotal, total_commission, total_amount,
			status, payment_status, shipping_status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`

	return tx.GetContext(ctx, order, query,
		order.OrderNumber, order.BuyerID,
		order.Recipient, order.Phone, order.Line1, order.Line2, order.City, order.PostalCode,
		order.Subtotal, order.TotalCommission, order.TotalAmount,
		order.Status, order.PaymentStatus, order.ShippingStatus, order.Notes)
}

// CreateOrderItem persists one order line with its captured fee outputs
func (s *Store) CreateOrderItem(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (
			order_id, offer_id, product_id, product_name, seller_id,
			quantity, unit_price, total_price,
			commission_rate, commission_amount, marketplace_fee,
			withholding_tax, shipping_cost_share, net_seller_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	return tx.GetContext(ctx, &item.ID, query,
		item.OrderID, item.OfferID, item.ProductID, item.ProductName, item.SellerID,
		item.Quantity, item.UnitPrice, item.TotalPrice,
		item.CommissionRate, item.CommissionAmount, item.MarketplaceFee,
		item.WithholdingTax, item.ShippingCostShare, item.NetSellerAmount)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderTx retrieves an order inside a transaction with a row lock; the
// order row is the serialization point for status transitions.
func (s *Store) GetOrderTx(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Order, error) {
	var order models.Order
	err := tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItems retrieves all items for an order
func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// GetOrderItemsTx retrieves all items for an order inside a transaction
func (s *Store) GetOrderItemsTx(ctx context.Context, tx *sqlx.Tx, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// UpdateOrderStatus updates an order's status inside a transaction
func (s *Store) UpdateOrderStatus(ctx context.Context, tx *sqlx.Tx, orderID int64, status string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// UpdateOrderPaymentStatus updates an order's payment status inside a transaction
func (s *Store) UpdateOrderPaymentStatus(ctx context.Context, tx *sqlx.Tx, orderID int64, paymentStatus string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2",
		paymentStatus, orderID)
	return err
}

// UpdateOrderShippingStatus updates an order's shipping status inside a transaction
func (s *Store) UpdateOrderShippingStatus(ctx context.Context, tx *sqlx.Tx, orderID int64, shippingStatus string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE orders SET shipping_status = $1, updated_at = NOW() WHERE id = $2",
		shippingStatus, orderID)
	return err
}

// CountOrdersCreatedToday returns the number of orders created today; the
// daily order-number sequence derives from it. Gaps and races are tolerated
// because the random suffix disambiguates collisions.
func (s *Store) CountOrdersCreatedToday(ctx context.Context, tx *sqlx.Tx) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM orders WHERE created_at >= CURRENT_DATE")
	return count, err
}

// GetOrdersByBuyer retrieves orders for a buyer
func (s *Store) GetOrdersByBuyer(ctx context.Context, buyerID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC", buyerID)
	return orders, err
}
