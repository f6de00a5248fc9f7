package store

import (
	"context"
	"database/sql"
	"fmt"

	"settlement-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// GetCartByID retrieves a cart by ID
func (s *Store) GetCartByID(ctx context.Context, id int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart, "SELECT * FROM carts WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetCartTx retrieves a cart inside a transaction with a row lock, the
// serialization point for conversion.
func (s *Store) GetCartTx(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Cart, error) {
	var cart models.Cart
	err := tx.GetContext(ctx, &cart, "SELECT * FROM carts WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetActiveCartByBuyer retrieves a buyer's active cart, if any
func (s *Store) GetActiveCartByBuyer(ctx context.Context, buyerID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart,
		"SELECT * FROM carts WHERE buyer_id = $1 AND status = $2",
		buyerID, models.CartStatusActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// CreateCart creates a new active cart for a buyer
func (s *Store) CreateCart(ctx context.Context, cart *models.Cart) error {
	query := `
		INSERT INTO carts (buyer_id, status)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, cart, query, cart.BuyerID, models.CartStatusActive)
}

// GetCartItems retrieves all items in a cart
func (s *Store) GetCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id", cartID)
	return items, err
}

// GetCartItemsTx retrieves all items in a cart inside a transaction
func (s *Store) GetCartItemsTx(ctx context.Context, tx *sqlx.Tx, cartID int64) ([]models.CartItem, error) {
	var items []models.CartItem
	err := tx.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id", cartID)
	return items, err
}

// UpsertCartItem adds an offer to a cart, capturing the price snapshot, or
// bumps the quantity when the line already exists.
func (s *Store) UpsertCartItem(ctx context.Context, item *models.CartItem) error {
	query := `
		INSERT INTO cart_items (cart_id, offer_id, quantity, price_at_addition)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, offer_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, quantity, price_at_addition, created_at`

	return s.db.GetContext(ctx, item, query,
		item.CartID, item.OfferID, item.Quantity, item.PriceAtAddition)
}

// UpdateCartItemQuantity sets a cart line's quantity
func (s *Store) UpdateCartItemQuantity(ctx context.Context, itemID int64, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1 WHERE id = $2", quantity, itemID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("cart item not found: %d", itemID)
	}
	return nil
}

// DeleteCartItem removes a cart line
func (s *Store) DeleteCartItem(ctx context.Context, itemID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM cart_items WHERE id = $1", itemID)
	return err
}

// SyncCartItemPrice overwrites a line's price snapshot with the live offer
// price. This is the only path that touches price_at_addition after add-time.
func (s *Store) SyncCartItemPrice(ctx context.Context, tx *sqlx.Tx, itemID int64, price decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE cart_items SET price_at_addition = $1 WHERE id = $2", price, itemID)
	return err
}

// MarkCartConverted moves a cart to its terminal converted state
func (s *Store) MarkCartConverted(ctx context.Context, tx *sqlx.Tx, cartID int64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE carts SET status = $1, updated_at = NOW() WHERE id = $2",
		models.CartStatusConverted, cartID)
	return err
}
