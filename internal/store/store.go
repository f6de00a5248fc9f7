package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"settlement-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection (used by tests)
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// WithTx runs fn inside a single database transaction. Every multi-step
// mutation in the settlement core (order creation, cancellation, wallet
// credit/withdraw, payout completion) goes through here so it either fully
// commits or fully rolls back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// IsUniqueViolation reports whether err is a Postgres unique constraint error.
func IsUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// GetOffer retrieves an offer by ID
func (s *Store) GetOffer(ctx context.Context, id int64) (*models.Offer, error) {
	var offer models.Offer
	err := s.db.GetContext(ctx, &offer, "SELECT * FROM offers WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// GetOffersByIDs retrieves multiple offers by IDs
func (s *Store) GetOffersByIDs(ctx context.Context, ids []int64) ([]models.Offer, error) {
	if len(ids) == 0 {
		return []models.Offer{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM offers WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var offers []models.Offer
	err = s.db.SelectContext(ctx, &offers, query, args...)
	return offers, err
}

// GetOfferTx retrieves an offer inside a transaction with a row lock, so a
// concurrent direct edit cannot race the sale.
func (s *Store) GetOfferTx(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Offer, error) {
	var offer models.Offer
	err := tx.GetContext(ctx, &offer, "SELECT * FROM offers WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

// ReserveStock atomically decrements an offer's stock if enough remains.
// The conditional UPDATE is a single check-and-decrement statement; there is
// no read-then-write window for concurrent checkouts to exploit. Returns
// false without mutation when stock is insufficient.
func (s *Store) ReserveStock(ctx context.Context, tx *sqlx.Tx, offerID int64, quantity int) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE offers SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
		quantity, offerID)
	if err != nil {
		return false, fmt.Errorf("failed to reserve stock: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	// sold_out only via decrement reaching zero, never via a direct edit
	_, err = tx.ExecContext(ctx,
		"UPDATE offers SET status = $1 WHERE id = $2 AND stock = 0 AND status = $3",
		models.OfferStatusSoldOut, offerID, models.OfferStatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to flag sold out: %w", err)
	}

	return true, nil
}

// ReleaseStock increments an offer's stock (cancellation compensation) and
// reverts sold_out to active once stock is positive again.
func (s *Store) ReleaseStock(ctx context.Context, tx *sqlx.Tx, offerID int64, quantity int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE offers SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
		quantity, offerID)
	if err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE offers SET status = $1 WHERE id = $2 AND stock > 0 AND status = $3",
		models.OfferStatusActive, offerID, models.OfferStatusSoldOut)
	if err != nil {
		return fmt.Errorf("failed to revert sold out: %w", err)
	}

	return nil
}

// CategoryCommissionRate reads the live commission rate for a category at
// order-creation time.
func (s *Store) CategoryCommissionRate(ctx context.Context, tx *sqlx.Tx, categoryID int64) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := tx.GetContext(ctx, &rate,
		"SELECT commission_rate FROM categories WHERE id = $1", categoryID)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("category not found: %d", categoryID)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

// IsEventProcessed checks if a collaborator event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks a collaborator event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
