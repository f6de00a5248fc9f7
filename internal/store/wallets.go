package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"settlement-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// GetWalletBySeller retrieves a seller's wallet
func (s *Store) GetWalletBySeller(ctx context.Context, sellerID int64) (*models.SellerWallet, error) {
	var wallet models.SellerWallet
	err := s.db.GetContext(ctx, &wallet,
		"SELECT * FROM seller_wallets WHERE seller_id = $1", sellerID)
	if err == sql.ErrNoRows {
		return nil, models.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetOrCreateWalletTx returns the seller's wallet row locked FOR UPDATE,
// creating it lazily on first need. The locked wallet row is the
// serialization point for concurrent credits and withdrawals.
func (s *Store) GetOrCreateWalletTx(ctx context.Context, tx *sqlx.Tx, sellerID int64) (*models.SellerWallet, error) {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO seller_wallets (seller_id) VALUES ($1) ON CONFLICT (seller_id) DO NOTHING",
		sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure wallet: %w", err)
	}

	var wallet models.SellerWallet
	err = tx.GetContext(ctx, &wallet,
		"SELECT * FROM seller_wallets WHERE seller_id = $1 FOR UPDATE", sellerID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &wallet, nil
}

// GetWalletTx returns an existing wallet row locked FOR UPDATE
func (s *Store) GetWalletTx(ctx context.Context, tx *sqlx.Tx, sellerID int64) (*models.SellerWallet, error) {
	var wallet models.SellerWallet
	err := tx.GetContext(ctx, &wallet,
		"SELECT * FROM seller_wallets WHERE seller_id = $1 FOR UPDATE", sellerID)
	if err == sql.ErrNoRows {
		return nil, models.ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// HasOrderCredit reports whether a sale entry already exists for this
// (wallet, order) pair. Checked under the wallet row lock, it is the
// idempotency key for payment-confirmation retries.
func (s *Store) HasOrderCredit(ctx context.Context, tx *sqlx.Tx, walletID, orderID int64) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM wallet_transactions WHERE wallet_id = $1 AND order_id = $2 AND type = $3)",
		walletID, orderID, models.TxTypeSale)
	return exists, err
}

// HasPendingRelease reports whether this order's pending balance was already
// released to available for the wallet.
func (s *Store) HasPendingRelease(ctx context.Context, tx *sqlx.Tx, walletID, orderID int64) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM wallet_transactions WHERE wallet_id = $1 AND order_id = $2 AND type = $3 AND balance_type = $4)",
		walletID, orderID, models.TxTypeAdjustment, models.BalanceAvailable)
	return exists, err
}

// SumOrderPendingEntries sums the pending-tagged journal entries for an order
// on a wallet; this is the amount a delivery confirmation releases.
func (s *Store) SumOrderPendingEntries(ctx context.Context, tx *sqlx.Tx, walletID, orderID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := tx.GetContext(ctx, &sum,
		"SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE wallet_id = $1 AND order_id = $2 AND balance_type = $3",
		walletID, orderID, models.BalancePending)
	return sum, err
}

// AppendWalletTransaction appends one journal entry. The journal is
// append-only; corrections are new adjustment entries.
func (s *Store) AppendWalletTransaction(ctx context.Context, tx *sqlx.Tx, wtx *models.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions (wallet_id, type, amount, balance_type, description, order_id, order_item_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return tx.GetContext(ctx, wtx, query,
		wtx.WalletID, wtx.Type, wtx.Amount, wtx.BalanceType, wtx.Description,
		wtx.OrderID, wtx.OrderItemID)
}

// UpdateWalletBalances writes the recomputed balance projection. Only called
// in the same transaction that appended the matching journal entries while
// the wallet row is locked.
func (s *Store) UpdateWalletBalances(ctx context.Context, tx *sqlx.Tx, w *models.SellerWallet) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE seller_wallets
		SET balance = $1, pending_balance = $2, withdrawn_balance = $3,
		    total_earned = $4, total_commission = $5, updated_at = NOW()
		WHERE id = $6`,
		w.Balance, w.PendingBalance, w.WithdrawnBalance,
		w.TotalEarned, w.TotalCommission, w.ID)
	return err
}

// ListWalletTransactions returns a page of a wallet's journal, newest first
func (s *Store) ListWalletTransactions(ctx context.Context, walletID int64, limit, offset int) ([]models.WalletTransaction, error) {
	var txs []models.WalletTransaction
	err := s.db.SelectContext(ctx, &txs,
		"SELECT * FROM wallet_transactions WHERE wallet_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3",
		walletID, limit, offset)
	return txs, err
}

// CreatePayout persists a new payout request inside a transaction
func (s *Store) CreatePayout(ctx context.Context, tx *sqlx.Tx, p *models.PayoutRequest) error {
	query := `
		INSERT INTO payout_requests (seller_id, bank_account_id, amount, status, admin_notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return tx.GetContext(ctx, p, query,
		p.SellerID, p.BankAccountID, p.Amount, p.Status, p.AdminNotes)
}

// GetPayout retrieves a payout request by ID
func (s *Store) GetPayout(ctx context.Context, id int64) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	err := s.db.GetContext(ctx, &p, "SELECT * FROM payout_requests WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPayoutTx retrieves a payout request inside a transaction with a row lock
func (s *Store) GetPayoutTx(ctx context.Context, tx *sqlx.Tx, id int64) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	err := tx.GetContext(ctx, &p, "SELECT * FROM payout_requests WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// HasOutstandingPayout reports whether the seller already has a non-terminal
// payout request.
func (s *Store) HasOutstandingPayout(ctx context.Context, tx *sqlx.Tx, sellerID int64) (bool, error) {
	query, args, err := sqlx.In(
		"SELECT EXISTS(SELECT 1 FROM payout_requests WHERE seller_id = ? AND status IN (?))",
		sellerID, models.PayoutNonTerminalStatuses)
	if err != nil {
		return false, err
	}
	query = tx.Rebind(query)

	var exists bool
	err = tx.GetContext(ctx, &exists, query, args...)
	return exists, err
}

// UpdatePayoutStatus records a payout transition together with who processed
// it and, on completion, the external transfer reference.
func (s *Store) UpdatePayoutStatus(ctx context.Context, tx *sqlx.Tx, payoutID int64, status, adminNotes, transactionRef string, processedBy int64, processedAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payout_requests
		SET status = $1, admin_notes = $2, transaction_ref = $3, processed_by = $4, processed_at = $5
		WHERE id = $6`,
		status, adminNotes, transactionRef, processedBy, processedAt, payoutID)
	return err
}

// ListPayoutsBySeller retrieves a seller's payout requests, newest first
func (s *Store) ListPayoutsBySeller(ctx context.Context, sellerID int64) ([]models.PayoutRequest, error) {
	var payouts []models.PayoutRequest
	err := s.db.SelectContext(ctx, &payouts,
		"SELECT * FROM payout_requests WHERE seller_id = $1 ORDER BY created_at DESC", sellerID)
	return payouts, err
}
