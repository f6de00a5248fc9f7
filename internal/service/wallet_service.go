package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"settlement-service/internal/broker"
	"settlement-service/internal/models"
	"settlement-service/internal/redisclient"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const walletSummaryTTL = 30 * time.Second

// WalletSummary is the read model exposed to sellers
type WalletSummary struct {
	SellerID         int64           `json:"seller_id"`
	Balance          decimal.Decimal `json:"balance"`
	PendingBalance   decimal.Decimal `json:"pending_balance"`
	WithdrawnBalance decimal.Decimal `json:"withdrawn_balance"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
	TotalCommission  decimal.Decimal `json:"total_commission"`
}

// WalletService maintains seller balances as a projection of the append-only
// transaction journal. Every balance mutation appends its journal entries in
// the same transaction, under the wallet row lock.
type WalletService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(st *store.Store, redis *redisclient.Client, eventPublisher *broker.EventPublisher) *WalletService {
	return &WalletService{
		store:          st,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreditOrder credits every seller with line items on a paid order. Each
// seller's credit is one transaction: pending balance, lifetime totals and
// the per-component journal entries commit together. Crediting the same
// (order, seller) pair twice is detected under the wallet lock and skipped,
// so payment-callback retries are safe.
func (s *WalletService) CreditOrder(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	ctx, span := util.StartSpan(ctx, "WalletService.CreditOrder")
	defer span.End()

	for sellerID, sellerItems := range groupBySeller(items) {
		if err := s.creditSeller(ctx, order, sellerID, sellerItems); err != nil {
			return fmt.Errorf("failed to credit seller %d: %w", sellerID, err)
		}
	}
	return nil
}

func (s *WalletService) creditSeller(ctx context.Context, order *models.Order, sellerID int64, items []models.OrderItem) error {
	sale := decimal.Zero
	platformCut := decimal.Zero
	commission := decimal.Zero
	shipping := decimal.Zero
	net := decimal.Zero

	for _, item := range items {
		sale = sale.Add(item.TotalPrice)
		platformCut = platformCut.Add(item.CommissionAmount).
			Add(item.MarketplaceFee).
			Add(item.WithholdingTax)
		commission = commission.Add(item.CommissionAmount)
		shipping = shipping.Add(item.ShippingCostShare)
		net = net.Add(item.NetSellerAmount)
	}

	credited := false
	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		wallet, err := s.store.GetOrCreateWalletTx(ctx, tx, sellerID)
		if err != nil {
			return err
		}

		duplicate, err := s.store.HasOrderCredit(ctx, tx, wallet.ID, order.ID)
		if err != nil {
			return err
		}
		if duplicate {
			util.WalletCreditsDuplicateTotal.Inc()
			s.logger.Info("Order already credited, skipping",
				zap.Int64("order_id", order.ID),
				zap.Int64("seller_id", sellerID))
			return nil
		}

		orderRef := sql.NullInt64{Int64: order.ID, Valid: true}

		entries := []*models.WalletTransaction{
			{
				WalletID:    wallet.ID,
				Type:        models.TxTypeSale,
				Amount:      sale,
				BalanceType: models.BalancePending,
				Description: fmt.Sprintf("Sale credit for order %s", order.OrderNumber),
				OrderID:     orderRef,
			},
			{
				WalletID:    wallet.ID,
				Type:        models.TxTypeCommission,
				Amount:      platformCut.Neg(),
				BalanceType: models.BalancePending,
				Description: fmt.Sprintf("Commission and platform fees for order %s", order.OrderNumber),
				OrderID:     orderRef,
			},
		}
		if shipping.IsPositive() {
			entries = append(entries, &models.WalletTransaction{
				WalletID:    wallet.ID,
				Type:        models.TxTypeShipping,
				Amount:      shipping.Neg(),
				BalanceType: models.BalancePending,
				Description: fmt.Sprintf("Shipping cost share for order %s", order.OrderNumber),
				OrderID:     orderRef,
			})
		}

		for _, entry := range entries {
			if err := s.store.AppendWalletTransaction(ctx, tx, entry); err != nil {
				return fmt.Errorf("failed to append journal entry: %w", err)
			}
		}

		wallet.PendingBalance = wallet.PendingBalance.Add(net)
		wallet.TotalEarned = wallet.TotalEarned.Add(net)
		wallet.TotalCommission = wallet.TotalCommission.Add(commission)

		if err := s.store.UpdateWalletBalances(ctx, tx, wallet); err != nil {
			return fmt.Errorf("failed to update wallet balances: %w", err)
		}

		credited = true
		return nil
	})
	if err != nil {
		return err
	}
	if !credited {
		return nil
	}

	util.WalletCreditsTotal.Inc()
	s.invalidateSummary(ctx, sellerID)

	event := &models.SellerCreditedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSellerCredited,
			Timestamp: time.Now(),
		},
		OrderID:   order.ID,
		SellerID:  sellerID,
		NetAmount: net,
	}
	if err := s.eventPublisher.PublishSellerCredited(ctx, event); err != nil {
		s.logger.Error("Failed to publish SellerCredited event", zap.Error(err))
	}

	return nil
}

// ReleaseOrderPending moves each seller's pending amount for a delivered
// order into the available balance: the order's pending-tagged entries are
// summed and mirrored as a pending debit plus an available credit, balances
// updated in the same transaction. Re-delivery of the trigger is a no-op.
func (s *WalletService) ReleaseOrderPending(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	ctx, span := util.StartSpan(ctx, "WalletService.ReleaseOrderPending")
	defer span.End()

	for sellerID := range groupBySeller(items) {
		if err := s.releaseSellerPending(ctx, order, sellerID); err != nil {
			return fmt.Errorf("failed to release pending for seller %d: %w", sellerID, err)
		}
	}
	return nil
}

func (s *WalletService) releaseSellerPending(ctx context.Context, order *models.Order, sellerID int64) error {
	released := false
	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		wallet, err := s.store.GetWalletTx(ctx, tx, sellerID)
		if err != nil {
			return err
		}

		done, err := s.store.HasPendingRelease(ctx, tx, wallet.ID, order.ID)
		if err != nil {
			return err
		}
		if done {
			s.logger.Info("Pending already released, skipping",
				zap.Int64("order_id", order.ID),
				zap.Int64("seller_id", sellerID))
			return nil
		}

		net, err := s.store.SumOrderPendingEntries(ctx, tx, wallet.ID, order.ID)
		if err != nil {
			return err
		}
		if net.IsZero() {
			return nil
		}

		orderRef := sql.NullInt64{Int64: order.ID, Valid: true}

		debit := &models.WalletTransaction{
			WalletID:    wallet.ID,
			Type:        models.TxTypeAdjustment,
			Amount:      net.Neg(),
			BalanceType: models.BalancePending,
			Description: fmt.Sprintf("Pending release for order %s", order.OrderNumber),
			OrderID:     orderRef,
		}
		credit := &models.WalletTransaction{
			WalletID:    wallet.ID,
			Type:        models.TxTypeAdjustment,
			Amount:      net,
			BalanceType: models.BalanceAvailable,
			Description: fmt.Sprintf("Available after delivery of order %s", order.OrderNumber),
			OrderID:     orderRef,
		}
		if err := s.store.AppendWalletTransaction(ctx, tx, debit); err != nil {
			return err
		}
		if err := s.store.AppendWalletTransaction(ctx, tx, credit); err != nil {
			return err
		}

		wallet.PendingBalance = wallet.PendingBalance.Sub(net)
		wallet.Balance = wallet.Balance.Add(net)

		if err := s.store.UpdateWalletBalances(ctx, tx, wallet); err != nil {
			return err
		}

		released = true
		return nil
	})
	if err != nil {
		return err
	}

	if released {
		util.WalletReleasesTotal.Inc()
		s.invalidateSummary(ctx, sellerID)
	}
	return nil
}

// Withdraw debits the available balance, used by payout completion
func (s *WalletService) Withdraw(ctx context.Context, sellerID int64, amount decimal.Decimal, description string) error {
	ctx, span := util.StartSpan(ctx, "WalletService.Withdraw")
	defer span.End()

	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.withdrawTx(ctx, tx, sellerID, amount, description)
	})
	if err != nil {
		return err
	}

	util.WithdrawalsTotal.Inc()
	s.invalidateSummary(ctx, sellerID)
	return nil
}

// withdrawTx performs the balance debit inside an existing transaction so
// payout completion can flip the request status atomically with the debit.
func (s *WalletService) withdrawTx(ctx context.Context, tx *sqlx.Tx, sellerID int64, amount decimal.Decimal, description string) error {
	if !amount.IsPositive() {
		return models.ErrInvalidAmount
	}

	wallet, err := s.store.GetWalletTx(ctx, tx, sellerID)
	if err != nil {
		return err
	}
	if amount.GreaterThan(wallet.Balance) {
		return models.ErrInsufficientBalance
	}

	entry := &models.WalletTransaction{
		WalletID:    wallet.ID,
		Type:        models.TxTypeWithdrawal,
		Amount:      amount.Neg(),
		BalanceType: models.BalanceAvailable,
		Description: description,
	}
	if err := s.store.AppendWalletTransaction(ctx, tx, entry); err != nil {
		return fmt.Errorf("failed to append withdrawal entry: %w", err)
	}

	wallet.Balance = wallet.Balance.Sub(amount)
	wallet.WithdrawnBalance = wallet.WithdrawnBalance.Add(amount)

	if err := s.store.UpdateWalletBalances(ctx, tx, wallet); err != nil {
		return fmt.Errorf("failed to update wallet balances: %w", err)
	}

	return nil
}

// Summary returns a seller's wallet balances, served from cache when fresh
func (s *WalletService) Summary(ctx context.Context, sellerID int64) (*WalletSummary, error) {
	var cached WalletSummary
	hit, err := s.redis.GetWalletSummary(ctx, sellerID, &cached)
	if err != nil {
		s.logger.Warn("Wallet summary cache read failed", zap.Error(err))
	}
	if hit {
		return &cached, nil
	}

	wallet, err := s.store.GetWalletBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	summary := &WalletSummary{
		SellerID:         sellerID,
		Balance:          wallet.Balance,
		PendingBalance:   wallet.PendingBalance,
		WithdrawnBalance: wallet.WithdrawnBalance,
		TotalEarned:      wallet.TotalEarned,
		TotalCommission:  wallet.TotalCommission,
	}

	if err := s.redis.CacheWalletSummary(ctx, sellerID, summary, walletSummaryTTL); err != nil {
		s.logger.Warn("Wallet summary cache write failed", zap.Error(err))
	}
	return summary, nil
}

// Transactions returns a page of a seller's journal
func (s *WalletService) Transactions(ctx context.Context, sellerID int64, limit, offset int) ([]models.WalletTransaction, error) {
	wallet, err := s.store.GetWalletBySeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListWalletTransactions(ctx, wallet.ID, limit, offset)
}

func (s *WalletService) invalidateSummary(ctx context.Context, sellerID int64) {
	if err := s.redis.InvalidateWalletSummary(ctx, sellerID); err != nil {
		s.logger.Warn("Failed to invalidate wallet summary cache",
			zap.Int64("seller_id", sellerID),
			zap.Error(err))
	}
}

func groupBySeller(items []models.OrderItem) map[int64][]models.OrderItem {
	groups := make(map[int64][]models.OrderItem)
	for _, item := range items {
		groups[item.SellerID] = append(groups[item.SellerID], item)
	}
	return groups
}
