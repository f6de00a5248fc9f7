package service

import (
	"context"
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

const payoutLockTTL = 30 * time.Second

// PayoutService governs the payout request lifecycle: seller-raised requests
// against available balance, admin approval, and completion once the external
// bank transfer is confirmed.
type PayoutService struct {
	store          *store.Store
	wallets        *WalletService
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewPayoutService creates a new payout service
func NewPayoutService(st *store.Store, wallets *WalletService, redis *redisclient.Client, eventPublisher *broker.EventPublisher) *PayoutService {
	return &PayoutService{
		store:          st,
		wallets:        wallets,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// Create raises a payout request. Guards: positive amount, amount within the
// available balance, a bank account reference, and no outstanding non-terminal
// request for the seller. Failures are typed errors; no balance is reserved
// at creation time.
func (s *PayoutService) Create(ctx context.Context, sellerID int64, amount decimal.Decimal, bankAccountID int64, notes string) (*models.PayoutRequest, error) {
	ctx, span := util.StartSpan(ctx, "PayoutService.Create")
	defer span.End()

	if !amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	if bankAccountID == 0 {
		return nil, models.ErrBankAccountRequired
	}

	payout := &models.PayoutRequest{
		SellerID:      sellerID,
		BankAccountID: bankAccountID,
		Amount:        amount,
		Status:        models.PayoutStatusPending,
		AdminNotes:    notes,
	}

	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		wallet, err := s.store.GetWalletTx(ctx, tx, sellerID)
		if err != nil {
			return err
		}

		outstanding, err := s.store.HasOutstandingPayout(ctx, tx, sellerID)
		if err != nil {
			return err
		}
		if outstanding {
			return models.ErrPayoutOutstanding
		}

		if amount.GreaterThan(wallet.Balance) {
			return models.ErrInsufficientBalance
		}

		return s.store.CreatePayout(ctx, tx, payout)
	})
	if err != nil {
		util.PayoutsTotal.WithLabelValues("rejected_create").Inc()
		return nil, err
	}

	util.PayoutsTotal.WithLabelValues("created").Inc()
	s.logger.Info("Payout request created",
		zap.Int64("payout_id", payout.ID),
		zap.Int64("seller_id", sellerID),
		zap.String("amount", amount.StringFixed(2)))
	return payout, nil
}

// Approve records an admin's approval of a pending request. No money moves.
func (s *PayoutService) Approve(ctx context.Context, payoutID, adminID int64, notes string) error {
	err := s.transition(ctx, payoutID, models.PayoutStatusApproved, adminID, notes, "")
	if err != nil {
		return err
	}
	util.PayoutsTotal.WithLabelValues("approved").Inc()
	return nil
}

// Reject terminally declines a pending or approved request; the seller's
// balance is untouched.
func (s *PayoutService) Reject(ctx context.Context, payoutID, adminID int64, notes string) error {
	err := s.transition(ctx, payoutID, models.PayoutStatusRejected, adminID, notes, "")
	if err != nil {
		return err
	}
	util.PayoutsTotal.WithLabelValues("rejected").Inc()
	return nil
}

func (s *PayoutService) transition(ctx context.Context, payoutID int64, to string, adminID int64, notes, transactionRef string) error {
	return s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		payout, err := s.store.GetPayoutTx(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if !models.CanTransitionPayout(payout.Status, to) {
			return &models.TransitionError{
				Entity:  "payout",
				From:    payout.Status,
				To:      to,
				Allowed: models.AllowedPayoutTransitions(payout.Status),
			}
		}
		return s.store.UpdatePayoutStatus(ctx, tx, payoutID, to, notes, transactionRef, adminID, time.Now())
	})
}

// Complete finalizes an approved request once the external transfer is
// confirmed: the wallet withdrawal and the status flip to completed commit in
// one transaction. If the withdrawal loses a balance race, the request is
// marked failed, never left in processing.
func (s *PayoutService) Complete(ctx context.Context, payoutID, adminID int64, transactionRef string) (*models.PayoutRequest, error) {
	ctx, span := util.StartSpan(ctx, "PayoutService.Complete")
	defer span.End()

	lockKey := fmt.Sprintf("payout:%d", payoutID)
	acquired, err := s.redis.AcquireLock(ctx, lockKey, payoutLockTTL)
	if err != nil {
		s.logger.Warn("Payout lock acquisition failed, relying on row lock", zap.Error(err))
	} else if !acquired {
		return nil, fmt.Errorf("payout %d completion already in progress", payoutID)
	} else {
		defer func() {
			if err := s.redis.ReleaseLock(context.Background(), lockKey); err != nil {
				s.logger.Warn("Failed to release payout lock", zap.Error(err))
			}
		}()
	}

	var result *models.PayoutRequest
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		payout, err := s.store.GetPayoutTx(ctx, tx, payoutID)
		if err != nil {
			return err
		}

		// approved requests pass through processing on their way here
		status := payout.Status
		if status == models.PayoutStatusApproved {
			status = models.PayoutStatusProcessing
		}
		if !models.CanTransitionPayout(status, models.PayoutStatusCompleted) {
			return &models.TransitionError{
				Entity:  "payout",
				From:    payout.Status,
				To:      models.PayoutStatusCompleted,
				Allowed: models.AllowedPayoutTransitions(payout.Status),
			}
		}

		description := fmt.Sprintf("Payout %d to bank account %d (ref %s)",
			payout.ID, payout.BankAccountID, transactionRef)

		if err := s.wallets.withdrawTx(ctx, tx, payout.SellerID, payout.Amount, description); err != nil {
			if err == models.ErrInsufficientBalance {
				s.logger.Warn("Payout withdrawal lost balance race, marking failed",
					zap.Int64("payout_id", payoutID))
				if uerr := s.store.UpdatePayoutStatus(ctx, tx, payoutID,
					models.PayoutStatusFailed, payout.AdminNotes, "", adminID, time.Now()); uerr != nil {
					return uerr
				}
				payout.Status = models.PayoutStatusFailed
				result = payout
				return nil
			}
			return err
		}

		if err := s.store.UpdatePayoutStatus(ctx, tx, payoutID,
			models.PayoutStatusCompleted, payout.AdminNotes, transactionRef, adminID, time.Now()); err != nil {
			return err
		}

		payout.Status = models.PayoutStatusCompleted
		payout.TransactionRef = transactionRef
		result = payout
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Status == models.PayoutStatusFailed {
		util.PayoutsTotal.WithLabelValues("failed").Inc()
		return result, nil
	}

	util.PayoutsTotal.WithLabelValues("completed").Inc()
	util.WithdrawalsTotal.Inc()
	s.wallets.invalidateSummary(ctx, result.SellerID)

	event := &models.PayoutCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePayoutCompleted,
			Timestamp: time.Now(),
		},
		PayoutID:       result.ID,
		SellerID:       result.SellerID,
		Amount:         result.Amount,
		TransactionRef: transactionRef,
	}
	if err := s.eventPublisher.PublishPayoutCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish PayoutCompleted event", zap.Error(err))
	}

	return result, nil
}

// Get retrieves a payout request by ID
func (s *PayoutService) Get(ctx context.Context, payoutID int64) (*models.PayoutRequest, error) {
	return s.store.GetPayout(ctx, payoutID)
}

// ListForSeller retrieves a seller's payout requests
func (s *PayoutService) ListForSeller(ctx context.Context, sellerID int64) ([]models.PayoutRequest, error) {
	return s.store.ListPayoutsBySeller(ctx, sellerID)
}
