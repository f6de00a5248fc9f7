package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"settlement-service/internal/models"
	"settlement-service/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockWalletService(t *testing.T) (*WalletService, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	st := store.NewStoreWithDB(sqlx.NewDb(mockDB, "sqlmock"))
	return NewWalletService(st, nil, nil), mock
}

func walletRows(sellerID int64, balance, pending string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "seller_id", "balance", "pending_balance", "withdrawn_balance",
		"total_earned", "total_commission", "created_at", "updated_at",
	}).AddRow(1, sellerID, balance, pending, "0", "0", "0", time.Now(), time.Now())
}

func TestWithdrawRejectsNonPositiveAmount(t *testing.T) {
	svc, mock := newMockWalletService(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := svc.Withdraw(context.Background(), 7, decimal.Zero, "test")
	assert.Equal(t, models.ErrInvalidAmount, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = svc.Withdraw(context.Background(), 7, decimal.RequireFromString("-5.00"), "test")
	assert.Equal(t, models.ErrInvalidAmount, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawRejectsInsufficientBalance(t *testing.T) {
	svc, mock := newMockWalletService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM seller_wallets WHERE seller_id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(walletRows(7, "50.00", "100.00"))
	mock.ExpectRollback()

	// pending balance does not cover withdrawals, only the available balance
	err := svc.Withdraw(context.Background(), 7, decimal.RequireFromString("75.00"), "test")
	assert.Equal(t, models.ErrInsufficientBalance, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithdrawUnknownWallet(t *testing.T) {
	svc, mock := newMockWalletService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM seller_wallets WHERE seller_id = $1 FOR UPDATE")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := svc.Withdraw(context.Background(), 9, decimal.RequireFromString("10.00"), "test")
	assert.Equal(t, models.ErrWalletNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditOrderSkipsDuplicate(t *testing.T) {
	svc, mock := newMockWalletService(t)

	order := &models.Order{ID: 11, OrderNumber: "MP2503070001ABCD"}
	items := []models.OrderItem{
		{
			SellerID:          7,
			TotalPrice:        decimal.RequireFromString("200.00"),
			CommissionAmount:  decimal.RequireFromString("20.00"),
			MarketplaceFee:    decimal.RequireFromString("1.78"),
			WithholdingTax:    decimal.RequireFromString("2.00"),
			ShippingCostShare: decimal.Zero,
			NetSellerAmount:   decimal.RequireFromString("176.22"),
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO seller_wallets (seller_id) VALUES ($1) ON CONFLICT (seller_id) DO NOTHING")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM seller_wallets WHERE seller_id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(walletRows(7, "0", "176.22"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM wallet_transactions WHERE wallet_id = $1 AND order_id = $2 AND type = $3)")).
		WithArgs(int64(1), int64(11), models.TxTypeSale).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	// no journal appends and no balance update follow the duplicate check
	err := svc.CreditOrder(context.Background(), order, items)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupBySeller(t *testing.T) {
	items := []models.OrderItem{
		{ID: 1, SellerID: 7},
		{ID: 2, SellerID: 8},
		{ID: 3, SellerID: 7},
	}

	groups := groupBySeller(items)
	require.Len(t, groups, 2)
	assert.Len(t, groups[7], 2)
	assert.Len(t, groups[8], 1)
}
