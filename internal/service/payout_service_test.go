package service

import (
	"context"
	"regexp"
	"testing"

	"settlement-service/internal/models"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPayoutService(t *testing.T) (*PayoutService, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	st := store.NewStoreWithDB(sqlx.NewDb(mockDB, "sqlmock"))
	wallets := NewWalletService(st, nil, nil)
	return NewPayoutService(st, wallets, unreachableRedis(), nil), mock
}

func payoutRows(id, sellerID int64, amount, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "seller_id", "bank_account_id", "amount", "status", "admin_notes",
	}).AddRow(id, sellerID, 31, amount, status, "")
}

func TestCreateRejectsNonPositiveAmount(t *testing.T) {
	svc, mock := newMockPayoutService(t)

	_, err := svc.Create(context.Background(), 7, decimal.Zero, 31, "")
	assert.Equal(t, models.ErrInvalidAmount, err)

	_, err = svc.Create(context.Background(), 7, decimal.RequireFromString("10.00"), 0, "")
	assert.Equal(t, models.ErrBankAccountRequired, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteMarksFailedWhenBalanceRaceLost(t *testing.T) {
	svc, mock := newMockPayoutService(t)
	ctx := context.Background()

	withdrawalsBefore := testutil.ToFloat64(util.WithdrawalsTotal)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM payout_requests WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(4)).
		WillReturnRows(payoutRows(4, 7, "100.00", models.PayoutStatusApproved))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM seller_wallets WHERE seller_id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(walletRows(7, "40.00", "0"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payout_requests")).
		WithArgs(models.PayoutStatusFailed, "", "", int64(99), sqlmock.AnyArg(), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payout, err := svc.Complete(ctx, 4, 99, "bank-ref-1")
	require.NoError(t, err)
	require.NotNil(t, payout)

	// the failed flip commits in the same transaction; the request never
	// stays in processing and no withdrawal is counted
	assert.Equal(t, models.PayoutStatusFailed, payout.Status)
	assert.Equal(t, withdrawalsBefore, testutil.ToFloat64(util.WithdrawalsTotal))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRejectsTerminalRequest(t *testing.T) {
	svc, mock := newMockPayoutService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM payout_requests WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(4)).
		WillReturnRows(payoutRows(4, 7, "100.00", models.PayoutStatusRejected))
	mock.ExpectRollback()

	_, err := svc.Complete(context.Background(), 4, 99, "bank-ref-1")
	require.Error(t, err)

	transitionErr, ok := err.(*models.TransitionError)
	require.True(t, ok, "expected *models.TransitionError, got %T", err)
	assert.Equal(t, models.PayoutStatusRejected, transitionErr.From)
	assert.NoError(t, mock.ExpectationsWereMet())
}
