package store

import (
	"context"
	"regexp"
	"testing"

	"settlement-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	return NewStoreWithDB(db), mock
}

func TestReserveStockSuccess(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE offers SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1")).
		WithArgs(3, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE offers SET status = $1 WHERE id = $2 AND stock = 0 AND status = $3")).
		WithArgs(models.OfferStatusSoldOut, int64(42), models.OfferStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := st.WithTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := st.ReserveStock(ctx, tx, 42, 3)
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveStockInsufficient(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	// the conditional update matches no row, so nothing is mutated and no
	// sold_out flip is attempted
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE offers SET stock = stock - $1")).
		WithArgs(10, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := st.WithTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := st.ReserveStock(ctx, tx, 42, 10)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseStockRevertsSoldOut(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE offers SET stock = stock + $1, updated_at = NOW() WHERE id = $2")).
		WithArgs(2, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE offers SET status = $1 WHERE id = $2 AND stock > 0 AND status = $3")).
		WithArgs(models.OfferStatusActive, int64(7), models.OfferStatusSoldOut).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := st.WithTx(ctx, func(tx *sqlx.Tx) error {
		return st.ReleaseStock(ctx, tx, 7, 2)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := st.WithTx(context.Background(), func(tx *sqlx.Tx) error {
		return models.ErrEmptyCart
	})
	assert.Equal(t, models.ErrEmptyCart, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOfferNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM offers WHERE id = $1")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := st.GetOffer(context.Background(), 99)
	assert.Equal(t, models.ErrOfferNotFound, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(models.ErrOrderNotFound))
	assert.False(t, IsUniqueViolation(nil))
}
