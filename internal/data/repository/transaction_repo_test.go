package repository

import (
	"context"
	"testing"
	"time"

	"mahjong-booking/internal/data/entity"
	"mahjong-booking/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTransactionRepository_CreateDuplicatePayment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepository(mock, zap.NewNop())
	ref := "pi_1"
	txn := &entity.Transaction{
		BaseSimple:  entity.BaseSimple{ID: uuid.New(), CreatedAt: time.Now()},
		UserID:      uuid.New(),
		Type:        entity.TransactionTypeBooking,
		Amount:      -25000,
		Description: "Booking payment",
		PaymentID:   &ref,
	}

	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.UserID, txn.Type, txn.Amount, txn.Description, txn.PaymentID, txn.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.UserID, txn.Type, txn.Amount, txn.Description, txn.PaymentID, txn.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "transactions_payment_type"})

	require.NoError(t, repo.Create(context.Background(), txn))

	err = repo.Create(context.Background(), txn)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err), "unique violation must survive wrapping")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_FindByUserID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepository(mock, zap.NewNop())
	userID := uuid.New()
	ref := "pi_9"
	at := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM transactions").
		WithArgs(userID, 10, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "type", "amount", "description", "payment_id", "created_at"}).
			AddRow(uuid.New(), userID, entity.TransactionTypeBooking, int64(-15000), "Booking payment", &ref, at))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

	txns, err := repo.FindByUserID(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, int64(-15000), txns[0].Amount)
	require.NotNil(t, txns[0].PaymentID)
	assert.Equal(t, "pi_9", *txns[0].PaymentID)

	count, err := repo.CountByUserID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.NoError(t, mock.ExpectationsWereMet())
}
