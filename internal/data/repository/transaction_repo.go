package repository

import (
	"context"
	"fmt"

	"mahjong-booking/internal/data/entity"
	"mahjong-booking/pkg/database"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransactionRepository is append-only; ledger rows are never updated
type TransactionRepository interface {
	Create(ctx context.Context, txn *entity.Transaction) error
	FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Transaction, error)
	CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
}

type transactionRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewTransactionRepository(db database.PgxIface, log *zap.Logger) TransactionRepository {
	return &transactionRepository{
		db:  db,
		log: log.With(zap.String("repository", "transaction")),
	}
}

func (r *transactionRepository) Create(ctx context.Context, txn *entity.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, type, amount, description, payment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := database.Conn(ctx, r.db).Exec(ctx, query,
		txn.ID,
		txn.UserID,
		txn.Type,
		txn.Amount,
		txn.Description,
		txn.PaymentID,
		txn.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			r.log.Warn("Ledger entry already recorded for payment",
				zap.String("user_id", txn.UserID.String()),
				zap.String("type", string(txn.Type)),
			)
		} else {
			r.log.Error("Failed to create transaction",
				zap.Error(err),
				zap.String("user_id", txn.UserID.String()),
			)
		}
		return fmt.Errorf("create transaction for user %s: %w", txn.UserID, err)
	}

	return nil
}

func (r *transactionRepository) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Transaction, error) {
	query := `
		SELECT id, user_id, type, amount, description, payment_id, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := database.Conn(ctx, r.db).Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.log.Error("Failed to find transactions by user ID",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("find transactions by user ID %s: %w", userID, err)
	}
	defer rows.Close()

	var txns []*entity.Transaction
	for rows.Next() {
		var txn entity.Transaction
		err := rows.Scan(
			&txn.ID,
			&txn.UserID,
			&txn.Type,
			&txn.Amount,
			&txn.Description,
			&txn.PaymentID,
			&txn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, &txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}

	return txns, nil
}

func (r *transactionRepository) CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE user_id = $1`

	var count int64
	if err := database.Conn(ctx, r.db).QueryRow(ctx, query, userID).Scan(&count); err != nil {
		r.log.Error("Failed to count transactions", zap.Error(err), zap.String("user_id", userID.String()))
		return 0, fmt.Errorf("count transactions by user ID %s: %w", userID, err)
	}

	return count, nil
}
