package repository

import (
	"context"
	"fmt"

	"mahjong-booking/internal/data/entity"
	"mahjong-booking/pkg/database"

	"go.uber.org/zap"
)

type PaymentEventRepository interface {
	// MarkProcessed records the outcome of a gateway session. It returns false when
	// the (session, kind) pair was already recorded, meaning the event is a replay.
	MarkProcessed(ctx context.Context, sessionID string, kind entity.PaymentEventKind, eventID string) (bool, error)
}

type paymentEventRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewPaymentEventRepository(db database.PgxIface, log *zap.Logger) PaymentEventRepository {
	return &paymentEventRepository{
		db:  db,
		log: log.With(zap.String("repository", "payment_event")),
	}
}

func (r *paymentEventRepository) MarkProcessed(ctx context.Context, sessionID string, kind entity.PaymentEventKind, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_payment_events (session_id, kind, event_id, processed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id, kind) DO NOTHING
	`

	result, err := database.Conn(ctx, r.db).Exec(ctx, query, sessionID, kind, eventID)
	if err != nil {
		r.log.Error("Failed to record payment event",
			zap.Error(err),
			zap.String("session_id", sessionID),
			zap.String("kind", string(kind)),
		)
		return false, fmt.Errorf("record payment event %s/%s: %w", sessionID, kind, err)
	}

	return result.RowsAffected() == 1, nil
}
