package entity

import "time"

type PaymentEventKind string

const (
	PaymentEventCompleted PaymentEventKind = "completed"
	PaymentEventExpired   PaymentEventKind = "expired"
)

// ProcessedPaymentEvent marks a gateway session outcome as applied.
// (SessionID, Kind) is the primary key.
type ProcessedPaymentEvent struct {
	SessionID   string           `db:"session_id"`
	Kind        PaymentEventKind `db:"kind"`
	EventID     string           `db:"event_id"`
	ProcessedAt time.Time        `db:"processed_at"`
}
