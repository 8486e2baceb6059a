package entity

import "github.com/google/uuid"

type TransactionType string

const (
	TransactionTypeDeposit TransactionType = "deposit"
	TransactionTypeBooking TransactionType = "booking"
	TransactionTypeRefund  TransactionType = "refund"
)

// Transaction is an immutable ledger entry; Amount is negative for debits
type Transaction struct {
	BaseSimple
	UserID      uuid.UUID       `db:"user_id"`
	Type        TransactionType `db:"type"`
	Amount      int64           `db:"amount"`
	Description string          `db:"description"`
	PaymentID   *string         `db:"payment_id"`
}
