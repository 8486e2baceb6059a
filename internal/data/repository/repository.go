package repository

import (
	"mahjong-booking/pkg/database"

	"go.uber.org/zap"
)

type Repository struct {
	User         UserRepository
	Session      SessionRepository
	Booking      BookingRepository
	Transaction  TransactionRepository
	PaymentEvent PaymentEventRepository
}

func NewRepository(db database.PgxIface, log *zap.Logger) *Repository {
	return &Repository{
		User:         NewUserRepository(db, log),
		Session:      NewSessionRepository(db, log),
		Booking:      NewBookingRepository(db, log),
		Transaction:  NewTransactionRepository(db, log),
		PaymentEvent: NewPaymentEventRepository(db, log),
	}
}
