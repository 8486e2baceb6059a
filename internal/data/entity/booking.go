package entity

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

// Expired pending bookings are deleted, so there is no terminal status besides confirmed.
const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
)

// Booking is one hour of the room. Amount and IsPeak are a snapshot of the
// pricing rules at reservation time and are never recomputed.
type Booking struct {
	BaseNoDelete
	UserID    uuid.UUID     `db:"user_id"`
	Date      time.Time     `db:"date"`
	StartTime string        `db:"start_time"`
	EndTime   string        `db:"end_time"`
	Amount    int64         `db:"amount"`
	IsPeak    bool          `db:"is_peak"`
	Status    BookingStatus `db:"status"`
}

// BookingWithCustomer is the admin listing row
type BookingWithCustomer struct {
	Booking
	CustomerName       string  `db:"name"`
	CustomerEmail      string  `db:"email"`
	CustomerPhone      *string `db:"phone"`
	CustomerMembership string  `db:"membership"`
}
