package response

import (
	"time"

	"mahjong-booking/internal/data/entity"
)

type CheckoutResponse struct {
	RedirectURL string   `json:"redirectUrl"`
	BookingIDs  []string `json:"bookingIds"`
	TotalAmount int64    `json:"totalAmount"`
}

type BookingResponse struct {
	ID        string               `json:"id"`
	Date      string               `json:"date"`
	StartTime string               `json:"start_time"`
	EndTime   string               `json:"end_time"`
	Amount    int64                `json:"amount"`
	IsPeak    bool                 `json:"is_peak"`
	Status    entity.BookingStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
}

type AdminBookingResponse struct {
	BookingResponse
	UserID             string  `json:"user_id"`
	CustomerName       string  `json:"customer_name"`
	CustomerEmail      string  `json:"customer_email"`
	CustomerPhone      *string `json:"customer_phone,omitempty"`
	CustomerMembership string  `json:"customer_membership"`
}

type SlotAvailability struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Price     int64  `json:"price"`
	IsPeak    bool   `json:"is_peak"`
	Available bool   `json:"available"`
}

type AvailabilityResponse struct {
	Date     string             `json:"date"`
	Currency string             `json:"currency"`
	Slots    []SlotAvailability `json:"slots"`
}

type TransactionResponse struct {
	ID          string                 `json:"id"`
	Type        entity.TransactionType `json:"type"`
	Amount      int64                  `json:"amount"`
	Description string                 `json:"description"`
	PaymentID   *string                `json:"payment_id,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Helper converters
func BookingToResponse(b *entity.Booking) BookingResponse {
	return BookingResponse{
		ID:        b.ID.String(),
		Date:      b.Date.Format(time.DateOnly),
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		Amount:    b.Amount,
		IsPeak:    b.IsPeak,
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
	}
}

func AdminBookingToResponse(b *entity.BookingWithCustomer) AdminBookingResponse {
	return AdminBookingResponse{
		BookingResponse:    BookingToResponse(&b.Booking),
		UserID:             b.UserID.String(),
		CustomerName:       b.CustomerName,
		CustomerEmail:      b.CustomerEmail,
		CustomerPhone:      b.CustomerPhone,
		CustomerMembership: b.CustomerMembership,
	}
}

func TransactionToResponse(t *entity.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:          t.ID.String(),
		Type:        t.Type,
		Amount:      t.Amount,
		Description: t.Description,
		PaymentID:   t.PaymentID,
		CreatedAt:   t.CreatedAt,
	}
}
