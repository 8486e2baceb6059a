package mq

import "time"

// BookingEvent is the body published on both booking routing keys
type BookingEvent struct {
	Event      string    `json:"event"`
	Version    int       `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       struct {
		SessionID  string   `json:"session_id"`
		BookingIDs []string `json:"booking_ids"`
		UserID     string   `json:"user_id,omitempty"`
		Amount     int64    `json:"amount"`
		PaymentID  string   `json:"payment_id,omitempty"`
	} `json:"data"`
}

func NewBookingEvent(key string, at time.Time) BookingEvent {
	return BookingEvent{Event: key, Version: 1, OccurredAt: at.UTC()}
}
