// Package gateway talks to the hosted payment processor: it opens checkout
// sessions for a batch of pending bookings and turns signed webhook deliveries
// into Events.
package gateway

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidSignature is returned by ParseEvent for missing, stale or forged signatures
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent marks a correctly signed event whose body cannot be used.
	// Redelivery will not fix it.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

const (
	metaBookingIDs = "bookingIds"
	metaBookingID  = "bookingId"
	metaUserID     = "userId"
	metaPrice      = "price"
)

// Metadata is the only link between a gateway session and the pending bookings
// it pays for. It is trusted only after the event signature has been verified.
type Metadata struct {
	BookingIDs []uuid.UUID
	UserID     uuid.UUID
	Price      int64
}

func (m Metadata) Encode() map[string]string {
	ids := make([]string, len(m.BookingIDs))
	for i, id := range m.BookingIDs {
		ids[i] = id.String()
	}
	out := map[string]string{
		metaBookingIDs: strings.Join(ids, ","),
		metaPrice:      strconv.FormatInt(m.Price, 10),
	}
	if m.UserID != uuid.Nil {
		out[metaUserID] = m.UserID.String()
	}
	return out
}

// ParseMetadata reads the booking batch back from session metadata. Older sessions
// carried a single bookingId key. A missing or malformed userId leaves UserID nil.
func ParseMetadata(raw map[string]string) (Metadata, error) {
	var m Metadata

	list := raw[metaBookingIDs]
	if list == "" {
		list = raw[metaBookingID]
	}
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return Metadata{}, fmt.Errorf("parse booking id %q: %w", part, err)
		}
		m.BookingIDs = append(m.BookingIDs, id)
	}

	if s := raw[metaUserID]; s != "" {
		if id, err := uuid.Parse(s); err == nil {
			m.UserID = id
		}
	}

	if s := raw[metaPrice]; s != "" {
		price, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Metadata{}, fmt.Errorf("parse price %q: %w", s, err)
		}
		m.Price = price
	}

	return m, nil
}

type CheckoutRequest struct {
	Amount        int64
	Currency      string
	ProductName   string
	Description   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	ExpiresAt     time.Time
	Metadata      Metadata
}

type CheckoutSession struct {
	ID  string
	URL string
}

type EventKind string

const (
	EventCompleted EventKind = "completed"
	EventExpired   EventKind = "expired"
	EventOther     EventKind = "other"
)

// Event is a verified webhook delivery
type Event struct {
	ID          string
	Type        string
	Kind        EventKind
	SessionID   string
	PaymentRef  string
	AmountTotal int64
	Metadata    Metadata
}
