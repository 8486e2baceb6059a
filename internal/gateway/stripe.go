package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mahjong-booking/pkg/utils"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const (
	eventSessionCompleted = "checkout.session.completed"
	eventSessionExpired   = "checkout.session.expired"

	// Stripe rejects expires_at values closer than 30 minutes
	minSessionTTL = 30 * time.Minute
)

type Stripe struct {
	api           *client.API
	webhookSecret string
	log           *zap.Logger
}

func NewStripe(config utils.PaymentConfig, log *zap.Logger) *Stripe {
	return &Stripe{
		api:           client.New(config.SecretKey, nil),
		webhookSecret: config.WebhookSecret,
		log:           log.With(zap.String("gateway", "stripe")),
	}
}

// SessionExpiry clamps the configured TTL to the gateway minimum
func SessionExpiry(now time.Time, ttl time.Duration) time.Time {
	if ttl < minSessionTTL {
		ttl = minSessionTTL
	}
	return now.Add(ttl)
}

func (s *Stripe) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		CustomerEmail: stripe.String(req.CustomerEmail),
		ExpiresAt:     stripe.Int64(req.ExpiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.ProductName),
						Description: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: req.Metadata.Encode(),
	}
	params.Context = ctx

	session, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		s.log.Error("Failed to create checkout session",
			zap.Error(err),
			zap.Int64("amount", req.Amount),
			zap.Int("bookings", len(req.Metadata.BookingIDs)),
		)
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	s.log.Info("Checkout session created",
		zap.String("session_id", session.ID),
		zap.Int64("amount", req.Amount),
	)
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// ParseEvent verifies the Stripe-Signature header against the webhook secret
// before decoding anything from the payload.
func (s *Stripe) ParseEvent(payload []byte, signature string) (*Event, error) {
	if signature == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrTooOld) || errors.Is(err, webhook.ErrInvalidHeader) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		// the signature already verified, so the body itself is unusable
		return nil, fmt.Errorf("%w: construct event: %v", ErrMalformedEvent, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type), Kind: EventOther}
	switch out.Type {
	case eventSessionCompleted:
		out.Kind = EventCompleted
	case eventSessionExpired:
		out.Kind = EventExpired
	default:
		return out, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: decode checkout session: %v", ErrMalformedEvent, err)
	}

	meta, err := ParseMetadata(session.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: session %s metadata: %v", ErrMalformedEvent, session.ID, err)
	}

	out.SessionID = session.ID
	out.AmountTotal = session.AmountTotal
	out.Metadata = meta
	if session.PaymentIntent != nil {
		out.PaymentRef = session.PaymentIntent.ID
	}
	return out, nil
}
