package usecase

import (
	"context"
	"errors"

	"mahjong-booking/internal/data/entity"
	"mahjong-booking/internal/data/repository"
	"mahjong-booking/internal/gateway"
	"mahjong-booking/pkg/apperror"
	"mahjong-booking/pkg/database"
	"mahjong-booking/pkg/metrics"
	"mahjong-booking/pkg/mq"
	"mahjong-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WebhookResult tells the caller what a delivery did. Every result is acknowledged.
type WebhookResult struct {
	EventID string
	Kind    gateway.EventKind
	Outcome string
}

type WebhookService interface {
	// HandleEvent verifies and applies one gateway delivery. Errors are either an
	// invalid signature (reject) or an internal failure (let the gateway redeliver).
	HandleEvent(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
}

type webhookService struct {
	repo      *repository.Repository
	tx        TxManager
	gateway   PaymentGateway
	publisher EventPublisher
	clock     utils.Clock
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewWebhookService(deps Dependencies) WebhookService {
	return &webhookService{
		repo:      deps.Repo,
		tx:        deps.Tx,
		gateway:   deps.Gateway,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		log:       deps.Log.With(zap.String("service", "webhook")),
	}
}

// errDuplicateLedger aborts a completion whose ledger row already exists
var errDuplicateLedger = errors.New("ledger entry already recorded")

func (s *webhookService) HandleEvent(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrInvalidSignature):
			s.log.Warn("Webhook signature verification failed", zap.Error(err))
			s.metrics.ObserveWebhook("unknown", metrics.OutcomeRejected)
			return nil, apperror.InvalidSignature(err)
		case errors.Is(err, gateway.ErrMalformedEvent):
			s.log.Error("Signed webhook event cannot be applied", zap.Error(err))
			s.metrics.ObserveWebhook("unknown", metrics.OutcomeIgnored)
			return &WebhookResult{Kind: gateway.EventOther, Outcome: metrics.OutcomeIgnored}, nil
		default:
			s.log.Error("Failed to parse webhook event", zap.Error(err))
			return nil, apperror.Internal("Failed to parse webhook event", err)
		}
	}

	var result *WebhookResult
	switch event.Kind {
	case gateway.EventCompleted:
		result, err = s.complete(ctx, event)
	case gateway.EventExpired:
		result, err = s.expire(ctx, event)
	default:
		s.log.Info("Ignoring webhook event", zap.String("event_id", event.ID), zap.String("type", event.Type))
		result = &WebhookResult{EventID: event.ID, Kind: event.Kind, Outcome: metrics.OutcomeIgnored}
	}
	if err != nil {
		s.metrics.ObserveWebhook(string(event.Kind), metrics.OutcomeFailed)
		return nil, err
	}

	s.metrics.ObserveWebhook(string(event.Kind), result.Outcome)
	return result, nil
}

// complete confirms the bookings, bumps total_spent and writes one ledger row
// in a single transaction. The processed marker makes replays no-ops.
func (s *webhookService) complete(ctx context.Context, event *gateway.Event) (*WebhookResult, error) {
	log := s.log.With(zap.String("event_id", event.ID), zap.String("session_id", event.SessionID))
	meta := event.Metadata
	result := &WebhookResult{EventID: event.ID, Kind: event.Kind}

	if len(meta.BookingIDs) == 0 {
		log.Warn("Completed session carries no booking ids")
		result.Outcome = metrics.OutcomeIgnored
		return result, nil
	}

	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		first, err := s.repo.PaymentEvent.MarkProcessed(txCtx, event.SessionID, entity.PaymentEventCompleted, event.ID)
		if err != nil {
			return err
		}
		if !first {
			result.Outcome = metrics.OutcomeReplay
			return nil
		}

		bookings, err := s.repo.Booking.FindByIDs(txCtx, meta.BookingIDs)
		if err != nil {
			return err
		}
		s.crossCheckAmount(log, event, bookings)

		confirmed, err := s.repo.Booking.ConfirmPending(txCtx, meta.BookingIDs)
		if err != nil {
			return err
		}
		if confirmed < int64(len(meta.BookingIDs)) {
			log.Warn("Not every referenced booking was pending",
				zap.Int("referenced", len(meta.BookingIDs)),
				zap.Int("found", len(bookings)),
				zap.Int64("confirmed", confirmed),
			)
		}

		if meta.UserID == uuid.Nil {
			log.Warn("Completed session has no resolvable user, skipping ledger")
			result.Outcome = metrics.OutcomeDegraded
			return nil
		}

		found, err := s.repo.User.AddTotalSpent(txCtx, meta.UserID, meta.Price)
		if err != nil {
			return err
		}
		if !found {
			log.Warn("User for completed session not found, skipping ledger", zap.String("user_id", meta.UserID.String()))
			result.Outcome = metrics.OutcomeDegraded
			return nil
		}

		entry := &entity.Transaction{
			BaseSimple:  entity.BaseSimple{ID: uuid.New(), CreatedAt: s.clock.Now()},
			UserID:      meta.UserID,
			Type:        entity.TransactionTypeBooking,
			Amount:      -meta.Price,
			Description: "Booking payment",
		}
		if event.PaymentRef != "" {
			ref := event.PaymentRef
			entry.PaymentID = &ref
		}
		if err := s.repo.Transaction.Create(txCtx, entry); err != nil {
			if database.IsUniqueViolation(err) {
				return errDuplicateLedger
			}
			return err
		}

		result.Outcome = metrics.OutcomeConfirmed
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, errDuplicateLedger):
		log.Info("Ledger entry for payment already exists, treating as replay", zap.String("payment_id", event.PaymentRef))
		result.Outcome = metrics.OutcomeReplay
		return result, nil
	case errors.Is(err, repository.ErrSlotTaken):
		// Payment captured for a slot someone else already holds. Acknowledge so the
		// gateway stops retrying; the payment needs a manual refund.
		log.Error("Paid booking conflicts with a confirmed slot, manual refund required",
			zap.String("payment_id", event.PaymentRef),
			zap.Int64("amount", meta.Price),
			zap.String("user_id", meta.UserID.String()),
		)
		if err := s.releaseConflicting(ctx, event); err != nil {
			log.Error("Failed to release conflicting bookings", zap.Error(err))
			return nil, apperror.Internal("Failed to release bookings", err)
		}
		result.Outcome = metrics.OutcomeConflict
		return result, nil
	default:
		log.Error("Failed to apply completed session", zap.Error(err))
		return nil, apperror.Internal("Failed to apply payment", err)
	}

	if result.Outcome == metrics.OutcomeReplay {
		log.Info("Completed session already processed")
		return result, nil
	}

	log.Info("Bookings confirmed",
		zap.Int("bookings", len(meta.BookingIDs)),
		zap.Int64("price", meta.Price),
		zap.String("outcome", result.Outcome),
	)
	s.publish(ctx, mq.RoutingBookingConfirmed, event)
	return result, nil
}

// releaseConflicting records the completion and drops the session's pending rows
// after the confirmation lost to an existing booking. Redeliveries become replays.
func (s *webhookService) releaseConflicting(ctx context.Context, event *gateway.Event) error {
	return s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		first, err := s.repo.PaymentEvent.MarkProcessed(txCtx, event.SessionID, entity.PaymentEventCompleted, event.ID)
		if err != nil || !first {
			return err
		}
		_, err = s.repo.Booking.DeletePending(txCtx, event.Metadata.BookingIDs)
		return err
	})
}

// crossCheckAmount compares the signed metadata price with the stored snapshot and
// the amount the gateway actually charged.
func (s *webhookService) crossCheckAmount(log *zap.Logger, event *gateway.Event, bookings []*entity.Booking) {
	var stored int64
	for _, b := range bookings {
		stored += b.Amount
	}

	if len(bookings) == len(event.Metadata.BookingIDs) && stored != event.Metadata.Price {
		log.Warn("Metadata price differs from stored booking amounts",
			zap.Int64("metadata_price", event.Metadata.Price),
			zap.Int64("stored_total", stored),
		)
	}
	if event.AmountTotal > 0 && event.AmountTotal != event.Metadata.Price {
		log.Warn("Charged amount differs from metadata price",
			zap.Int64("amount_total", event.AmountTotal),
			zap.Int64("metadata_price", event.Metadata.Price),
		)
	}
}

// expire releases the pending rows of an abandoned session. Rows that are gone or
// already confirmed are left alone.
func (s *webhookService) expire(ctx context.Context, event *gateway.Event) (*WebhookResult, error) {
	log := s.log.With(zap.String("event_id", event.ID), zap.String("session_id", event.SessionID))
	ids := event.Metadata.BookingIDs
	result := &WebhookResult{EventID: event.ID, Kind: event.Kind, Outcome: metrics.OutcomeReleased}

	if len(ids) == 0 {
		log.Warn("Expired session carries no booking ids")
		result.Outcome = metrics.OutcomeIgnored
		return result, nil
	}

	var deleted int64
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		first, err := s.repo.PaymentEvent.MarkProcessed(txCtx, event.SessionID, entity.PaymentEventExpired, event.ID)
		if err != nil {
			return err
		}
		if !first {
			result.Outcome = metrics.OutcomeReplay
			return nil
		}

		deleted, err = s.repo.Booking.DeletePending(txCtx, ids)
		return err
	})
	if err != nil {
		log.Error("Failed to release expired session", zap.Error(err))
		return nil, apperror.Internal("Failed to release bookings", err)
	}

	if result.Outcome == metrics.OutcomeReplay {
		log.Info("Expired session already processed")
		return result, nil
	}

	log.Info("Pending bookings released", zap.Int("referenced", len(ids)), zap.Int64("deleted", deleted))
	s.publish(ctx, mq.RoutingBookingReleased, event)
	return result, nil
}

// publish runs after commit; a broker failure never undoes applied state
func (s *webhookService) publish(ctx context.Context, key string, event *gateway.Event) {
	if s.publisher == nil {
		return
	}

	msg := mq.NewBookingEvent(key, s.clock.Now())
	msg.Data.SessionID = event.SessionID
	msg.Data.Amount = event.Metadata.Price
	msg.Data.PaymentID = event.PaymentRef
	if event.Metadata.UserID != uuid.Nil {
		msg.Data.UserID = event.Metadata.UserID.String()
	}
	for _, id := range event.Metadata.BookingIDs {
		msg.Data.BookingIDs = append(msg.Data.BookingIDs, id.String())
	}

	if err := s.publisher.PublishJSON(ctx, key, msg); err != nil {
		s.log.Warn("Failed to publish booking event", zap.Error(err), zap.String("routing_key", key))
	}
}
