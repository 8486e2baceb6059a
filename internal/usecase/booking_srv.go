package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mahjong-booking/internal/data/entity"
	"mahjong-booking/internal/data/repository"
	"mahjong-booking/internal/dto/request"
	"mahjong-booking/internal/dto/response"
	"mahjong-booking/internal/gateway"
	"mahjong-booking/pkg/apperror"
	"mahjong-booking/pkg/metrics"
	"mahjong-booking/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingService interface {
	// CreateReservation holds every requested slot as pending and opens a payment session for them
	CreateReservation(ctx context.Context, userID uuid.UUID, req *request.CreateBookingRequest) (*response.CheckoutResponse, error)
	GetAvailability(ctx context.Context, req *request.AvailabilityRequest) (*response.AvailabilityResponse, error)
	GetUserBookings(ctx context.Context, userID uuid.UUID, req request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error)

	// Admin
	ListBookings(ctx context.Context, req *request.AdminBookingListRequest) (*response.PaginatedResponse[response.AdminBookingResponse], error)
}

type bookingService struct {
	repo    *repository.Repository
	tx      TxManager
	gateway PaymentGateway
	pricing PricingRules
	clock   utils.Clock
	loc     *time.Location
	config  *utils.Config
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewBookingService(deps Dependencies) BookingService {
	log := deps.Log.With(zap.String("service", "booking"))
	return &bookingService{
		repo:    deps.Repo,
		tx:      deps.Tx,
		gateway: deps.Gateway,
		pricing: deps.Pricing,
		clock:   deps.Clock,
		loc:     loadLocation(deps.Config.App.Timezone, log),
		config:  deps.Config,
		metrics: deps.Metrics,
		log:     log,
	}
}

func (s *bookingService) CreateReservation(ctx context.Context, userID uuid.UUID, req *request.CreateBookingRequest) (*response.CheckoutResponse, error) {
	// 1. Request shape
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		s.log.Warn("Create booking validation failed", zap.Any("errors", errs))
		s.metrics.ObserveReservation(metrics.OutcomeInvalid)
		return nil, apperror.Validation("Invalid booking request", map[string]any{"fields": errs})
	}

	// 2. Slot rules
	slots, err := s.validate(req)
	if err != nil {
		s.metrics.ObserveReservation(metrics.OutcomeInvalid)
		return nil, s.slotFailure(err)
	}

	// 3. Booking user
	user, err := s.repo.User.FindByID(ctx, userID)
	if err != nil {
		s.metrics.ObserveReservation(metrics.OutcomeFailed)
		return nil, apperror.Internal("Failed to load user", err)
	}
	if user == nil {
		s.metrics.ObserveReservation(metrics.OutcomeFailed)
		return nil, apperror.Unauthorized("User not found")
	}

	// 4. Fast conflict check; the conditional insert below is what actually closes the race
	conflicts, err := s.findConflicts(ctx, slots)
	if err != nil {
		s.metrics.ObserveReservation(metrics.OutcomeFailed)
		return nil, apperror.Internal("Failed to check availability", err)
	}
	if len(conflicts) > 0 {
		s.log.Info("Requested slots already confirmed",
			zap.String("user_id", userID.String()),
			zap.Int("conflicts", len(conflicts)),
		)
		s.metrics.ObserveReservation(metrics.OutcomeConflict)
		return nil, slotConflict(conflicts)
	}

	// 5. Pending rows and payment session in one transaction
	var (
		bookings []*entity.Booking
		total    int64
		session  *gateway.CheckoutSession
	)
	now := s.clock.Now()

	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		bookings, total = nil, 0

		for _, slot := range slots.All() {
			price := s.pricing.Quote(slot.Date, slot.Hour)
			booking := &entity.Booking{
				BaseNoDelete: entity.BaseNoDelete{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
				UserID:       user.ID,
				Date:         slot.Date,
				StartTime:    slot.Start,
				EndTime:      slot.End(),
				Amount:       price.Amount,
				IsPeak:       price.IsPeak,
				Status:       entity.BookingStatusPending,
			}
			if err := s.repo.Booking.CreatePending(txCtx, booking); err != nil {
				return err
			}
			bookings = append(bookings, booking)
			total += price.Amount
		}

		ids := make([]uuid.UUID, len(bookings))
		for i, b := range bookings {
			ids[i] = b.ID
		}

		var err error
		session, err = s.gateway.CreateSession(txCtx, gateway.CheckoutRequest{
			Amount:        total,
			Currency:      s.config.Pricing.Currency,
			ProductName:   s.config.Payment.ProductName,
			Description:   describeSlots(slots),
			CustomerEmail: user.Email,
			SuccessURL:    s.config.App.PublicBaseURL + "/booking-success?session_id={CHECKOUT_SESSION_ID}",
			CancelURL:     s.config.App.PublicBaseURL + "/book?cancelled=true",
			ExpiresAt:     gateway.SessionExpiry(now, time.Duration(s.config.Payment.SessionTTLMinutes)*time.Minute),
			Metadata: gateway.Metadata{
				BookingIDs: ids,
				UserID:     user.ID,
				Price:      total,
			},
		})
		if err != nil {
			return fmt.Errorf("open payment session: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			s.log.Info("Slot confirmed by another booking during reservation", zap.String("user_id", userID.String()))
			s.metrics.ObserveReservation(metrics.OutcomeConflict)
			return nil, apperror.Conflict("One or more time slots are no longer available",
				map[string]any{"reason": string(ReasonSlotConflict)})
		}
		s.log.Error("Failed to create reservation", zap.Error(err), zap.String("user_id", userID.String()))
		s.metrics.ObserveReservation(metrics.OutcomeFailed)
		return nil, apperror.Internal("Failed to create checkout session", err)
	}

	resp := &response.CheckoutResponse{
		RedirectURL: session.URL,
		BookingIDs:  make([]string, len(bookings)),
		TotalAmount: total,
	}
	for i, b := range bookings {
		resp.BookingIDs[i] = b.ID.String()
	}

	s.log.Info("Reservation created",
		zap.String("user_id", userID.String()),
		zap.String("session_id", session.ID),
		zap.Int("slots", len(bookings)),
		zap.Int64("total", total),
	)
	s.metrics.ObserveReservation(metrics.OutcomeCreated)
	return resp, nil
}

// validate turns the request into a slot variant, checks its shape and rejects
// slots that already started in the venue's timezone.
func (s *bookingService) validate(req *request.CreateBookingRequest) (ValidatedSlots, error) {
	date, err := ParseDate(req.Date)
	if err != nil {
		return ValidatedSlots{}, err
	}

	var slotReq SlotRequest = SingleDay{Date: date, StartTimes: req.StartTimes}
	if req.IsOvernight() {
		next, err := ParseDate(req.NextDate)
		if err != nil {
			return ValidatedSlots{}, err
		}
		slotReq = OvernightSpan{
			First: SingleDay{Date: date, StartTimes: req.StartTimes},
			Next:  SingleDay{Date: next, StartTimes: req.NextDateStartTimes},
		}
	}

	slots, err := ValidateSlots(slotReq)
	if err != nil {
		return ValidatedSlots{}, err
	}

	first := slots.First()
	start := time.Date(first.Date.Year(), first.Date.Month(), first.Date.Day(), first.Hour, 0, 0, 0, s.loc)
	if start.Before(s.clock.Now()) {
		return ValidatedSlots{}, slotErr(ReasonPastSlot, "%s %s has already started", first.Date.Format(time.DateOnly), first.Start)
	}

	return slots, nil
}

func (s *bookingService) slotFailure(err error) error {
	var slotErr *SlotError
	if errors.As(err, &slotErr) {
		s.log.Warn("Slot request rejected", zap.String("reason", string(slotErr.Reason)), zap.String("detail", slotErr.Detail))
		return apperror.Validation(slotErr.Error(), map[string]any{
			"reason": string(slotErr.Reason),
			"detail": slotErr.Detail,
		})
	}
	return apperror.Internal("Failed to validate slots", err)
}

func (s *bookingService) findConflicts(ctx context.Context, slots ValidatedSlots) ([]*entity.Booking, error) {
	var conflicts []*entity.Booking
	for _, day := range slots.Days {
		starts := make([]string, len(day))
		for i, slot := range day {
			starts[i] = slot.Start
		}
		found, err := s.repo.Booking.FindConfirmedBySlots(ctx, day[0].Date, starts)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, found...)
	}
	return conflicts, nil
}

func slotConflict(conflicts []*entity.Booking) *apperror.AppError {
	taken := make([]map[string]string, len(conflicts))
	for i, b := range conflicts {
		taken[i] = map[string]string{
			"date":       b.Date.Format(time.DateOnly),
			"start_time": b.StartTime,
		}
	}
	return apperror.Conflict("One or more time slots are no longer available", map[string]any{
		"reason": string(ReasonSlotConflict),
		"slots":  taken,
	})
}

func describeSlots(slots ValidatedSlots) string {
	first, last := slots.First(), slots.Last()
	n := slots.Count()
	hours := "hours"
	if n == 1 {
		hours = "hour"
	}

	if len(slots.Days) == 1 {
		return fmt.Sprintf("%s %s-%s (%d %s)", first.Date.Format(time.DateOnly), first.Start, last.End(), n, hours)
	}
	return fmt.Sprintf("%s %s - %s %s (%d %s)",
		first.Date.Format(time.DateOnly), first.Start, last.Date.Format(time.DateOnly), last.End(), n, hours)
}

func (s *bookingService) GetAvailability(ctx context.Context, req *request.AvailabilityRequest) (*response.AvailabilityResponse, error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, apperror.Validation("Invalid date", map[string]any{"fields": errs})
	}

	date, err := ParseDate(req.Date)
	if err != nil {
		return nil, s.slotFailure(err)
	}

	confirmed, err := s.repo.Booking.FindConfirmedByDate(ctx, date)
	if err != nil {
		return nil, apperror.Internal("Failed to load availability", err)
	}

	taken := make(map[string]bool, len(confirmed))
	for _, b := range confirmed {
		taken[b.StartTime] = true
	}

	now := s.clock.Now()
	resp := &response.AvailabilityResponse{
		Date:     req.Date,
		Currency: strings.ToUpper(s.config.Pricing.Currency),
		Slots:    make([]response.SlotAvailability, 0, 24),
	}
	for hour := 0; hour < 24; hour++ {
		slot := Slot{Date: date, Start: fmt.Sprintf("%02d:00", hour), Hour: hour}
		price := s.pricing.Quote(date, hour)
		started := time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, s.loc).Before(now)
		resp.Slots = append(resp.Slots, response.SlotAvailability{
			StartTime: slot.Start,
			EndTime:   slot.End(),
			Price:     price.Amount,
			IsPeak:    price.IsPeak,
			Available: !taken[slot.Start] && !started,
		})
	}

	return resp, nil
}

func (s *bookingService) GetUserBookings(ctx context.Context, userID uuid.UUID, req request.PaginatedRequest) (*response.PaginatedResponse[response.BookingResponse], error) {
	bookings, err := s.repo.Booking.FindByUserID(ctx, userID, req.Limit(), req.Offset())
	if err != nil {
		return nil, apperror.Internal("Failed to get bookings", err)
	}

	total, err := s.repo.Booking.CountByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.Internal("Failed to count bookings", err)
	}

	data := make([]response.BookingResponse, len(bookings))
	for i, b := range bookings {
		data[i] = response.BookingToResponse(b)
	}

	return response.NewPaginatedResponse(data, req.Page, req.Limit(), total), nil
}

func (s *bookingService) ListBookings(ctx context.Context, req *request.AdminBookingListRequest) (*response.PaginatedResponse[response.AdminBookingResponse], error) {
	if errs := utils.ValidateStruct(req); len(errs) > 0 {
		return nil, apperror.Validation("Invalid filter", map[string]any{"fields": errs})
	}

	filter := repository.BookingFilter{
		Status: entity.BookingStatusConfirmed,
		Limit:  req.Limit(),
		Offset: req.Offset(),
	}
	if req.DateFrom != "" {
		from, err := ParseDate(req.DateFrom)
		if err != nil {
			return nil, s.slotFailure(err)
		}
		filter.DateFrom = &from
	}
	if req.DateTo != "" {
		to, err := ParseDate(req.DateTo)
		if err != nil {
			return nil, s.slotFailure(err)
		}
		filter.DateTo = &to
	}

	bookings, total, err := s.repo.Booking.List(ctx, filter)
	if err != nil {
		return nil, apperror.Internal("Failed to load bookings", err)
	}

	data := make([]response.AdminBookingResponse, len(bookings))
	for i, b := range bookings {
		data[i] = response.AdminBookingToResponse(b)
	}

	return response.NewPaginatedResponse(data, req.Page, req.Limit(), total), nil
}
