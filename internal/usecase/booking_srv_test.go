package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"mahjong-booking/internal/data/entity"
	"mahjong-booking/internal/dto/request"
	"mahjong-booking/pkg/apperror"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultPricing() PricingRules {
	return PeakPricing{PeakPrice: 15000, OffPeakPrice: 10000, PeakStartHour: 18}
}

func appErr(t *testing.T, err error) *apperror.AppError {
	t.Helper()
	var ae *apperror.AppError
	require.True(t, errors.As(err, &ae), "expected *AppError, got %v", err)
	return ae
}

func TestCreateReservation_SingleDay(t *testing.T) {
	h := newHarness(t, defaultPricing())
	user := h.store.addUser("player@example.com")

	resp, err := h.svc.Booking.CreateReservation(context.Background(), user.ID, &request.CreateBookingRequest{
		Date:       "2024-01-01",
		StartTimes: []string{"18:00", "17:00"},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.stripe.test/cs_test_1", resp.RedirectURL)
	assert.Len(t, resp.BookingIDs, 2)
	assert.Equal(t, int64(25000), resp.TotalAmount)

	rows := h.store.bookingsWhere(func(*entity.Booking) bool { return true })
	require.Len(t, rows, 2)
	assert.Equal(t, "17:00", rows[0].StartTime)
	assert.Equal(t, "18:00", rows[0].EndTime)
	assert.Equal(t, int64(10000), rows[0].Amount)
	assert.False(t, rows[0].IsPeak)
	assert.Equal(t, "18:00", rows[1].StartTime)
	assert.Equal(t, int64(15000), rows[1].Amount)
	assert.True(t, rows[1].IsPeak)
	for _, b := range rows {
		assert.Equal(t, entity.BookingStatusPending, b.Status)
		assert.Equal(t, user.ID, b.UserID)
	}

	req := h.gateway.lastRequest()
	assert.Equal(t, int64(25000), req.Amount)
	assert.Equal(t, "hkd", req.Currency)
	assert.Equal(t, "2024-01-01 17:00-19:00 (2 hours)", req.Description)
	assert.Equal(t, "player@example.com", req.CustomerEmail)
	assert.Equal(t, "https://mahjong.test/booking-success?session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)
	assert.Equal(t, "https://mahjong.test/book?cancelled=true", req.CancelURL)
	assert.Equal(t, user.ID, req.Metadata.UserID)
	assert.Equal(t, int64(25000), req.Metadata.Price)
	assert.ElementsMatch(t, []uuid.UUID{rows[0].ID, rows[1].ID}, req.Metadata.BookingIDs)

	expected := `
# HELP test_reservations_total Reservation attempts by outcome.
# TYPE test_reservations_total counter
test_reservations_total{outcome="created"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "test_reservations_total"))
}

func TestCreateReservation_OvernightSpan(t *testing.T) {
	h := newHarness(t, defaultPricing())
	user := h.store.addUser("night@example.com")

	resp, err := h.svc.Booking.CreateReservation(context.Background(), user.ID, &request.CreateBookingRequest{
		Date:               "2024-01-05",
		StartTimes:         []string{"22:00", "23:00"},
		NextDate:           "2024-01-06",
		NextDateStartTimes: []string{"00:00", "01:00"},
	})
	require.NoError(t, err)
	assert.Len(t, resp.BookingIDs, 4)

	rows := h.store.bookingsWhere(func(*entity.Booking) bool { return true })
	require.Len(t, rows, 4)
	assert.Equal(t, "00:00", rows[1].EndTime, "the 23:00 slot ends at midnight")
	assert.Equal(t, mustDate(t, "2024-01-06"), rows[2].Date)

	assert.Equal(t, "2024-01-05 22:00 - 2024-01-06 02:00 (4 hours)", h.gateway.lastRequest().Description)
}

func TestCreateReservation_ValidationReasons(t *testing.T) {
	h := newHarness(t, defaultPricing())
	user := h.store.addUser("v@example.com")

	tests := []struct {
		name   string
		req    request.CreateBookingRequest
		reason SlotReason
	}{
		{name: "non consecutive", req: request.CreateBookingRequest{Date: "2024-01-02", StartTimes: []string{"10:00", "12:00"}}, reason: ReasonNonConsecutiveSlots},
		{name: "empty", req: request.CreateBookingRequest{Date: "2024-01-02"}, reason: ReasonEmptySlots},
		{name: "bad date", req: request.CreateBookingRequest{Date: "2024-13-01", StartTimes: []string{"10:00"}}, reason: ReasonInvalidDate},
		{name: "past slot", req: request.CreateBookingRequest{Date: "2023-12-31", StartTimes: []string{"19:00"}}, reason: ReasonPastSlot},
		{name: "cross midnight start", req: request.CreateBookingRequest{Date: "2024-01-01", StartTimes: []string{"22:00"}, NextDate: "2024-01-02", NextDateStartTimes: []string{"00:00"}}, reason: ReasonInvalidCrossMidnightStart},
		{name: "span date", req: request.CreateBookingRequest{Date: "2024-01-01", StartTimes: []string{"23:00"}, NextDate: "2024-01-03", NextDateStartTimes: []string{"00:00"}}, reason: ReasonInvalidSpanDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := h.svc.Booking.CreateReservation(context.Background(), user.ID, &req)
			ae := appErr(t, err)
			assert.Equal(t, http.StatusBadRequest, ae.StatusCode())
			assert.Equal(t, apperror.CodeValidation, ae.Code)
			assert.Equal(t, string(tt.reason), ae.Details["reason"])
		})
	}

	assert.Empty(t, h.store.bookingsWhere(func(*entity.Booking) bool { return true }))
	assert.Empty(t, h.gateway.requests)
}

func TestCreateReservation_LaterSlotTodayIsAccepted(t *testing.T) {
	h := newHarness(t, defaultPricing())
	user := h.store.addUser("late@example.com")

	// clock is 20:00 on 2023-12-31 in Hong Kong
	_, err := h.svc.Booking.CreateReservation(context.Background(), user.ID, &request.CreateBookingRequest{
		Date:       "2023-12-31",
		StartTimes: []string{"21:00"},
	})
	require.NoError(t, err)
}

func TestCreateReservation_ConflictWithConfirmed(t *testing.T) {
	h := newHarness(t, defaultPricing())
	owner := h.store.addUser("owner@example.com")
	other := h.store.addUser("other@example.com")

	h.store.addBooking(owner.ID, "2024-01-02", "11:00", entity.BookingStatusConfirmed)

	_, err := h.svc.Booking.CreateReservation(context.Background(), other.ID, &request.CreateBookingRequest{
		Date:       "2024-01-02",
		StartTimes: []string{"10:00", "11:00", "12:00"},
	})
	ae := appErr(t, err)
	assert.Equal(t, http.StatusConflict, ae.StatusCode())
	assert.Equal(t, string(ReasonSlotConflict), ae.Details["reason"])
	assert.Equal(t, []map[string]string{{"date": "2024-01-02", "start_time": "11:00"}}, ae.Details["slots"])

	pending := h.store.bookingsWhere(func(b *entity.Booking) bool { return b.Status == entity.BookingStatusPending })
	assert.Empty(t, pending, "no partial acceptance")
	assert.Empty(t, h.gateway.requests)
}

func TestCreateReservation_RowFailureRollsBackBatch(t *testing.T) {
	h := newHarness(t, defaultPricing())
	user := h.store.addUser("atomic@example.com")
	h.store.failCreateAt = 3

	_, err := h.svc.Booking.CreateReservation(context.Background(), user.ID, &request.CreateBookingRequest{
		Date:       "2024-01-02",
		StartTimes: []string{"10:00", "11:00", "12:00", "13:00"},
	})
	ae := appErr(t, err)
	assert.Equal(t, http.StatusInternalServerError, ae.StatusCode())

	assert.Empty(t, h.store.bookingsWhere(func(*entity.Booking) bool { return true }))
	assert.Empty(t, h.gateway.requests, "no session opened for a failed batch")
}

func TestCreateReservation_GatewayFailureLeavesNoOrphans(t *testing.T) {
	h := newHarness(t, defaultPricing())
	user := h.store.addUser("gw@example.com")
	h.gateway.createErr = errors.New("stripe: 503")

	_, err := h.svc.Booking.CreateReservation(context.Background(), user.ID, &request.CreateBookingRequest{
		Date:       "2024-01-02",
		StartTimes: []string{"10:00", "11:00"},
	})
	ae := appErr(t, err)
	assert.Equal(t, http.StatusInternalServerError, ae.StatusCode())
	assert.Empty(t, h.store.bookingsWhere(func(*entity.Booking) bool { return true }))
}

func TestCreateReservation_UnknownUser(t *testing.T) {
	h := newHarness(t, defaultPricing())

	_, err := h.svc.Booking.CreateReservation(context.Background(), uuid.New(), &request.CreateBookingRequest{
		Date:       "2024-01-02",
		StartTimes: []string{"10:00"},
	})
	assert.Equal(t, http.StatusUnauthorized, appErr(t, err).StatusCode())
}

func TestCreateReservation_PricingSnapshotIsStable(t *testing.T) {
	pricing := &mutablePricing{price: SlotPrice{Amount: 10000}}
	h := newHarness(t, pricing)
	user := h.store.addUser("snap@example.com")

	_, err := h.svc.Booking.CreateReservation(context.Background(), user.ID, &request.CreateBookingRequest{
		Date:       "2024-01-02",
		StartTimes: []string{"10:00"},
	})
	require.NoError(t, err)

	pricing.set(SlotPrice{Amount: 99000, IsPeak: true})

	rows := h.store.bookingsWhere(func(*entity.Booking) bool { return true })
	require.Len(t, rows, 1)
	assert.Equal(t, int64(10000), rows[0].Amount)
	assert.False(t, rows[0].IsPeak)

	page, err := h.svc.Booking.GetUserBookings(context.Background(), user.ID, request.NewPaginatedRequest("", ""))
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, int64(10000), page.Data[0].Amount)
	assert.False(t, page.Data[0].IsPeak)
}

func TestGetAvailability(t *testing.T) {
	h := newHarness(t, defaultPricing())
	user := h.store.addUser("a@example.com")
	h.store.addBooking(user.ID, "2024-01-02", "19:00", entity.BookingStatusConfirmed)
	h.store.addBooking(user.ID, "2024-01-02", "20:00", entity.BookingStatusPending)

	resp, err := h.svc.Booking.GetAvailability(context.Background(), &request.AvailabilityRequest{Date: "2024-01-02"})
	require.NoError(t, err)
	require.Len(t, resp.Slots, 24)
	assert.Equal(t, "HKD", resp.Currency)

	assert.True(t, resp.Slots[10].Available)
	assert.Equal(t, int64(10000), resp.Slots[10].Price)
	assert.False(t, resp.Slots[19].Available, "confirmed slot is taken")
	assert.True(t, resp.Slots[19].IsPeak)
	assert.True(t, resp.Slots[20].Available, "pending rows do not block")
	assert.Equal(t, "00:00", resp.Slots[23].EndTime)

	_, err = h.svc.Booking.GetAvailability(context.Background(), &request.AvailabilityRequest{Date: "tomorrow"})
	assert.Equal(t, http.StatusBadRequest, appErr(t, err).StatusCode())
}

func TestListBookings_ConfirmedOnlyWithCustomer(t *testing.T) {
	h := newHarness(t, defaultPricing())
	user := h.store.addUser("list@example.com")
	h.store.addBooking(user.ID, "2024-01-02", "10:00", entity.BookingStatusConfirmed)
	h.store.addBooking(user.ID, "2024-01-03", "10:00", entity.BookingStatusConfirmed)
	h.store.addBooking(user.ID, "2024-01-03", "11:00", entity.BookingStatusPending)
	h.store.addBooking(user.ID, "2024-01-09", "10:00", entity.BookingStatusConfirmed)

	req := &request.AdminBookingListRequest{
		DateFrom:         "2024-01-01",
		DateTo:           "2024-01-05",
		PaginatedRequest: request.NewPaginatedRequest("1", "20"),
	}
	page, err := h.svc.Booking.ListBookings(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(2), page.Pagination.Total)
	require.Len(t, page.Data, 2)
	for _, b := range page.Data {
		assert.Equal(t, entity.BookingStatusConfirmed, b.Status)
		assert.Equal(t, "list@example.com", b.CustomerEmail)
	}

	_, err = h.svc.Booking.ListBookings(context.Background(), &request.AdminBookingListRequest{
		DateFrom:         "01-01-2024",
		PaginatedRequest: request.NewPaginatedRequest("", ""),
	})
	assert.Equal(t, http.StatusBadRequest, appErr(t, err).StatusCode())
}
