package adaptor

import (
	"encoding/json"
	"net/http"

	"mahjong-booking/internal/dto/request"
	"mahjong-booking/internal/usecase"
	"mahjong-booking/pkg/utils"

	"go.uber.org/zap"
)

// default page size of the admin listing
const adminDefaultLimit = 20

type BookingHandler struct {
	service usecase.BookingService
	log     *zap.Logger
}

func NewBookingHandler(service usecase.BookingService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log.With(zap.String("handler", "booking")),
	}
}

// CreateBooking handles POST /api/bookings (protected)
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	var req request.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	checkout, err := h.service.CreateReservation(r.Context(), userID, &req)
	if err != nil {
		utils.ResponseError(w, err)
		return
	}

	utils.ResponseCreated(w, "Checkout session created", checkout)
}

// GetAvailability handles GET /api/availability?date=2024-01-01 (public)
func (h *BookingHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	req := &request.AvailabilityRequest{Date: r.URL.Query().Get("date")}

	availability, err := h.service.GetAvailability(r.Context(), req)
	if err != nil {
		utils.ResponseError(w, err)
		return
	}

	utils.ResponseSuccess(w, "success", availability)
}

// GetUserBookings handles GET /api/user/bookings (protected)
func (h *BookingHandler) GetUserBookings(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
		return
	}

	query := r.URL.Query()
	req := request.NewPaginatedRequest(query.Get("page"), query.Get("per_page"))

	bookings, err := h.service.GetUserBookings(r.Context(), userID, req)
	if err != nil {
		utils.ResponseError(w, err)
		return
	}

	utils.ResponseSuccess(w, "success", bookings)
}

// ==================== ADMIN METHODS ====================

// ListBookings handles GET /api/admin/bookings?dateFrom=&dateTo=&page=&limit= (admin only)
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req := &request.AdminBookingListRequest{
		DateFrom: query.Get("dateFrom"),
		DateTo:   query.Get("dateTo"),
		PaginatedRequest: request.PaginatedRequest{
			Page:    utils.ParseInt(query.Get("page"), 1),
			PerPage: utils.ParseInt(query.Get("limit"), adminDefaultLimit),
		},
	}

	bookings, err := h.service.ListBookings(r.Context(), req)
	if err != nil {
		utils.ResponseError(w, err)
		return
	}

	utils.ResponseSuccess(w, "success", bookings)
}
