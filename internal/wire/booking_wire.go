package wire

import (
	"net/http"

	"mahjong-booking/internal/adaptor"
	"mahjong-booking/pkg/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireBooking(
	r chi.Router,
	bookingHandler *adaptor.BookingHandler,
	auth func(http.Handler) http.Handler,
	log *zap.Logger,
) {
	// ==================== PUBLIC ROUTES ====================
	// GET /api/availability?date=2024-01-01 - hourly slots with price and availability
	r.Get("/api/availability", bookingHandler.GetAvailability)

	// ==================== PROTECTED ROUTES (require auth) ====================
	r.Group(func(r chi.Router) {
		r.Use(auth)

		// POST /api/bookings - hold slots and open a checkout session
		r.Post("/api/bookings", bookingHandler.CreateBooking)

		// GET /api/user/bookings - booking history of the signed-in user
		r.Get("/api/user/bookings", bookingHandler.GetUserBookings)
	})

	// ==================== ADMIN ROUTES ====================
	r.Route("/api/admin/bookings", func(r chi.Router) {
		r.Use(auth)
		r.Use(middleware.Admin(log))

		// GET /api/admin/bookings?dateFrom=&dateTo=&page=&limit=
		r.Get("/", bookingHandler.ListBookings)
	})
}
