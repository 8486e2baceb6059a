package wire

import (
	"net/http"

	"mahjong-booking/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

// wireUser configures the signed-in user's own profile routes
func wireUser(r chi.Router, userHandler *adaptor.UserHandler, auth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Get("/api/user/me", userHandler.GetProfile)
		r.Get("/api/user/transactions", userHandler.GetTransactions) // ?page=1&per_page=10
	})
}
