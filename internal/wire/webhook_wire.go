package wire

import (
	"mahjong-booking/internal/adaptor"

	"github.com/go-chi/chi/v5"
)

// wireWebhook is public; requests are authenticated by their gateway signature
func wireWebhook(r chi.Router, webhookHandler *adaptor.WebhookHandler) {
	r.Post("/api/webhook", webhookHandler.HandleStripe)
}
