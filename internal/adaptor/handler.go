package adaptor

import (
	"mahjong-booking/internal/usecase"
	"mahjong-booking/pkg/utils"

	"go.uber.org/zap"
)

type Handler struct {
	Auth    *AuthHandler
	User    *UserHandler
	Booking *BookingHandler
	Webhook *WebhookHandler
}

func NewHandler(service *usecase.Service, config *utils.Config, log *zap.Logger) *Handler {
	return &Handler{
		Auth:    NewAuthHandler(service.Auth, log),
		User:    NewUserHandler(service.User, log),
		Booking: NewBookingHandler(service.Booking, log),
		Webhook: NewWebhookHandler(service.Webhook, config.Payment.MaxWebhookBodyKBytes, log),
	}
}
