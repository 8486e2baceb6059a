package usecase

import (
	"context"
	"time"

	"mahjong-booking/internal/data/repository"
	"mahjong-booking/internal/gateway"
	"mahjong-booking/pkg/metrics"
	"mahjong-booking/pkg/utils"

	"go.uber.org/zap"
)

// TxManager runs fn in one store transaction; repositories join it through ctx
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type PaymentGateway interface {
	CreateSession(ctx context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error)
	ParseEvent(payload []byte, signature string) (*gateway.Event, error)
}

type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type Dependencies struct {
	Repo      *repository.Repository
	Tx        TxManager
	Gateway   PaymentGateway
	Publisher EventPublisher
	Pricing   PricingRules
	Clock     utils.Clock
	Metrics   *metrics.Metrics
	Config    *utils.Config
	Log       *zap.Logger
}

type Service struct {
	Auth    AuthService
	User    UserService
	Booking BookingService
	Webhook WebhookService
}

func NewService(deps Dependencies) *Service {
	if deps.Clock == nil {
		deps.Clock = utils.SystemClock()
	}
	if deps.Pricing == nil {
		deps.Pricing = NewPeakPricing(deps.Config.Pricing)
	}

	return &Service{
		Auth:    NewAuthService(deps.Repo, deps.Config, deps.Clock, deps.Log),
		User:    NewUserService(deps.Repo, deps.Log),
		Booking: NewBookingService(deps),
		Webhook: NewWebhookService(deps),
	}
}

// loadLocation falls back to UTC so a bad TIMEZONE value never blocks startup
func loadLocation(name string, log *zap.Logger) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn("Unknown timezone, using UTC", zap.String("timezone", name), zap.Error(err))
		return time.UTC
	}
	return loc
}
