package wire

import (
	"net/http"

	"mahjong-booking/internal/adaptor"
	"mahjong-booking/internal/data/repository"
	"mahjong-booking/internal/usecase"
	"mahjong-booking/pkg/metrics"
	"mahjong-booking/pkg/middleware"
	"mahjong-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// App holds the assembled router
type App struct {
	Router *chi.Mux
}

// Wiring builds services, handlers and routes from the external collaborators
func Wiring(deps usecase.Dependencies) *App {
	service := usecase.NewService(deps)
	handler := adaptor.NewHandler(service, deps.Config, deps.Log)

	router := setupRouter(handler, deps.Repo, deps.Metrics, deps.Config, deps.Log)

	return &App{
		Router: router,
	}
}

func setupRouter(
	handler *adaptor.Handler,
	repo *repository.Repository,
	m *metrics.Metrics,
	config *utils.Config,
	logger *zap.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS(config.App.PublicBaseURL))
	if config.Metrics.Enabled {
		r.Use(middleware.Metrics(m))
	}

	auth := middleware.AuthSession(repo.Session, repo.User, logger)

	wireAuth(r, handler.Auth, auth)
	wireUser(r, handler.User, auth)
	wireBooking(r, handler.Booking, auth, logger)
	wireWebhook(r, handler.Webhook)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.ResponseNotFound(w, "Route not found")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if config.Metrics.Enabled {
		path := config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, m.Handler())
	}

	return r
}
