// main.go
package main

import (
	"flag"
	"log"

	"mahjong-booking/cmd"
	"mahjong-booking/internal/data/repository"
	"mahjong-booking/internal/gateway"
	"mahjong-booking/internal/usecase"
	"mahjong-booking/internal/wire"
	"mahjong-booking/pkg/database"
	"mahjong-booking/pkg/metrics"
	"mahjong-booking/pkg/mq"
	"mahjong-booking/pkg/utils"

	"go.uber.org/zap"
)

type publisher interface {
	usecase.EventPublisher
	Close() error
}

func main() {
	configPath := flag.String("config", ".env", "path to the .env config file")
	flag.Parse()

	// Load config
	config, err := utils.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App.LogPath, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.String("timezone", config.App.Timezone),
		zap.Bool("debug", config.App.Debug),
	)

	if config.Payment.SecretKey == "" || config.Payment.WebhookSecret == "" {
		logger.Fatal("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required")
	}

	// Connect to database
	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	// Broker is optional
	var events publisher = mq.NopPublisher{}
	if config.Broker.URL != "" {
		p, err := mq.NewPublisher(config.Broker.URL, config.Broker.Exchange)
		if err != nil {
			logger.Fatal("Failed to connect to broker", zap.Error(err))
		}
		events = p
		logger.Info("Broker connected", zap.String("exchange", config.Broker.Exchange))
	} else {
		logger.Warn("AMQP_URL not set, booking events will not be published")
	}
	defer events.Close()

	var m *metrics.Metrics
	if config.Metrics.Enabled {
		m = metrics.New("mahjong")
	}

	app := wire.Wiring(usecase.Dependencies{
		Repo:      repository.NewRepository(db, logger),
		Tx:        database.NewTxManager(db),
		Gateway:   gateway.NewStripe(config.Payment, logger),
		Publisher: events,
		Clock:     utils.SystemClock(),
		Metrics:   m,
		Config:    config,
		Log:       logger,
	})

	if err := cmd.APIServer(app.Router, config.App.Port, logger); err != nil {
		logger.Error("Server stopped", zap.Error(err))
		return
	}
	logger.Info("Server stopped")
}
