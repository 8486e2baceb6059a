package utils

import (
	"errors"
	"io/fs"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Session  SessionConfig
	Pricing  PricingConfig
	Payment  PaymentConfig
	Broker   BrokerConfig
	Metrics  MetricsConfig
}

type AppConfig struct {
	Name          string
	Port          string
	Debug         bool
	LogPath       string
	PublicBaseURL string
	Timezone      string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	MaxConns int32
}

type SessionConfig struct {
	ExpiryHours int
}

// PricingConfig amounts are in minor currency units
type PricingConfig struct {
	PeakPrice     int64
	OffPeakPrice  int64
	PeakStartHour int
	Currency      string
}

type PaymentConfig struct {
	SecretKey            string
	WebhookSecret        string
	ProductName          string
	SessionTTLMinutes    int
	MaxWebhookBodyKBytes int64
}

type BrokerConfig struct {
	URL      string
	Exchange string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// LoadConfig reads the .env style file at path; a missing file is not an error,
// the process environment always wins.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")

	v.SetDefault("APP_NAME", "mahjong-booking")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_PATH", "logs/")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:3000")
	v.SetDefault("TIMEZONE", "Asia/Hong_Kong")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("SESSION_EXPIRY_HOURS", 24)
	v.SetDefault("PRICE_PEAK", 15000)
	v.SetDefault("PRICE_OFF_PEAK", 10000)
	v.SetDefault("PEAK_START_HOUR", 18)
	v.SetDefault("CURRENCY", "hkd")
	v.SetDefault("PAYMENT_PRODUCT_NAME", "Mahjong Party Room booking")
	v.SetDefault("PAYMENT_SESSION_TTL_MINUTES", 30)
	v.SetDefault("WEBHOOK_MAX_BODY_KB", 64)
	v.SetDefault("AMQP_EXCHANGE", "mahjong.bookings")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_PATH", "/metrics")

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:          v.GetString("APP_NAME"),
			Port:          v.GetString("PORT"),
			Debug:         v.GetBool("DEBUG"),
			LogPath:       v.GetString("LOG_PATH"),
			PublicBaseURL: v.GetString("PUBLIC_BASE_URL"),
			Timezone:      v.GetString("TIMEZONE"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASS"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
		},
		Session: SessionConfig{
			ExpiryHours: v.GetInt("SESSION_EXPIRY_HOURS"),
		},
		Pricing: PricingConfig{
			PeakPrice:     v.GetInt64("PRICE_PEAK"),
			OffPeakPrice:  v.GetInt64("PRICE_OFF_PEAK"),
			PeakStartHour: v.GetInt("PEAK_START_HOUR"),
			Currency:      v.GetString("CURRENCY"),
		},
		Payment: PaymentConfig{
			SecretKey:            v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret:        v.GetString("STRIPE_WEBHOOK_SECRET"),
			ProductName:          v.GetString("PAYMENT_PRODUCT_NAME"),
			SessionTTLMinutes:    v.GetInt("PAYMENT_SESSION_TTL_MINUTES"),
			MaxWebhookBodyKBytes: v.GetInt64("WEBHOOK_MAX_BODY_KB"),
		},
		Broker: BrokerConfig{
			URL:      v.GetString("AMQP_URL"),
			Exchange: v.GetString("AMQP_EXCHANGE"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("METRICS_ENABLED"),
			Path:    v.GetString("METRICS_PATH"),
		},
	}

	return config, nil
}
