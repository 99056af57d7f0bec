package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr       string
	PostgresDSN      string
	MongoURI         string
	RedisAddr        string
	RabbitURL        string
	PaystackBaseURL  string
	PaystackSecret   string
	CheckoutCallback string
	ReminderAge      time.Duration
	ReminderInterval time.Duration
	OTLPEndpoint     string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	listen := os.Getenv("LISTEN_ADDR")
	if listen == "" {
		listen = ":8080"
	}

	baseURL := os.Getenv("PAYSTACK_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}

	reminderAge, _ := time.ParseDuration(os.Getenv("REMINDER_AGE"))
	if reminderAge == 0 {
		reminderAge = 2 * time.Hour
	}
	reminderInterval, _ := time.ParseDuration(os.Getenv("REMINDER_INTERVAL"))
	if reminderInterval == 0 {
		reminderInterval = 10 * time.Minute
	}

	return &Config{
		ListenAddr:       listen,
		PostgresDSN:      os.Getenv("PG_DSN"),
		MongoURI:         os.Getenv("MONGO_URI"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RabbitURL:        os.Getenv("RABBIT_URL"),
		PaystackBaseURL:  baseURL,
		PaystackSecret:   os.Getenv("PAYSTACK_SECRET_KEY"),
		CheckoutCallback: os.Getenv("CHECKOUT_CALLBACK_URL"),
		ReminderAge:      reminderAge,
		ReminderInterval: reminderInterval,
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
