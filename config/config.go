// Package config reads the service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPAddr         string `long:"http-addr" env:"HTTP_ADDR" default:":8080"`
	PostgresURL      string `long:"postgres-url" env:"POSTGRES_URL" required:"true"`
	RedisAddr        string `long:"redis-addr" env:"REDIS_ADDR" required:"true"`
	NotificationsURL string `long:"notifications-url" env:"NOTIFICATIONS_URL" required:"true"`
	JaegerEndpoint   string `long:"jaeger-endpoint" env:"JAEGER_ENDPOINT"`
	LogLevel         string `long:"log-level" env:"LOG_LEVEL" default:"info"`

	JWTSecret            string `long:"jwt-secret" env:"JWT_SECRET" required:"true"`
	PaymentWebhookAPIKey string `long:"payment-webhook-api-key" env:"PAYMENT_WEBHOOK_API_KEY"`

	ReservationTTL     time.Duration `long:"reservation-ttl" env:"RESERVATION_TTL" default:"15m"`
	SweepInterval      time.Duration `long:"sweep-interval" env:"SWEEP_INTERVAL" default:"60s"`
	MaxSeatsPerBooking int           `long:"max-seats-per-booking" env:"MAX_SEATS_PER_BOOKING" default:"10"`
	PaymentTimeout     time.Duration `long:"payment-timeout" env:"PAYMENT_TIMEOUT" default:"15m"`
	TransactionTimeout time.Duration `long:"transaction-timeout" env:"TRANSACTION_TIMEOUT" default:"20s"`

	JobMaxAttempts   int           `long:"job-max-attempts" env:"JOB_MAX_ATTEMPTS" default:"3"`
	JobPollInterval  time.Duration `long:"job-poll-interval" env:"JOB_POLL_INTERVAL" default:"1s"`
	RecoveryInterval time.Duration `long:"recovery-interval" env:"RECOVERY_INTERVAL" default:"5m"`

	PaymentAmountTolerance int64  `long:"payment-amount-tolerance" env:"PAYMENT_AMOUNT_TOLERANCE" default:"1000"`
	BankAccount            string `long:"bank-account" env:"BANK_ACCOUNT"`
	BankCode               string `long:"bank-code" env:"BANK_CODE"`
	QRTemplate             string `long:"qr-template" env:"QR_TEMPLATE"`
}

// Load reads an optional .env file and then the environment and args. Values
// already set in the environment win over the .env file.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("could not load .env: %w", err)
	}

	var cfg Config
	if _, err := flags.NewParser(&cfg, flags.Default).ParseArgs(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	required := map[string]string{
		"POSTGRES_URL":      c.PostgresURL,
		"REDIS_ADDR":        c.RedisAddr,
		"NOTIFICATIONS_URL": c.NotificationsURL,
		"JWT_SECRET":        c.JWTSecret,
	}
	for name, v := range required {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}

	positive := map[string]time.Duration{
		"RESERVATION_TTL":     c.ReservationTTL,
		"SWEEP_INTERVAL":      c.SweepInterval,
		"PAYMENT_TIMEOUT":     c.PaymentTimeout,
		"TRANSACTION_TIMEOUT": c.TransactionTimeout,
		"JOB_POLL_INTERVAL":   c.JobPollInterval,
		"RECOVERY_INTERVAL":   c.RecoveryInterval,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.MaxSeatsPerBooking <= 0 {
		errs = append(errs, errors.New("MAX_SEATS_PER_BOOKING must be positive"))
	}
	if c.JobMaxAttempts <= 0 {
		errs = append(errs, errors.New("JOB_MAX_ATTEMPTS must be positive"))
	}
	if c.PaymentAmountTolerance < 0 {
		errs = append(errs, errors.New("PAYMENT_AMOUNT_TOLERANCE must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	return errors.Join(errs...)
}

func (c Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func (c Config) AmountTolerance() decimal.Decimal {
	return decimal.NewFromInt(c.PaymentAmountTolerance)
}
