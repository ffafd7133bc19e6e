package app

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/metinatakli/booking-service/internal/payment"
	"github.com/metinatakli/booking-service/internal/reservation"
)

const (
	ProviderStripe    = "stripe"
	ProviderSimulated = "simulated"
)

const defaultSimulatedWebhookSecret = "whsec_simulated"

type Config struct {
	Port             int
	Env              string
	DB               DBConfig
	Redis            RedisConfig
	SMTP             SMTPConfig
	Stripe           StripeConfig
	Simulated        SimulatedConfig
	Booking          BookingConfig
	OtelCollectorUrl string
	CatalogURL       string
	CatalogCacheTTL  time.Duration
	JWTSecret        string
	AMQPURL          string
	PaymentProvider  string
}

type DBConfig struct {
	DSN            string
	MaxOpenConns   int
	MaxIdleTime    time.Duration
	MigrateOnStart bool
}

type RedisConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PaymentMethod string
	ReturnURL     string
}

type SimulatedConfig struct {
	Mode          string
	WebhookSecret string
	RedirectBase  string
	SuccessRate   float64
	Latency       time.Duration
}

type BookingConfig struct {
	SeatLockDuration   time.Duration
	CancellationCutoff time.Duration
	ReaperInterval     time.Duration
	ReaperBuffer       time.Duration
	Currency           string
}

// ParseConfig reads flags from args. A .env file in the working directory is
// loaded first so every flag default may come from the environment.
func ParseConfig(args []string) (Config, bool, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, false, fmt.Errorf("load .env: %w", err)
	}

	fls := flag.NewFlagSet("booking-service", flag.ContinueOnError)

	fls.IntVar(&cfg.Port, "port", envInt("PORT", 3000), "server port")
	fls.StringVar(&cfg.Env, "env", envString("ENV", "dev"), "Environment (dev|staging|prod)")

	fls.StringVar(&cfg.DB.DSN, "db-dsn", envString("DB_DSN", ""), "PostgreSQL DSN, in-memory stores are used when empty")
	fls.IntVar(&cfg.DB.MaxOpenConns, "db-max-open-conns", 25, "PostgreSQL max open connections")
	fls.DurationVar(&cfg.DB.MaxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max idle time for connections")
	fls.BoolVar(&cfg.DB.MigrateOnStart, "db-migrate", envBool("DB_MIGRATE", false), "Apply embedded migrations on start")

	fls.StringVar(&cfg.Redis.URL, "redis-url", envString("REDIS_URL", ""), "Redis address, caching and the sweep lock are disabled when empty")
	fls.IntVar(&cfg.Redis.MaxOpenConns, "redis-max-open-conns", 25, "Redis max open connections")
	fls.IntVar(&cfg.Redis.MaxIdleConns, "redis-max-idle-conns", 10, "Redis max idle connections")
	fls.DurationVar(&cfg.Redis.MaxIdleTime, "redis-max-idle-time", 2*time.Minute, "Redis max idle time for connections")

	fls.StringVar(&cfg.SMTP.Host, "smtp-host", envString("SMTP_HOST", "sandbox.smtp.mailtrap.io"), "SMTP host")
	fls.IntVar(&cfg.SMTP.Port, "smtp-port", envInt("SMTP_PORT", 2525), "SMTP port")
	fls.StringVar(&cfg.SMTP.Username, "smtp-username", envString("SMTP_USERNAME", ""), "SMTP username")
	fls.StringVar(&cfg.SMTP.Password, "smtp-password", envString("SMTP_PASSWORD", ""), "SMTP password")
	fls.StringVar(&cfg.SMTP.Sender, "smtp-sender", envString("SMTP_SENDER", "CineX <no-reply@cinex.metinatakli.net>"), "SMTP sender")

	fls.StringVar(&cfg.PaymentProvider, "payment-provider", envString("PAYMENT_PROVIDER", ProviderSimulated), "Payment provider (stripe|simulated)")

	fls.StringVar(&cfg.Stripe.SecretKey, "stripe-key", envString("STRIPE_KEY", ""), "Stripe secret key")
	fls.StringVar(&cfg.Stripe.WebhookSecret, "stripe-webhook-secret", envString("STRIPE_WEBHOOK_SECRET", ""), "Stripe webhook secret")
	fls.StringVar(&cfg.Stripe.PaymentMethod, "stripe-payment-method", envString("STRIPE_PAYMENT_METHOD", "pm_card_visa"), "Stripe payment method used to confirm intents")
	fls.StringVar(&cfg.Stripe.ReturnURL, "stripe-return-url", envString("STRIPE_RETURN_URL", "https://example.com/bookings"), "Stripe return URL after customer action")

	fls.StringVar(&cfg.Simulated.Mode, "simulated-mode", envString("SIMULATED_MODE", string(payment.SimulateAsync)), "Simulated gateway mode (succeed|fail|async|random)")
	fls.StringVar(&cfg.Simulated.WebhookSecret, "simulated-webhook-secret", envString("SIMULATED_WEBHOOK_SECRET", defaultSimulatedWebhookSecret), "Simulated gateway webhook secret")
	fls.StringVar(&cfg.Simulated.RedirectBase, "simulated-redirect-base", envString("SIMULATED_REDIRECT_BASE", "http://localhost:3000"), "Base URL of simulated payment pages")
	fls.Float64Var(&cfg.Simulated.SuccessRate, "simulated-success-rate", 0.9, "Success rate of the simulated gateway in random mode")
	fls.DurationVar(&cfg.Simulated.Latency, "simulated-latency", 0, "Artificial latency of the simulated gateway")

	fls.DurationVar(&cfg.Booking.SeatLockDuration, "seat-lock-duration", envDuration("SEAT_LOCK_DURATION", reservation.DefaultLockDuration), "How long a seat hold lasts")
	fls.DurationVar(&cfg.Booking.CancellationCutoff, "cancellation-cutoff", envDuration("CANCELLATION_CUTOFF", reservation.DefaultCancellationCutoff), "Minimum time before the showtime for cancellations")
	fls.DurationVar(&cfg.Booking.ReaperInterval, "reaper-interval", envDuration("REAPER_INTERVAL", reservation.DefaultReaperInterval), "Interval of the expiry reaper")
	fls.DurationVar(&cfg.Booking.ReaperBuffer, "reaper-buffer", envDuration("REAPER_BUFFER", 0), "Grace period after lock expiry before seats are reclaimed")
	fls.StringVar(&cfg.Booking.Currency, "currency", envString("CURRENCY", reservation.DefaultCurrency), "Currency of every booking")

	fls.StringVar(&cfg.OtelCollectorUrl, "otel-collector-url", envString("OTEL_COLLECTOR_URL", ""), "OpenTelemetry collector gRPC endpoint")
	fls.StringVar(&cfg.CatalogURL, "catalog-url", envString("CATALOG_URL", "http://localhost:8080"), "Base URL of the catalog service")
	fls.DurationVar(&cfg.CatalogCacheTTL, "catalog-cache-ttl", envDuration("CATALOG_CACHE_TTL", 5*time.Minute), "TTL of cached showtimes")
	fls.StringVar(&cfg.JWTSecret, "jwt-secret", envString("JWT_SECRET", ""), "HMAC secret of bearer tokens")
	fls.StringVar(&cfg.AMQPURL, "amqp-url", envString("AMQP_URL", ""), "RabbitMQ URL, confirmation events are not published when empty")

	displayVersion := fls.Bool("version", false, "Display version and exit")

	if err := fls.Parse(args); err != nil {
		return cfg, false, err
	}

	if *displayVersion {
		return cfg, true, nil
	}

	return cfg, false, cfg.validate()
}

func (cfg Config) validate() error {
	var errs []error

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("jwt-secret is required"))
	}

	switch cfg.PaymentProvider {
	case ProviderStripe:
		if cfg.Stripe.SecretKey == "" || cfg.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("stripe-key and stripe-webhook-secret are required for the stripe provider"))
		}
	case ProviderSimulated:
		if _, err := payment.ParseSimulatedMode(cfg.Simulated.Mode); err != nil {
			errs = append(errs, err)
		}
		if cfg.Env != "dev" && (cfg.Simulated.WebhookSecret == "" || cfg.Simulated.WebhookSecret == defaultSimulatedWebhookSecret) {
			errs = append(errs, fmt.Errorf("simulated-webhook-secret must be set explicitly in the %s environment", cfg.Env))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider))
	}

	return errors.Join(errs...)
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
