package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/booking-service/internal/catalog"
	"github.com/metinatakli/booking-service/internal/clock"
	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/metinatakli/booking-service/internal/mailer"
	"github.com/metinatakli/booking-service/internal/notify"
	"github.com/metinatakli/booking-service/internal/payment"
	"github.com/metinatakli/booking-service/internal/repository"
	"github.com/metinatakli/booking-service/internal/reservation"
	appvalidator "github.com/metinatakli/booking-service/internal/validator"
	"github.com/metinatakli/booking-service/internal/vcs"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v82"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const serviceName = "booking-service"

var (
	version = vcs.Version()
)

// ShowtimeCache drops cached catalog entries, e.g. after an admin changed the
// seats of a showtime.
type ShowtimeCache interface {
	Invalidate(ctx context.Context, showtimeID int64) error
}

type Application struct {
	config    Config
	logger    *slog.Logger
	db        *pgxpool.Pool
	redis     redis.UniversalClient
	validator *validator.Validate

	coordinator *reservation.Coordinator
	gateway     domain.PaymentGateway
	cache       ShowtimeCache
}

// NewApp wires an Application. db, redisClient and cache may be nil when the
// service runs without them.
func NewApp(
	cfg Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	redisClient redis.UniversalClient,
	validator *validator.Validate,
	coordinator *reservation.Coordinator,
	gateway domain.PaymentGateway,
	cache ShowtimeCache,
) *Application {
	return &Application{
		config:      cfg,
		logger:      logger,
		db:          db,
		redis:       redisClient,
		validator:   validator,
		coordinator: coordinator,
		gateway:     gateway,
		cache:       cache,
	}
}

func Run() error {
	cfg, displayVersion, err := ParseConfig(os.Args[1:])
	if err != nil {
		return err
	}

	if displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		return nil
	}

	stripe.Key = cfg.Stripe.SecretKey

	textHandler := slog.NewTextHandler(os.Stdout, nil)

	app := &Application{
		config: cfg,
		logger: slog.New(textHandler),
	}

	shutdownTelemetry, err := app.InitTelemetry()
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	if cfg.OtelCollectorUrl != "" {
		app.logger = slog.New(NewMultiHandler(textHandler, otelslog.NewHandler(serviceName)))
	}

	logger := app.logger

	var (
		ledger   domain.SeatLedger
		bookings domain.BookingRepository
		clk      = clock.System()
	)

	if cfg.DB.DSN != "" {
		if cfg.DB.MigrateOnStart {
			if err := RunMigrations(cfg.DB.DSN); err != nil {
				return err
			}
			logger.Info("database migrations applied")
		}

		db, err := NewDatabasePool(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		app.db = db
		ledger = repository.NewPostgresSeatLedger(db)
		bookings = repository.NewPostgresBookingRepository(db)
	} else {
		logger.Warn("no database configured, bookings are kept in memory")

		ledger = repository.NewMemorySeatLedger()
		bookings = repository.NewMemoryBookingRepository(clk)
	}

	catalogClient, err := catalog.NewClient(cfg.CatalogURL)
	if err != nil {
		return err
	}

	var showtimes domain.ShowtimeCatalog = catalogClient

	var reaperOpts = []reservation.ReaperOption{
		reservation.WithReaperInterval(cfg.Booking.ReaperInterval),
		reservation.WithExpiryBuffer(cfg.Booking.ReaperBuffer),
	}

	if cfg.Redis.URL != "" {
		redisClient, err := NewRedisClient(cfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		cached := catalog.NewCachedCatalog(catalogClient, redisClient, cfg.CatalogCacheTTL, logger)

		app.redis = redisClient
		app.cache = cached
		showtimes = cached
		reaperOpts = append(reaperOpts, reservation.WithSweepLock(repository.NewRedisSweepLock(redisClient, "")))
	}

	gateway, err := newPaymentGateway(cfg)
	if err != nil {
		return err
	}

	notifiers := notify.Multi{
		notify.NewMailNotifier(mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Sender)),
	}

	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			return err
		}
		defer publisher.Close()

		notifiers = append(notifiers, publisher)
	}

	locks := reservation.NewLockManager(ledger, logger, clk, reservation.WithLockDuration(cfg.Booking.SeatLockDuration))

	coordinator := reservation.NewCoordinator(ledger, locks, bookings, showtimes, gateway, logger, clk,
		reservation.WithCancellationCutoff(cfg.Booking.CancellationCutoff),
		reservation.WithCurrency(cfg.Booking.Currency),
		reservation.WithNotifier(notifiers),
	)

	reaper := reservation.NewReaper(ledger, locks, bookings, logger, clk, reaperOpts...)

	app.validator = appvalidator.NewValidator()
	app.coordinator = coordinator
	app.gateway = gateway

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reaper.Run(ctx)
	}()

	err = app.run()

	cancel()
	wg.Wait()
	coordinator.Wait()

	return err
}

func newPaymentGateway(cfg Config) (domain.PaymentGateway, error) {
	switch cfg.PaymentProvider {
	case ProviderStripe:
		return payment.NewStripeGateway(cfg.Stripe.WebhookSecret, cfg.Stripe.PaymentMethod, cfg.Stripe.ReturnURL), nil
	case ProviderSimulated:
		mode, err := payment.ParseSimulatedMode(cfg.Simulated.Mode)
		if err != nil {
			return nil, err
		}

		return payment.NewSimulatedGateway(mode, cfg.Simulated.WebhookSecret, cfg.Simulated.RedirectBase,
			payment.WithSuccessRate(cfg.Simulated.SuccessRate),
			payment.WithLatency(cfg.Simulated.Latency),
		), nil
	}

	return nil, fmt.Errorf("unknown payment provider %q", cfg.PaymentProvider)
}

func NewRedisClient(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Redis.URL,
		MaxIdleConns:    cfg.Redis.MaxIdleConns,
		MaxActiveConns:  cfg.Redis.MaxOpenConns,
		ConnMaxIdleTime: cfg.Redis.MaxIdleTime,
	})

	if err := errors.Join(redisotel.InstrumentTracing(rdb), redisotel.InstrumentMetrics(rdb)); err != nil {
		rdb.Close()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := rdb.Ping(ctx).Err()
	if err != nil {
		rdb.Close()
		return nil, err
	}

	return rdb, nil
}

func NewDatabasePool(cfg Config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	config.MaxConnIdleTime = cfg.DB.MaxIdleTime
	config.MaxConns = int32(cfg.DB.MaxOpenConns)
	config.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := otelpgx.RecordStats(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("record pool stats: %w", err)
	}

	return db, nil
}

func (app *Application) run() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", app.config.Port),
		Handler:      app.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelDebug),
	}

	shutdownError := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		app.logger.Info("shutting down server", "signal", s.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		shutdownError <- srv.Shutdown(ctx)
	}()

	app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env, "payment_provider", app.config.PaymentProvider)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdownError
	if err != nil {
		return err
	}

	app.logger.Info("stopped server", "addr", srv.Addr)

	return nil
}
