package integration_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/booking-service/internal/app"
	"github.com/metinatakli/booking-service/internal/catalog"
	"github.com/metinatakli/booking-service/internal/clock"
	"github.com/metinatakli/booking-service/internal/mailer"
	"github.com/metinatakli/booking-service/internal/notify"
	"github.com/metinatakli/booking-service/internal/payment"
	"github.com/metinatakli/booking-service/internal/repository"
	"github.com/metinatakli/booking-service/internal/reservation"
	appvalidator "github.com/metinatakli/booking-service/internal/validator"
	"github.com/redis/go-redis/v9"
)

type TestApp struct {
	App         *app.Application
	DB          *pgxpool.Pool
	Redis       *redis.Client
	Mailer      *mailer.MockMailer
	Clock       *clock.Manual
	Gateway     *payment.SimulatedGateway
	Catalog     *FakeCatalog
	Showtimes   *catalog.CachedCatalog
	Ledger      *repository.PostgresSeatLedger
	Bookings    *repository.PostgresBookingRepository
	Locks       *reservation.LockManager
	Coordinator *reservation.Coordinator
	Reaper      *reservation.Reaper
}

func newTestApp(cfg app.Config) (*TestApp, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	validator := appvalidator.NewValidator()
	mailer := mailer.NewMockMailer()
	clk := clock.NewManual(time.Now().UTC().Truncate(time.Second))

	db, err := app.NewDatabasePool(cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := app.NewRedisClient(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	fakeCatalog := NewFakeCatalog()

	catalogClient, err := catalog.NewClient(fakeCatalog.URL())
	if err != nil {
		db.Close()
		redisClient.Close()
		return nil, err
	}

	showtimes := catalog.NewCachedCatalog(catalogClient, redisClient, cfg.CatalogCacheTTL, logger)

	ledger := repository.NewPostgresSeatLedger(db)
	bookings := repository.NewPostgresBookingRepository(db)

	gateway := payment.NewSimulatedGateway(payment.SimulateAsync, cfg.Simulated.WebhookSecret, cfg.Simulated.RedirectBase)

	locks := reservation.NewLockManager(ledger, logger, clk, reservation.WithLockDuration(cfg.Booking.SeatLockDuration))
	coordinator := reservation.NewCoordinator(ledger, locks, bookings, showtimes, gateway, logger, clk,
		reservation.WithCancellationCutoff(cfg.Booking.CancellationCutoff),
		reservation.WithCurrency(cfg.Booking.Currency),
		reservation.WithNotifier(notify.NewMailNotifier(mailer)),
	)
	reaper := reservation.NewReaper(ledger, locks, bookings, logger, clk,
		reservation.WithSweepLock(repository.NewRedisSweepLock(redisClient, "")))

	application := app.NewApp(
		cfg,
		logger,
		db,
		redisClient,
		validator,
		coordinator,
		gateway,
		showtimes,
	)

	return &TestApp{
		App:         application,
		DB:          db,
		Redis:       redisClient,
		Mailer:      mailer,
		Clock:       clk,
		Gateway:     gateway,
		Catalog:     fakeCatalog,
		Showtimes:   showtimes,
		Ledger:      ledger,
		Bookings:    bookings,
		Locks:       locks,
		Coordinator: coordinator,
		Reaper:      reaper,
	}, nil
}

func (a *TestApp) Close() {
	a.Coordinator.Wait()
	a.Catalog.Close()
	a.Redis.Close()
	a.DB.Close()
}

type catalogShowtime struct {
	ID        int64  `json:"id"`
	MovieID   int64  `json:"movieId"`
	TheaterID int64  `json:"theaterId"`
	Showtime  string `json:"showtime"`
	Price     string `json:"price"`
	Movie     struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	} `json:"movie"`
	Theater struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"theater"`
}

// FakeCatalog serves showtimes the way the catalog service does and counts
// the lookups it answered.
type FakeCatalog struct {
	server *httptest.Server
	hits   atomic.Int64

	mu        sync.Mutex
	showtimes map[int64]catalogShowtime
}

func NewFakeCatalog() *FakeCatalog {
	c := &FakeCatalog{showtimes: make(map[int64]catalogShowtime)}
	c.server = httptest.NewServer(http.HandlerFunc(c.serve))
	return c
}

func (c *FakeCatalog) URL() string { return c.server.URL }

func (c *FakeCatalog) Close() { c.server.Close() }

func (c *FakeCatalog) Hits() int64 { return c.hits.Load() }

func (c *FakeCatalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.showtimes = make(map[int64]catalogShowtime)
	c.hits.Store(0)
}

func (c *FakeCatalog) AddShowtime(id int64, start time.Time, price string) {
	s := catalogShowtime{
		ID:        id,
		MovieID:   TestMovieID,
		TheaterID: TestTheaterID,
		Showtime:  start.Format(time.RFC3339),
		Price:     price,
	}
	s.Movie.ID = TestMovieID
	s.Movie.Title = TestMovieTitle
	s.Theater.ID = TestTheaterID
	s.Theater.Name = TestTheaterName

	c.mu.Lock()
	defer c.mu.Unlock()

	c.showtimes[id] = s
}

func (c *FakeCatalog) serve(w http.ResponseWriter, r *http.Request) {
	idStr, ok := strings.CutPrefix(r.URL.Path, "/api/v1/showtimes/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if !ok || err != nil {
		http.NotFound(w, r)
		return
	}

	c.hits.Add(1)

	c.mu.Lock()
	s, found := c.showtimes[id]
	c.mu.Unlock()

	if !found {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
