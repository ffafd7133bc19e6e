package integration_test

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/metinatakli/booking-service/internal/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
)

const (
	dbName         = "bookings"
	dbUser         = "test_user"
	dbPassword     = "test_password"
	dbImageName    = "postgres:17-alpine"
	cacheImageName = "redis:7"

	testJWTSecret     = "integration-secret"
	testWebhookSecret = "whsec_integration"

	TestUserID      = "user-1"
	TestUserEmail   = "test@example.com"
	TestOtherUserID = "user-2"
	TestAdminID     = "admin-1"

	TestShowtimeID  = 1
	TestMovieID     = 10
	TestMovieTitle  = "Test Movie"
	TestTheaterID   = 20
	TestTheaterName = "Test Theater 1"
	TestSeatPrice   = "250.00"
)

type BaseSuite struct {
	suite.Suite
	app            *TestApp
	dbContainer    *PostgresContainer
	cacheContainer *RedisContainer
}

func (s *BaseSuite) SetupSuite() {
	ctx := context.Background()

	postgresContainer, err := getDbContainer(ctx)
	if err != nil {
		s.T().Fatalf("failed to start container: %s", err)
	}
	s.dbContainer = postgresContainer

	redisContainer, err := getCacheContainer(ctx)
	if err != nil {
		s.T().Fatalf("failed to start container: %s", err)
	}
	s.cacheContainer = redisContainer

	cfg := app.Config{
		Port: 3000,
		Env:  "test",
		DB: app.DBConfig{
			DSN:          postgresContainer.ConnectionString,
			MaxOpenConns: 25,
			MaxIdleTime:  2 * time.Minute,
		},
		Redis: app.RedisConfig{
			URL:          redisContainer.ConnectionString,
			MaxOpenConns: 10,
			MaxIdleConns: 10,
			MaxIdleTime:  2 * time.Minute,
		},
		Simulated: app.SimulatedConfig{
			WebhookSecret: testWebhookSecret,
			RedirectBase:  "http://localhost:3000",
		},
		Booking: app.BookingConfig{
			SeatLockDuration:   10 * time.Minute,
			CancellationCutoff: 2 * time.Hour,
			Currency:           "INR",
		},
		CatalogCacheTTL: time.Minute,
		JWTSecret:       testJWTSecret,
		PaymentProvider: app.ProviderSimulated,
	}

	testApp, err := newTestApp(cfg)
	if err != nil {
		s.T().Fatalf("cannot initialize app: %s", err)
	}

	s.app = testApp
}

// SetupTest starts every test from empty tables, an empty cache and a catalog
// knowing a single showtime a day ahead.
func (s *BaseSuite) SetupTest() {
	ctx := context.Background()

	_, err := s.app.DB.Exec(ctx, "TRUNCATE showtime_seats, bookings RESTART IDENTITY")
	s.Require().NoError(err)
	s.Require().NoError(s.app.Redis.FlushDB(ctx).Err())

	s.app.Clock.Set(time.Now().UTC().Truncate(time.Second))
	s.app.Mailer.Reset()
	s.app.Catalog.Reset()
	s.app.Catalog.AddShowtime(TestShowtimeID, s.app.Clock.Now().Add(24*time.Hour), TestSeatPrice)
}

func (s *BaseSuite) TearDownSuite() {
	if s.app != nil {
		s.app.Close()
	}
	if s.dbContainer != nil {
		if err := testcontainers.TerminateContainer(s.dbContainer.Container.Container); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	}
	if s.cacheContainer != nil {
		if err := testcontainers.TerminateContainer(s.cacheContainer.Container); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	}
}

func (s *BaseSuite) initializeSeats(showtimeID int64, total int) {
	_, err := s.app.Ledger.InitializeSeats(context.Background(), showtimeID, total, 10)
	s.Require().NoError(err)
}

type Scenario struct {
	Name             string
	Method           string
	URL              string
	Body             io.Reader
	Headers          map[string]string
	ExpectedStatus   int
	ExpectedResponse string
	BeforeTestFunc   func(t testing.TB, app *TestApp)
	AfterTestFunc    func(t testing.TB, app *TestApp, res *http.Response)
}

func (s Scenario) Run(t *testing.T, testApp *TestApp) {
	t.Run(s.Name, func(t *testing.T) {
		req, err := prepareRequest(s.Method, s.URL, s.Body, s.Headers)
		require.NoError(t, err)

		if s.BeforeTestFunc != nil {
			s.BeforeTestFunc(t, testApp)
		}

		rec := httptest.NewRecorder()
		testApp.App.Routes().ServeHTTP(rec, req)
		testApp.Coordinator.Wait()

		res := rec.Result()
		defer res.Body.Close()

		assert.Equal(t, s.ExpectedStatus, res.StatusCode)

		if s.ExpectedResponse != "" {
			compareResponse(t, res.Body, s.ExpectedResponse)
		}

		if s.AfterTestFunc != nil {
			s.AfterTestFunc(t, testApp, res)
		}
	})
}
