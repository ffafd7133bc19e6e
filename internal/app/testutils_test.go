package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/metinatakli/booking-service/api"
	"github.com/metinatakli/booking-service/internal/clock"
	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/metinatakli/booking-service/internal/mocks"
	"github.com/metinatakli/booking-service/internal/repository"
	"github.com/metinatakli/booking-service/internal/reservation"
	"github.com/metinatakli/booking-service/internal/validator"
	"github.com/shopspring/decimal"
)

const (
	testJWTSecret  = "test-secret"
	testUserID     = "user-1"
	testUserEmail  = "user@example.com"
	testShowtimeID = int64(1)
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// testDeps is the booking core of a test application: real in-memory stores
// with a mocked catalog and payment gateway.
type testDeps struct {
	clock    *clock.Manual
	ledger   *repository.MemorySeatLedger
	bookings *repository.MemoryBookingRepository
	catalog  *mocks.MockShowtimeCatalog
	gateway  *mocks.MockPaymentGateway
	notifier *mocks.MockBookingNotifier
}

func newTestApplication(opts ...func(*Application)) (*Application, *testDeps) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps := &testDeps{
		clock:    clock.NewManual(baseTime),
		ledger:   repository.NewMemorySeatLedger(),
		catalog:  new(mocks.MockShowtimeCatalog),
		gateway:  new(mocks.MockPaymentGateway),
		notifier: new(mocks.MockBookingNotifier),
	}
	deps.bookings = repository.NewMemoryBookingRepository(deps.clock)

	locks := reservation.NewLockManager(deps.ledger, logger, deps.clock)
	coordinator := reservation.NewCoordinator(deps.ledger, locks, deps.bookings, deps.catalog, deps.gateway, logger, deps.clock,
		reservation.WithNotifier(deps.notifier))

	cfg := Config{
		Env:             "test",
		JWTSecret:       testJWTSecret,
		PaymentProvider: ProviderSimulated,
	}

	app := NewApp(cfg, logger, nil, nil, validator.NewValidator(), coordinator, deps.gateway, nil)

	for _, opt := range opts {
		opt(app)
	}

	return app, deps
}

func testShowtime(startsIn time.Duration) *domain.Showtime {
	return &domain.Showtime{
		ID:          testShowtimeID,
		MovieID:     10,
		MovieTitle:  "Inception",
		TheaterID:   20,
		TheaterName: "Grand Cinema",
		StartTime:   baseTime.Add(startsIn),
		Price:       decimal.NewFromInt(200),
	}
}

func signToken(t *testing.T, subject, email string, roles ...string) string {
	t.Helper()

	claims := Claims{
		Email: email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatal(err)
	}

	return token
}

func executeRequest(t *testing.T, method, url string, body any) (*httptest.ResponseRecorder, *http.Request) {
	var reader io.Reader = http.NoBody

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(jsonData)
	}

	r := httptest.NewRequest(method, url, reader)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	return w, r
}

func withBearer(r *http.Request, token string) *http.Request {
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func checkErrorResponse(t *testing.T, w *httptest.ResponseRecorder, tt struct {
	wantStatus     int
	wantErrMessage string
}) {
	if tt.wantStatus >= 200 && tt.wantStatus < 300 {
		return
	}

	switch tt.wantStatus {
	case http.StatusUnprocessableEntity:
		var validationResp api.ValidationErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&validationResp); err != nil {
			t.Fatalf("Failed to decode validation error response: %v", err)
		}

		errorSet := make(map[string]bool)
		for _, vErr := range validationResp.ValidationErrors {
			errorSet[vErr.Issue] = true
		}

		if !errorSet[tt.wantErrMessage] {
			t.Errorf("Expected validation error message '%s' not found in response", tt.wantErrMessage)
		}

	default:
		var errorResp api.ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&errorResp); err != nil {
			t.Fatalf("Failed to decode error response: %v", err)
		}

		if tt.wantErrMessage != "" && errorResp.Message != tt.wantErrMessage {
			t.Errorf("Error message = %v, want %v", errorResp.Message, tt.wantErrMessage)
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}
