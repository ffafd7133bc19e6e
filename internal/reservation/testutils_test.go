package reservation

import (
	"io"
	"log/slog"
	"time"

	"github.com/metinatakli/booking-service/internal/clock"
	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/metinatakli/booking-service/internal/mocks"
	"github.com/metinatakli/booking-service/internal/repository"
	"github.com/shopspring/decimal"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const testShowtimeID int64 = 1

type fixture struct {
	clock       *clock.Manual
	ledger      *repository.MemorySeatLedger
	bookings    *repository.MemoryBookingRepository
	locks       *LockManager
	catalog     *mocks.MockShowtimeCatalog
	gateway     *mocks.MockPaymentGateway
	notifier    *mocks.MockBookingNotifier
	coordinator *Coordinator
	reaper      *Reaper
}

func newFixture(reaperOpts ...ReaperOption) *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		clock:    clock.NewManual(baseTime),
		ledger:   repository.NewMemorySeatLedger(),
		catalog:  new(mocks.MockShowtimeCatalog),
		gateway:  new(mocks.MockPaymentGateway),
		notifier: new(mocks.MockBookingNotifier),
	}

	f.bookings = repository.NewMemoryBookingRepository(f.clock)
	f.locks = NewLockManager(f.ledger, logger, f.clock)
	f.coordinator = NewCoordinator(f.ledger, f.locks, f.bookings, f.catalog, f.gateway, logger, f.clock,
		WithNotifier(f.notifier))
	f.reaper = NewReaper(f.ledger, f.locks, f.bookings, logger, f.clock, reaperOpts...)

	return f
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
