package reservation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/metinatakli/booking-service/internal/mocks"
	"github.com/metinatakli/booking-service/internal/repository"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type fakeSweepLock struct {
	acquired bool
	err      error
	released int
}

func (l *fakeSweepLock) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.acquired, l.err
}

func (l *fakeSweepLock) Release(ctx context.Context) error {
	l.released++
	return nil
}

type failingBookingRepo struct {
	*repository.MemoryBookingRepository
	failID int64
}

func (r *failingBookingRepo) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	if id == r.failID {
		return nil, errors.New("connection reset")
	}
	return r.MemoryBookingRepository.GetByID(ctx, id)
}

type ReaperTestSuite struct {
	suite.Suite
	ctx context.Context
	f   *fixture
}

func TestReaperSuite(t *testing.T) {
	suite.Run(t, new(ReaperTestSuite))
}

func (s *ReaperTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.f = newFixture()

	_, err := s.f.ledger.InitializeSeats(s.ctx, testShowtimeID, 60, 10)
	s.Require().NoError(err)

	s.f.catalog.On("GetShowtime", mock.Anything, testShowtimeID).Return(testShowtime(5*time.Hour), nil)
}

func (s *ReaperTestSuite) pendingBooking(user string, seats ...string) *domain.Booking {
	s.f.gateway.On("Initiate", mock.Anything, mock.Anything).
		Return(&domain.PaymentResult{Status: domain.PaymentPending, TransactionID: "pi_" + user}, nil).Once()

	booking, err := s.f.coordinator.CreateBooking(s.ctx, domain.BookingRequest{
		ShowtimeID: testShowtimeID,
		Seats:      seats,
		UserID:     user,
	})
	s.Require().NoError(err)

	return booking
}

func (s *ReaperTestSuite) seat(id string) domain.ShowtimeSeat {
	seat, err := s.f.ledger.GetSeat(s.ctx, testShowtimeID, id)
	s.Require().NoError(err)
	return *seat
}

func (s *ReaperTestSuite) bookingStatus(id int64) domain.BookingStatus {
	b, err := s.f.bookings.GetByID(s.ctx, id)
	s.Require().NoError(err)
	return b.Status
}

func (s *ReaperTestSuite) TestSweepReclaimsExpiredLocksOnly() {
	_, err := s.f.locks.LockSeats(s.ctx, testShowtimeID, []string{"A1"}, "user-1")
	s.Require().NoError(err)

	s.f.clock.Advance(time.Minute + time.Second)

	_, err = s.f.locks.LockSeats(s.ctx, testShowtimeID, []string{"A2"}, "user-2")
	s.Require().NoError(err)

	// A1 expired a second ago, A2 still has a minute left.
	s.f.clock.Advance(DefaultLockDuration - time.Minute)

	res := s.f.reaper.Sweep(s.ctx)

	s.Equal(1, res.SeatsReleased)
	s.Zero(res.Errors)
	s.Equal(domain.SeatAvailable, s.seat("A1").Status)

	a2 := s.seat("A2")
	s.Equal(domain.SeatSelectedTemp, a2.Status)
	s.Equal("user-2", *a2.HolderUserID)
}

func (s *ReaperTestSuite) TestSweepFailsExpiredPendingBookings() {
	booking := s.pendingBooking("user-1", "B1", "B2")

	s.f.clock.Advance(DefaultLockDuration - time.Second)
	res := s.f.reaper.Sweep(s.ctx)
	s.Zero(res.SeatsReleased)
	s.Equal(domain.BookingPendingPayment, s.bookingStatus(booking.ID))

	s.f.clock.Advance(2 * time.Second)
	res = s.f.reaper.Sweep(s.ctx)

	s.Equal(2, res.SeatsReleased)
	s.Equal(1, res.BookingsFailed)
	s.Equal(domain.BookingPaymentFailed, s.bookingStatus(booking.ID))
	s.Equal(domain.SeatAvailable, s.seat("B1").Status)
	s.Equal(domain.SeatAvailable, s.seat("B2").Status)

	res = s.f.reaper.Sweep(s.ctx)
	s.Zero(res.SeatsReleased)
	s.Zero(res.BookingsFailed)
}

func (s *ReaperTestSuite) TestSweepHonoursExpiryBuffer() {
	reaper := NewReaper(s.f.ledger, s.f.locks, s.f.bookings, slog.New(slog.NewTextHandler(io.Discard, nil)),
		s.f.clock, WithExpiryBuffer(2*time.Minute))

	booking := s.pendingBooking("user-1", "C1")

	s.f.clock.Advance(DefaultLockDuration + time.Minute)
	s.Zero(reaper.Sweep(s.ctx).SeatsReleased)

	s.f.clock.Advance(2 * time.Minute)
	s.Equal(1, reaper.Sweep(s.ctx).SeatsReleased)
	s.Equal(domain.BookingPaymentFailed, s.bookingStatus(booking.ID))
}

func (s *ReaperTestSuite) TestSweepIsolatesPerBookingFailures() {
	first := s.pendingBooking("user-1", "D1")
	second := s.pendingBooking("user-2", "D2")

	repo := &failingBookingRepo{MemoryBookingRepository: s.f.bookings, failID: first.ID}
	reaper := NewReaper(s.f.ledger, s.f.locks, repo, slog.New(slog.NewTextHandler(io.Discard, nil)), s.f.clock)

	s.f.clock.Advance(DefaultLockDuration + time.Second)
	res := reaper.Sweep(s.ctx)

	s.Equal(1, res.Errors)
	s.Equal(1, res.BookingsFailed)
	s.Equal(1, res.SeatsReleased)

	s.Equal(domain.BookingPendingPayment, s.bookingStatus(first.ID))
	s.Equal(domain.SeatPendingPayment, s.seat("D1").Status)
	s.Equal(domain.BookingPaymentFailed, s.bookingStatus(second.ID))
	s.Equal(domain.SeatAvailable, s.seat("D2").Status)
}

func (s *ReaperTestSuite) TestSweepLock() {
	tests := []struct {
		name         string
		lock         *fakeSweepLock
		wantSkipped  bool
		wantReleased int
	}{
		{
			name:        "held by another instance",
			lock:        &fakeSweepLock{acquired: false},
			wantSkipped: true,
		},
		{
			name:         "acquired",
			lock:         &fakeSweepLock{acquired: true},
			wantReleased: 1,
		},
		{
			name: "lock backend down",
			lock: &fakeSweepLock{err: errors.New("redis: connection refused")},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()

			reaper := NewReaper(s.f.ledger, s.f.locks, s.f.bookings, slog.New(slog.NewTextHandler(io.Discard, nil)),
				s.f.clock, WithSweepLock(tt.lock))

			_, err := s.f.locks.LockSeats(s.ctx, testShowtimeID, []string{"E1"}, "user-1")
			s.Require().NoError(err)
			s.f.clock.Advance(DefaultLockDuration + time.Second)

			res := reaper.Sweep(s.ctx)

			s.Equal(tt.wantSkipped, res.Skipped)
			s.Equal(tt.wantReleased, tt.lock.released)
			if tt.wantSkipped {
				s.Equal(domain.SeatSelectedTemp, s.seat("E1").Status)
			} else {
				s.Equal(domain.SeatAvailable, s.seat("E1").Status)
			}
		})
	}
}

func (s *ReaperTestSuite) TestSweepMarksPastShowtimes() {
	s.f.gateway.On("Initiate", mock.Anything, mock.Anything).
		Return(&domain.PaymentResult{Status: domain.PaymentSucceeded, TransactionID: "pi_1"}, nil).Once()
	s.f.notifier.On("BookingConfirmed", mock.Anything, mock.Anything).Return(nil)

	booking, err := s.f.coordinator.CreateBooking(s.ctx, domain.BookingRequest{
		ShowtimeID: testShowtimeID,
		Seats:      []string{"F1"},
		UserID:     "user-1",
	})
	s.Require().NoError(err)
	s.f.coordinator.Wait()

	s.Zero(s.f.reaper.Sweep(s.ctx).BookingsPassed)

	s.f.clock.Advance(6 * time.Hour)
	res := s.f.reaper.Sweep(s.ctx)

	s.Equal(int64(1), res.BookingsPassed)
	s.Equal(domain.BookingShowtimePassed, s.bookingStatus(booking.ID))
	s.Equal(domain.SeatBooked, s.seat("F1").Status)
}

func (s *ReaperTestSuite) TestSweepSurvivesLedgerErrors() {
	ledger := &mocks.MockSeatLedger{
		FindExpiredFunc: func(ctx context.Context, status domain.SeatStatus, cutoff time.Time) ([]domain.ShowtimeSeat, error) {
			return nil, domain.ErrConcurrentModification
		},
	}

	reaper := NewReaper(ledger, s.f.locks, s.f.bookings, slog.New(slog.NewTextHandler(io.Discard, nil)), s.f.clock)

	res := reaper.Sweep(s.ctx)

	s.Equal(2, res.Errors)
	s.Zero(res.SeatsReleased)
}

func (s *ReaperTestSuite) TestRunStopsOnCancel() {
	reaper := NewReaper(s.f.ledger, s.f.locks, s.f.bookings, slog.New(slog.NewTextHandler(io.Discard, nil)),
		s.f.clock, WithReaperInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})

	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("reaper did not stop after cancellation")
	}
}
