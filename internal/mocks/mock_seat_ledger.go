package mocks

import (
	"context"
	"time"

	"github.com/metinatakli/booking-service/internal/domain"
)

// MockSeatLedger delegates to the configured funcs. Calls to methods whose
// func is nil panic, which fails the test that made them.
type MockSeatLedger struct {
	domain.SeatLedger

	InitializeSeatsFunc   func(ctx context.Context, showtimeID int64, totalSeats, seatsPerRow int) (int, error)
	DeleteSeatsFunc       func(ctx context.Context, showtimeID int64) (int, error)
	GetSeatsFunc          func(ctx context.Context, showtimeID int64) ([]domain.ShowtimeSeat, error)
	GetSeatsByBookingFunc func(ctx context.Context, bookingID int64) ([]domain.ShowtimeSeat, error)
	FindExpiredFunc       func(ctx context.Context, status domain.SeatStatus, cutoff time.Time) ([]domain.ShowtimeSeat, error)
}

func (m *MockSeatLedger) InitializeSeats(ctx context.Context, showtimeID int64, totalSeats, seatsPerRow int) (int, error) {
	return m.InitializeSeatsFunc(ctx, showtimeID, totalSeats, seatsPerRow)
}

func (m *MockSeatLedger) DeleteSeats(ctx context.Context, showtimeID int64) (int, error) {
	return m.DeleteSeatsFunc(ctx, showtimeID)
}

func (m *MockSeatLedger) GetSeats(ctx context.Context, showtimeID int64) ([]domain.ShowtimeSeat, error) {
	return m.GetSeatsFunc(ctx, showtimeID)
}

func (m *MockSeatLedger) GetSeatsByBooking(ctx context.Context, bookingID int64) ([]domain.ShowtimeSeat, error) {
	return m.GetSeatsByBookingFunc(ctx, bookingID)
}

func (m *MockSeatLedger) FindExpired(ctx context.Context, status domain.SeatStatus, cutoff time.Time) ([]domain.ShowtimeSeat, error) {
	return m.FindExpiredFunc(ctx, status, cutoff)
}
