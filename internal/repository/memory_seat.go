package repository

import (
	"context"
	"sync"
	"time"

	"github.com/metinatakli/booking-service/internal/domain"
)

type seatKey struct {
	showtimeID     int64
	seatIdentifier string
}

// MemorySeatLedger keeps seats in process memory. A single mutex serialises
// every check-and-set, which gives the same per-seat atomicity as the
// Postgres ledger for single-instance deployments and tests.
type MemorySeatLedger struct {
	mu     sync.Mutex
	nextID int64
	seats  map[seatKey]*domain.ShowtimeSeat
}

func NewMemorySeatLedger() *MemorySeatLedger {
	return &MemorySeatLedger{
		seats: make(map[seatKey]*domain.ShowtimeSeat),
	}
}

func (m *MemorySeatLedger) InitializeSeats(ctx context.Context, showtimeID int64, totalSeats, seatsPerRow int) (int, error) {
	identifiers, err := domain.SeatLayout(totalSeats, seatsPerRow)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteLocked(showtimeID)

	for _, id := range identifiers {
		m.nextID++
		m.seats[seatKey{showtimeID, id}] = &domain.ShowtimeSeat{
			ID:             m.nextID,
			ShowtimeID:     showtimeID,
			SeatIdentifier: id,
			Status:         domain.SeatAvailable,
		}
	}

	return len(identifiers), nil
}

func (m *MemorySeatLedger) DeleteSeats(ctx context.Context, showtimeID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.deleteLocked(showtimeID), nil
}

func (m *MemorySeatLedger) deleteLocked(showtimeID int64) int {
	deleted := 0
	for k := range m.seats {
		if k.showtimeID == showtimeID {
			delete(m.seats, k)
			deleted++
		}
	}

	return deleted
}

func (m *MemorySeatLedger) GetSeats(ctx context.Context, showtimeID int64) ([]domain.ShowtimeSeat, error) {
	return m.collect(func(s *domain.ShowtimeSeat) bool {
		return s.ShowtimeID == showtimeID
	}), nil
}

func (m *MemorySeatLedger) GetSeat(ctx context.Context, showtimeID int64, seatIdentifier string) (*domain.ShowtimeSeat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seat, ok := m.seats[seatKey{showtimeID, seatIdentifier}]
	if !ok {
		return nil, domain.ErrSeatNotFound
	}

	c := *seat
	return &c, nil
}

func (m *MemorySeatLedger) GetSeatsByBooking(ctx context.Context, bookingID int64) ([]domain.ShowtimeSeat, error) {
	return m.collect(func(s *domain.ShowtimeSeat) bool {
		return s.BookingID != nil && *s.BookingID == bookingID
	}), nil
}

func (m *MemorySeatLedger) FindExpired(ctx context.Context, status domain.SeatStatus, cutoff time.Time) ([]domain.ShowtimeSeat, error) {
	return m.collect(func(s *domain.ShowtimeSeat) bool {
		return s.Status == status && s.LockedUntil != nil && s.LockedUntil.Before(cutoff)
	}), nil
}

func (m *MemorySeatLedger) TryTransition(ctx context.Context, t domain.SeatTransition) (*domain.ShowtimeSeat, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seat, ok := m.seats[seatKey{t.ShowtimeID, t.SeatIdentifier}]
	if !ok {
		return nil, domain.ErrSeatNotFound
	}

	if err := t.Check(*seat); err != nil {
		return nil, err
	}

	next := t.Apply(*seat)
	*seat = next

	return &next, nil
}

func (m *MemorySeatLedger) collect(match func(*domain.ShowtimeSeat) bool) []domain.ShowtimeSeat {
	m.mu.Lock()
	defer m.mu.Unlock()

	seats := make([]domain.ShowtimeSeat, 0)
	for _, s := range m.seats {
		if match(s) {
			seats = append(seats, *s)
		}
	}

	domain.SortSeats(seats)

	return seats
}
