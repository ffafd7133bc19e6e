package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/metinatakli/booking-service/internal/clock"
	"github.com/metinatakli/booking-service/internal/domain"
)

type MemoryBookingRepository struct {
	mu       sync.Mutex
	nextID   int64
	bookings map[int64]*domain.Booking
	clock    clock.Clock
}

func NewMemoryBookingRepository(clk clock.Clock) *MemoryBookingRepository {
	if clk == nil {
		clk = clock.System()
	}

	return &MemoryBookingRepository{
		bookings: make(map[int64]*domain.Booking),
		clock:    clk,
	}
}

func (m *MemoryBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	booking.ID = m.nextID
	booking.BookingTime = m.clock.Now()
	booking.UpdatedAt = booking.BookingTime

	m.bookings[booking.ID] = cloneBooking(booking)

	return nil
}

func (m *MemoryBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	return cloneBooking(b), nil
}

func (m *MemoryBookingRepository) GetByIDAndUserID(ctx context.Context, id int64, userID string) (*domain.Booking, error) {
	b, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if b.UserID != userID {
		return nil, domain.ErrRecordNotFound
	}

	return b, nil
}

func (m *MemoryBookingRepository) ListByUserID(
	ctx context.Context,
	userID string,
	pagination domain.Pagination) ([]domain.Booking, *domain.Metadata, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]domain.Booking, 0)
	for _, b := range m.bookings {
		if b.UserID == userID {
			all = append(all, *cloneBooking(b))
		}
	}

	slices.SortFunc(all, func(a, b domain.Booking) int {
		if c := b.BookingTime.Compare(a.BookingTime); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})

	start := min(pagination.Offset(), len(all))
	end := min(start+pagination.Limit(), len(all))

	return all[start:end], domain.NewMetadata(len(all), pagination.Page, pagination.PageSize), nil
}

func (m *MemoryBookingRepository) UpdateStatus(
	ctx context.Context,
	id int64,
	from []domain.BookingStatus,
	to domain.BookingStatus) (*domain.Booking, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	if !slices.Contains(from, b.Status) {
		return nil, domain.ErrEditConflict
	}

	b.Status = to
	b.UpdatedAt = m.clock.Now()

	return cloneBooking(b), nil
}

func (m *MemoryBookingRepository) SetPaymentDetails(ctx context.Context, id int64, transactionID string, redirectURL *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return domain.ErrRecordNotFound
	}

	b.PaymentTransactionID = &transactionID
	b.PaymentRedirectURL = redirectURL
	b.UpdatedAt = m.clock.Now()

	return nil
}

func (m *MemoryBookingRepository) MarkShowtimePassed(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, b := range m.bookings {
		if b.Status == domain.BookingConfirmed && b.ShowtimeStart.Before(before) {
			b.Status = domain.BookingShowtimePassed
			b.UpdatedAt = m.clock.Now()
			n++
		}
	}

	return n, nil
}

func cloneBooking(b *domain.Booking) *domain.Booking {
	c := *b
	c.SelectedSeats = slices.Clone(b.SelectedSeats)

	return &c
}
