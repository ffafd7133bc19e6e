package mocks

import (
	"context"

	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockShowtimeCatalog struct {
	mock.Mock
	domain.ShowtimeCatalog
}

func (m *MockShowtimeCatalog) GetShowtime(ctx context.Context, showtimeID int64) (*domain.Showtime, error) {
	args := m.Called(ctx, showtimeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Showtime), args.Error(1)
}
