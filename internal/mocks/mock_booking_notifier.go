package mocks

import (
	"context"

	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockBookingNotifier struct {
	mock.Mock
	domain.BookingNotifier
}

func (m *MockBookingNotifier) BookingConfirmed(ctx context.Context, booking domain.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}
