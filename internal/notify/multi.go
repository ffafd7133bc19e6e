package notify

import (
	"context"
	"errors"

	"github.com/metinatakli/booking-service/internal/domain"
)

// Multi runs every notifier and joins their errors. A failing notifier does
// not stop the others.
type Multi []domain.BookingNotifier

func (m Multi) BookingConfirmed(ctx context.Context, b domain.Booking) error {
	var errs []error
	for _, n := range m {
		if err := n.BookingConfirmed(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
