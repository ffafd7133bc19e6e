package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRecordNotFound         = errors.New("record not found")
	ErrShowtimeNotFound       = fmt.Errorf("showtime %w", ErrRecordNotFound)
	ErrBookingNotFound        = fmt.Errorf("booking %w", ErrRecordNotFound)
	ErrEditConflict           = errors.New("edit conflict")
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrShowtimePassed         = fmt.Errorf("%w: showtime has already started", ErrInvalidArgument)
	ErrSeatNotFound           = errors.New("seat not found")
	ErrSeatStateConflict      = errors.New("seat is not in the expected state")
	ErrConcurrentModification = errors.New("seat was modified concurrently")
	ErrSeatUnavailable        = errors.New("seat is not available")
	ErrSeatLockLost           = errors.New("seat lock is no longer held by this booking attempt")
	ErrDependencyUnavailable  = errors.New("dependency unavailable")
	ErrPaymentDeclined        = errors.New("payment declined")
	ErrCompensationFailed     = errors.New("compensation failed")
	ErrCancellationNotAllowed = errors.New("booking cannot be cancelled")
	ErrRefundFailed           = errors.New("refund failed")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
)

// SeatUnavailableError reports the first seat that could not be locked. It
// matches ErrSeatUnavailable and the underlying ledger error.
type SeatUnavailableError struct {
	SeatIdentifier string
	Err            error
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seat %s is not available", e.SeatIdentifier)
}

func (e *SeatUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSeatUnavailable}
	}

	return []error{ErrSeatUnavailable, e.Err}
}
