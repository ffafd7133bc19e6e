package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPendingPayment BookingStatus = "PENDING_PAYMENT"
	BookingConfirmed      BookingStatus = "CONFIRMED"
	BookingPaymentFailed  BookingStatus = "PAYMENT_FAILED"
	BookingCancelled      BookingStatus = "CANCELLED"
	BookingShowtimePassed BookingStatus = "SHOWTIME_PASSED"
)

func (s BookingStatus) Terminal() bool {
	return s != BookingPendingPayment && s != BookingConfirmed
}

type Booking struct {
	ID         int64
	UserID     string
	UserEmail  string
	ShowtimeID int64

	// Display fields copied from the catalog when the booking is created.
	MovieID       int64
	TheaterID     int64
	MovieTitle    string
	TheaterName   string
	ShowtimeStart time.Time

	SelectedSeats []string
	TotalPrice    decimal.Decimal
	Currency      string
	Status        BookingStatus

	PaymentTransactionID *string
	PaymentRedirectURL   *string

	BookingTime time.Time
	UpdatedAt   time.Time
}

type BookingRequest struct {
	ShowtimeID int64
	Seats      []string
	UserID     string
	UserEmail  string
}

type BookingRepository interface {
	Create(ctx context.Context, booking *Booking) error
	GetByID(ctx context.Context, id int64) (*Booking, error)
	GetByIDAndUserID(ctx context.Context, id int64, userID string) (*Booking, error)
	ListByUserID(ctx context.Context, userID string, pagination Pagination) ([]Booking, *Metadata, error)
	// UpdateStatus moves the booking to status only if its current status is one
	// of from. It returns ErrEditConflict when the booking exists in another state.
	UpdateStatus(ctx context.Context, id int64, from []BookingStatus, to BookingStatus) (*Booking, error)
	SetPaymentDetails(ctx context.Context, id int64, transactionID string, redirectURL *string) error
	MarkShowtimePassed(ctx context.Context, before time.Time) (int64, error)
}
