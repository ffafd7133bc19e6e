package domain

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSeatsPerRow = 10
	MaxSeatRows        = 26
)

type SeatStatus string

const (
	SeatAvailable      SeatStatus = "AVAILABLE"
	SeatSelectedTemp   SeatStatus = "SELECTED_TEMP"
	SeatPendingPayment SeatStatus = "PENDING_PAYMENT"
	SeatBooked         SeatStatus = "BOOKED"
	SeatBlocked        SeatStatus = "BLOCKED"
)

func (s SeatStatus) Valid() bool {
	switch s {
	case SeatAvailable, SeatSelectedTemp, SeatPendingPayment, SeatBooked, SeatBlocked:
		return true
	}

	return false
}

type ShowtimeSeat struct {
	ID             int64
	ShowtimeID     int64
	SeatIdentifier string
	Status         SeatStatus
	HolderUserID   *string
	BookingID      *int64
	LockedUntil    *time.Time
	Version        int64
}

// SeatTransition is a conditional state change of a single seat. The ledger
// applies it only if the stored seat satisfies every expectation.
type SeatTransition struct {
	ShowtimeID     int64
	SeatIdentifier string

	From            []SeatStatus
	ExpectedHolder  *string
	ExpectedBooking *int64
	ExpectedVersion *int64

	To           SeatStatus
	HolderUserID *string
	BookingID    *int64
	LockedUntil  *time.Time
}

// Validate checks that the target fields fit the target status.
func (t SeatTransition) Validate() error {
	if len(t.From) == 0 || !t.To.Valid() {
		return fmt.Errorf("%w: seat transition needs source and valid target status", ErrInvalidArgument)
	}

	var ok bool
	switch t.To {
	case SeatAvailable, SeatBlocked:
		ok = t.HolderUserID == nil && t.BookingID == nil && t.LockedUntil == nil
	case SeatSelectedTemp:
		ok = t.HolderUserID != nil && t.BookingID == nil && t.LockedUntil != nil
	case SeatPendingPayment:
		ok = t.BookingID != nil && t.LockedUntil != nil
	case SeatBooked:
		ok = t.BookingID != nil && t.HolderUserID == nil && t.LockedUntil == nil
	}

	if !ok {
		return fmt.Errorf("%w: fields do not match seat status %s", ErrInvalidArgument, t.To)
	}

	return nil
}

// Check reports whether seat satisfies the transition's expectations.
func (t SeatTransition) Check(seat ShowtimeSeat) error {
	if !slices.Contains(t.From, seat.Status) {
		return fmt.Errorf("%w: seat %s is %s", ErrSeatStateConflict, seat.SeatIdentifier, seat.Status)
	}

	if t.ExpectedHolder != nil && (seat.HolderUserID == nil || *seat.HolderUserID != *t.ExpectedHolder) {
		return fmt.Errorf("%w: seat %s is held by another user", ErrSeatStateConflict, seat.SeatIdentifier)
	}

	if t.ExpectedBooking != nil && (seat.BookingID == nil || *seat.BookingID != *t.ExpectedBooking) {
		return fmt.Errorf("%w: seat %s belongs to another booking", ErrSeatStateConflict, seat.SeatIdentifier)
	}

	if t.ExpectedVersion != nil && seat.Version != *t.ExpectedVersion {
		return fmt.Errorf("%w: seat %s version %d, expected %d",
			ErrConcurrentModification, seat.SeatIdentifier, seat.Version, *t.ExpectedVersion)
	}

	return nil
}

// Apply returns the seat after the transition. The version is bumped.
func (t SeatTransition) Apply(seat ShowtimeSeat) ShowtimeSeat {
	seat.Status = t.To
	seat.HolderUserID = clonePtr(t.HolderUserID)
	seat.BookingID = clonePtr(t.BookingID)
	seat.LockedUntil = clonePtr(t.LockedUntil)
	seat.Version++

	return seat
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}

	c := *v
	return &c
}

type SeatLedger interface {
	InitializeSeats(ctx context.Context, showtimeID int64, totalSeats, seatsPerRow int) (int, error)
	DeleteSeats(ctx context.Context, showtimeID int64) (int, error)
	GetSeats(ctx context.Context, showtimeID int64) ([]ShowtimeSeat, error)
	GetSeat(ctx context.Context, showtimeID int64, seatIdentifier string) (*ShowtimeSeat, error)
	GetSeatsByBooking(ctx context.Context, bookingID int64) ([]ShowtimeSeat, error)
	TryTransition(ctx context.Context, t SeatTransition) (*ShowtimeSeat, error)
	FindExpired(ctx context.Context, status SeatStatus, cutoff time.Time) ([]ShowtimeSeat, error)
}

// SeatLayout names seats row-major starting at A1. A seatsPerRow of zero
// selects DefaultSeatsPerRow. Rows are capped at MaxSeatRows so at most
// MaxSeatRows*seatsPerRow identifiers are produced.
func SeatLayout(totalSeats, seatsPerRow int) ([]string, error) {
	if seatsPerRow == 0 {
		seatsPerRow = DefaultSeatsPerRow
	}

	if totalSeats <= 0 || seatsPerRow < 0 {
		return nil, fmt.Errorf("%w: total seats must be positive and seats per row non-negative", ErrInvalidArgument)
	}

	totalSeats = min(totalSeats, MaxSeatRows*seatsPerRow)

	identifiers := make([]string, 0, totalSeats)
	for i := range totalSeats {
		row := rune('A' + i/seatsPerRow)
		identifiers = append(identifiers, fmt.Sprintf("%c%d", row, i%seatsPerRow+1))
	}

	return identifiers, nil
}

// SortSeats orders seats by row letters, then by seat number compared
// numerically, so A2 comes before A10.
func SortSeats(seats []ShowtimeSeat) {
	slices.SortStableFunc(seats, func(a, b ShowtimeSeat) int {
		return CompareSeatIdentifiers(a.SeatIdentifier, b.SeatIdentifier)
	})
}

func CompareSeatIdentifiers(a, b string) int {
	rowA, numA, okA := splitSeatIdentifier(a)
	rowB, numB, okB := splitSeatIdentifier(b)

	switch {
	case okA && okB:
		if c := strings.Compare(rowA, rowB); c != 0 {
			return c
		}
		return numA - numB
	case okA:
		return -1
	case okB:
		return 1
	}

	return strings.Compare(a, b)
}

func splitSeatIdentifier(id string) (string, int, bool) {
	i := strings.IndexFunc(id, func(r rune) bool { return r >= '0' && r <= '9' })
	if i <= 0 {
		return "", 0, false
	}

	n, err := strconv.Atoi(id[i:])
	if err != nil {
		return "", 0, false
	}

	return id[:i], n, true
}
