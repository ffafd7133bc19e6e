package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/metinatakli/booking-service/internal/clock"
	"github.com/metinatakli/booking-service/internal/domain"
)

const DefaultLockDuration = 10 * time.Minute

// LockManager drives seats through the hold, payment and booked states on
// top of the ledger's conditional transitions.
type LockManager struct {
	ledger       domain.SeatLedger
	logger       *slog.Logger
	clock        clock.Clock
	lockDuration time.Duration
}

type LockManagerOption func(*LockManager)

// WithLockDuration overrides how long a hold or pending payment keeps a seat.
func WithLockDuration(d time.Duration) LockManagerOption {
	return func(m *LockManager) {
		if d > 0 {
			m.lockDuration = d
		}
	}
}

func NewLockManager(ledger domain.SeatLedger, logger *slog.Logger, clk clock.Clock, opts ...LockManagerOption) *LockManager {
	m := &LockManager{
		ledger:       ledger,
		logger:       logger,
		clock:        clk,
		lockDuration: DefaultLockDuration,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *LockManager) LockDuration() time.Duration {
	return m.lockDuration
}

// LockSeats holds every seat for userID or none of them. Seats are attempted
// in the given order and the first failure releases what this call acquired.
func (m *LockManager) LockSeats(
	ctx context.Context,
	showtimeID int64,
	seatIdentifiers []string,
	userID string) ([]domain.ShowtimeSeat, error) {

	until := m.clock.Now().Add(m.lockDuration)
	locked := make([]domain.ShowtimeSeat, 0, len(seatIdentifiers))

	for _, id := range seatIdentifiers {
		seat, err := m.ledger.TryTransition(ctx, domain.SeatTransition{
			ShowtimeID:     showtimeID,
			SeatIdentifier: id,
			From:           []domain.SeatStatus{domain.SeatAvailable},
			To:             domain.SeatSelectedTemp,
			HolderUserID:   &userID,
			LockedUntil:    &until,
		})
		if err == nil {
			locked = append(locked, *seat)
			continue
		}

		if relErr := m.Release(context.WithoutCancel(ctx), locked, "partial lock rollback"); relErr != nil {
			m.logger.Error("failed to roll back partial seat lock",
				"showtime_id", showtimeID, "user_id", userID, "error", relErr)
		}

		if isSeatConflict(err) || errors.Is(err, domain.ErrSeatNotFound) {
			return nil, &domain.SeatUnavailableError{SeatIdentifier: id, Err: err}
		}

		return nil, fmt.Errorf("lock seat %s: %w", id, err)
	}

	m.logger.Debug("seats locked",
		"showtime_id", showtimeID, "user_id", userID, "seats", seatIdentifiers, "locked_until", until)

	return locked, nil
}

// PromoteToPendingPayment binds held seats to a booking and refreshes their
// expiry. It stops at the first seat that is no longer held by userID and
// returns the seats promoted so far together with ErrSeatLockLost.
func (m *LockManager) PromoteToPendingPayment(
	ctx context.Context,
	seats []domain.ShowtimeSeat,
	bookingID int64,
	userID string) ([]domain.ShowtimeSeat, error) {

	until := m.clock.Now().Add(m.lockDuration)
	promoted := make([]domain.ShowtimeSeat, 0, len(seats))

	for _, s := range seats {
		seat, err := m.ledger.TryTransition(ctx, domain.SeatTransition{
			ShowtimeID:     s.ShowtimeID,
			SeatIdentifier: s.SeatIdentifier,
			From:           []domain.SeatStatus{domain.SeatSelectedTemp},
			ExpectedHolder: &userID,
			To:             domain.SeatPendingPayment,
			HolderUserID:   &userID,
			BookingID:      &bookingID,
			LockedUntil:    &until,
		})
		if err != nil {
			return promoted, fmt.Errorf("%w: seat %s: %w", domain.ErrSeatLockLost, s.SeatIdentifier, err)
		}

		promoted = append(promoted, *seat)
	}

	return promoted, nil
}

// ConfirmAsBooked turns the booking's pending seats into booked seats. A seat
// that is already booked for the same booking counts as confirmed.
func (m *LockManager) ConfirmAsBooked(ctx context.Context, seats []domain.ShowtimeSeat, bookingID int64) error {
	for _, s := range seats {
		_, err := m.ledger.TryTransition(ctx, domain.SeatTransition{
			ShowtimeID:      s.ShowtimeID,
			SeatIdentifier:  s.SeatIdentifier,
			From:            []domain.SeatStatus{domain.SeatPendingPayment},
			ExpectedBooking: &bookingID,
			To:              domain.SeatBooked,
			BookingID:       &bookingID,
		})
		if err == nil {
			continue
		}

		if isSeatConflict(err) {
			current, getErr := m.ledger.GetSeat(ctx, s.ShowtimeID, s.SeatIdentifier)
			if getErr == nil && current.Status == domain.SeatBooked &&
				current.BookingID != nil && *current.BookingID == bookingID {
				continue
			}
		}

		return fmt.Errorf("%w: seat %s: %w", domain.ErrSeatLockLost, s.SeatIdentifier, err)
	}

	return nil
}

// Release returns seats to AVAILABLE when they are still held under the claim
// recorded in each snapshot. Seats that moved on are left alone. Only storage
// failures are reported, wrapped in ErrCompensationFailed.
func (m *LockManager) Release(ctx context.Context, seats []domain.ShowtimeSeat, reason string) error {
	_, err := m.release(ctx, seats, releaseOptions{reason: reason})
	return err
}

// ReleaseExpired is Release restricted to seats whose lock still ends before
// cutoff when re-read. It returns how many seats were released.
func (m *LockManager) ReleaseExpired(ctx context.Context, seats []domain.ShowtimeSeat, cutoff time.Time) (int, error) {
	return m.release(ctx, seats, releaseOptions{reason: "lock expired", expiredBefore: &cutoff})
}

// ReleaseBooking frees every seat bound to bookingID, booked ones included.
func (m *LockManager) ReleaseBooking(ctx context.Context, bookingID int64, reason string) error {
	seats, err := m.ledger.GetSeatsByBooking(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("%w: load seats of booking %d: %w", domain.ErrCompensationFailed, bookingID, err)
	}

	for i := range seats {
		seats[i].BookingID = &bookingID
	}

	_, err = m.release(ctx, seats, releaseOptions{reason: reason, includeBooked: true})
	return err
}

type releaseOptions struct {
	reason        string
	includeBooked bool
	expiredBefore *time.Time
}

func (m *LockManager) release(ctx context.Context, seats []domain.ShowtimeSeat, opts releaseOptions) (int, error) {
	var (
		released int
		errs     []error
	)

	for _, s := range seats {
		ok, err := m.releaseOne(ctx, s, opts)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			released++
		}
	}

	if len(errs) > 0 {
		return released, fmt.Errorf("%w: %w", domain.ErrCompensationFailed, errors.Join(errs...))
	}

	return released, nil
}

func (m *LockManager) releaseOne(ctx context.Context, snapshot domain.ShowtimeSeat, opts releaseOptions) (bool, error) {
	logger := m.logger.With(
		"showtime_id", snapshot.ShowtimeID,
		"seat_id", snapshot.SeatIdentifier,
		"reason", opts.reason,
	)

	current, err := m.ledger.GetSeat(ctx, snapshot.ShowtimeID, snapshot.SeatIdentifier)
	if errors.Is(err, domain.ErrSeatNotFound) {
		logger.Debug("seat no longer exists, nothing to release")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("release seat %s: %w", snapshot.SeatIdentifier, err)
	}

	if !claimHeld(*current, snapshot, opts) {
		logger.Debug("seat moved on, skipping release", "status", current.Status)
		return false, nil
	}

	_, err = m.ledger.TryTransition(ctx, domain.SeatTransition{
		ShowtimeID:      current.ShowtimeID,
		SeatIdentifier:  current.SeatIdentifier,
		From:            []domain.SeatStatus{current.Status},
		ExpectedVersion: &current.Version,
		To:              domain.SeatAvailable,
	})
	if err == nil {
		logger.Info("seat released", "previous_status", current.Status)
		return true, nil
	}

	if isSeatConflict(err) || errors.Is(err, domain.ErrSeatNotFound) {
		logger.Info("seat changed while releasing, skipping", "error", err)
		return false, nil
	}

	return false, fmt.Errorf("release seat %s: %w", snapshot.SeatIdentifier, err)
}

// claimHeld reports whether current still belongs to the claim captured in
// snapshot: the same booking, or for a plain hold the very same lock. A hold
// is identified by its version, so a later hold by the same user is kept.
func claimHeld(current, snapshot domain.ShowtimeSeat, opts releaseOptions) bool {
	switch current.Status {
	case domain.SeatSelectedTemp, domain.SeatPendingPayment:
	case domain.SeatBooked:
		if !opts.includeBooked {
			return false
		}
	default:
		return false
	}

	if opts.expiredBefore != nil &&
		(current.LockedUntil == nil || !current.LockedUntil.Before(*opts.expiredBefore)) {
		return false
	}

	if snapshot.BookingID != nil {
		return current.BookingID != nil && *current.BookingID == *snapshot.BookingID
	}

	return current.BookingID == nil &&
		current.Version == snapshot.Version &&
		snapshot.HolderUserID != nil &&
		current.HolderUserID != nil &&
		*current.HolderUserID == *snapshot.HolderUserID
}

func isSeatConflict(err error) bool {
	return errors.Is(err, domain.ErrSeatStateConflict) || errors.Is(err, domain.ErrConcurrentModification)
}
