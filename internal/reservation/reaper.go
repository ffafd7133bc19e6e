package reservation

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/metinatakli/booking-service/internal/clock"
	"github.com/metinatakli/booking-service/internal/domain"
)

const DefaultReaperInterval = time.Minute

// SweepLocker keeps concurrent replicas from sweeping at the same time.
type SweepLocker interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)
	Release(ctx context.Context) error
}

type SweepResult struct {
	Skipped        bool
	SeatsReleased  int
	BookingsFailed int
	BookingsPassed int64
	Errors         int
}

// Reaper reclaims seats whose hold or payment window has expired.
type Reaper struct {
	ledger    domain.SeatLedger
	locks     *LockManager
	bookings  domain.BookingRepository
	logger    *slog.Logger
	clock     clock.Clock
	interval  time.Duration
	buffer    time.Duration
	sweepLock SweepLocker
	metrics   *metrics
}

type ReaperOption func(*Reaper)

func WithReaperInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithExpiryBuffer delays reclamation until a lock has been expired for d.
func WithExpiryBuffer(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d >= 0 {
			r.buffer = d
		}
	}
}

func WithSweepLock(l SweepLocker) ReaperOption {
	return func(r *Reaper) {
		r.sweepLock = l
	}
}

func NewReaper(
	ledger domain.SeatLedger,
	locks *LockManager,
	bookings domain.BookingRepository,
	logger *slog.Logger,
	clk clock.Clock,
	opts ...ReaperOption) *Reaper {

	r := &Reaper{
		ledger:   ledger,
		locks:    locks,
		bookings: bookings,
		logger:   logger,
		clock:    clk,
		interval: DefaultReaperInterval,
		metrics:  newMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("expiry reaper started", "interval", r.interval, "buffer", r.buffer)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("expiry reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep makes a single pass. Failures are logged per item and never stop the
// pass.
func (r *Reaper) Sweep(ctx context.Context) SweepResult {
	var res SweepResult

	if r.sweepLock != nil {
		acquired, err := r.sweepLock.TryAcquire(ctx, r.interval)
		switch {
		case err != nil:
			r.logger.Warn("sweep lock unavailable, sweeping without it", "error", err)
		case !acquired:
			r.logger.Debug("another instance is sweeping, skipping")
			res.Skipped = true
			return res
		default:
			defer func() {
				if err := r.sweepLock.Release(context.WithoutCancel(ctx)); err != nil {
					r.logger.Warn("failed to release sweep lock", "error", err)
				}
			}()
		}
	}

	now := r.clock.Now()
	cutoff := now.Add(-r.buffer)

	r.reapHolds(ctx, cutoff, &res)
	r.reapPendingPayments(ctx, cutoff, &res)
	r.markShowtimesPassed(ctx, now, &res)

	if res.SeatsReleased > 0 {
		r.metrics.seatsReaped.Add(ctx, int64(res.SeatsReleased))
	}

	if res.SeatsReleased > 0 || res.BookingsFailed > 0 || res.BookingsPassed > 0 || res.Errors > 0 {
		r.logger.Info("expiry sweep finished",
			"seats_released", res.SeatsReleased,
			"bookings_failed", res.BookingsFailed,
			"bookings_passed", res.BookingsPassed,
			"errors", res.Errors)
	}

	return res
}

func (r *Reaper) reapHolds(ctx context.Context, cutoff time.Time, res *SweepResult) {
	seats, err := r.ledger.FindExpired(ctx, domain.SeatSelectedTemp, cutoff)
	if err != nil {
		r.logger.Error("failed to find expired seat holds", "error", err)
		res.Errors++
		return
	}

	for _, seat := range seats {
		n, err := r.locks.ReleaseExpired(ctx, []domain.ShowtimeSeat{seat}, cutoff)
		res.SeatsReleased += n
		if err != nil {
			r.logger.Error("failed to release expired hold",
				"showtime_id", seat.ShowtimeID, "seat_id", seat.SeatIdentifier, "error", err)
			res.Errors++
		}
	}
}

func (r *Reaper) reapPendingPayments(ctx context.Context, cutoff time.Time, res *SweepResult) {
	seats, err := r.ledger.FindExpired(ctx, domain.SeatPendingPayment, cutoff)
	if err != nil {
		r.logger.Error("failed to find expired pending payments", "error", err)
		res.Errors++
		return
	}

	byBooking := make(map[int64][]domain.ShowtimeSeat)
	var orphans []domain.ShowtimeSeat

	for _, seat := range seats {
		if seat.BookingID == nil {
			orphans = append(orphans, seat)
			continue
		}
		byBooking[*seat.BookingID] = append(byBooking[*seat.BookingID], seat)
	}

	ids := make([]int64, 0, len(byBooking))
	for id := range byBooking {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		r.reapBooking(ctx, id, byBooking[id], cutoff, res)
	}

	if len(orphans) > 0 {
		n, err := r.locks.ReleaseExpired(ctx, orphans, cutoff)
		res.SeatsReleased += n
		if err != nil {
			r.logger.Error("failed to release pending seats without booking", "error", err)
			res.Errors++
		}
	}
}

func (r *Reaper) reapBooking(ctx context.Context, bookingID int64, seats []domain.ShowtimeSeat, cutoff time.Time, res *SweepResult) {
	logger := r.logger.With("booking_id", bookingID)

	booking, err := r.bookings.GetByID(ctx, bookingID)
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		logger.Warn("expired seats reference a missing booking")
	case err != nil:
		logger.Error("failed to load booking of expired seats", "error", err)
		res.Errors++
		return
	case booking.Status == domain.BookingPendingPayment:
		_, err = r.bookings.UpdateStatus(ctx, bookingID, pendingOnly, domain.BookingPaymentFailed)
		switch {
		case err == nil:
			res.BookingsFailed++
			r.metrics.bookingStatus(ctx, string(domain.BookingPaymentFailed))
			logger.Info("payment window expired, booking marked as failed")
		case errors.Is(err, domain.ErrEditConflict):
			logger.Info("booking changed while expiring")
		default:
			logger.Error("failed to mark expired booking as failed", "error", err)
			res.Errors++
			return
		}
	}

	n, err := r.locks.ReleaseExpired(ctx, seats, cutoff)
	res.SeatsReleased += n
	if err != nil {
		logger.Error("failed to release seats of expired booking", "error", err)
		res.Errors++
	}
}

func (r *Reaper) markShowtimesPassed(ctx context.Context, now time.Time, res *SweepResult) {
	n, err := r.bookings.MarkShowtimePassed(ctx, now)
	if err != nil {
		r.logger.Error("failed to mark bookings of past showtimes", "error", err)
		res.Errors++
		return
	}

	res.BookingsPassed = n
}
