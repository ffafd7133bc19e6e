package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/metinatakli/booking-service/internal/clock"
	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	DefaultCancellationCutoff = 2 * time.Hour
	DefaultCurrency           = "INR"
	DefaultPageSize           = 10

	compensationTimeout = 30 * time.Second
	notifyTimeout       = time.Minute
)

var pendingOnly = []domain.BookingStatus{domain.BookingPendingPayment}

// Coordinator runs the booking saga: hold seats, record the booking, take the
// payment, then confirm or undo every step that already happened.
type Coordinator struct {
	ledger   domain.SeatLedger
	locks    *LockManager
	bookings domain.BookingRepository
	catalog  domain.ShowtimeCatalog
	gateway  domain.PaymentGateway
	notifier domain.BookingNotifier
	logger   *slog.Logger
	clock    clock.Clock

	cancellationCutoff time.Duration
	currency           string

	metrics       *metrics
	notifications sync.WaitGroup
}

type CoordinatorOption func(*Coordinator)

func WithCancellationCutoff(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.cancellationCutoff = d
		}
	}
}

func WithCurrency(currency string) CoordinatorOption {
	return func(c *Coordinator) {
		if currency != "" {
			c.currency = strings.ToUpper(currency)
		}
	}
}

// WithNotifier sets the side effect run once a booking is confirmed.
func WithNotifier(n domain.BookingNotifier) CoordinatorOption {
	return func(c *Coordinator) {
		c.notifier = n
	}
}

func NewCoordinator(
	ledger domain.SeatLedger,
	locks *LockManager,
	bookings domain.BookingRepository,
	catalog domain.ShowtimeCatalog,
	gateway domain.PaymentGateway,
	logger *slog.Logger,
	clk clock.Clock,
	opts ...CoordinatorOption) *Coordinator {

	c := &Coordinator{
		ledger:             ledger,
		locks:              locks,
		bookings:           bookings,
		catalog:            catalog,
		gateway:            gateway,
		logger:             logger,
		clock:              clk,
		cancellationCutoff: DefaultCancellationCutoff,
		currency:           DefaultCurrency,
		metrics:            newMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateBooking holds the requested seats, records a PENDING_PAYMENT booking
// and initiates the payment. Any failure after the seats were held releases
// them and marks the booking PAYMENT_FAILED before the error is returned.
func (c *Coordinator) CreateBooking(ctx context.Context, req domain.BookingRequest) (_ *domain.Booking, err error) {
	seatIdentifiers, err := normalizeSeats(req.Seats)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}

	showtime, err := c.catalog.GetShowtime(ctx, req.ShowtimeID)
	if err != nil {
		return nil, err
	}

	if !showtime.StartTime.After(c.clock.Now()) {
		return nil, domain.ErrShowtimePassed
	}

	logger := c.logger.With("showtime_id", req.ShowtimeID, "user_id", req.UserID)

	locked, err := c.locks.LockSeats(ctx, req.ShowtimeID, seatIdentifiers, req.UserID)
	if err != nil {
		logger.Info("seat lock rejected", "seats", seatIdentifiers, "error", err)
		return nil, err
	}

	var (
		bookingID *int64
		committed bool
	)

	defer func() {
		if committed {
			return
		}

		if r := recover(); r != nil {
			c.compensate(ctx, locked, bookingID, fmt.Sprintf("panic: %v", r))
			panic(r)
		}

		if compErr := c.compensate(ctx, locked, bookingID, errorReason(err)); compErr != nil {
			err = errors.Join(err, compErr)
		}
	}()

	booking := &domain.Booking{
		UserID:        req.UserID,
		UserEmail:     req.UserEmail,
		ShowtimeID:    showtime.ID,
		MovieID:       showtime.MovieID,
		TheaterID:     showtime.TheaterID,
		MovieTitle:    showtime.MovieTitle,
		TheaterName:   showtime.TheaterName,
		ShowtimeStart: showtime.StartTime,
		SelectedSeats: seatIdentifiers,
		TotalPrice:    showtime.Price.Mul(decimal.NewFromInt(int64(len(seatIdentifiers)))),
		Currency:      c.currency,
		Status:        domain.BookingPendingPayment,
	}

	if err = c.bookings.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	bookingID = &booking.ID
	logger = logger.With("booking_id", booking.ID)
	c.metrics.bookingStatus(ctx, string(domain.BookingPendingPayment))

	if _, err = c.locks.PromoteToPendingPayment(ctx, locked, booking.ID, req.UserID); err != nil {
		return nil, err
	}

	var result *domain.PaymentResult

	result, err = c.gateway.Initiate(ctx, domain.PaymentRequest{
		BookingID: booking.ID,
		UserID:    req.UserID,
		Amount:    booking.TotalPrice,
		Currency:  booking.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("initiate payment for booking %d: %w", booking.ID, err)
	}

	logger.Info("payment initiated", "payment_status", result.Status, "transaction_id", result.TransactionID)

	if result.TransactionID != "" {
		var redirect *string
		if result.RedirectRef != "" {
			redirect = &result.RedirectRef
		}

		if err = c.bookings.SetPaymentDetails(ctx, booking.ID, result.TransactionID, redirect); err != nil {
			if result.Status == domain.PaymentSucceeded {
				err = c.capturedPaymentError(booking.ID, result.TransactionID, err)
			}
			return nil, fmt.Errorf("record payment for booking %d: %w", booking.ID, err)
		}

		booking.PaymentTransactionID = &result.TransactionID
		booking.PaymentRedirectURL = redirect
	}

	switch result.Status {
	case domain.PaymentPending:
		committed = true
		logger.Info("booking awaiting asynchronous payment confirmation")
		return booking, nil

	case domain.PaymentFailed:
		err = fmt.Errorf("booking %d: %w: %s", booking.ID, domain.ErrPaymentDeclined, result.Message)
		return nil, err

	case domain.PaymentSucceeded:
		if err = c.locks.ConfirmAsBooked(ctx, locked, booking.ID); err != nil {
			err = c.capturedPaymentError(booking.ID, result.TransactionID, err)
			return nil, err
		}

		var confirmed *domain.Booking

		confirmed, err = c.bookings.UpdateStatus(ctx, booking.ID, pendingOnly, domain.BookingConfirmed)
		if errors.Is(err, domain.ErrEditConflict) {
			current, getErr := c.bookings.GetByID(ctx, booking.ID)
			if getErr == nil && current.Status == domain.BookingConfirmed {
				// The payment callback got there first and already notified.
				committed = true
				logger.Info("booking confirmed by payment callback")
				return current, nil
			}
		}
		if err != nil {
			err = c.capturedPaymentError(booking.ID, result.TransactionID, err)
			return nil, err
		}

		committed = true
		c.metrics.bookingStatus(ctx, string(domain.BookingConfirmed))
		logger.Info("booking confirmed")
		c.notifyConfirmed(ctx, *confirmed)

		return confirmed, nil
	}

	err = fmt.Errorf("booking %d: unexpected payment status %q", booking.ID, result.Status)
	return nil, err
}

// ConfirmBookingFromCallback applies an asynchronous payment success. It is
// safe to call any number of times for the same booking.
func (c *Coordinator) ConfirmBookingFromCallback(ctx context.Context, bookingID int64) error {
	logger := c.logger.With("booking_id", bookingID)

	booking, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return wrapBookingLookup(bookingID, err)
	}

	switch booking.Status {
	case domain.BookingConfirmed:
		logger.Info("duplicate payment confirmation ignored")
		return nil
	case domain.BookingPendingPayment:
	default:
		return c.capturedPaymentError(bookingID, deref(booking.PaymentTransactionID),
			fmt.Errorf("booking is %s", booking.Status))
	}

	seats, err := c.ledger.GetSeatsByBooking(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("load seats of booking %d: %w", bookingID, err)
	}

	if len(seats) != len(booking.SelectedSeats) {
		err = fmt.Errorf("%w: %d of %d seats still bound to booking", domain.ErrSeatLockLost, len(seats), len(booking.SelectedSeats))
	} else {
		err = c.locks.ConfirmAsBooked(ctx, seats, bookingID)
	}
	if err != nil {
		compErr := c.compensate(ctx, nil, &bookingID, err.Error())
		return errors.Join(c.capturedPaymentError(bookingID, deref(booking.PaymentTransactionID), err), compErr)
	}

	confirmed, err := c.bookings.UpdateStatus(ctx, bookingID, pendingOnly, domain.BookingConfirmed)
	if errors.Is(err, domain.ErrEditConflict) {
		current, getErr := c.bookings.GetByID(ctx, bookingID)
		if getErr == nil && current.Status == domain.BookingConfirmed {
			logger.Info("booking confirmed by a concurrent callback")
			return nil
		}

		compErr := c.compensate(ctx, nil, &bookingID, "booking left PENDING_PAYMENT during confirmation")
		return errors.Join(c.capturedPaymentError(bookingID, deref(booking.PaymentTransactionID), err), compErr)
	}
	if err != nil {
		return fmt.Errorf("confirm booking %d: %w", bookingID, err)
	}

	c.metrics.bookingStatus(ctx, string(domain.BookingConfirmed))
	logger.Info("booking confirmed from payment callback")
	c.notifyConfirmed(ctx, *confirmed)

	return nil
}

// FailBookingFromCallback applies an asynchronous payment failure.
func (c *Coordinator) FailBookingFromCallback(ctx context.Context, bookingID int64) error {
	logger := c.logger.With("booking_id", bookingID)

	booking, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return wrapBookingLookup(bookingID, err)
	}

	if booking.Status != domain.BookingPendingPayment {
		logger.Info("payment failure ignored", "status", booking.Status)
		return nil
	}

	_, err = c.bookings.UpdateStatus(ctx, bookingID, pendingOnly, domain.BookingPaymentFailed)
	if errors.Is(err, domain.ErrEditConflict) {
		logger.Info("booking changed before payment failure was applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("fail booking %d: %w", bookingID, err)
	}

	c.metrics.bookingStatus(ctx, string(domain.BookingPaymentFailed))

	if err := c.locks.ReleaseBooking(ctx, bookingID, "payment failed"); err != nil {
		c.compensationFailed(bookingID, "release seats after payment failure", err)
		return err
	}

	logger.Info("booking marked as payment failed")

	return nil
}

// CancelBooking refunds and cancels a booking of userID while the showtime
// is still more than the cancellation cutoff away.
func (c *Coordinator) CancelBooking(ctx context.Context, bookingID int64, userID string) (*domain.Booking, error) {
	logger := c.logger.With("booking_id", bookingID, "user_id", userID)

	booking, err := c.bookings.GetByIDAndUserID(ctx, bookingID, userID)
	if err != nil {
		return nil, wrapBookingLookup(bookingID, err)
	}

	if booking.Status != domain.BookingConfirmed && booking.Status != domain.BookingPendingPayment {
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrCancellationNotAllowed, booking.Status)
	}

	if booking.ShowtimeStart.Sub(c.clock.Now()) <= c.cancellationCutoff {
		return nil, fmt.Errorf("%w: cancellations close %s before the showtime",
			domain.ErrCancellationNotAllowed, c.cancellationCutoff)
	}

	switch {
	case booking.PaymentTransactionID != nil:
		refund, err := c.gateway.Refund(ctx, domain.RefundRequest{
			BookingID:     booking.ID,
			TransactionID: *booking.PaymentTransactionID,
			Amount:        booking.TotalPrice,
			Currency:      booking.Currency,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrRefundFailed, err)
		}
		if !refund.Success {
			return nil, fmt.Errorf("%w: %s", domain.ErrRefundFailed, refund.Message)
		}
		logger.Info("payment refunded", "refund_id", refund.RefundID)

	case booking.Status == domain.BookingConfirmed:
		return nil, fmt.Errorf("%w: no payment transaction recorded", domain.ErrRefundFailed)
	}

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	releaseErr := c.locks.ReleaseBooking(releaseCtx, bookingID, "booking cancelled")

	cancelled, err := c.bookings.UpdateStatus(releaseCtx, bookingID,
		[]domain.BookingStatus{domain.BookingConfirmed, domain.BookingPendingPayment}, domain.BookingCancelled)
	if err != nil {
		err = errors.Join(fmt.Errorf("%w: refund issued but booking not cancelled: %w", domain.ErrCompensationFailed, err), releaseErr)
		c.compensationFailed(bookingID, "cancel booking after refund", err)
		return nil, err
	}

	c.metrics.bookingStatus(ctx, string(domain.BookingCancelled))

	if releaseErr != nil {
		c.compensationFailed(bookingID, "release seats of cancelled booking", releaseErr)
		return nil, releaseErr
	}

	logger.Info("booking cancelled")

	return cancelled, nil
}

func (c *Coordinator) GetBooking(ctx context.Context, bookingID int64, userID string) (*domain.Booking, error) {
	booking, err := c.bookings.GetByIDAndUserID(ctx, bookingID, userID)
	if err != nil {
		return nil, wrapBookingLookup(bookingID, err)
	}

	return booking, nil
}

func (c *Coordinator) ListBookings(
	ctx context.Context,
	userID string,
	pagination domain.Pagination) ([]domain.Booking, *domain.Metadata, error) {

	if pagination.Page < 1 {
		pagination.Page = 1
	}
	if pagination.PageSize < 1 {
		pagination.PageSize = DefaultPageSize
	}

	return c.bookings.ListByUserID(ctx, userID, pagination)
}

func (c *Coordinator) InitializeSeats(ctx context.Context, showtimeID int64, totalSeats, seatsPerRow int) (int, error) {
	n, err := c.ledger.InitializeSeats(ctx, showtimeID, totalSeats, seatsPerRow)
	if err != nil {
		return 0, err
	}

	c.logger.Info("seats initialized", "showtime_id", showtimeID, "seats_created", n, "seats_requested", totalSeats)

	return n, nil
}

func (c *Coordinator) DeinitializeSeats(ctx context.Context, showtimeID int64) (int, error) {
	n, err := c.ledger.DeleteSeats(ctx, showtimeID)
	if err != nil {
		return 0, err
	}

	c.logger.Warn("seats deleted", "showtime_id", showtimeID, "seats_deleted", n)

	return n, nil
}

// GetSeatLayout returns the seats of a showtime. An empty layout is only
// returned for showtimes the catalog knows about.
func (c *Coordinator) GetSeatLayout(ctx context.Context, showtimeID int64) ([]domain.ShowtimeSeat, error) {
	seats, err := c.ledger.GetSeats(ctx, showtimeID)
	if err != nil {
		return nil, err
	}

	if len(seats) > 0 {
		return seats, nil
	}

	if _, err := c.catalog.GetShowtime(ctx, showtimeID); err != nil {
		return nil, err
	}

	return seats, nil
}

// Wait blocks until in-flight confirmation notifications are done.
func (c *Coordinator) Wait() {
	c.notifications.Wait()
}

// compensate releases what a failed attempt still holds and marks its booking
// PAYMENT_FAILED. It runs detached from ctx cancellation.
func (c *Coordinator) compensate(ctx context.Context, locked []domain.ShowtimeSeat, bookingID *int64, reason string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var errs []error

	if err := c.locks.Release(ctx, locked, reason); err != nil {
		errs = append(errs, err)
	}

	if bookingID != nil {
		status, err := c.failPendingBooking(ctx, *bookingID)
		if err != nil {
			errs = append(errs, err)
		}

		switch status {
		case domain.BookingPendingPayment, domain.BookingPaymentFailed:
			if err := c.locks.ReleaseBooking(ctx, *bookingID, reason); err != nil {
				errs = append(errs, err)
			}
		case "":
			// Unknown status: booked seats stay, expired holds are left to the reaper.
		default:
			c.logger.Warn("seats of booking kept during compensation",
				"booking_id", *bookingID, "status", status, "reason", reason)
		}
	}

	if len(errs) == 0 {
		return nil
	}

	err := errors.Join(errs...)
	var id int64
	if bookingID != nil {
		id = *bookingID
	}
	c.compensationFailed(id, reason, err)

	return err
}

// failPendingBooking flips a PENDING_PAYMENT booking to PAYMENT_FAILED and
// reports the status the booking ended up in, or "" when it is unknown.
func (c *Coordinator) failPendingBooking(ctx context.Context, bookingID int64) (domain.BookingStatus, error) {
	_, err := c.bookings.UpdateStatus(ctx, bookingID, pendingOnly, domain.BookingPaymentFailed)
	if err == nil {
		c.metrics.bookingStatus(ctx, string(domain.BookingPaymentFailed))
		return domain.BookingPaymentFailed, nil
	}

	if !errors.Is(err, domain.ErrEditConflict) {
		return "", fmt.Errorf("%w: mark booking %d failed: %w", domain.ErrCompensationFailed, bookingID, err)
	}

	current, err := c.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return "", fmt.Errorf("%w: reload booking %d: %w", domain.ErrCompensationFailed, bookingID, err)
	}

	return current.Status, nil
}

func (c *Coordinator) compensationFailed(bookingID int64, reason string, err error) {
	c.metrics.compensations.Add(context.Background(), 1)
	c.logger.Error("compensation failed, manual reconciliation required",
		"booking_id", bookingID, "reason", reason, "error", err)
}

func (c *Coordinator) capturedPaymentError(bookingID int64, transactionID string, cause error) error {
	c.metrics.compensations.Add(context.Background(), 1)
	c.logger.Error("payment captured but booking could not be confirmed, manual refund required",
		"booking_id", bookingID, "transaction_id", transactionID, "error", cause)

	return fmt.Errorf("%w: booking %d: payment %s captured but not applied: %w",
		domain.ErrCompensationFailed, bookingID, transactionID, cause)
}

func (c *Coordinator) notifyConfirmed(ctx context.Context, booking domain.Booking) {
	if c.notifier == nil {
		return
	}

	c.notifications.Add(1)

	go func() {
		defer c.notifications.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("confirmation notifier panicked", "booking_id", booking.ID, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		if err := c.notifier.BookingConfirmed(ctx, booking); err != nil {
			c.logger.Warn("failed to send booking confirmation", "booking_id", booking.ID, "error", err)
		}
	}()
}

func normalizeSeats(seats []string) ([]string, error) {
	if len(seats) == 0 {
		return nil, fmt.Errorf("%w: no seats selected", domain.ErrInvalidArgument)
	}

	seen := make(map[string]struct{}, len(seats))
	normalized := make([]string, 0, len(seats))

	for _, s := range seats {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			return nil, fmt.Errorf("%w: empty seat identifier", domain.ErrInvalidArgument)
		}
		if _, ok := seen[s]; ok {
			return nil, fmt.Errorf("%w: seat %s selected more than once", domain.ErrInvalidArgument, s)
		}

		seen[s] = struct{}{}
		normalized = append(normalized, s)
	}

	return normalized, nil
}

func wrapBookingLookup(bookingID int64, err error) error {
	if errors.Is(err, domain.ErrRecordNotFound) {
		return fmt.Errorf("%w: %d", domain.ErrBookingNotFound, bookingID)
	}

	return fmt.Errorf("load booking %d: %w", bookingID, err)
}

func errorReason(err error) string {
	if err == nil {
		return "booking attempt aborted"
	}
	return err.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
