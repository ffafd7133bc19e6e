package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/booking-service/internal/domain"
)

const bookingColumns = `id, user_id, user_email, showtime_id, movie_id, theater_id, movie_title, theater_name,
	showtime_start, selected_seats, total_price, currency, status, payment_transaction_id,
	payment_redirect_url, booking_time, updated_at`

type PostgresBookingRepository struct {
	db *pgxpool.Pool
}

func NewPostgresBookingRepository(db *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{
		db: db,
	}
}

func (p *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	query := `
		INSERT INTO bookings (user_id, user_email, showtime_id, movie_id, theater_id, movie_title,
			theater_name, showtime_start, selected_seats, total_price, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, booking_time, updated_at`

	err := p.db.QueryRow(
		ctx,
		query,
		booking.UserID,
		booking.UserEmail,
		booking.ShowtimeID,
		booking.MovieID,
		booking.TheaterID,
		booking.MovieTitle,
		booking.TheaterName,
		booking.ShowtimeStart,
		booking.SelectedSeats,
		booking.TotalPrice,
		booking.Currency,
		string(booking.Status)).Scan(&booking.ID, &booking.BookingTime, &booking.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}

	return nil
}

func (p *PostgresBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	return p.getOne(ctx, query, id)
}

func (p *PostgresBookingRepository) GetByIDAndUserID(ctx context.Context, id int64, userID string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 AND user_id = $2`

	return p.getOne(ctx, query, id, userID)
}

func (p *PostgresBookingRepository) ListByUserID(
	ctx context.Context,
	userID string,
	pagination domain.Pagination) ([]domain.Booking, *domain.Metadata, error) {

	query := `
		SELECT COUNT(*) OVER(), ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY booking_time DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := p.db.Query(ctx, query, userID, pagination.Limit(), pagination.Offset())
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	totalRecords := 0

	for rows.Next() {
		var booking domain.Booking

		err := scanBooking(rows, &booking, &totalRecords)
		if err != nil {
			return nil, nil, err
		}

		bookings = append(bookings, booking)
	}

	if err = rows.Err(); err != nil {
		return nil, nil, err
	}

	metadata := domain.NewMetadata(totalRecords, pagination.Page, pagination.PageSize)

	return bookings, metadata, nil
}

func (p *PostgresBookingRepository) UpdateStatus(
	ctx context.Context,
	id int64,
	from []domain.BookingStatus,
	to domain.BookingStatus) (*domain.Booking, error) {

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	query := `
		UPDATE bookings
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)
		RETURNING ` + bookingColumns

	booking, err := p.getOne(ctx, query, string(to), id, statuses)
	if err == nil {
		return booking, nil
	}

	if !errors.Is(err, domain.ErrRecordNotFound) {
		return nil, err
	}

	var exists bool
	err = p.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return nil, err
	}

	if exists {
		return nil, domain.ErrEditConflict
	}

	return nil, domain.ErrRecordNotFound
}

func (p *PostgresBookingRepository) SetPaymentDetails(
	ctx context.Context,
	id int64,
	transactionID string,
	redirectURL *string) error {

	query := `
		UPDATE bookings
		SET payment_transaction_id = $1, payment_redirect_url = $2, updated_at = NOW()
		WHERE id = $3`

	tag, err := p.db.Exec(ctx, query, transactionID, redirectURL, id)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrRecordNotFound
	}

	return nil
}

func (p *PostgresBookingRepository) MarkShowtimePassed(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE bookings
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND showtime_start < $3`

	tag, err := p.db.Exec(ctx, query, string(domain.BookingShowtimePassed), string(domain.BookingConfirmed), before)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (p *PostgresBookingRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Booking, error) {
	var booking domain.Booking

	err := scanBooking(p.db.QueryRow(ctx, query, args...), &booking)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	return &booking, nil
}

func scanBooking(row pgx.Row, booking *domain.Booking, prefix ...any) error {
	var status string

	dest := append(prefix,
		&booking.ID,
		&booking.UserID,
		&booking.UserEmail,
		&booking.ShowtimeID,
		&booking.MovieID,
		&booking.TheaterID,
		&booking.MovieTitle,
		&booking.TheaterName,
		&booking.ShowtimeStart,
		&booking.SelectedSeats,
		&booking.TotalPrice,
		&booking.Currency,
		&status,
		&booking.PaymentTransactionID,
		&booking.PaymentRedirectURL,
		&booking.BookingTime,
		&booking.UpdatedAt,
	)

	if err := row.Scan(dest...); err != nil {
		return err
	}

	booking.Status = domain.BookingStatus(status)

	return nil
}
