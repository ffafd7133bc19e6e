package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/booking-service/internal/domain"
)

const seatColumns = `id, showtime_id, seat_identifier, status, holder_user_id, booking_id, locked_until, version`

type PostgresSeatLedger struct {
	db *pgxpool.Pool
}

func NewPostgresSeatLedger(db *pgxpool.Pool) *PostgresSeatLedger {
	return &PostgresSeatLedger{
		db: db,
	}
}

func (p *PostgresSeatLedger) InitializeSeats(ctx context.Context, showtimeID int64, totalSeats, seatsPerRow int) (int, error) {
	identifiers, err := domain.SeatLayout(totalSeats, seatsPerRow)
	if err != nil {
		return 0, err
	}

	var copied int64

	err = runInTx(ctx, p.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM showtime_seats WHERE showtime_id = $1`, showtimeID)
		if err != nil {
			return err
		}

		rows := make([][]any, 0, len(identifiers))
		for _, id := range identifiers {
			rows = append(rows, []any{showtimeID, id, string(domain.SeatAvailable)})
		}

		copied, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"showtime_seats"},
			[]string{"showtime_id", "seat_identifier", "status"},
			pgx.CopyFromRows(rows),
		)

		return err
	})
	if err != nil {
		return 0, mapPgError(err)
	}

	return int(copied), nil
}

func (p *PostgresSeatLedger) DeleteSeats(ctx context.Context, showtimeID int64) (int, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM showtime_seats WHERE showtime_id = $1`, showtimeID)
	if err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}

func (p *PostgresSeatLedger) GetSeats(ctx context.Context, showtimeID int64) ([]domain.ShowtimeSeat, error) {
	query := `SELECT ` + seatColumns + ` FROM showtime_seats WHERE showtime_id = $1`

	return p.querySeats(ctx, query, showtimeID)
}

func (p *PostgresSeatLedger) GetSeat(ctx context.Context, showtimeID int64, seatIdentifier string) (*domain.ShowtimeSeat, error) {
	query := `SELECT ` + seatColumns + ` FROM showtime_seats WHERE showtime_id = $1 AND seat_identifier = $2`

	seat, err := scanSeat(p.db.QueryRow(ctx, query, showtimeID, seatIdentifier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSeatNotFound
		}
		return nil, err
	}

	return seat, nil
}

func (p *PostgresSeatLedger) GetSeatsByBooking(ctx context.Context, bookingID int64) ([]domain.ShowtimeSeat, error) {
	query := `SELECT ` + seatColumns + ` FROM showtime_seats WHERE booking_id = $1`

	return p.querySeats(ctx, query, bookingID)
}

func (p *PostgresSeatLedger) FindExpired(ctx context.Context, status domain.SeatStatus, cutoff time.Time) ([]domain.ShowtimeSeat, error) {
	query := `SELECT ` + seatColumns + `
		FROM showtime_seats
		WHERE status = $1 AND locked_until IS NOT NULL AND locked_until < $2`

	return p.querySeats(ctx, query, string(status), cutoff)
}

// TryTransition locks the seat row, checks the expectations in Go and writes
// the new state guarded by the version that was read.
func (p *PostgresSeatLedger) TryTransition(ctx context.Context, t domain.SeatTransition) (*domain.ShowtimeSeat, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var updated domain.ShowtimeSeat

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		query := `SELECT ` + seatColumns + `
			FROM showtime_seats
			WHERE showtime_id = $1 AND seat_identifier = $2
			FOR UPDATE`

		current, err := scanSeat(tx.QueryRow(ctx, query, t.ShowtimeID, t.SeatIdentifier))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrSeatNotFound
			}
			return err
		}

		if err := t.Check(*current); err != nil {
			return err
		}

		updated = t.Apply(*current)

		query = `
			UPDATE showtime_seats
			SET status = $1, holder_user_id = $2, booking_id = $3, locked_until = $4,
				version = version + 1, updated_at = NOW()
			WHERE id = $5 AND version = $6`

		tag, err := tx.Exec(
			ctx,
			query,
			string(updated.Status),
			updated.HolderUserID,
			updated.BookingID,
			updated.LockedUntil,
			current.ID,
			current.Version)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: seat %s", domain.ErrConcurrentModification, t.SeatIdentifier)
		}

		return nil
	})
	if err != nil {
		return nil, mapPgError(err)
	}

	return &updated, nil
}

func (p *PostgresSeatLedger) querySeats(ctx context.Context, query string, args ...any) ([]domain.ShowtimeSeat, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seats := make([]domain.ShowtimeSeat, 0)

	for rows.Next() {
		seat, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}

		seats = append(seats, *seat)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	domain.SortSeats(seats)

	return seats, nil
}

func scanSeat(row pgx.Row) (*domain.ShowtimeSeat, error) {
	var (
		seat   domain.ShowtimeSeat
		status string
	)

	err := row.Scan(
		&seat.ID,
		&seat.ShowtimeID,
		&seat.SeatIdentifier,
		&status,
		&seat.HolderUserID,
		&seat.BookingID,
		&seat.LockedUntil,
		&seat.Version,
	)
	if err != nil {
		return nil, err
	}

	seat.Status = domain.SeatStatus(status)

	return &seat, nil
}
