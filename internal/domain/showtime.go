package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Showtime struct {
	ID          int64           `json:"id"`
	MovieID     int64           `json:"movieId"`
	MovieTitle  string          `json:"movieTitle"`
	TheaterID   int64           `json:"theaterId"`
	TheaterName string          `json:"theaterName"`
	StartTime   time.Time       `json:"startTime"`
	Price       decimal.Decimal `json:"price"`
}

type ShowtimeCatalog interface {
	GetShowtime(ctx context.Context, showtimeID int64) (*Showtime, error)
}
