package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Message   string    `json:"message"`
	RequestId string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

type ValidationError struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

type ValidationErrorResponse struct {
	Message          string            `json:"message"`
	RequestId        string            `json:"requestId"`
	Timestamp        time.Time         `json:"timestamp"`
	ValidationErrors []ValidationError `json:"validationErrors"`
}

type SystemInfo struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
}

type HealthcheckResponse struct {
	Status     string     `json:"status"`
	SystemInfo SystemInfo `json:"systemInfo"`
}

type Seat struct {
	SeatIdentifier string     `json:"seatIdentifier"`
	Status         string     `json:"status"`
	HolderUserId   *string    `json:"holderUserId,omitempty"`
	LockedUntil    *time.Time `json:"lockedUntil,omitempty"`
}

type SeatLayoutResponse struct {
	ShowtimeId int64  `json:"showtimeId"`
	Seats      []Seat `json:"seats"`
}

type InitializeSeatsRequest struct {
	TotalSeats  int  `json:"totalSeats" validate:"required,min=1,max=2600"`
	SeatsPerRow *int `json:"seatsPerRow,omitempty" validate:"omitempty,min=1,max=100"`
}

type InitializeSeatsResponse struct {
	ShowtimeId   int64 `json:"showtimeId"`
	SeatsCreated int   `json:"seatsCreated"`
}

type DeleteSeatsResponse struct {
	ShowtimeId   int64 `json:"showtimeId"`
	SeatsDeleted int   `json:"seatsDeleted"`
}

type CreateBookingRequest struct {
	ShowtimeId int64    `json:"showtimeId" validate:"required,min=1"`
	Seats      []string `json:"seats" validate:"required,min=1,max=10,dive,seat_identifier"`
}

type Booking struct {
	Id                   int64           `json:"id"`
	UserId               string          `json:"userId"`
	ShowtimeId           int64           `json:"showtimeId"`
	MovieId              int64           `json:"movieId"`
	TheaterId            int64           `json:"theaterId"`
	MovieTitle           string          `json:"movieTitle"`
	TheaterName          string          `json:"theaterName"`
	ShowtimeStart        time.Time       `json:"showtimeStart"`
	Seats                []string        `json:"seats"`
	TotalPrice           decimal.Decimal `json:"totalPrice"`
	Currency             string          `json:"currency"`
	Status               string          `json:"status"`
	PaymentTransactionId *string         `json:"paymentTransactionId,omitempty"`
	PaymentRedirectUrl   *string         `json:"paymentRedirectUrl,omitempty"`
	BookingTime          time.Time       `json:"bookingTime"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

type Metadata struct {
	CurrentPage  int `json:"currentPage"`
	FirstPage    int `json:"firstPage"`
	LastPage     int `json:"lastPage"`
	PageSize     int `json:"pageSize"`
	TotalRecords int `json:"totalRecords"`
}

type UserBookingsResponse struct {
	Bookings []Booking `json:"bookings"`
	Metadata Metadata  `json:"metadata"`
}

// GetUserBookingsParams defines parameters for GetUserBookings.
type GetUserBookingsParams struct {
	Page     *int `form:"page,omitempty" json:"page,omitempty" validate:"omitempty,min=1"`
	PageSize *int `form:"pageSize,omitempty" json:"pageSize,omitempty" validate:"omitempty,min=1,max=100"`
}

type WebhookAckResponse struct {
	Received bool `json:"received"`
}
