package app

import (
	"net/http"
	"strings"

	"github.com/metinatakli/booking-service/api"
	"github.com/metinatakli/booking-service/internal/domain"
)

func (app *Application) CreateBooking(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	var input api.CreateBookingRequest

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	for i, seat := range input.Seats {
		input.Seats[i] = strings.ToUpper(strings.TrimSpace(seat))
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	user := app.contextGetUser(r)

	booking, err := app.coordinator.CreateBooking(r.Context(), domain.BookingRequest{
		ShowtimeID: input.ShowtimeId,
		Seats:      input.Seats,
		UserID:     user.ID,
		UserEmail:  user.Email,
	})
	if err != nil {
		logger.Warn("booking attempt failed", "showtime_id", input.ShowtimeId, "seats", input.Seats, "error", err)
		app.domainErrorResponse(w, r, err)
		return
	}

	logger.Info("booking created", "booking_id", booking.ID, "status", booking.Status)

	err = app.writeJSON(w, http.StatusCreated, toApiBooking(booking), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) withUserBookingsParams(
	next func(http.ResponseWriter, *http.Request, api.GetUserBookingsParams)) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {
		var (
			params api.GetUserBookingsParams
			err    error
		)

		if params.Page, err = intQueryParam(r, "page"); err != nil {
			app.badRequestResponse(w, r, err)
			return
		}

		if params.PageSize, err = intQueryParam(r, "pageSize"); err != nil {
			app.badRequestResponse(w, r, err)
			return
		}

		next(w, r, params)
	}
}

func (app *Application) GetUserBookings(w http.ResponseWriter, r *http.Request, params api.GetUserBookingsParams) {
	err := app.validator.Struct(params)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	var pagination domain.Pagination
	if params.Page != nil {
		pagination.Page = *params.Page
	}
	if params.PageSize != nil {
		pagination.PageSize = *params.PageSize
	}

	bookings, metadata, err := app.coordinator.ListBookings(r.Context(), app.contextGetUser(r).ID, pagination)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	resp := api.UserBookingsResponse{
		Bookings: make([]api.Booking, len(bookings)),
		Metadata: api.Metadata(*metadata),
	}

	for i := range bookings {
		resp.Bookings[i] = toApiBooking(&bookings[i])
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetBooking(w http.ResponseWriter, r *http.Request, bookingID int64) {
	booking, err := app.coordinator.GetBooking(r.Context(), bookingID, app.contextGetUser(r).ID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toApiBooking(booking), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) CancelBooking(w http.ResponseWriter, r *http.Request, bookingID int64) {
	logger := app.contextGetLogger(r).With("booking_id", bookingID)

	booking, err := app.coordinator.CancelBooking(r.Context(), bookingID, app.contextGetUser(r).ID)
	if err != nil {
		logger.Warn("cancellation failed", "error", err)
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toApiBooking(booking), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func toApiBooking(b *domain.Booking) api.Booking {
	return api.Booking{
		Id:                   b.ID,
		UserId:               b.UserID,
		ShowtimeId:           b.ShowtimeID,
		MovieId:              b.MovieID,
		TheaterId:            b.TheaterID,
		MovieTitle:           b.MovieTitle,
		TheaterName:          b.TheaterName,
		ShowtimeStart:        b.ShowtimeStart,
		Seats:                b.SelectedSeats,
		TotalPrice:           b.TotalPrice,
		Currency:             b.Currency,
		Status:               string(b.Status),
		PaymentTransactionId: b.PaymentTransactionID,
		PaymentRedirectUrl:   b.PaymentRedirectURL,
		BookingTime:          b.BookingTime,
		UpdatedAt:            b.UpdatedAt,
	}
}
