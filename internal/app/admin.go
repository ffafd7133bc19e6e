package app

import (
	"net/http"

	"github.com/metinatakli/booking-service/api"
	"github.com/metinatakli/booking-service/internal/domain"
)

func (app *Application) InitializeSeats(w http.ResponseWriter, r *http.Request, showtimeID int64) {
	var input api.InitializeSeatsRequest

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	seatsPerRow := domain.DefaultSeatsPerRow
	if input.SeatsPerRow != nil {
		seatsPerRow = *input.SeatsPerRow
	}

	created, err := app.coordinator.InitializeSeats(r.Context(), showtimeID, input.TotalSeats, seatsPerRow)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.invalidateShowtime(r, showtimeID)

	resp := api.InitializeSeatsResponse{
		ShowtimeId:   showtimeID,
		SeatsCreated: created,
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) DeleteSeats(w http.ResponseWriter, r *http.Request, showtimeID int64) {
	deleted, err := app.coordinator.DeinitializeSeats(r.Context(), showtimeID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	app.invalidateShowtime(r, showtimeID)

	resp := api.DeleteSeatsResponse{
		ShowtimeId:   showtimeID,
		SeatsDeleted: deleted,
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// invalidateShowtime is best effort, a stale entry expires with its TTL.
func (app *Application) invalidateShowtime(r *http.Request, showtimeID int64) {
	if app.cache == nil {
		return
	}

	if err := app.cache.Invalidate(r.Context(), showtimeID); err != nil {
		app.contextGetLogger(r).Warn("failed to invalidate cached showtime", "showtime_id", showtimeID, "error", err)
	}
}
