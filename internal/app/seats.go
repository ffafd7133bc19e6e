package app

import (
	"net/http"

	"github.com/metinatakli/booking-service/api"
	"github.com/metinatakli/booking-service/internal/domain"
)

func (app *Application) GetSeatLayout(w http.ResponseWriter, r *http.Request, showtimeID int64) {
	seats, err := app.coordinator.GetSeatLayout(r.Context(), showtimeID)
	if err != nil {
		app.domainErrorResponse(w, r, err)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toSeatLayoutResponse(showtimeID, seats), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func toSeatLayoutResponse(showtimeID int64, seats []domain.ShowtimeSeat) api.SeatLayoutResponse {
	resp := api.SeatLayoutResponse{
		ShowtimeId: showtimeID,
		Seats:      make([]api.Seat, len(seats)),
	}

	for i, s := range seats {
		resp.Seats[i] = api.Seat{
			SeatIdentifier: s.SeatIdentifier,
			Status:         string(s.Status),
			HolderUserId:   s.HolderUserID,
			LockedUntil:    s.LockedUntil,
		}
	}

	return resp
}
