package app

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/metinatakli/booking-service/api"
	"github.com/metinatakli/booking-service/internal/domain"
	appvalidator "github.com/metinatakli/booking-service/internal/validator"
)

const (
	ErrInternalServer     = "The server encountered a problem and could not process your request"
	ErrNotFound           = "The requested resource not found"
	ErrUnauthorizedAccess = "You must be authenticated to access this resource"
	ErrForbidden          = "You are not allowed to access this resource"
	ErrFailedValidation   = "One or more fields have invalid values"
	ErrServiceUnavailable = "A required service is temporarily unavailable, please try again later"
)

func (app *Application) logError(r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
	)

	app.contextGetLogger(r).Error(err.Error(), "method", method, "uri", uri)
}

// The errorResponse() method is a generic helper for sending JSON-formatted error
// messages to the client with a given status code.
func (app *Application) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := api.ErrorResponse{
		Message:   message,
		RequestId: middleware.GetReqID(r.Context()),
		Timestamp: time.Now(),
	}

	err := app.writeJSON(w, status, resp, nil)
	if err != nil {
		app.logError(r, err)
		w.WriteHeader(500)
	}
}

func (app *Application) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logError(r, err)
	app.errorResponse(w, r, http.StatusInternalServerError, ErrInternalServer)
}

func (app *Application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, ErrNotFound)
}

func (app *Application) notFoundResponseWithErr(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusNotFound, err.Error())
}

func (app *Application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	message := fmt.Sprintf("the %s method is not supported for this resource", r.Method)
	app.errorResponse(w, r, http.StatusMethodNotAllowed, message)
}

func (app *Application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (app *Application) unauthorizedAccessResponse(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	app.errorResponse(w, r, http.StatusUnauthorized, ErrUnauthorizedAccess)
}

func (app *Application) forbiddenResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusForbidden, ErrForbidden)
}

func (app *Application) editConflictResponseWithErr(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusConflict, err.Error())
}

func (app *Application) failedValidationResponse(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		app.badRequestResponse(w, r, err)
		return
	}

	resp := api.ValidationErrorResponse{
		Message:          ErrFailedValidation,
		RequestId:        middleware.GetReqID(r.Context()),
		Timestamp:        time.Now(),
		ValidationErrors: make([]api.ValidationError, 0, len(validationErrs)),
	}

	for _, fe := range validationErrs {
		resp.ValidationErrors = append(resp.ValidationErrors, api.ValidationError{
			Field: fe.Field(),
			Issue: appvalidator.ValidationMessage(fe),
		})
	}

	err = app.writeJSON(w, http.StatusUnprocessableEntity, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// domainErrorResponse maps the errors of the booking core to HTTP statuses.
// Anything it doesn't recognise is a server error.
func (app *Application) domainErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logger := app.contextGetLogger(r)

	var seatErr *domain.SeatUnavailableError

	switch {
	case errors.As(err, &seatErr):
		logger.Warn("seat unavailable", "seat_id", seatErr.SeatIdentifier)
		app.editConflictResponseWithErr(w, r, seatErr)
	case errors.Is(err, domain.ErrSeatUnavailable),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrCancellationNotAllowed),
		errors.Is(err, domain.ErrEditConflict):
		app.editConflictResponseWithErr(w, r, err)
	case errors.Is(err, domain.ErrShowtimeNotFound):
		app.notFoundResponseWithErr(w, r, errors.New("showtime not found"))
	case errors.Is(err, domain.ErrBookingNotFound):
		app.notFoundResponseWithErr(w, r, errors.New("booking not found"))
	case errors.Is(err, domain.ErrRecordNotFound), errors.Is(err, domain.ErrSeatNotFound):
		app.notFoundResponse(w, r)
	case errors.Is(err, domain.ErrInvalidArgument):
		app.badRequestResponse(w, r, err)
	case errors.Is(err, domain.ErrPaymentDeclined):
		logger.Info("payment declined", "error", err)
		app.errorResponse(w, r, http.StatusPaymentRequired, "payment was declined")
	case errors.Is(err, domain.ErrRefundFailed):
		logger.Error("refund failed", "error", err)
		app.errorResponse(w, r, http.StatusBadGateway, "refund could not be issued, the booking was not cancelled")
	case errors.Is(err, domain.ErrDependencyUnavailable):
		logger.Error("dependency unavailable", "error", err)
		app.errorResponse(w, r, http.StatusServiceUnavailable, ErrServiceUnavailable)
	default:
		app.serverErrorResponse(w, r, err)
	}
}
