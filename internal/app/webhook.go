package app

import (
	"errors"
	"io"
	"net/http"

	"github.com/metinatakli/booking-service/api"
	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/metinatakli/booking-service/internal/payment"
)

func (app *Application) signatureHeader() string {
	if app.config.PaymentProvider == ProviderStripe {
		return payment.StripeSignatureHeader
	}
	return payment.SimulatedSignatureHeader
}

// PaymentWebhook applies asynchronous payment outcomes. Anything that a
// redelivery cannot fix is acknowledged so the gateway stops retrying.
func (app *Application) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	event, err := app.gateway.ParseWebhook(payload, r.Header.Get(app.signatureHeader()))
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		logger.Warn("webhook signature verification failed", "error", err)
		app.badRequestResponse(w, r, errors.New("invalid webhook signature"))
		return
	case err != nil:
		logger.Warn("webhook payload could not be used", "error", err)
		app.acknowledgeWebhook(w, r)
		return
	}

	logger = logger.With("event_id", event.ID, "event_type", event.Type, "booking_id", event.BookingID)

	switch event.Type {
	case domain.PaymentEventSucceeded:
		err = app.coordinator.ConfirmBookingFromCallback(r.Context(), event.BookingID)
	case domain.PaymentEventFailed:
		err = app.coordinator.FailBookingFromCallback(r.Context(), event.BookingID)
	default:
		logger.Debug("webhook event ignored")
	}

	switch {
	case err == nil:
		logger.Info("webhook event processed")
	case errors.Is(err, domain.ErrRecordNotFound):
		logger.Warn("webhook event references an unknown booking")
	case errors.Is(err, domain.ErrCompensationFailed):
		logger.Error("webhook event left a booking that needs manual attention", "error", err)
	default:
		app.serverErrorResponse(w, r, err)
		return
	}

	app.acknowledgeWebhook(w, r)
}

func (app *Application) acknowledgeWebhook(w http.ResponseWriter, r *http.Request) {
	err := app.writeJSON(w, http.StatusOK, api.WebhookAckResponse{Received: true}, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}
