package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
)

func (app *Application) Routes() http.Handler {
	r := chi.NewRouter()

	r.NotFound(app.notFoundResponse)
	r.MethodNotAllowed(app.methodNotAllowedResponse)

	r.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(r)))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(app.recoverPanic)

	r.Get("/healthcheck", app.GetHealth)
	r.Get("/openapi.json", app.GetOpenAPISpec)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/showtimes/{showtimeId}/seats", app.withID("showtimeId", app.GetSeatLayout))

		r.With(app.requireAdmin).Route("/admin/showtimes/{showtimeId}", func(r chi.Router) {
			r.Post("/initialize-seats", app.withID("showtimeId", app.InitializeSeats))
			r.Delete("/seats", app.withID("showtimeId", app.DeleteSeats))
		})

		r.With(app.requireAuthentication).Route("/bookings", func(r chi.Router) {
			r.Post("/", app.CreateBooking)
			r.Get("/my-bookings", app.withUserBookingsParams(app.GetUserBookings))
			r.Get("/{bookingId}", app.withID("bookingId", app.GetBooking))
			r.Patch("/{bookingId}/cancel", app.withID("bookingId", app.CancelBooking))
		})

		r.Post("/payments/webhook", app.PaymentWebhook)
	})

	return r
}
