package reservation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/metinatakli/booking-service/internal/reservation"

type metrics struct {
	bookings      metric.Int64Counter
	seatsReaped   metric.Int64Counter
	compensations metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter(instrumentationName)

	return &metrics{
		bookings: counter(meter, "booking.transitions",
			"Bookings that reached a status, by status"),
		seatsReaped: counter(meter, "booking.seats_reaped",
			"Seats returned to the pool by the expiry reaper"),
		compensations: counter(meter, "booking.compensation_failures",
			"Compensating actions that could not be completed"),
	}
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

func (m *metrics) bookingStatus(ctx context.Context, status string) {
	m.bookings.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
