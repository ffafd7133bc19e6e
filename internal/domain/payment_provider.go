package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentPending   PaymentStatus = "PENDING"
)

type PaymentRequest struct {
	BookingID int64
	UserID    string
	Amount    decimal.Decimal
	Currency  string
}

type PaymentResult struct {
	Status        PaymentStatus
	TransactionID string
	// RedirectRef is what the client needs to finish an asynchronous payment,
	// a redirect URL or a client secret depending on the gateway.
	RedirectRef string
	Message     string
}

type RefundRequest struct {
	BookingID     int64
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
}

type RefundResult struct {
	Success  bool
	RefundID string
	Message  string
}

type PaymentEventType string

const (
	PaymentEventSucceeded PaymentEventType = "succeeded"
	PaymentEventFailed    PaymentEventType = "failed"
	PaymentEventIgnored   PaymentEventType = "ignored"
)

type PaymentEvent struct {
	ID            string
	Type          PaymentEventType
	BookingID     int64
	TransactionID string
}

type PaymentGateway interface {
	Initiate(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	// ParseWebhook verifies the signature before decoding the payload.
	ParseWebhook(payload []byte, signature string) (*PaymentEvent, error)
}

type BookingNotifier interface {
	BookingConfirmed(ctx context.Context, booking Booking) error
}
