package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
)

const StripeSignatureHeader = "Stripe-Signature"

const (
	metadataBookingID = "booking_id"
	metadataUserID    = "user_id"
)

// StripeGateway charges bookings through Stripe PaymentIntents. The API key is
// read from stripe.Key, which the application sets at startup.
type StripeGateway struct {
	webhookSecret string
	paymentMethod string
	returnURL     string
}

func NewStripeGateway(webhookSecret, paymentMethod, returnURL string) *StripeGateway {
	return &StripeGateway{
		webhookSecret: webhookSecret,
		paymentMethod: paymentMethod,
		returnURL:     returnURL,
	}
}

func (g *StripeGateway) Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(minorUnits(req.Amount)),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Confirm:       stripe.Bool(true),
		PaymentMethod: stripe.String(g.paymentMethod),
		ReturnURL:     stripe.String(g.returnURL),
		Description:   stripe.String(fmt.Sprintf("Booking %d", req.BookingID)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(fmt.Sprintf("booking-%d-initiate", req.BookingID))
	params.AddMetadata(metadataBookingID, strconv.FormatInt(req.BookingID, 10))
	params.AddMetadata(metadataUserID, req.UserID)

	intent, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			result := &domain.PaymentResult{Status: domain.PaymentFailed, Message: stripeErr.Msg}
			if stripeErr.PaymentIntent != nil {
				result.TransactionID = stripeErr.PaymentIntent.ID
			}
			return result, nil
		}

		return nil, fmt.Errorf("%w: stripe: %w", domain.ErrDependencyUnavailable, err)
	}

	return resultFromIntent(intent), nil
}

func resultFromIntent(intent *stripe.PaymentIntent) *domain.PaymentResult {
	result := &domain.PaymentResult{TransactionID: intent.ID}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Status = domain.PaymentSucceeded
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusProcessing:
		result.Status = domain.PaymentPending
		result.RedirectRef = intent.ClientSecret
		if intent.NextAction != nil && intent.NextAction.RedirectToURL != nil {
			result.RedirectRef = intent.NextAction.RedirectToURL.URL
		}
	default:
		result.Status = domain.PaymentFailed
		result.Message = fmt.Sprintf("payment intent is %s", intent.Status)
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			result.Message = intent.LastPaymentError.Msg
		}
	}

	return result
}

// Refund returns the money of a captured intent. Intents that were never
// captured are cancelled so the authorization is released.
func (g *StripeGateway) Refund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx

	intent, err := paymentintent.Get(req.TransactionID, getParams)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe: %w", domain.ErrDependencyUnavailable, err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusCanceled:
		return &domain.RefundResult{Success: true, RefundID: intent.ID, Message: "payment intent already cancelled"}, nil

	case stripe.PaymentIntentStatusSucceeded:
		params := &stripe.RefundParams{
			PaymentIntent: stripe.String(intent.ID),
			Amount:        stripe.Int64(minorUnits(req.Amount)),
		}
		params.Context = ctx
		params.SetIdempotencyKey(fmt.Sprintf("booking-%d-refund", req.BookingID))
		params.AddMetadata(metadataBookingID, strconv.FormatInt(req.BookingID, 10))

		r, err := refund.New(params)
		if err != nil {
			var stripeErr *stripe.Error
			if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeInvalidRequest {
				return &domain.RefundResult{Success: false, Message: stripeErr.Msg}, nil
			}
			return nil, fmt.Errorf("%w: stripe: %w", domain.ErrDependencyUnavailable, err)
		}

		ok := r.Status == stripe.RefundStatusSucceeded || r.Status == stripe.RefundStatusPending
		return &domain.RefundResult{Success: ok, RefundID: r.ID, Message: string(r.Status)}, nil

	default:
		params := &stripe.PaymentIntentCancelParams{}
		params.Context = ctx

		cancelled, err := paymentintent.Cancel(intent.ID, params)
		if err != nil {
			return nil, fmt.Errorf("%w: stripe: %w", domain.ErrDependencyUnavailable, err)
		}

		return &domain.RefundResult{Success: true, RefundID: cancelled.ID, Message: "payment intent cancelled"}, nil
	}
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSignature, err)
	}

	return eventFromStripe(event)
}

func eventFromStripe(event stripe.Event) (*domain.PaymentEvent, error) {
	result := &domain.PaymentEvent{ID: event.ID, Type: domain.PaymentEventIgnored}

	var metadata map[string]string

	switch string(event.Type) {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("%w: decode payment intent: %w", domain.ErrInvalidArgument, err)
		}

		result.TransactionID = intent.ID
		metadata = intent.Metadata
		if event.Type == "payment_intent.succeeded" {
			result.Type = domain.PaymentEventSucceeded
		} else {
			result.Type = domain.PaymentEventFailed
		}

	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w: decode checkout session: %w", domain.ErrInvalidArgument, err)
		}

		if session.PaymentIntent != nil {
			result.TransactionID = session.PaymentIntent.ID
		}
		metadata = session.Metadata
		result.Type = domain.PaymentEventSucceeded

	default:
		return result, nil
	}

	bookingID, err := strconv.ParseInt(metadata[metadataBookingID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: event %s has no valid booking_id metadata", domain.ErrInvalidArgument, event.ID)
	}
	result.BookingID = bookingID

	return result, nil
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
