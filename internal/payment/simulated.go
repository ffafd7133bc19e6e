package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/metinatakli/booking-service/internal/domain"
)

const SimulatedSignatureHeader = "X-Simulated-Signature"

type SimulatedMode string

const (
	SimulateSucceed SimulatedMode = "succeed"
	SimulateFail    SimulatedMode = "fail"
	SimulateAsync   SimulatedMode = "async"
	SimulateRandom  SimulatedMode = "random"
)

func ParseSimulatedMode(s string) (SimulatedMode, error) {
	switch m := SimulatedMode(strings.ToLower(s)); m {
	case SimulateSucceed, SimulateFail, SimulateAsync, SimulateRandom:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown simulated payment mode %q", domain.ErrInvalidArgument, s)
}

// SimulatedGateway stands in for a real provider in development and tests.
// Its webhooks are signed with HMAC-SHA256 over the raw body.
type SimulatedGateway struct {
	mode          SimulatedMode
	successRate   float64
	latency       time.Duration
	refundsFail   bool
	webhookSecret string
	redirectBase  string
	random        func() float64

	mu           sync.Mutex
	transactions map[string]simulatedTransaction
}

type simulatedTransaction struct {
	bookingID int64
	status    domain.PaymentStatus
	refunded  bool
}

type SimulatedOption func(*SimulatedGateway)

// WithSuccessRate is the share of payments that succeed in random mode.
func WithSuccessRate(rate float64) SimulatedOption {
	return func(g *SimulatedGateway) {
		if rate >= 0 && rate <= 1 {
			g.successRate = rate
		}
	}
}

func WithLatency(d time.Duration) SimulatedOption {
	return func(g *SimulatedGateway) {
		g.latency = d
	}
}

func WithFailingRefunds(fail bool) SimulatedOption {
	return func(g *SimulatedGateway) {
		g.refundsFail = fail
	}
}

func WithRandomSource(random func() float64) SimulatedOption {
	return func(g *SimulatedGateway) {
		if random != nil {
			g.random = random
		}
	}
}

func NewSimulatedGateway(mode SimulatedMode, webhookSecret, redirectBase string, opts ...SimulatedOption) *SimulatedGateway {
	g := &SimulatedGateway{
		mode:          mode,
		successRate:   0.9,
		webhookSecret: webhookSecret,
		redirectBase:  strings.TrimRight(redirectBase, "/"),
		random:        rand.Float64,
		transactions:  make(map[string]simulatedTransaction),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *SimulatedGateway) Initiate(ctx context.Context, req domain.PaymentRequest) (*domain.PaymentResult, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}

	result := &domain.PaymentResult{TransactionID: "sim_" + uuid.NewString()}

	switch g.mode {
	case SimulateSucceed:
		result.Status = domain.PaymentSucceeded
	case SimulateFail:
		result.Status = domain.PaymentFailed
		result.Message = "card declined"
	case SimulateAsync:
		result.Status = domain.PaymentPending
		result.RedirectRef = fmt.Sprintf("%s/pay/%s", g.redirectBase, result.TransactionID)
	default:
		if g.random() < g.successRate {
			result.Status = domain.PaymentSucceeded
		} else {
			result.Status = domain.PaymentFailed
			result.Message = "card declined"
		}
	}

	g.mu.Lock()
	g.transactions[result.TransactionID] = simulatedTransaction{bookingID: req.BookingID, status: result.Status}
	g.mu.Unlock()

	return result, nil
}

func (g *SimulatedGateway) Refund(ctx context.Context, req domain.RefundRequest) (*domain.RefundResult, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	tx, ok := g.transactions[req.TransactionID]
	switch {
	case !ok:
		return &domain.RefundResult{Success: false, Message: "unknown transaction"}, nil
	case tx.refunded:
		return &domain.RefundResult{Success: true, RefundID: "re_" + req.TransactionID, Message: "already refunded"}, nil
	case g.refundsFail:
		return &domain.RefundResult{Success: false, Message: "refund rejected"}, nil
	}

	tx.refunded = true
	g.transactions[req.TransactionID] = tx

	return &domain.RefundResult{Success: true, RefundID: "re_" + req.TransactionID}, nil
}

type simulatedWebhook struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	BookingID     int64  `json:"bookingId"`
	TransactionID string `json:"transactionId"`
}

func (g *SimulatedGateway) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	expected, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(expected, sign(g.webhookSecret, payload)) {
		return nil, domain.ErrInvalidSignature
	}

	var body simulatedWebhook
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: decode webhook: %w", domain.ErrInvalidArgument, err)
	}

	event := &domain.PaymentEvent{
		ID:            body.ID,
		BookingID:     body.BookingID,
		TransactionID: body.TransactionID,
	}

	switch body.Type {
	case "payment.succeeded":
		event.Type = domain.PaymentEventSucceeded
	case "payment.failed":
		event.Type = domain.PaymentEventFailed
	default:
		event.Type = domain.PaymentEventIgnored
	}

	return event, nil
}

// SignedWebhook builds a webhook body for a finished payment together with
// its signature header value.
func (g *SimulatedGateway) SignedWebhook(bookingID int64, transactionID string, succeeded bool) ([]byte, string, error) {
	eventType := "payment.failed"
	if succeeded {
		eventType = "payment.succeeded"
	}

	payload, err := json.Marshal(simulatedWebhook{
		ID:            "evt_" + uuid.NewString(),
		Type:          eventType,
		BookingID:     bookingID,
		TransactionID: transactionID,
	})
	if err != nil {
		return nil, "", err
	}

	return payload, SignPayload(g.webhookSecret, payload), nil
}

func SignPayload(secret string, payload []byte) string {
	return hex.EncodeToString(sign(secret, payload))
}

func sign(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

func (g *SimulatedGateway) wait(ctx context.Context) error {
	if g.latency <= 0 {
		return nil
	}

	t := time.NewTimer(g.latency)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrDependencyUnavailable, ctx.Err())
	case <-t.C:
		return nil
	}
}
