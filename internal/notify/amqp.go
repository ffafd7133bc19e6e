package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/metinatakli/booking-service/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const BookingConfirmedQueue = "booking.confirmed"

type BookingConfirmedEvent struct {
	BookingID     int64     `json:"bookingId"`
	UserID        string    `json:"userId"`
	ShowtimeID    int64     `json:"showtimeId"`
	MovieID       int64     `json:"movieId"`
	TheaterID     int64     `json:"theaterId"`
	Seats         []string  `json:"seats"`
	TotalPrice    string    `json:"totalPrice"`
	Currency      string    `json:"currency"`
	TransactionID string    `json:"transactionId,omitempty"`
	ConfirmedAt   time.Time `json:"confirmedAt"`
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes booking.confirmed events to a durable RabbitMQ queue.
type AMQPPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    publisher
	queue string
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare %s queue: %w", BookingConfirmedQueue, err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, queue: BookingConfirmedQueue}, nil
}

func (p *AMQPPublisher) BookingConfirmed(ctx context.Context, b domain.Booking) error {
	event := BookingConfirmedEvent{
		BookingID:   b.ID,
		UserID:      b.UserID,
		ShowtimeID:  b.ShowtimeID,
		MovieID:     b.MovieID,
		TheaterID:   b.TheaterID,
		Seats:       b.SelectedSeats,
		TotalPrice:  b.TotalPrice.StringFixed(2),
		Currency:    b.Currency,
		ConfirmedAt: b.UpdatedAt.UTC(),
	}
	if b.PaymentTransactionID != nil {
		event.TransactionID = *b.PaymentTransactionID
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("booking-%d-confirmed", b.ID),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish booking %d: %w", b.ID, err)
	}

	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
