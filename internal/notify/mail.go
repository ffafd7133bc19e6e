package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/metinatakli/booking-service/internal/mailer"
)

const bookingConfirmedTemplate = "booking_confirmed.tmpl"

// MailNotifier e-mails the booking owner with the ticket attached.
type MailNotifier struct {
	mailer mailer.Mailer
}

func NewMailNotifier(m mailer.Mailer) *MailNotifier {
	return &MailNotifier{mailer: m}
}

func (n *MailNotifier) BookingConfirmed(ctx context.Context, b domain.Booking) error {
	if b.UserEmail == "" {
		return fmt.Errorf("booking %d has no e-mail address", b.ID)
	}

	ticket, filename, err := RenderTicket(b)
	if err != nil {
		return err
	}

	data := map[string]any{
		"BookingID":   b.ID,
		"MovieTitle":  b.MovieTitle,
		"TheaterName": b.TheaterName,
		"Showtime":    b.ShowtimeStart.Format(showtimeLayout),
		"Seats":       strings.Join(b.SelectedSeats, ", "),
		"Total":       fmt.Sprintf("%s %s", b.TotalPrice.StringFixed(2), b.Currency),
	}

	return n.mailer.Send(b.UserEmail, bookingConfirmedTemplate, data, mailer.Attachment{
		Filename:    filename,
		ContentType: "application/pdf",
		Data:        ticket,
	})
}
