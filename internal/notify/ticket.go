package notify

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/phpdave11/gofpdf"
)

const showtimeLayout = "Mon, 02 Jan 2006 15:04"

// RenderTicket draws a one-page A4 ticket for a confirmed booking.
func RenderTicket(b domain.Booking) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Ticket #%d", b.ID), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.Cell(0, 10, "MOVIE TICKET")
	pdf.Ln(14)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, b.MovieTitle)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Booking   : #%d", b.ID),
		fmt.Sprintf("Theater   : %s", b.TheaterName),
		fmt.Sprintf("Showtime  : %s", b.ShowtimeStart.Format(showtimeLayout)),
		fmt.Sprintf("Seats     : %s", strings.Join(b.SelectedSeats, ", ")),
		fmt.Sprintf("Total     : %s %s", b.TotalPrice.StringFixed(2), b.Currency),
	}
	if b.PaymentTransactionID != nil {
		lines = append(lines, fmt.Sprintf("Payment   : %s", *b.PaymentTransactionID))
	}

	for _, l := range lines {
		pdf.Cell(0, 7, l)
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Please show this ticket at the entrance. Cancellations close two hours before the showtime.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("render ticket for booking %d: %w", b.ID, err)
	}

	return buf.Bytes(), fmt.Sprintf("ticket-%d.pdf", b.ID), nil
}
