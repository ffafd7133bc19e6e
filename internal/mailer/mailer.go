package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/go-mail/mail/v2"
)

//go:embed "templates"
var templateFS embed.FS

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Mailer interface {
	Send(recipient, templateFile string, data any, attachments ...Attachment) error
}

type SMTPMailer struct {
	dialer *mail.Dialer
	sender string
}

func NewSMTPMailer(host string, port int, username, password, sender string) *SMTPMailer {
	dialer := mail.NewDialer(host, port, username, password)
	dialer.Timeout = 5 * time.Second

	return &SMTPMailer{
		dialer: dialer,
		sender: sender,
	}
}

// Send renders the subject, plainBody and htmlBody blocks of templateFile and
// delivers the result, retrying a couple of times on transient SMTP errors.
func (m *SMTPMailer) Send(recipient, templateFile string, data any, attachments ...Attachment) error {
	msg, err := m.message(recipient, templateFile, data, attachments)
	if err != nil {
		return err
	}

	for i := 1; i <= 3; i++ {
		err = m.dialer.DialAndSend(msg)
		if err == nil {
			return nil
		}

		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("send %s to %s: %w", templateFile, recipient, err)
}

func (m *SMTPMailer) message(recipient, templateFile string, data any, attachments []Attachment) (*mail.Message, error) {
	subject, plainBody, htmlBody, err := render(templateFile, data)
	if err != nil {
		return nil, err
	}

	msg := mail.NewMessage()
	msg.SetHeader("To", recipient)
	msg.SetHeader("From", m.sender)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", plainBody)
	msg.AddAlternative("text/html", htmlBody)

	for _, a := range attachments {
		msg.Attach(a.Filename,
			mail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(a.Data)
				return err
			}),
			mail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}),
		)
	}

	return msg, nil
}

func render(templateFile string, data any) (subject, plainBody, htmlBody string, err error) {
	tmpl, err := template.New("email").ParseFS(templateFS, "templates/"+templateFile)
	if err != nil {
		return "", "", "", fmt.Errorf("parse template %s: %w", templateFile, err)
	}

	blocks := make(map[string]string, 3)
	for _, name := range []string{"subject", "plainBody", "htmlBody"} {
		var buf bytes.Buffer
		if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
			return "", "", "", fmt.Errorf("render %s of %s: %w", name, templateFile, err)
		}
		blocks[name] = buf.String()
	}

	return blocks["subject"], blocks["plainBody"], blocks["htmlBody"], nil
}
