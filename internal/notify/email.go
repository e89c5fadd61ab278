package notify

import (
	"context"
	"errors"
	"fmt"
	"html"

	"gopkg.in/gomail.v2"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Email sends the reminder over SMTP.
type Email struct {
	sender mailSender
	from   string
	to     []string
}

func NewEmail(opts EmailOptions) (*Email, error) {
	if opts.Host == "" || opts.From == "" || len(opts.To) == 0 {
		return nil, errors.New("email channel needs host, from and at least one recipient")
	}
	return &Email{
		sender: gomail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password),
		from:   opts.From,
		to:     opts.To,
	}, nil
}

func (e *Email) Name() string { return "email" }

func (e *Email) Deliver(ctx context.Context, r Reminder) error {
	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", e.to...)
	m.SetHeader("Subject", fmt.Sprintf("Reminder: %s", r.Description))
	m.SetBody("text/plain", r.Toast())
	m.AddAlternative("text/html", fmt.Sprintf(
		"<h3>Reminder</h3><p><strong>%s</strong></p><p>Deadline: %s</p>",
		html.EscapeString(r.Description), html.EscapeString(r.Deadline),
	))

	return blocking(ctx, func() error {
		if err := e.sender.DialAndSend(m); err != nil {
			return fmt.Errorf("failed to send reminder email: %w", err)
		}
		return nil
	})
}
