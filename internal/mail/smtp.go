package mail

import (
	"context"

	"gopkg.in/gomail.v2"
)

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	if from == "" {
		from = username
	}
	return &SMTPMailer{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

// Send dials per message. The dialer has no context support, so ctx only short-circuits
// sends that were already cancelled.
func (s *SMTPMailer) Send(ctx context.Context, to string, tmpl Template, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := render(tmpl, fields)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", r.Subject)
	m.SetBody("text/html", r.HTML)
	return s.dialer.DialAndSend(m)
}
