package mailer

import (
	"context"

	"github.com/go-gomail/gomail"

	"github.com/mailkite/mailkite/internal/config"
)

// SMTPMailer delivers over SMTP using gomail. Each Send dials a fresh
// connection; campaign throughput is bounded by the pipeline throttle, not
// by connection reuse.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg config.SMTP) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewPlainDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/html", email.Body)

	return m.dialer.DialAndSend(msg)
}
