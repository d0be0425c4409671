package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/textproto"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/newsletter-api/internal/config"
)

// Mailer sends email over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	from := cfg.SenderEmail
	if cfg.SenderName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.SenderName, cfg.SenderEmail)
	}
	return &Mailer{
		dialer: dialer,
		from:   from,
	}
}

func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	if _, err := mail.ParseAddress(to); err != nil {
		return &PermanentError{Err: fmt.Errorf("invalid recipient %q: %w", to, err)}
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	if err := ctx.Err(); err != nil {
		return &TransientError{Err: err}
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return classify(err)
	}
	return nil
}

// classify maps SMTP errors to the retry taxonomy: 5xx replies are
// permanent rejections, everything else (4xx, connection errors) is
// transient.
func classify(err error) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 500 {
		return &PermanentError{Err: err}
	}
	return &TransientError{Err: err}
}
