package infra

import (
	"bytes"
	"errors"
	"fmt"
	"net/smtp"

	"clawpos/internal/config"

	"github.com/jordan-wright/email"
)

// ErrMailerDisabled is returned when no SMTP host is configured.
var ErrMailerDisabled = errors.New("mailer: SMTP not configured")

// Mailer wraps SMTP configuration for receipts and stock alerts.
// Every send goes through the breaker so a dead relay fails fast.
type Mailer struct {
	host     string
	user     string
	password string
	addr     string
	from     string
	cb       *CircuitBreaker
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		addr:     fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		from:     fmt.Sprintf("%s <%s>", cfg.StoreName, cfg.SMTPUser),
		cb:       NewCircuitBreaker(DefaultCBConfig("smtp")),
	}
}

// Enabled reports whether an SMTP relay is configured.
func (m *Mailer) Enabled() bool { return m.host != "" }

// Breaker exposes the relay breaker to the retry cron and the health endpoint.
func (m *Mailer) Breaker() *CircuitBreaker { return m.cb }

// SendReceipt mails a sale receipt with the PDF attached.
func (m *Mailer) SendReceipt(to, subject, body, fileName string, pdf []byte) error {
	e := m.newEmail(to, subject, body)
	if len(pdf) > 0 {
		if _, err := e.Attach(bytes.NewReader(pdf), fileName, "application/pdf"); err != nil {
			return fmt.Errorf("mailer: attach PDF: %w", err)
		}
	}
	return m.send(e)
}

// SendText mails a plain-text message (stock alerts).
func (m *Mailer) SendText(to, subject, body string) error {
	return m.send(m.newEmail(to, subject, body))
}

func (m *Mailer) newEmail(to, subject, body string) *email.Email {
	e := email.NewEmail()
	e.From = m.from
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)
	return e
}

func (m *Mailer) send(e *email.Email) error {
	if !m.Enabled() {
		return ErrMailerDisabled
	}
	auth := smtp.PlainAuth("", m.user, m.password, m.host)
	return m.cb.Execute(func() error {
		return e.Send(m.addr, auth)
	})
}
