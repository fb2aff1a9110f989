package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPMailer sends plain-text mail through an SMTP relay (Mailpit in development).
type SMTPMailer struct {
	Host string
	Port int
	From string
	Auth smtp.Auth
}

// NewSMTPMailer constructs an unauthenticated mailer.
func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{Host: host, Port: port, From: from}
}

// SendMail delivers one message to all recipients.
func (m *SMTPMailer) SendMail(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(addr, m.Auth, m.From, to, buildMail(m.From, to, subject, body, time.Now()))
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("notify: smtp send: %w", err)
		}
		return nil
	}
}

func buildMail(from string, to []string, subject, body string, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
