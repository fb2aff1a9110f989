// Package notify defines the email/SMS dispatch contract and its implementations.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Channel selects the delivery medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// Recipient is one addressee; only the field matching the channel is used.
type Recipient struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Message is a single dispatch request.
type Message struct {
	Channel    Channel     `json:"channel"`
	Recipients []Recipient `json:"recipients"`
	Subject    string      `json:"subject,omitempty"`
	Body       string      `json:"body"`
}

var (
	ErrNoRecipients = errors.New("notify: no recipients")
	ErrEmptyBody    = errors.New("notify: empty message body")
	ErrBadChannel   = errors.New("notify: unknown channel")
)

// Validate checks that the message can be delivered on its channel.
func (m Message) Validate() error {
	if !m.Channel.Valid() {
		return fmt.Errorf("%w: %q", ErrBadChannel, m.Channel)
	}
	if strings.TrimSpace(m.Body) == "" {
		return ErrEmptyBody
	}
	if len(m.Addresses()) == 0 {
		return ErrNoRecipients
	}
	return nil
}

// Addresses returns the non-empty addresses for the message channel.
func (m Message) Addresses() []string {
	out := make([]string, 0, len(m.Recipients))
	for _, r := range m.Recipients {
		addr := r.Email
		if m.Channel == ChannelSMS {
			addr = r.Phone
		}
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// Dispatcher sends messages. Implementations return once the message is handed off.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer delivers email.
type Mailer interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
}

// SMSSender delivers text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to []string, body string) error
}

// DirectDispatcher delivers synchronously through the configured providers.
type DirectDispatcher struct {
	Mailer Mailer
	SMS    SMSSender
}

// Send validates and delivers msg.
func (d *DirectDispatcher) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	switch msg.Channel {
	case ChannelEmail:
		if d.Mailer == nil {
			return errors.New("notify: email not configured")
		}
		return d.Mailer.SendMail(ctx, msg.Addresses(), msg.Subject, msg.Body)
	default:
		if d.SMS == nil {
			return errors.New("notify: sms not configured")
		}
		return d.SMS.SendSMS(ctx, msg.Addresses(), msg.Body)
	}
}

// LogDispatcher only logs messages; used in development.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d *LogDispatcher) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		slog.String("channel", string(msg.Channel)),
		slog.Int("recipients", len(msg.Addresses())),
		slog.String("subject", msg.Subject),
	)
	return nil
}
