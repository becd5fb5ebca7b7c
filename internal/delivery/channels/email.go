package channels

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"

	"github.com/ziadkadry99/lifeos-notify/internal/delivery"
	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
	"gopkg.in/gomail.v2"
)

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	Host     string `yaml:"host" koanf:"host"`
	Port     int    `yaml:"port" koanf:"port"`
	Username string `yaml:"username" koanf:"username"`
	Password string `yaml:"password" koanf:"password"`
	From     string `yaml:"from" koanf:"from"`
}

// Dialer opens an SMTP session. *gomail.Dialer satisfies it.
type Dialer interface {
	Dial() (gomail.SendCloser, error)
}

// Email delivers notifications over SMTP. The destination is an address.
type Email struct {
	dialer Dialer
	from   string
}

// NewEmail creates an Email adapter dialing the configured server.
func NewEmail(cfg EmailConfig) *Email {
	return NewEmailWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From)
}

func NewEmailWithDialer(d Dialer, from string) *Email {
	return &Email{dialer: d, from: from}
}

func (e *Email) Send(ctx context.Context, address string, payload delivery.Payload) error {
	if err := ctx.Err(); err != nil {
		return delivery.TransientError(err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", address)
	m.SetHeader("Subject", payload.Title)
	m.SetHeader("X-Notification-ID", payload.NotificationID)
	if payload.Priority == notifications.PriorityUrgent || payload.Priority == notifications.PriorityHigh {
		m.SetHeader("X-Priority", "1")
	}
	m.SetBody("text/plain", payload.Body)

	sc, err := e.dialer.Dial()
	if err != nil {
		return classifySMTP(fmt.Errorf("connecting to smtp server: %w", err))
	}
	defer sc.Close()

	if err := sc.Send(e.from, []string{address}, m); err != nil {
		return classifySMTP(fmt.Errorf("sending email: %w", err))
	}
	return nil
}

// classifySMTP treats 5xx replies as permanent and everything else,
// including 4xx replies and network errors, as transient.
func classifySMTP(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return delivery.PermanentError(err)
	}
	return delivery.TransientError(err)
}
