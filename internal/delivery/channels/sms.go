package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/delivery"
)

// SMSConfig configures a form-encoded SMS gateway.
type SMSConfig struct {
	URL       string        `yaml:"url" koanf:"url"`
	AccountID string        `yaml:"account_id" koanf:"account_id"`
	AuthToken string        `yaml:"auth_token" koanf:"auth_token"`
	From      string        `yaml:"from" koanf:"from"`
	Timeout   time.Duration `yaml:"timeout" koanf:"timeout"`
}

// SMS sends text messages through an HTTP gateway. The destination is an
// E.164 phone number.
type SMS struct {
	cfg    SMSConfig
	client *http.Client
}

func NewSMS(cfg SMSConfig) *SMS {
	return &SMS{cfg: cfg, client: newClient(cfg.Timeout)}
}

func (s *SMS) Send(ctx context.Context, phone string, payload delivery.Payload) error {
	text := payload.Title
	if payload.Body != "" {
		text += ": " + payload.Body
	}
	form := url.Values{
		"To":   {phone},
		"From": {s.cfg.From},
		"Body": {text},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return delivery.PermanentError(fmt.Errorf("creating sms request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.cfg.AccountID != "" {
		req.SetBasicAuth(s.cfg.AccountID, s.cfg.AuthToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return delivery.TransientError(fmt.Errorf("sending sms: %w", err))
	}
	defer resp.Body.Close()

	return classifyResponse(resp, time.Now())
}
