package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/delivery"
)

// PushConfig configures the HTTP push gateway.
type PushConfig struct {
	URL     string        `yaml:"url" koanf:"url"`
	APIKey  string        `yaml:"api_key" koanf:"api_key"`
	Timeout time.Duration `yaml:"timeout" koanf:"timeout"`
}

type pushMessage struct {
	Token          string         `json:"token"`
	NotificationID string         `json:"notification_id"`
	Title          string         `json:"title"`
	Body           string         `json:"body,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Category       string         `json:"category,omitempty"`
	Priority       string         `json:"priority"`
	Sound          string         `json:"sound,omitempty"`
	Icon           string         `json:"icon,omitempty"`
}

// Push posts payloads to a push gateway that fronts FCM, APNs and Web Push.
// The destination is the device token.
type Push struct {
	cfg    PushConfig
	client *http.Client
}

func NewPush(cfg PushConfig) *Push {
	return &Push{cfg: cfg, client: newClient(cfg.Timeout)}
}

func (p *Push) Send(ctx context.Context, token string, payload delivery.Payload) error {
	body, err := json.Marshal(pushMessage{
		Token:          token,
		NotificationID: payload.NotificationID,
		Title:          payload.Title,
		Body:           payload.Body,
		Data:           payload.Data,
		Category:       payload.Category,
		Priority:       string(payload.Priority),
		Sound:          payload.Sound,
		Icon:           payload.Icon,
	})
	if err != nil {
		return delivery.PermanentError(fmt.Errorf("encoding push message: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return delivery.PermanentError(fmt.Errorf("creating push request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return delivery.TransientError(fmt.Errorf("sending push: %w", err))
	}
	defer resp.Body.Close()

	return classifyResponse(resp, time.Now())
}
