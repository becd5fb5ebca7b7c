package channels

import (
	"context"

	"github.com/ziadkadry99/lifeos-notify/internal/delivery"
	"github.com/ziadkadry99/lifeos-notify/internal/logger"
)

// Log writes payloads to the logger instead of delivering them. It backs
// channels that have no gateway configured in development.
type Log struct {
	channel string
	log     *logger.Logger
}

func NewLog(channel string, log *logger.Logger) *Log {
	return &Log{channel: channel, log: log}
}

func (l *Log) Send(_ context.Context, destination string, payload delivery.Payload) error {
	l.log.Info("notification delivered to log",
		"channel", l.channel,
		"destination", destination,
		"notification_id", payload.NotificationID,
		"title", payload.Title,
		"priority", string(payload.Priority),
	)
	return nil
}
