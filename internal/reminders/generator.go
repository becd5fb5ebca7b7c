package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/events"
	"github.com/ziadkadry99/lifeos-notify/internal/logger"
	"github.com/ziadkadry99/lifeos-notify/internal/metrics"
	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
)

// Summary reports one generation pass.
type Summary struct {
	Evaluated int `json:"evaluated"`
	Due       int `json:"due"`
	Created   int `json:"created"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Generator materializes due reminders. Generate is safe to call
// repeatedly and concurrently: each period is generated at most once.
type Generator struct {
	store   *Store
	eval    Evaluator
	log     *logger.Logger
	metrics *metrics.Metrics
	events  events.Publisher
	now     func() time.Time
}

// NewGenerator creates a Generator. Nil log, metrics and publisher are
// allowed.
func NewGenerator(store *Store, eval Evaluator, log *logger.Logger, m *metrics.Metrics, pub events.Publisher) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Generator{store: store, eval: eval, log: log, metrics: m, events: pub, now: time.Now}
}

// Generate evaluates every enabled definition against the current time.
func (g *Generator) Generate(ctx context.Context) (Summary, error) {
	return g.GenerateAt(ctx, g.now())
}

// GenerateAt evaluates every enabled definition against now.
func (g *Generator) GenerateAt(ctx context.Context, now time.Time) (Summary, error) {
	var sum Summary
	defs, err := g.store.ListEnabled(ctx)
	if err != nil {
		return sum, err
	}

	var errs []error
	for _, d := range defs {
		sum.Evaluated++

		occ, due, err := g.eval.Occurrence(d, now)
		if err != nil {
			sum.Errors++
			errs = append(errs, fmt.Errorf("reminder %s: %w", d.ID, err))
			continue
		}
		if !due {
			continue
		}
		sum.Due++

		bucket, err := g.eval.PeriodBucket(d, now)
		if err != nil {
			sum.Errors++
			errs = append(errs, fmt.Errorf("reminder %s: %w", d.ID, err))
			continue
		}

		n, err := g.store.Materialize(ctx, d.ID, bucket, notificationFor(d, occ))
		if err != nil {
			sum.Errors++
			errs = append(errs, fmt.Errorf("reminder %s: %w", d.ID, err))
			g.log.Error(err, "materializing reminder", "reminder_id", d.ID, "bucket", bucket)
			continue
		}
		if n == nil {
			sum.Skipped++
			continue
		}

		sum.Created++
		g.log.Info("reminder generated", "reminder_id", d.ID, "notification_id", n.ID, "bucket", bucket)
		if err := g.events.Publish(ctx, events.Event{
			Type:           events.Generated,
			NotificationID: n.ID,
			UserID:         n.UserID,
			Status:         string(n.Status),
			Detail:         bucket,
			At:             now,
		}); err != nil {
			g.log.Warn("publishing event", "error", err.Error())
		}
	}

	g.metrics.Reminders(sum.Created, sum.Skipped)
	return sum, errors.Join(errs...)
}

func notificationFor(d Definition, occ time.Time) notifications.Notification {
	return notifications.Notification{
		UserID:          d.UserID,
		Title:           d.Title,
		Body:            d.Body,
		Data:            d.Data,
		Category:        d.Category,
		ScheduledAt:     occ.UTC(),
		IsReminder:      true,
		ReminderID:      d.ID,
		ReferenceType:   d.ReferenceType,
		ReferenceID:     d.ReferenceID,
		RepeatPattern:   d.repeatPattern(),
		MaxSnoozeCount:  d.MaxSnoozeCount,
		DeliveryMethods: d.DeliveryMethods,
		Priority:        d.Priority,
	}
}
