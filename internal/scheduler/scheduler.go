// Package scheduler drives due notifications through quiet hours,
// delivery and retry, persisting every outcome through the store's
// compare-and-transition.
package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/delivery"
	"github.com/ziadkadry99/lifeos-notify/internal/events"
	"github.com/ziadkadry99/lifeos-notify/internal/logger"
	"github.com/ziadkadry99/lifeos-notify/internal/metrics"
	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
	"github.com/ziadkadry99/lifeos-notify/internal/preferences"
	"github.com/ziadkadry99/lifeos-notify/internal/quiethours"
	"github.com/ziadkadry99/lifeos-notify/internal/retry"
	"golang.org/x/sync/errgroup"
)

// SuppressedReason is recorded on notifications cancelled because the
// user disabled their category or every requested channel.
const SuppressedReason = "suppressed by preferences"

// Config controls tick size and parallelism.
type Config struct {
	Interval    time.Duration `yaml:"interval" koanf:"interval"`
	BatchSize   int           `yaml:"batch_size" koanf:"batch_size"`
	Concurrency int           `yaml:"concurrency" koanf:"concurrency"`
	LeaseTTL    time.Duration `yaml:"lease_ttl" koanf:"lease_ttl"`
}

// DefaultConfig returns the stock scheduler settings.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		BatchSize:   200,
		Concurrency: 8,
		LeaseTTL:    2 * time.Minute,
	}
}

// PreferenceSource loads a user's delivery preferences.
type PreferenceSource interface {
	Get(ctx context.Context, userID string) (preferences.Preference, error)
}

// Dispatcher sends one round of a notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *notifications.Notification, channels []notifications.Channel, pref preferences.Preference) delivery.Result
}

// Summary counts what one tick did.
type Summary struct {
	Due         int `json:"due"`
	Readmitted  int `json:"readmitted"`
	Sent        int `json:"sent"`
	Retried     int `json:"retried"`
	Failed      int `json:"failed"`
	Rescheduled int `json:"rescheduled"`
	Suppressed  int `json:"suppressed"`
	Conflicts   int `json:"conflicts"`
	Errors      int `json:"errors"`
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeRetried
	outcomeFailed
	outcomeRescheduled
	outcomeSuppressed
	outcomeConflict
	outcomeError
)

func (s *Summary) add(o outcome) {
	switch o {
	case outcomeSent:
		s.Sent++
	case outcomeRetried:
		s.Retried++
	case outcomeFailed:
		s.Failed++
	case outcomeRescheduled:
		s.Rescheduled++
	case outcomeSuppressed:
		s.Suppressed++
	case outcomeConflict:
		s.Conflicts++
	case outcomeError:
		s.Errors++
	}
}

// Scheduler processes due notifications. Tick is re-entrant: concurrent
// ticks, in this process or another, never deliver a notification twice
// because each dispatch runs under a lease taken with Claim.
type Scheduler struct {
	store      *notifications.Store
	prefs      PreferenceSource
	dispatcher Dispatcher
	policy     *retry.Policy
	cfg        Config
	log        *logger.Logger
	metrics    *metrics.Metrics
	events     events.Publisher
	now        func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithEvents(p events.Publisher) Option {
	return func(s *Scheduler) { s.events = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler. Zero config fields take their defaults.
func New(store *notifications.Store, prefs PreferenceSource, dispatcher Dispatcher, policy *retry.Policy, cfg Config, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = def.LeaseTTL
	}

	s := &Scheduler{
		store:      store,
		prefs:      prefs,
		dispatcher: dispatcher,
		policy:     policy,
		cfg:        cfg,
		log:        logger.Nop(),
		events:     events.Nop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Tick runs one pass over the due set. Per-notification failures are
// counted in the Summary; only a failure to list the due set is returned.
func (s *Scheduler) Tick(ctx context.Context) (Summary, error) {
	start := s.now()
	var sum Summary

	due, err := s.store.ListDue(ctx, start, s.cfg.BatchSize)
	if err != nil {
		return sum, err
	}
	sum.Due = len(due)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)
	for i := range due {
		n := due[i]
		g.Go(func() error {
			readmitted, o := s.process(ctx, n, start)
			mu.Lock()
			defer mu.Unlock()
			if readmitted {
				sum.Readmitted++
			}
			sum.add(o)
			return nil
		})
	}
	g.Wait()

	s.metrics.ObserveTick(s.now().Sub(start).Seconds(), sum.Due)
	s.metrics.TickResult("sent", sum.Sent)
	s.metrics.TickResult("retried", sum.Retried)
	s.metrics.TickResult("failed", sum.Failed)
	s.metrics.TickResult("rescheduled", sum.Rescheduled)
	s.metrics.TickResult("suppressed", sum.Suppressed)
	s.metrics.TickResult("error", sum.Errors)

	if sum.Due > 0 {
		s.log.Info("tick complete",
			"due", sum.Due, "sent", sum.Sent, "retried", sum.Retried, "failed", sum.Failed,
			"rescheduled", sum.Rescheduled, "suppressed", sum.Suppressed, "conflicts", sum.Conflicts,
			"errors", sum.Errors)
	}
	return sum, nil
}

func (s *Scheduler) process(ctx context.Context, n notifications.Notification, now time.Time) (bool, outcome) {
	log := s.log.With("notification_id", n.ID, "user_id", n.UserID)
	readmitted := false

	// A snooze that has ended re-enters the pipeline as pending at its
	// snooze_until.
	if n.Status == notifications.StatusSnoozed {
		until := n.DueAt()
		updated, err := s.store.Transition(ctx, n.ID, notifications.StatusSnoozed, notifications.StatusPending,
			notifications.Fields{ScheduledAt: &until})
		if err != nil {
			return false, s.transitionFailed(log, err, "re-admitting snoozed notification")
		}
		n = *updated
		readmitted = true
	}

	token, err := s.store.Claim(ctx, n.ID, notifications.StatusPending, now, now.Add(s.cfg.LeaseTTL))
	if err != nil {
		return readmitted, s.transitionFailed(log, err, "claiming notification")
	}

	pref, err := s.prefs.Get(ctx, n.UserID)
	if err != nil {
		// The lease expires and a later tick picks the notification up again.
		log.Error(err, "loading preferences")
		return readmitted, outcomeError
	}

	pending := n.PendingChannels()
	channels := slices.DeleteFunc(slices.Clone(pending), func(c notifications.Channel) bool {
		return !pref.MethodEnabled(c)
	})
	if !pref.CategoryAllowed(n.Category) || (len(pending) > 0 && len(channels) == 0) {
		reason := SuppressedReason
		_, err := s.store.Transition(ctx, n.ID, notifications.StatusPending, notifications.StatusCancelled,
			notifications.Fields{FailureReason: &reason, LeaseToken: token})
		if err != nil {
			return readmitted, s.transitionFailed(log, err, "cancelling suppressed notification")
		}
		log.Info("notification suppressed by preferences", "category", n.Category)
		s.publish(ctx, events.Cancelled, &n, notifications.StatusCancelled, reason)
		return readmitted, outcomeSuppressed
	}

	if quiethours.IsSuppressed(now, pref, n.Priority) {
		next := quiethours.NextAllowed(now, pref).UTC()
		_, err := s.store.Transition(ctx, n.ID, notifications.StatusPending, notifications.StatusPending,
			notifications.Fields{ScheduledAt: &next, LeaseToken: token})
		if err != nil {
			return readmitted, s.transitionFailed(log, err, "rescheduling for quiet hours")
		}
		log.Debug("delivery deferred by quiet hours", "until", next.Format(time.RFC3339))
		s.publish(ctx, events.Rescheduled, &n, notifications.StatusPending, next.Format(time.RFC3339))
		return readmitted, outcomeRescheduled
	}

	// The round ends well inside the lease so that no other tick can
	// claim the notification while sends are still running.
	roundCtx, cancel := context.WithTimeout(ctx, s.roundBudget())
	res := s.dispatcher.Dispatch(roundCtx, &n, channels, pref)
	cancel()
	finished := s.now()
	if finished.Before(now) {
		finished = now
	}

	round := n.AttemptCount + 1
	if err := s.store.AppendAttempts(ctx, n.ID, res.Attempts(n.ID, round, now)); err != nil {
		// Without a recorded attempt the round is not judged; the lease
		// expires and a later tick runs it again.
		log.Error(err, "recording delivery attempts")
		return readmitted, outcomeError
	}

	delivered := mergeChannels(n.DeliveredChannels, res.Succeeded())

	if res.AllSucceeded() {
		cleared := ""
		_, err := s.store.Transition(ctx, n.ID, notifications.StatusPending, notifications.StatusSent,
			notifications.Fields{SentAt: &finished, DeliveredChannels: &delivered, FailureReason: &cleared, LeaseToken: token})
		if err != nil {
			return readmitted, s.transitionFailed(log, err, "marking notification sent")
		}
		log.Info("notification sent", "channels", len(delivered))
		s.publish(ctx, events.Sent, &n, notifications.StatusSent, "")
		return readmitted, outcomeSent
	}

	kind, hint := res.Worst()
	action := s.policy.WithHint(s.policy.NextAction(n.AttemptCount, kind, n.Priority), hint)
	reason := res.Failure()

	if action.GiveUp {
		if action.Reason != "" {
			reason = action.Reason + ": " + reason
		}
		_, err := s.store.Transition(ctx, n.ID, notifications.StatusPending, notifications.StatusFailed,
			notifications.Fields{AttemptCount: &round, DeliveredChannels: &delivered, FailureReason: &reason, LeaseToken: token})
		if err != nil {
			return readmitted, s.transitionFailed(log, err, "marking notification failed")
		}
		log.Warn("notification failed", "attempts", round, "reason", reason)
		s.publish(ctx, events.Failed, &n, notifications.StatusFailed, reason)
		return readmitted, outcomeFailed
	}

	next := finished.Add(action.RetryAfter)
	_, err = s.store.Transition(ctx, n.ID, notifications.StatusPending, notifications.StatusPending,
		notifications.Fields{ScheduledAt: &next, AttemptCount: &round, DeliveredChannels: &delivered, FailureReason: &reason, LeaseToken: token})
	if err != nil {
		return readmitted, s.transitionFailed(log, err, "scheduling retry")
	}
	log.Info("delivery will be retried", "attempt", round, "kind", string(kind), "retry_at", next.Format(time.RFC3339))
	s.publish(ctx, events.Retrying, &n, notifications.StatusPending, reason)
	return readmitted, outcomeRetried
}

// roundBudget bounds one dispatch round to three quarters of the lease.
func (s *Scheduler) roundBudget() time.Duration {
	return s.cfg.LeaseTTL - s.cfg.LeaseTTL/4
}

// transitionFailed classifies a lost compare-and-transition. A conflict
// means a user action or another tick got there first; it is counted,
// never retried.
func (s *Scheduler) transitionFailed(log *logger.Logger, err error, action string) outcome {
	if notifications.IsConflict(err) {
		s.metrics.Conflict()
		log.Debug("lost transition race", "action", action, "error", err.Error())
		return outcomeConflict
	}
	log.Error(err, action)
	return outcomeError
}

func (s *Scheduler) publish(ctx context.Context, t events.Type, n *notifications.Notification, status notifications.Status, detail string) {
	err := s.events.Publish(ctx, events.Event{
		Type:           t,
		NotificationID: n.ID,
		UserID:         n.UserID,
		Status:         string(status),
		Detail:         detail,
		At:             s.now(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("publishing event", "error", err.Error())
	}
}

func mergeChannels(a, b []notifications.Channel) []notifications.Channel {
	out := slices.Clone(a)
	for _, c := range b {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	if out == nil {
		out = []notifications.Channel{}
	}
	return out
}
