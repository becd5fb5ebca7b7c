package delivery

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/logger"
	"github.com/ziadkadry99/lifeos-notify/internal/metrics"
	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
	"github.com/ziadkadry99/lifeos-notify/internal/preferences"
	"github.com/ziadkadry99/lifeos-notify/internal/pushtokens"
)

// DefaultTimeout bounds a single adapter call.
const DefaultTimeout = 10 * time.Second

// TokenStore is the subset of the push token store the dispatcher needs.
type TokenStore interface {
	ListActive(ctx context.Context, userID string) ([]pushtokens.Token, error)
	Deactivate(ctx context.Context, id string) error
	Touch(ctx context.Context, id string, at time.Time) error
}

// Send is the outcome of one adapter call.
type Send struct {
	Channel     notifications.Channel
	Destination string
	TokenID     string
	Kind        FailureKind
	Err         error
	RetryAfter  time.Duration
	At          time.Time
}

// ChannelResult aggregates the sends made on one channel. Kind is empty
// when the channel delivered; for push that means at least one token
// accepted the payload.
type ChannelResult struct {
	Channel    notifications.Channel
	Kind       FailureKind
	RetryAfter time.Duration
	Detail     string
	Sends      []Send
}

// Result is the outcome of one dispatch round.
type Result struct {
	Channels []ChannelResult
}

// Succeeded returns the channels that delivered.
func (r Result) Succeeded() []notifications.Channel {
	var out []notifications.Channel
	for _, c := range r.Channels {
		if c.Kind == "" {
			out = append(out, c.Channel)
		}
	}
	return out
}

// AllSucceeded reports whether every attempted channel delivered.
func (r Result) AllSucceeded() bool {
	for _, c := range r.Channels {
		if c.Kind != "" {
			return false
		}
	}
	return true
}

// Worst returns the most severe failure kind across channels and the
// largest retry hint among channels of that kind.
func (r Result) Worst() (FailureKind, time.Duration) {
	var (
		worst FailureKind
		hint  time.Duration
	)
	for _, c := range r.Channels {
		switch {
		case Worse(c.Kind, worst):
			worst, hint = c.Kind, c.RetryAfter
		case c.Kind == worst && c.RetryAfter > hint:
			hint = c.RetryAfter
		}
	}
	return worst, hint
}

// Failure summarises the failed channels for failure_reason.
func (r Result) Failure() string {
	var parts []string
	for _, c := range r.Channels {
		if c.Kind != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", c.Channel, c.Detail))
		}
	}
	return strings.Join(parts, "; ")
}

// Attempts converts the round into attempt-log entries. Channels that
// failed before any adapter call get a single entry.
func (r Result) Attempts(notificationID string, attempt int, at time.Time) []notifications.Attempt {
	var out []notifications.Attempt
	for _, c := range r.Channels {
		if len(c.Sends) == 0 {
			out = append(out, notifications.Attempt{
				NotificationID: notificationID,
				Attempt:        attempt,
				Channel:        c.Channel,
				AttemptedAt:    at,
				Outcome:        c.Kind.Outcome(),
				Detail:         c.Detail,
			})
			continue
		}
		for _, s := range c.Sends {
			detail := ""
			if s.TokenID != "" {
				detail = "token " + s.TokenID
			}
			if s.Err != nil {
				if detail != "" {
					detail += ": "
				}
				detail += s.Err.Error()
			}
			ts := s.At
			if ts.IsZero() {
				ts = at
			}
			out = append(out, notifications.Attempt{
				NotificationID: notificationID,
				Attempt:        attempt,
				Channel:        c.Channel,
				AttemptedAt:    ts,
				Outcome:        s.Kind.Outcome(),
				Detail:         detail,
			})
		}
	}
	return out
}

// Dispatcher sends a notification through the configured channel routes.
type Dispatcher struct {
	routes     map[notifications.Channel]Route
	tokens     TokenStore
	timeout    time.Duration
	categories Categories
	log        *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-send timeout.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithCategories sets the per-category sound and icon table.
func WithCategories(c Categories) Option {
	return func(d *Dispatcher) { d.categories = maps.Clone(c) }
}

func WithLogger(l *logger.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a Dispatcher. The route map is copied. tokens
// receives last-used and deactivation updates for targets that carry a
// TokenID; it may be nil when no route yields tokens.
func NewDispatcher(routes map[notifications.Channel]Route, tokens TokenStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		routes:  maps.Clone(routes),
		tokens:  tokens,
		timeout: DefaultTimeout,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers n on each of channels. It never returns an error:
// every failure is classified into the Result. Once ctx is done the
// remaining targets are recorded as transient failures without a send.
func (d *Dispatcher) Dispatch(ctx context.Context, n *notifications.Notification, channels []notifications.Channel, pref preferences.Preference) Result {
	payload := d.payload(n)
	var res Result
	for _, ch := range channels {
		cr := d.dispatchChannel(ctx, ch, n, pref, payload)
		if cr.Kind != "" {
			d.log.Warn("channel delivery failed",
				"notification_id", n.ID, "channel", string(ch), "kind", string(cr.Kind), "detail", cr.Detail)
		}
		res.Channels = append(res.Channels, cr)
	}
	return res
}

func (d *Dispatcher) payload(n *notifications.Notification) Payload {
	p := Payload{
		NotificationID: n.ID,
		Title:          n.Title,
		Body:           n.Body,
		Data:           n.Data,
		Category:       n.Category,
		Priority:       n.Priority,
	}
	if style, ok := d.categories[n.Category]; ok {
		p.Sound, p.Icon = style.Sound, style.Icon
	}
	return p
}

// dispatchChannel sends to every target of ch. The channel delivers when
// any target accepts the payload; otherwise its kind is the least severe
// target failure.
func (d *Dispatcher) dispatchChannel(ctx context.Context, ch notifications.Channel, n *notifications.Notification, pref preferences.Preference, payload Payload) ChannelResult {
	cr := ChannelResult{Channel: ch}
	route, ok := d.routes[ch]
	if !ok || route.Adapter == nil {
		cr.Kind, cr.Detail = Permanent, "no adapter configured"
		return cr
	}
	if route.Destinations == nil {
		cr.Kind, cr.Detail = Permanent, "no destination resolver"
		return cr
	}

	targets, err := route.Destinations(ctx, n, pref)
	if err != nil {
		cr.Kind, cr.Detail = Transient, err.Error()
		return cr
	}
	if len(targets) == 0 {
		cr.Kind, cr.Detail = Permanent, "no destination on file"
		return cr
	}

	delivered := false
	var least FailureKind
	for _, tgt := range targets {
		var s Send
		if err := ctx.Err(); err != nil {
			s = Send{Channel: ch, Destination: tgt.Destination, Kind: Transient,
				Err: fmt.Errorf("dispatch round ended: %w", err), At: d.now()}
		} else {
			s = d.send(ctx, route.Adapter, ch, tgt.Destination, payload)
		}
		s.TokenID = tgt.TokenID
		cr.Sends = append(cr.Sends, s)
		d.updateToken(ctx, n.UserID, s)

		if s.Kind == "" {
			delivered = true
		} else if least == "" || Worse(least, s.Kind) {
			least = s.Kind
		}
	}

	if delivered {
		return cr
	}
	cr.Kind = least
	for _, s := range cr.Sends {
		if s.Kind == least && s.RetryAfter > cr.RetryAfter {
			cr.RetryAfter = s.RetryAfter
		}
	}
	if len(cr.Sends) == 1 {
		cr.Detail = cr.Sends[0].Err.Error()
	} else {
		cr.Detail = fmt.Sprintf("all %d destinations failed", len(cr.Sends))
	}
	return cr
}

// updateToken refreshes a token that delivered and deactivates one that
// failed permanently. The writes outlive a cancelled round.
func (d *Dispatcher) updateToken(ctx context.Context, userID string, s Send) {
	if s.TokenID == "" || d.tokens == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	switch s.Kind {
	case "":
		if err := d.tokens.Touch(ctx, s.TokenID, s.At); err != nil {
			d.log.Error(err, "touching push token", "token_id", s.TokenID)
		}
	case Permanent:
		if err := d.tokens.Deactivate(ctx, s.TokenID); err != nil {
			d.log.Error(err, "deactivating push token", "token_id", s.TokenID)
			return
		}
		d.metrics.TokenDeactivated()
		d.log.Info("push token deactivated", "token_id", s.TokenID, "user_id", userID)
	}
}

func (d *Dispatcher) send(ctx context.Context, adapter ChannelAdapter, ch notifications.Channel, destination string, payload Payload) Send {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := d.now()
	done := make(chan error, 1)
	go func() { done <- adapter.Send(sendCtx, destination, payload) }()

	var err error
	select {
	case err = <-done:
	case <-sendCtx.Done():
		err = sendCtx.Err()
	}
	elapsed := d.now().Sub(start)

	s := Send{Channel: ch, Destination: destination, Err: err, At: start}
	if err != nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
		s.Kind = Transient
		s.Err = fmt.Errorf("timed out after %s: %w", d.timeout, err)
	} else {
		s.Kind, s.RetryAfter = Classify(err)
	}

	d.metrics.ObserveSend(string(ch), string(s.Kind.Outcome()), elapsed.Seconds())
	return s
}
