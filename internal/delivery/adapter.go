package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
)

// FailureKind classifies a failed send.
type FailureKind string

const (
	// Transient covers network errors and timeouts; eligible for retry.
	Transient FailureKind = "transient"
	// RateLimited is retried with a larger backoff.
	RateLimited FailureKind = "rate_limited"
	// Permanent covers an invalid token or recipient; never retried.
	Permanent FailureKind = "permanent"
)

// severity orders failure kinds from least to most severe.
var severity = map[FailureKind]int{
	"":          0,
	Transient:   1,
	RateLimited: 2,
	Permanent:   3,
}

// Worse reports whether a is more severe than b.
func Worse(a, b FailureKind) bool {
	return severity[a] > severity[b]
}

// Outcome maps a failure kind to the attempt-log outcome. The empty kind
// is success.
func (k FailureKind) Outcome() notifications.Outcome {
	switch k {
	case "":
		return notifications.OutcomeSuccess
	case RateLimited:
		return notifications.OutcomeRateLimited
	case Permanent:
		return notifications.OutcomePermanent
	default:
		return notifications.OutcomeTransient
	}
}

// Error is a classified send failure returned by a ChannelAdapter.
type Error struct {
	Kind       FailureKind
	Err        error
	RetryAfter time.Duration // hint for RateLimited
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TransientError wraps err as a transient failure.
func TransientError(err error) error { return &Error{Kind: Transient, Err: err} }

// PermanentError wraps err as a permanent failure.
func PermanentError(err error) error { return &Error{Kind: Permanent, Err: err} }

// RateLimitedError wraps err as a rate-limited failure with a retry hint.
func RateLimitedError(err error, retryAfter time.Duration) error {
	return &Error{Kind: RateLimited, Err: err, RetryAfter: retryAfter}
}

// Classify returns the failure kind of err. Nil is success (empty kind).
// Unclassified errors, including timeouts, are transient.
func Classify(err error) (FailureKind, time.Duration) {
	if err == nil {
		return "", 0
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, de.RetryAfter
	}
	return Transient, 0
}

// Payload is the channel-agnostic content handed to adapters.
type Payload struct {
	NotificationID string                 `json:"notification_id"`
	Title          string                 `json:"title"`
	Body           string                 `json:"body"`
	Data           map[string]any         `json:"data,omitempty"`
	Category       string                 `json:"category,omitempty"`
	Priority       notifications.Priority `json:"priority"`
	Sound          string                 `json:"sound,omitempty"`
	Icon           string                 `json:"icon,omitempty"`
}

// ChannelAdapter delivers a payload to one destination on one channel:
// a push token, an email address or a phone number. A nil error is
// success; failures should be returned as *Error.
type ChannelAdapter interface {
	Send(ctx context.Context, destination string, payload Payload) error
}

// AdapterFunc lets an ordinary function act as a ChannelAdapter.
type AdapterFunc func(ctx context.Context, destination string, payload Payload) error

func (f AdapterFunc) Send(ctx context.Context, destination string, payload Payload) error {
	return f(ctx, destination, payload)
}

// CategoryStyle is the presentation attached to payloads of one category.
type CategoryStyle struct {
	Sound string `yaml:"sound" koanf:"sound"`
	Icon  string `yaml:"icon" koanf:"icon"`
}

// Categories is the immutable per-category presentation table.
type Categories map[string]CategoryStyle
