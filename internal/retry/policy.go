// Package retry maps a failed dispatch round to the next action.
package retry

import (
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/delivery"
	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
)

// Config holds backoff parameters.
type Config struct {
	BaseDelay           time.Duration `yaml:"base_delay" koanf:"base_delay"`
	MaxDelay            time.Duration `yaml:"max_delay" koanf:"max_delay"`
	MaxAttempts         int           `yaml:"max_attempts" koanf:"max_attempts"`
	UrgentBaseDelay     time.Duration `yaml:"urgent_base_delay" koanf:"urgent_base_delay"`
	UrgentMaxAttempts   int           `yaml:"urgent_max_attempts" koanf:"urgent_max_attempts"`
	RateLimitMultiplier int           `yaml:"rate_limit_multiplier" koanf:"rate_limit_multiplier"`
}

// DefaultConfig returns the stock backoff parameters.
func DefaultConfig() Config {
	return Config{
		BaseDelay:           30 * time.Second,
		MaxDelay:            30 * time.Minute,
		MaxAttempts:         5,
		UrgentBaseDelay:     5 * time.Second,
		UrgentMaxAttempts:   8,
		RateLimitMultiplier: 4,
	}
}

// Action is either a retry after a delay or giving up.
type Action struct {
	GiveUp     bool
	RetryAfter time.Duration
	Reason     string
}

// Policy computes capped exponential backoff.
type Policy struct {
	cfg Config
}

// New creates a Policy; zero fields fall back to DefaultConfig.
func New(cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.UrgentBaseDelay <= 0 {
		cfg.UrgentBaseDelay = def.UrgentBaseDelay
	}
	if cfg.UrgentMaxAttempts <= 0 {
		cfg.UrgentMaxAttempts = def.UrgentMaxAttempts
	}
	if cfg.RateLimitMultiplier <= 0 {
		cfg.RateLimitMultiplier = def.RateLimitMultiplier
	}
	return &Policy{cfg: cfg}
}

// Config returns the effective configuration.
func (p *Policy) Config() Config { return p.cfg }

// NextAction decides what to do after a failed round. attemptCount is the
// number of rounds that had already failed before this one.
func (p *Policy) NextAction(attemptCount int, kind delivery.FailureKind, priority notifications.Priority) Action {
	if kind == delivery.Permanent {
		return Action{GiveUp: true, Reason: "permanent failure"}
	}

	base, ceiling := p.cfg.BaseDelay, p.cfg.MaxAttempts
	if priority == notifications.PriorityUrgent {
		base, ceiling = p.cfg.UrgentBaseDelay, p.cfg.UrgentMaxAttempts
	}
	if attemptCount < 0 {
		attemptCount = 0
	}
	if attemptCount+1 >= ceiling {
		return Action{GiveUp: true, Reason: "retry attempts exhausted"}
	}

	maxDelay := p.cfg.MaxDelay
	delay := backoff(base, attemptCount, maxDelay)
	if kind == delivery.RateLimited {
		maxDelay *= time.Duration(p.cfg.RateLimitMultiplier)
		delay = min(delay*time.Duration(p.cfg.RateLimitMultiplier), maxDelay)
	}
	return Action{RetryAfter: delay}
}

// WithHint raises a retry delay to an adapter's Retry-After hint, bounded
// by the rate-limit ceiling.
func (p *Policy) WithHint(a Action, hint time.Duration) Action {
	if a.GiveUp || hint <= a.RetryAfter {
		return a
	}
	a.RetryAfter = min(hint, p.cfg.MaxDelay*time.Duration(p.cfg.RateLimitMultiplier))
	return a
}

func backoff(base time.Duration, attempt int, ceiling time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= ceiling || d <= 0 {
			return ceiling
		}
	}
	return min(d, ceiling)
}
