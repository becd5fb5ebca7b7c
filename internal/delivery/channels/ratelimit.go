package channels

import (
	"context"
	"errors"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/delivery"
	"golang.org/x/time/rate"
)

var errLocalRate = errors.New("local send rate exceeded")

// RateLimit caps the send rate of the wrapped adapter. A send that would
// have to wait is rejected as rate limited with the wait as its hint, so
// the scheduler backs off instead of blocking a worker.
type RateLimit struct {
	next    delivery.ChannelAdapter
	limiter *rate.Limiter
	now     func() time.Time
}

// NewRateLimit allows perSecond sends on average with the given burst.
func NewRateLimit(next delivery.ChannelAdapter, perSecond float64, burst int) *RateLimit {
	if burst < 1 {
		burst = 1
	}
	return &RateLimit{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst), now: time.Now}
}

func (r *RateLimit) Send(ctx context.Context, destination string, payload delivery.Payload) error {
	now := r.now()
	res := r.limiter.ReserveN(now, 1)
	if !res.OK() {
		return delivery.RateLimitedError(errLocalRate, time.Second)
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delivery.RateLimitedError(errLocalRate, delay)
	}
	return r.next.Send(ctx, destination, payload)
}
