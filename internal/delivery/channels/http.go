// Package channels holds the ChannelAdapter implementations: an HTTP push
// gateway, an SMS gateway, SMTP email, a logging adapter for development
// and a rate-limiting wrapper.
package channels

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/delivery"
)

const maxErrorBody = 512

// classifyResponse maps a gateway HTTP response to a delivery error.
// 2xx is success; 404 and 410 mean the destination is gone; 408 and 5xx
// are transient; 429 is rate limited; any other 4xx is permanent.
func classifyResponse(resp *http.Response, now time.Time) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err := fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return delivery.RateLimitedError(err, retryAfter(resp.Header.Get("Retry-After"), now))
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode >= 500:
		return delivery.TransientError(err)
	default:
		return delivery.PermanentError(err)
	}
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = delivery.DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
