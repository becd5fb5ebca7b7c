package channels

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/delivery"
	"github.com/ziadkadry99/lifeos-notify/internal/logger"
	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
	"gopkg.in/gomail.v2"
)

var testPayload = delivery.Payload{
	NotificationID: "n-1",
	Title:          "Workout",
	Body:           "Leg day",
	Priority:       notifications.PriorityHigh,
	Sound:          "whistle.wav",
}

func TestPushSend(t *testing.T) {
	var got pushMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewPush(PushConfig{URL: srv.URL, APIKey: "secret"})
	if err := p.Send(context.Background(), "device-token", testPayload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Token != "device-token" || got.Title != "Workout" || got.Sound != "whistle.wav" {
		t.Errorf("unexpected message: %+v", got)
	}
}

func TestHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		header string
		want   delivery.FailureKind
		hint   time.Duration
	}{
		{http.StatusOK, "", "", 0},
		{http.StatusNotFound, "", delivery.Permanent, 0},
		{http.StatusGone, "", delivery.Permanent, 0},
		{http.StatusBadRequest, "", delivery.Permanent, 0},
		{http.StatusTooManyRequests, "30", delivery.RateLimited, 30 * time.Second},
		{http.StatusTooManyRequests, "", delivery.RateLimited, 0},
		{http.StatusRequestTimeout, "", delivery.Transient, 0},
		{http.StatusInternalServerError, "", delivery.Transient, 0},
		{http.StatusServiceUnavailable, "", delivery.Transient, 0},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, "detail")
			}))
			defer srv.Close()

			err := NewPush(PushConfig{URL: srv.URL}).Send(context.Background(), "tok", testPayload)
			kind, hint := delivery.Classify(err)
			if kind != tt.want {
				t.Errorf("kind = %q, want %q (err %v)", kind, tt.want, err)
			}
			if hint != tt.hint {
				t.Errorf("hint = %v, want %v", hint, tt.hint)
			}
		})
	}
}

func TestRetryAfterDate(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	v := now.Add(2 * time.Minute).Format(http.TimeFormat)
	if got := retryAfter(v, now); got != 2*time.Minute {
		t.Errorf("retryAfter(%q) = %v, want 2m", v, got)
	}
	if got := retryAfter("garbage", now); got != 0 {
		t.Errorf("retryAfter(garbage) = %v, want 0", got)
	}
}

func TestPushUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewPush(PushConfig{URL: url}).Send(context.Background(), "tok", testPayload)
	if kind, _ := delivery.Classify(err); kind != delivery.Transient {
		t.Errorf("kind = %q, want transient", kind)
	}
}

func TestSMSSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "tok" {
			t.Errorf("basic auth = %q/%q", user, pass)
		}
		r.ParseForm()
		if r.Form.Get("To") != "+15550100" || r.Form.Get("From") != "+15550000" {
			t.Errorf("form = %v", r.Form)
		}
		if !strings.HasPrefix(r.Form.Get("Body"), "Workout: ") {
			t.Errorf("Body = %q", r.Form.Get("Body"))
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewSMS(SMSConfig{URL: srv.URL, AccountID: "AC1", AuthToken: "tok", From: "+15550000"})
	if err := s.Send(context.Background(), "+15550100", testPayload); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

type fakeSender struct {
	err  error
	from string
	to   []string
	body strings.Builder
}

func (f *fakeSender) Send(from string, to []string, msg io.WriterTo) error {
	f.from, f.to = from, to
	msg.WriteTo(&f.body)
	return f.err
}

func (f *fakeSender) Close() error { return nil }

type fakeDialer struct {
	sender *fakeSender
	err    error
}

func (d *fakeDialer) Dial() (gomail.SendCloser, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.sender, nil
}

func TestEmailSend(t *testing.T) {
	sender := &fakeSender{}
	e := NewEmailWithDialer(&fakeDialer{sender: sender}, "noreply@example.com")

	if err := e.Send(context.Background(), "user@example.com", testPayload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sender.from != "noreply@example.com" || len(sender.to) != 1 || sender.to[0] != "user@example.com" {
		t.Errorf("envelope = %q -> %v", sender.from, sender.to)
	}
	if !strings.Contains(sender.body.String(), "Subject: Workout") {
		t.Errorf("message missing subject:\n%s", sender.body.String())
	}
}

func TestEmailClassification(t *testing.T) {
	tests := []struct {
		name   string
		dialer *fakeDialer
		want   delivery.FailureKind
	}{
		{"mailbox unavailable", &fakeDialer{sender: &fakeSender{err: &textproto.Error{Code: 550, Msg: "no such user"}}}, delivery.Permanent},
		{"greylisted", &fakeDialer{sender: &fakeSender{err: &textproto.Error{Code: 451, Msg: "try later"}}}, delivery.Transient},
		{"connection refused", &fakeDialer{err: errors.New("dial tcp: connection refused")}, delivery.Transient},
		{"auth rejected", &fakeDialer{err: &textproto.Error{Code: 535, Msg: "bad credentials"}}, delivery.Permanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEmailWithDialer(tt.dialer, "a@example.com").Send(context.Background(), "b@example.com", testPayload)
			if kind, _ := delivery.Classify(err); kind != tt.want {
				t.Errorf("kind = %q, want %q (err %v)", kind, tt.want, err)
			}
		})
	}
}

func TestLog(t *testing.T) {
	var buf strings.Builder
	l := NewLog("push", logger.New(logger.Config{Format: "json", Output: &buf}))
	if err := l.Send(context.Background(), "tok", testPayload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(buf.String(), `"notification_id":"n-1"`) {
		t.Errorf("log output = %s", buf.String())
	}
}

func TestRateLimit(t *testing.T) {
	calls := 0
	next := delivery.AdapterFunc(func(context.Context, string, delivery.Payload) error {
		calls++
		return nil
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimit(next, 1, 2)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if err := rl.Send(context.Background(), "d", testPayload); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	err := rl.Send(context.Background(), "d", testPayload)
	kind, hint := delivery.Classify(err)
	if kind != delivery.RateLimited {
		t.Fatalf("kind = %q, want rate_limited", kind)
	}
	if hint <= 0 || hint > time.Second {
		t.Errorf("hint = %v, want (0, 1s]", hint)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}

	// The rejected reservation is returned, so one token is back after 1s.
	now = now.Add(time.Second)
	if err := rl.Send(context.Background(), "d", testPayload); err != nil {
		t.Errorf("send after refill: %v", err)
	}
}
