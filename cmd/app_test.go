package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ziadkadry99/lifeos-notify/internal/config"
	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
	"github.com/ziadkadry99/lifeos-notify/internal/pushtokens"
)

func setupTestApp(t *testing.T) (*app, chi.Router) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "notifyd.db")
	cfg.Log.Level = "error"
	a, err := newApp(cfg)
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	r := chi.NewRouter()
	registerAllRoutes(r, a)
	return a, r
}

func TestAdaptersFallBackToLog(t *testing.T) {
	a, _ := setupTestApp(t)
	adapters := a.adapters()
	for _, ch := range []notifications.Channel{notifications.ChannelPush, notifications.ChannelEmail, notifications.ChannelSMS} {
		if adapters[ch] == nil {
			t.Errorf("no adapter for %s", ch)
		}
	}
}

func TestCreateThenTickDelivers(t *testing.T) {
	a, r := setupTestApp(t)
	ctx := context.Background()

	if _, err := a.tokens.Register(ctx, pushtokens.Token{
		UserID:   "u-1",
		Token:    "tok-1",
		Platform: pushtokens.PlatformIOS,
		DeviceID: "phone",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	body, _ := json.Marshal(map[string]any{
		"user_id":          "u-1",
		"title":            "Water the plants",
		"delivery_methods": []string{"push"},
		"priority":         "normal",
		"scheduled_at":     time.Now().UTC().Add(-time.Minute),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/notifications/", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var created notifications.Notification
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.MaxSnoozeCount != a.cfg.Scheduler.DefaultMaxSnooze {
		t.Errorf("max_snooze_count = %d, want %d", created.MaxSnoozeCount, a.cfg.Scheduler.DefaultMaxSnooze)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/scheduler/tick", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("tick status = %d", w.Code)
	}

	got, err := a.notifications.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != notifications.StatusSent {
		t.Errorf("status = %s, want sent", got.Status)
	}
}

func TestRelayEventsWithoutRedisReturns(t *testing.T) {
	a, _ := setupTestApp(t)
	done := make(chan struct{})
	go func() {
		a.relayEvents(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relayEvents blocked without redis")
	}
}
