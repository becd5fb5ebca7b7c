package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLocal(t *testing.T) {
	l := NewLocal()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	release, err := l.Acquire(ctx, "tick", time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "tick", time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("second Acquire error = %v, want ErrNotAcquired", err)
	}
	if _, err := l.Acquire(ctx, "generate", time.Minute); err != nil {
		t.Errorf("other name: %v", err)
	}

	release()
	release()
	if _, err := l.Acquire(ctx, "tick", time.Minute); err != nil {
		t.Errorf("Acquire after release: %v", err)
	}
}

func TestLocalExpiry(t *testing.T) {
	l := NewLocal()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	staleRelease, _ := l.Acquire(ctx, "tick", time.Second)
	now = now.Add(2 * time.Second)

	if _, err := l.Acquire(ctx, "tick", time.Minute); err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	// The expired holder must not release the new holder's lock.
	staleRelease()
	if _, err := l.Acquire(ctx, "tick", time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("error = %v, want ErrNotAcquired", err)
	}
}

func TestRedis(t *testing.T) {
	url := os.Getenv("NOTIFYD_TEST_REDIS_URL")
	if url == "" {
		t.Skip("NOTIFYD_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	l := NewRedis(client, "notifyd:test:lock:")
	release, err := l.Acquire(ctx, t.Name(), 5*time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, t.Name(), 5*time.Second); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("second Acquire error = %v, want ErrNotAcquired", err)
	}
	release()
	release2, err := l.Acquire(ctx, t.Name(), 5*time.Second)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	release2()
}
