// Package lock keeps scheduler passes from overlapping, within one
// process or across replicas sharing a Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("lock held elsewhere")

// Locker grants a named, expiring, exclusive lock.
type Locker interface {
	// Acquire takes the lock for ttl. The returned release func gives it
	// back early; it is safe to call more than once.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]time.Time), now: time.Now}
}

func (l *Local) Acquire(_ context.Context, name string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[name]; ok && now.Before(until) {
		return nil, ErrNotAcquired
	}
	until := now.Add(ttl)
	l.held[name] = until

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[name] == until {
				delete(l.held, name)
			}
		})
	}, nil
}

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX PX.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "notifyd:lock:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	key := r.prefix + name
	token := uuid.New().String()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			releaseScript.Run(ctx, r.client, []string{key}, token)
		})
	}, nil
}
