// Package redislock serializes per-user progression work across replicas with a
// Redis lease.
package redislock

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only while it still belongs to the caller.
// KEYS[1] = lease key
// ARGV[1] = owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

const (
	defaultTTL   = 30 * time.Second
	minRetryWait = 5 * time.Millisecond
	maxRetryWait = 200 * time.Millisecond
)

// Locker acquires leases of the form "<prefix><key>".
type Locker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *log.Logger
}

// Option configures a Locker.
type Option func(*Locker)

// WithTTL bounds how long a lease survives a crashed holder. Work under the lock
// must finish well within it.
func WithTTL(ttl time.Duration) Option {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithPrefix namespaces lease keys.
func WithPrefix(prefix string) Option {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

// WithLogger overrides the logger used for release failures.
func WithLogger(logger *log.Logger) Option {
	return func(l *Locker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New builds a Locker over client.
func New(client *redis.Client, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		prefix: "progression:lock:",
		ttl:    defaultTTL,
		logger: log.New(log.Writer(), "[redislock] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewClient dials Redis the way the service configures it.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Lock blocks until the lease for key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	leaseKey := l.prefix + key
	token := uuid.NewString()
	wait := minRetryWait

	for {
		ok, err := l.client.SetNX(ctx, leaseKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lease %s: %w", leaseKey, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		if wait *= 2; wait > maxRetryWait {
			wait = maxRetryWait
		}
	}

	return func() {
		// Release with a fresh context so a cancelled caller still frees the lease.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{leaseKey}, token).Err(); err != nil {
			l.logger.Printf("release lease %s failed: %v", leaseKey, err)
		}
	}, nil
}

// Ping reports whether Redis is reachable.
func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
