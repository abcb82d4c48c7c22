// Package lock provides Redis-backed mutual exclusion between replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultTTL bounds how long a crashed holder can keep a key locked
	DefaultTTL     = 2 * time.Minute
	acquireTimeout = 5 * time.Second
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// ErrNotHeld is returned when releasing or extending a lock this holder no longer owns
var ErrNotHeld = errors.New("lock not held")

// Locker hands out named locks backed by Redis SET NX PX.
// A nil client runs in single-instance mode where every lock is granted.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewLocker creates a Locker. ttl <= 0 uses DefaultTTL.
func NewLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{client: client, ttl: ttl, logger: logger}
}

// Lock is one acquired lock
type Lock struct {
	locker *Locker
	key    string
	token  string

	mu   sync.Mutex
	held bool
}

// TryLock attempts to acquire key without waiting. It returns (nil, false, nil) when another holder owns it.
func (l *Locker) TryLock(ctx context.Context, key string) (*Lock, bool, error) {
	lk := &Lock{locker: l, key: key, token: uuid.NewString()}

	if l.client == nil {
		l.logger.Debug("redis_lock_single_instance", zap.String("key", key))
		lk.held = true
		return lk, true, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	ok, err := l.client.SetNX(acquireCtx, key, lk.token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		l.logger.Debug("redis_lock_busy", zap.String("key", key))
		return nil, false, nil
	}

	lk.held = true
	l.logger.Debug("redis_lock_acquired", zap.String("key", key))
	return lk, true, nil
}

// Key returns the Redis key guarded by the lock
func (lk *Lock) Key() string {
	return lk.key
}

// IsHeld reports whether the lock is still believed held
func (lk *Lock) IsHeld() bool {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	return lk.held
}

// Extend pushes the expiry out by the locker's TTL
func (lk *Lock) Extend(ctx context.Context) error {
	if lk.locker.client == nil {
		return nil
	}
	res, err := extendScript.Run(ctx, lk.locker.client, []string{lk.key}, lk.token, lk.locker.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", lk.key, err)
	}
	if res == 0 {
		lk.mu.Lock()
		lk.held = false
		lk.mu.Unlock()
		return ErrNotHeld
	}
	return nil
}

// KeepAlive extends the lock every third of the TTL until stop is called or the
// lock is found lost. A lost lock shows up as IsHeld() == false.
func (lk *Lock) KeepAlive(ctx context.Context) (stop func()) {
	if lk.locker.client == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(lk.locker.ttl / 3)
		defer ticker.Stop()
		for lk.IsHeld() {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := lk.Extend(ctx); err != nil {
				if errors.Is(err, ErrNotHeld) {
					lk.locker.logger.Warn("redis_lock_lost", zap.String("key", lk.Key()))
					return
				}
				if ctx.Err() == nil {
					lk.locker.logger.Warn("redis_lock_extend_failed",
						zap.String("key", lk.Key()),
						zap.Error(err))
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

// Unlock releases the lock if this holder still owns it. Releasing twice is a no-op.
func (lk *Lock) Unlock(ctx context.Context) error {
	lk.mu.Lock()
	if !lk.held {
		lk.mu.Unlock()
		return nil
	}
	lk.held = false
	lk.mu.Unlock()

	if lk.locker.client == nil {
		return nil
	}

	res, err := releaseScript.Run(ctx, lk.locker.client, []string{lk.key}, lk.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lk.key, err)
	}
	if res == 0 {
		lk.locker.logger.Warn("redis_lock_already_released", zap.String("key", lk.key))
	}
	return nil
}
