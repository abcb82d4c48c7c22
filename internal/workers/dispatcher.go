package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/queue"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dispatchMarkerPrefix = "habitual:dispatch:"
	// markers outlive the local day by a wide margin so late replicas still see them
	dispatchMarkerTTL = 48 * time.Hour
)

// Dispatcher enqueues one daily reset job per user as each user's local day begins
type Dispatcher struct {
	jobQueue queue.JobQueue
	users    database.UserRepositoryInterface
	resolver *calendar.Resolver
	redis    *redis.Client
	logger   *zap.Logger
	now      func() time.Time

	// used when no Redis client is configured
	localMu      sync.Mutex
	localMarkers map[string]time.Time
}

// NewDispatcher creates a new dispatcher. A nil Redis client keeps dispatch markers in memory,
// which is only correct for a single worker replica.
func NewDispatcher(jobQueue queue.JobQueue, users database.UserRepositoryInterface, resolver *calendar.Resolver, redisClient *redis.Client, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		jobQueue:     jobQueue,
		users:        users,
		resolver:     resolver,
		redis:        redisClient,
		logger:       logger,
		now:          time.Now,
		localMarkers: make(map[string]time.Time),
	}
}

// DispatchMarkerKey is the Redis key recording that a user's local day was dispatched
func DispatchMarkerKey(user *models.User, localDay string) string {
	return dispatchMarkerPrefix + user.ID.String() + ":" + localDay
}

// DispatchDue enqueues a job for every user whose current local day has not been dispatched yet.
// Failures for one user are logged and do not stop the others.
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	users, err := d.users.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	now := d.now()
	dispatched := 0
	for _, user := range users {
		localDay := d.resolver.LocalDay(now, user.Timezone)
		key := DispatchMarkerKey(user, localDay)

		claimed, err := d.claim(ctx, key)
		if err != nil {
			d.logger.Warn("dispatch_claim_failed",
				zap.String("user_id", user.ID.String()),
				zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		job := queue.NewDailyResetJob(user.ID, localDay, d.resolver.NextLocalMidnightUTC(now, user.Timezone))
		if err := d.jobQueue.Enqueue(ctx, job); err != nil {
			d.logger.Warn("dispatch_enqueue_failed",
				zap.String("user_id", user.ID.String()),
				zap.String("local_day", localDay),
				zap.Error(err))
			// let the next tick try again
			d.release(ctx, key)
			continue
		}

		dispatched++
		d.logger.Debug("daily_reset_dispatched",
			zap.String("user_id", user.ID.String()),
			zap.String("local_day", localDay),
			zap.String("job_id", job.ID.String()))
	}

	if dispatched > 0 {
		d.logger.Info("daily_reset_jobs_dispatched",
			zap.Int("dispatched", dispatched),
			zap.Int("user_count", len(users)))
	}
	return dispatched, nil
}

// Start dispatches immediately and then every interval until ctx is cancelled
func (d *Dispatcher) Start(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchDue(ctx); err != nil {
			d.logger.Error("dispatch_failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) claim(ctx context.Context, key string) (bool, error) {
	if d.redis != nil {
		ok, err := d.redis.SetNX(ctx, key, d.now().UTC().Format(time.RFC3339), dispatchMarkerTTL).Result()
		if err != nil {
			return false, fmt.Errorf("failed to set dispatch marker: %w", err)
		}
		return ok, nil
	}

	d.localMu.Lock()
	defer d.localMu.Unlock()
	now := d.now()
	for k, exp := range d.localMarkers {
		if now.After(exp) {
			delete(d.localMarkers, k)
		}
	}
	if _, ok := d.localMarkers[key]; ok {
		return false, nil
	}
	d.localMarkers[key] = now.Add(dispatchMarkerTTL)
	return true, nil
}

func (d *Dispatcher) release(ctx context.Context, key string) {
	if d.redis != nil {
		if err := d.redis.Del(ctx, key).Err(); err != nil {
			d.logger.Warn("dispatch_marker_release_failed", zap.String("key", key), zap.Error(err))
		}
		return
	}
	d.localMu.Lock()
	delete(d.localMarkers, key)
	d.localMu.Unlock()
}
