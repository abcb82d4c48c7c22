package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/lock"
	"github.com/benvon/habitual/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const userLockPrefix = "habitual:daily-reset:user:"

// Orchestrator runs the daily reset: for every user it materializes today's instances,
// closes out yesterday, then rolls past-due tasks to the overdue board.
type Orchestrator struct {
	users        database.UserRepositoryInterface
	habits       database.HabitRepositoryInterface
	tasks        database.TaskRepositoryInterface
	materializer *Materializer
	engine       *MetricsEngine
	resolver     *calendar.Resolver
	locker       *lock.Locker
	concurrency  int
	logger       *zap.Logger
	tracer       trace.Tracer
}

// NewOrchestrator creates a new orchestrator. concurrency < 1 processes users sequentially.
func NewOrchestrator(
	users database.UserRepositoryInterface,
	habits database.HabitRepositoryInterface,
	history database.HistoryRepositoryInterface,
	tasks database.TaskRepositoryInterface,
	resolver *calendar.Resolver,
	locker *lock.Locker,
	concurrency int,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if locker == nil {
		locker = lock.NewLocker(nil, 0, logger)
	}
	return &Orchestrator{
		users:        users,
		habits:       habits,
		tasks:        tasks,
		materializer: NewMaterializer(habits, logger),
		engine:       NewMetricsEngine(habits, history, logger),
		resolver:     resolver,
		locker:       locker,
		concurrency:  concurrency,
		logger:       logger,
		tracer:       otel.Tracer("github.com/benvon/habitual/internal/scheduler"),
	}
}

// UserLockKey is the Redis key guarding one user's daily reset
func UserLockKey(user *models.User) string {
	return userLockPrefix + user.ID.String()
}

// Run processes every user. Only a failure to load the user list is returned as an error;
// everything else is isolated per user and reported in the summary.
func (o *Orchestrator) Run(ctx context.Context, now time.Time) (*models.RunSummary, error) {
	ctx, span := o.tracer.Start(ctx, "scheduler.daily_reset")
	defer span.End()

	users, err := o.users.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load users")
		return nil, fmt.Errorf("failed to load users: %w", err)
	}

	summary := &models.RunSummary{UsersTotal: len(users)}
	o.logger.Info("daily_reset_started",
		zap.Int("users", len(users)),
		zap.Int("concurrency", o.concurrency))

	work := make(chan *models.User)
	var wg sync.WaitGroup
	for i := 0; i < o.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for user := range work {
				userSummary, err := o.processHabits(ctx, user, now)
				if err != nil {
					o.logger.Error("daily_reset_user_failed",
						zap.String("user_id", user.ID.String()),
						zap.Error(err))
					summary.AddError(fmt.Sprintf("user %s: %v", user.ID, err))
					continue
				}
				summary.Add(userSummary)
			}
		}()
	}

feed:
	for _, user := range users {
		select {
		case work <- user:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	for _, user := range users {
		if ctx.Err() != nil {
			summary.AddError(fmt.Sprintf("run cancelled: %v", ctx.Err()))
			break
		}
		summary.Add(o.processOverdue(ctx, user, now))
	}

	span.SetAttributes(
		attribute.Int("users.total", summary.UsersTotal),
		attribute.Int("users.processed", summary.UsersProcessed),
		attribute.Int("instances.created", summary.InstancesCreated),
		attribute.Int("errors", len(summary.Errors)),
	)
	o.logger.Info("daily_reset_completed",
		zap.Int("users_total", summary.UsersTotal),
		zap.Int("users_processed", summary.UsersProcessed),
		zap.Int("users_skipped", summary.UsersSkipped),
		zap.Int("instances_created", summary.InstancesCreated),
		zap.Int("recurrences_closed", summary.RecurrencesClosed),
		zap.Int("misses_recorded", summary.MissesRecorded),
		zap.Int("tasks_marked_overdue", summary.TasksMarkedOverdue),
		zap.Int("errors", len(summary.Errors)))

	return summary, nil
}

// RunUser performs one user's full cycle, including the overdue rollover.
// The returned error means the user could not be processed at all.
func (o *Orchestrator) RunUser(ctx context.Context, user *models.User, now time.Time) (*models.RunSummary, error) {
	summary := &models.RunSummary{UsersTotal: 1}

	habitSummary, err := o.processHabits(ctx, user, now)
	if err != nil {
		return nil, err
	}
	summary.Add(habitSummary)
	summary.Add(o.processOverdue(ctx, user, now))
	return summary, nil
}

func (o *Orchestrator) processHabits(ctx context.Context, user *models.User, now time.Time) (*models.RunSummary, error) {
	ctx, span := o.tracer.Start(ctx, "scheduler.daily_reset_user",
		trace.WithAttributes(attribute.String("user.id", user.ID.String())))
	defer span.End()

	summary := &models.RunSummary{}

	lk, ok, err := o.locker.TryLock(ctx, UserLockKey(user))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}
	if !ok {
		o.logger.Info("daily_reset_user_skipped",
			zap.String("user_id", user.ID.String()),
			zap.String("reason", "locked"))
		summary.UsersSkipped = 1
		return summary, nil
	}
	defer func() {
		if err := lk.Unlock(context.WithoutCancel(ctx)); err != nil {
			o.logger.Warn("daily_reset_unlock_failed",
				zap.String("user_id", user.ID.String()),
				zap.Error(err))
		}
	}()
	stopKeepAlive := lk.KeepAlive(ctx)
	defer stopKeepAlive()

	today := o.resolver.LocalDay(now, user.Timezone)
	yesterday := calendar.PreviousDay(today)
	span.SetAttributes(attribute.String("date_local", today))

	bases, err := o.habits.LatestPerRecurrence(ctx, user.ID, true)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load recurrences: %w", err)
	}

	mat := o.materializer.Materialize(ctx, user.ID, bases, today)
	summary.InstancesCreated = mat.Created
	for _, err := range mat.Errors {
		summary.AddError(fmt.Sprintf("user %s: %v", user.ID, err))
	}

	// close-out writes metrics, so it only runs while this replica still owns the user
	if err := lk.Extend(ctx); err != nil && !errors.Is(err, lock.ErrNotHeld) {
		o.logger.Warn("daily_reset_lock_extend_failed",
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
	}
	if !lk.IsHeld() {
		o.logger.Warn("daily_reset_lock_lost",
			zap.String("user_id", user.ID.String()),
			zap.String("key", lk.Key()))
		err := fmt.Errorf("lost lock on user %s before close-out", user.ID)
		span.RecordError(err)
		return nil, err
	}

	closed := o.engine.CloseDay(ctx, user.ID, bases, yesterday)
	summary.RecurrencesClosed = closed.Closed
	summary.MissesRecorded = closed.Misses
	for _, err := range closed.Errors {
		summary.AddError(fmt.Sprintf("user %s: %v", user.ID, err))
	}

	summary.UsersProcessed = 1
	o.logger.Debug("daily_reset_user_completed",
		zap.String("user_id", user.ID.String()),
		zap.String("date_local", today),
		zap.Int("instances_created", mat.Created),
		zap.Int("recurrences_closed", closed.Closed),
		zap.Int("misses_recorded", closed.Misses))
	return summary, nil
}

func (o *Orchestrator) processOverdue(ctx context.Context, user *models.User, now time.Time) *models.RunSummary {
	summary := &models.RunSummary{}
	today := o.resolver.LocalDay(now, user.Timezone)

	n, err := o.tasks.MarkOverdue(ctx, user.ID, today)
	if err != nil {
		o.logger.Error("overdue_rollover_failed",
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
		summary.AddError(fmt.Sprintf("user %s overdue: %v", user.ID, err))
		return summary
	}
	summary.TasksMarkedOverdue = n
	return summary
}
