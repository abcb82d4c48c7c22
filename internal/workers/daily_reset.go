package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/queue"
	"go.uber.org/zap"
)

// ResetRunner runs one user's daily reset cycle
type ResetRunner interface {
	RunUser(ctx context.Context, user *models.User, now time.Time) (*models.RunSummary, error)
}

// DailyResetWorker consumes daily_reset_user jobs
type DailyResetWorker struct {
	runner   ResetRunner
	users    database.UserRepositoryInterface
	jobQueue queue.JobQueue
	resolver *calendar.Resolver
	logger   *zap.Logger
	now      func() time.Time
}

// NewDailyResetWorker creates a new daily reset worker
func NewDailyResetWorker(runner ResetRunner, users database.UserRepositoryInterface, jobQueue queue.JobQueue, resolver *calendar.Resolver, logger *zap.Logger) *DailyResetWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyResetWorker{
		runner:   runner,
		users:    users,
		jobQueue: jobQueue,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// Run consumes jobs until ctx is cancelled or the delivery channel closes
func (w *DailyResetWorker) Run(ctx context.Context, prefetch int) error {
	msgChan, errChan, err := w.jobQueue.Consume(ctx, prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			w.logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgChan:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("message channel closed")
			}
			if err := w.ProcessJob(ctx, msg); err != nil {
				w.logger.Error("job_failed",
					zap.String("job_id", msg.GetJob().ID.String()),
					zap.String("job_type", string(msg.GetJob().Type)),
					zap.Error(err))
			}
		}
	}
}

// ProcessJob processes a job based on its type and settles the message
func (w *DailyResetWorker) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	switch job.Type {
	case queue.JobTypeDailyResetUser:
		if err := w.processDailyReset(ctx, job); err != nil {
			return w.handleJobError(ctx, msg, job, err)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	default:
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

func (w *DailyResetWorker) processDailyReset(ctx context.Context, job *queue.Job) error {
	user, err := w.users.GetByID(ctx, job.UserID)
	if errors.Is(err, database.ErrNotFound) {
		// user deleted since dispatch
		w.logger.Info("daily_reset_user_gone", zap.String("user_id", job.UserID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	now := w.now()
	if today := w.resolver.LocalDay(now, user.Timezone); today != job.LocalDay {
		w.logger.Info("daily_reset_day_moved",
			zap.String("user_id", user.ID.String()),
			zap.String("job_local_day", job.LocalDay),
			zap.String("local_day", today))
	}

	summary, err := w.runner.RunUser(ctx, user, now)
	if err != nil {
		return err
	}

	for _, e := range summary.Errors {
		w.logger.Warn("daily_reset_partial_failure",
			zap.String("user_id", user.ID.String()),
			zap.String("error", e))
	}
	w.logger.Info("daily_reset_user_processed",
		zap.String("user_id", user.ID.String()),
		zap.String("local_day", job.LocalDay),
		zap.Int("users_skipped", summary.UsersSkipped),
		zap.Int("instances_created", summary.InstancesCreated),
		zap.Int("misses_recorded", summary.MissesRecorded),
		zap.Int("tasks_marked_overdue", summary.TasksMarkedOverdue))
	return nil
}

// handleJobError re-enqueues a failed job while retries remain and dead-letters it otherwise
func (w *DailyResetWorker) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	if job.CanRetry() && !job.IsExpired() {
		retry := *job
		retry.IncrementRetry()

		if enqueueErr := w.jobQueue.Enqueue(ctx, &retry); enqueueErr != nil {
			w.logger.Warn("job_reenqueue_failed", zap.String("job_id", job.ID.String()), zap.Error(enqueueErr))
			if nackErr := msg.Nack(true); nackErr != nil {
				w.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
			}
			return fmt.Errorf("job failed, re-enqueue failed: %w", errors.Join(err, enqueueErr))
		}

		if ackErr := msg.Ack(); ackErr != nil {
			w.logger.Warn("job_ack_failed", zap.String("job_id", job.ID.String()), zap.Error(ackErr))
		}
		return fmt.Errorf("job failed (retry %d/%d): %w", retry.RetryCount, retry.MaxRetries, err)
	}

	if nackErr := msg.Nack(false); nackErr != nil {
		w.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (sent to DLQ): %w", err)
}
