package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/recurrence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Toggler applies user completion actions to today's instance
type Toggler struct {
	habits      database.HabitRepositoryInterface
	history     database.HistoryRepositoryInterface
	resolver    *calendar.Resolver
	logger      *zap.Logger
	maxAttempts int
}

// NewToggler creates a new completion toggler
func NewToggler(habits database.HabitRepositoryInterface, history database.HistoryRepositoryInterface, resolver *calendar.Resolver, logger *zap.Logger) *Toggler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Toggler{
		habits:      habits,
		history:     history,
		resolver:    resolver,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
	}
}

// Complete marks the instance done for today. Completing an already completed instance is a no-op.
func (t *Toggler) Complete(ctx context.Context, user *models.User, instanceID uuid.UUID, now time.Time) (*models.HabitInstance, error) {
	return t.toggle(ctx, user, instanceID, now, true)
}

// Uncomplete undoes today's completion. Undoing an incomplete instance is a no-op.
func (t *Toggler) Uncomplete(ctx context.Context, user *models.User, instanceID uuid.UUID, now time.Time) (*models.HabitInstance, error) {
	return t.toggle(ctx, user, instanceID, now, false)
}

func (t *Toggler) toggle(ctx context.Context, user *models.User, instanceID uuid.UUID, now time.Time, completed bool) (*models.HabitInstance, error) {
	inst, err := t.habits.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.UserID != user.ID {
		return nil, ErrForbidden
	}

	today := t.resolver.LocalDay(now, user.Timezone)
	if inst.DateLocal != today {
		return nil, fmt.Errorf("instance dated %s, today is %s: %w", inst.DateLocal, today, ErrNotToday)
	}

	_, wrote, err := applyMetrics(ctx, t.habits, inst.RecurrenceID, t.maxAttempts,
		func(ctx context.Context, latest *models.HabitInstance) (*database.MetricsUpdate, error) {
			row, err := t.habits.GetByID(ctx, instanceID)
			if err != nil {
				return nil, err
			}
			if row.CompletedToday == completed {
				return nil, nil
			}

			var m models.HabitMetrics
			if completed {
				m = ApplyCompletion(latest, today)
			} else {
				m = ApplyUndo(latest, today)
			}
			return &database.MetricsUpdate{
				Metrics:    m,
				Completion: &database.InstanceCompletion{InstanceID: instanceID, Completed: completed},
			}, nil
		})
	if err != nil {
		return nil, err
	}

	if wrote {
		t.logger.Info("habit_completion_toggled",
			zap.String("user_id", user.ID.String()),
			zap.String("recurrence_id", inst.RecurrenceID.String()),
			zap.String("date_local", today),
			zap.Bool("completed", completed))
	}

	// the ledger write is idempotent, so a double click still converges
	entry := &models.HistoryEntry{
		RecurrenceID: inst.RecurrenceID,
		UserID:       inst.UserID,
		DateLocal:    today,
		Completed:    completed,
	}
	if err := t.history.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to write history: %w", err)
	}

	return t.habits.GetByID(ctx, instanceID)
}

// ApplyCompletion returns latest's metrics after completing todayLocal.
// The streak continues when the previous completion was the previous due day,
// otherwise a new streak starts at 1.
func ApplyCompletion(latest *models.HabitInstance, todayLocal string) models.HabitMetrics {
	m := latest.HabitMetrics.Clone()
	prev := m.LastCompletedDateLocal

	m.TotalCompleted++
	switch {
	case prev == nil:
		m.Streak = 1
	case *prev == continuityDay(todayLocal, latest.Recurrence):
		m.Streak++
	default:
		m.Streak = 1
	}

	last := todayLocal
	m.LastCompletedDateLocal = &last
	m.Alert = false
	m.SuccessRate = recurrence.SuccessRate(m.TotalCompleted, startOf(latest), todayLocal, latest.Recurrence)
	return m
}

// ApplyUndo returns latest's metrics after undoing a completion on todayLocal.
// The streak is not reconstructed; it drops to 0 until the next completion.
func ApplyUndo(latest *models.HabitInstance, todayLocal string) models.HabitMetrics {
	m := latest.HabitMetrics.Clone()

	if m.TotalCompleted > 0 {
		m.TotalCompleted--
	}
	if m.LastCompletedDateLocal != nil && *m.LastCompletedDateLocal == todayLocal {
		m.Streak = 0
		m.LastCompletedDateLocal = nil
	}

	m.Alert = false
	if prev, ok := recurrence.PreviousEligibleDay(todayLocal, latest.Recurrence); ok {
		m.Alert = m.HasMissed(prev)
	}
	m.SuccessRate = recurrence.SuccessRate(m.TotalCompleted, startOf(latest), todayLocal, latest.Recurrence)
	return m
}

// continuityDay is the day a completion must have happened on for today's to extend the streak
func continuityDay(todayLocal string, r models.Recurrence) string {
	if prev, ok := recurrence.PreviousEligibleDay(todayLocal, r); ok {
		return prev
	}
	return calendar.PreviousDay(todayLocal)
}
