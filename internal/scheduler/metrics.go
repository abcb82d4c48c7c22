package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/recurrence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MetricsEngine closes out a finished local day for each recurrence
type MetricsEngine struct {
	habits      database.HabitRepositoryInterface
	history     database.HistoryRepositoryInterface
	logger      *zap.Logger
	maxAttempts int
}

// NewMetricsEngine creates a new metrics engine
func NewMetricsEngine(habits database.HabitRepositoryInterface, history database.HistoryRepositoryInterface, logger *zap.Logger) *MetricsEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricsEngine{
		habits:      habits,
		history:     history,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
	}
}

// CloseResult counts what a close-out pass did
type CloseResult struct {
	Closed int
	Misses int
	Errors []error
}

// CloseDay evaluates yesterdayLocal for every recurrence in bases. A failure on one
// recurrence is logged and recorded but never stops the others.
func (e *MetricsEngine) CloseDay(ctx context.Context, userID uuid.UUID, bases []*models.HabitInstance, yesterdayLocal string) CloseResult {
	var res CloseResult

	for _, base := range bases {
		if base.Paused {
			continue
		}
		if !recurrence.IsEligible(yesterdayLocal, base.Recurrence) {
			continue
		}

		missed, err := e.closeRecurrence(ctx, base.RecurrenceID, yesterdayLocal)
		if errors.Is(err, database.ErrNotFound) {
			// nothing was materialized for that day
			continue
		}
		if err != nil {
			e.logger.Error("close_day_failed",
				zap.String("user_id", userID.String()),
				zap.String("recurrence_id", base.RecurrenceID.String()),
				zap.String("date_local", yesterdayLocal),
				zap.Error(err))
			res.Errors = append(res.Errors, fmt.Errorf("close recurrence %s: %w", base.RecurrenceID, err))
			continue
		}

		res.Closed++
		if missed {
			res.Misses++
		}
	}

	return res
}

// closeRecurrence reports whether the day was a newly recorded miss
func (e *MetricsEngine) closeRecurrence(ctx context.Context, recurrenceID uuid.UUID, dayLocal string) (bool, error) {
	dayRow, err := e.habits.GetForDay(ctx, recurrenceID, dayLocal)
	if err != nil {
		return false, err
	}

	if dayRow.CompletedToday {
		_, _, err := applyMetrics(ctx, e.habits, recurrenceID, e.maxAttempts,
			func(_ context.Context, latest *models.HabitInstance) (*database.MetricsUpdate, error) {
				if !latest.Alert {
					return nil, nil
				}
				m := latest.HabitMetrics.Clone()
				m.Alert = false
				return &database.MetricsUpdate{Metrics: m}, nil
			})
		if err != nil {
			return false, err
		}
		return false, e.writeHistory(ctx, dayRow, true)
	}

	_, wrote, err := applyMetrics(ctx, e.habits, recurrenceID, e.maxAttempts,
		func(_ context.Context, latest *models.HabitInstance) (*database.MetricsUpdate, error) {
			if latest.HasMissed(dayLocal) {
				return nil, nil
			}
			m, err := RecordMiss(latest, dayLocal)
			if err != nil {
				return nil, err
			}
			return &database.MetricsUpdate{Metrics: m}, nil
		})
	if err != nil {
		return false, err
	}
	if wrote {
		e.logger.Info("habit_day_missed",
			zap.String("recurrence_id", recurrenceID.String()),
			zap.String("date_local", dayLocal))
	}
	return wrote, e.writeHistory(ctx, dayRow, false)
}

func (e *MetricsEngine) writeHistory(ctx context.Context, row *models.HabitInstance, completed bool) error {
	entry := &models.HistoryEntry{
		RecurrenceID: row.RecurrenceID,
		UserID:       row.UserID,
		DateLocal:    row.DateLocal,
		Completed:    completed,
	}
	if err := e.history.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// RecordMiss returns the metrics of latest after a missed eligible day
func RecordMiss(latest *models.HabitInstance, dayLocal string) (models.HabitMetrics, error) {
	wd, err := calendar.WeekdayOf(dayLocal)
	if err != nil {
		return models.HabitMetrics{}, fmt.Errorf("invalid day %q: %w", dayLocal, err)
	}

	m := latest.HabitMetrics.Clone()
	m.Streak = 0
	if !m.HasMissed(dayLocal) {
		m.MissedDays = append(m.MissedDays, dayLocal)
	}
	m.FailByWeekday[int(wd)]++
	m.Alert = true
	m.SuccessRate = recurrence.SuccessRate(m.TotalCompleted, startOf(latest), dayLocal, latest.Recurrence)
	return m, nil
}

func startOf(inst *models.HabitInstance) string {
	if inst.StartDateLocal != "" {
		return inst.StartDateLocal
	}
	return inst.DateLocal
}
