package scheduler

import (
	"context"
	"fmt"

	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/recurrence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Materializer creates at most one instance per recurrence and local day
type Materializer struct {
	habits database.HabitRepositoryInterface
	logger *zap.Logger
	newID  func() uuid.UUID
}

// NewMaterializer creates a new materializer
func NewMaterializer(habits database.HabitRepositoryInterface, logger *zap.Logger) *Materializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Materializer{habits: habits, logger: logger, newID: uuid.New}
}

// MaterializeResult counts what a materialize pass did
type MaterializeResult struct {
	Created int
	Errors  []error
}

// Materialize inserts today's instance for every base (latest row per recurrence) that is
// eligible today and not paused. Existing rows are left alone, so repeated calls are no-ops.
func (m *Materializer) Materialize(ctx context.Context, userID uuid.UUID, bases []*models.HabitInstance, todayLocal string) MaterializeResult {
	var res MaterializeResult

	for _, base := range bases {
		if base.Paused {
			continue
		}
		// the latest row is already today (or, after a timezone change, later)
		if base.DateLocal >= todayLocal {
			continue
		}
		if !recurrence.IsEligible(todayLocal, base.Recurrence) {
			continue
		}

		inst := NextInstance(base, todayLocal, m.newID())
		created, err := m.habits.InsertCarryForward(ctx, inst)
		if err != nil {
			m.logger.Error("materialize_instance_failed",
				zap.String("user_id", userID.String()),
				zap.String("recurrence_id", base.RecurrenceID.String()),
				zap.String("date_local", todayLocal),
				zap.Error(err))
			res.Errors = append(res.Errors, fmt.Errorf("materialize recurrence %s: %w", base.RecurrenceID, err))
			continue
		}
		if created {
			res.Created++
			m.logger.Debug("instance_materialized",
				zap.String("user_id", userID.String()),
				zap.String("recurrence_id", base.RecurrenceID.String()),
				zap.String("date_local", todayLocal))
		}
	}

	return res
}

// NextInstance builds the row for dateLocal from a recurrence's latest row. Cumulative metrics
// are carried forward unchanged; alert is raised when the carried streak is broken.
func NextInstance(base *models.HabitInstance, dateLocal string, id uuid.UUID) *models.HabitInstance {
	inst := &models.HabitInstance{
		ID:             id,
		RecurrenceID:   base.RecurrenceID,
		UserID:         base.UserID,
		Title:          base.Title,
		Description:    base.Description,
		Recurrence:     models.Recurrence{Frequency: base.Recurrence.Frequency, Weekdays: append(models.Weekdays(nil), base.Recurrence.Weekdays...)},
		Paused:         false,
		DateLocal:      dateLocal,
		StartDateLocal: base.StartDateLocal,
		CompletedToday: false,
		HabitMetrics:   base.HabitMetrics.Clone(),
		MetricsVersion: base.MetricsVersion,
	}
	if inst.StartDateLocal == "" {
		inst.StartDateLocal = base.DateLocal
	}
	inst.Alert = inst.Streak == 0
	return inst
}
