package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/habitual/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// HabitRepository handles habit instance database operations.
// Every dated row of a recurrence carries the same cumulative metrics and
// metrics_version; the row with the greatest date_local is authoritative.
type HabitRepository struct {
	db *DB
}

// NewHabitRepository creates a new habit repository
func NewHabitRepository(db *DB) *HabitRepository {
	return &HabitRepository{db: db}
}

// InstanceCompletion flips completed_today on a single dated row as part of a metrics update
type InstanceCompletion struct {
	InstanceID uuid.UUID
	Completed  bool
}

// MetricsUpdate is a compare-and-set write of a recurrence's cumulative metrics
type MetricsUpdate struct {
	RecurrenceID    uuid.UUID
	ExpectedVersion int64
	Metrics         models.HabitMetrics
	Completion      *InstanceCompletion
}

const habitColumns = `id, recurrence_id, user_id, title, description, frequency, weekdays, paused,
	date_local, start_date_local, completed_today, streak, total_completed,
	last_completed_date_local, missed_days, fail_by_weekday, success_rate, alert,
	metrics_version, created_at, updated_at`

func scanHabit(row rowScanner) (*models.HabitInstance, error) {
	inst := &models.HabitInstance{}
	var (
		description   sql.NullString
		frequency     string
		weekdays      []int64
		lastCompleted sql.NullString
		missedDays    []string
		failJSON      []byte
	)
	if err := row.Scan(
		&inst.ID,
		&inst.RecurrenceID,
		&inst.UserID,
		&inst.Title,
		&description,
		&frequency,
		pq.Array(&weekdays),
		&inst.Paused,
		&inst.DateLocal,
		&inst.StartDateLocal,
		&inst.CompletedToday,
		&inst.Streak,
		&inst.TotalCompleted,
		&lastCompleted,
		pq.Array(&missedDays),
		&failJSON,
		&inst.SuccessRate,
		&inst.Alert,
		&inst.MetricsVersion,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	); err != nil {
		return nil, err
	}

	inst.Description = description.String
	inst.Recurrence.Frequency = models.Frequency(frequency)
	for _, d := range weekdays {
		inst.Recurrence.Weekdays = append(inst.Recurrence.Weekdays, int(d))
	}
	if lastCompleted.Valid {
		inst.LastCompletedDateLocal = &lastCompleted.String
	}
	inst.MissedDays = missedDays
	inst.FailByWeekday = map[int]int{}
	if len(failJSON) > 0 {
		if err := json.Unmarshal(failJSON, &inst.FailByWeekday); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fail_by_weekday: %w", err)
		}
	}
	return inst, nil
}

func (r *HabitRepository) queryHabits(ctx context.Context, query string, args ...any) ([]*models.HabitInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query habit instances: %w", err)
	}
	defer rows.Close()

	var out []*models.HabitInstance
	for rows.Next() {
		inst, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan habit instance: %w", err)
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating habit instances: %w", err)
	}
	return out, nil
}

func (r *HabitRepository) queryHabit(ctx context.Context, what, query string, args ...any) (*models.HabitInstance, error) {
	inst, err := scanHabit(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	return inst, nil
}

// LatestPerRecurrence returns the most recent dated row of each of the user's recurrences.
// Paused recurrences are judged by their latest row and dropped unless includePaused is set.
func (r *HabitRepository) LatestPerRecurrence(ctx context.Context, userID uuid.UUID, includePaused bool) ([]*models.HabitInstance, error) {
	query := `
		SELECT ` + habitColumns + ` FROM (
			SELECT DISTINCT ON (recurrence_id) ` + habitColumns + `
			FROM habit_instances
			WHERE user_id = $1
			ORDER BY recurrence_id, date_local DESC
		) latest
		WHERE $2 OR NOT paused
		ORDER BY created_at
	`
	return r.queryHabits(ctx, query, userID, includePaused)
}

// GetByID retrieves a habit instance by ID
func (r *HabitRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.HabitInstance, error) {
	query := `SELECT ` + habitColumns + ` FROM habit_instances WHERE id = $1`
	return r.queryHabit(ctx, "habit instance", query, id)
}

// GetForDay retrieves the row of a recurrence dated dateLocal
func (r *HabitRepository) GetForDay(ctx context.Context, recurrenceID uuid.UUID, dateLocal string) (*models.HabitInstance, error) {
	query := `SELECT ` + habitColumns + ` FROM habit_instances WHERE recurrence_id = $1 AND date_local = $2`
	return r.queryHabit(ctx, "habit instance for day", query, recurrenceID, dateLocal)
}

// Latest retrieves the authoritative (most recent) row of a recurrence
func (r *HabitRepository) Latest(ctx context.Context, recurrenceID uuid.UUID) (*models.HabitInstance, error) {
	query := `SELECT ` + habitColumns + ` FROM habit_instances WHERE recurrence_id = $1 ORDER BY date_local DESC LIMIT 1`
	return r.queryHabit(ctx, "latest habit instance", query, recurrenceID)
}

// ListForDay returns the user's instances dated dateLocal
func (r *HabitRepository) ListForDay(ctx context.Context, userID uuid.UUID, dateLocal string) ([]*models.HabitInstance, error) {
	query := `SELECT ` + habitColumns + ` FROM habit_instances WHERE user_id = $1 AND date_local = $2 ORDER BY created_at`
	return r.queryHabits(ctx, query, userID, dateLocal)
}

// InsertCarryForward inserts a new dated row for inst's recurrence unless one already exists.
// The cumulative metrics are refreshed from the recurrence's latest row under a row lock so
// that a concurrent metrics update cannot leave the new row stale. Returns false when the
// (recurrence_id, date_local) row already existed.
func (r *HabitRepository) InsertCarryForward(ctx context.Context, inst *models.HabitInstance) (bool, error) {
	created := false
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		lockQuery := `SELECT ` + habitColumns + ` FROM habit_instances
			WHERE recurrence_id = $1 ORDER BY date_local DESC LIMIT 1 FOR UPDATE`
		latest, err := scanHabit(tx.QueryRowContext(ctx, lockQuery, inst.RecurrenceID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to lock latest habit instance: %w", err)
		default:
			if latest.MetricsVersion != inst.MetricsVersion {
				inst.HabitMetrics = latest.HabitMetrics.Clone()
				inst.MetricsVersion = latest.MetricsVersion
				inst.Alert = inst.Streak == 0
			}
		}

		failJSON, err := json.Marshal(inst.FailByWeekday)
		if err != nil {
			return fmt.Errorf("failed to marshal fail_by_weekday: %w", err)
		}

		query := `
			INSERT INTO habit_instances (id, recurrence_id, user_id, title, description, frequency, weekdays,
				paused, date_local, start_date_local, completed_today, streak, total_completed,
				last_completed_date_local, missed_days, fail_by_weekday, success_rate, alert,
				metrics_version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $20)
			ON CONFLICT (recurrence_id, date_local) DO NOTHING
			RETURNING created_at, updated_at
		`
		now := time.Now()
		err = tx.QueryRowContext(ctx, query,
			inst.ID,
			inst.RecurrenceID,
			inst.UserID,
			inst.Title,
			inst.Description,
			string(inst.Recurrence.Frequency),
			pq.Array(weekdaysToInt64(inst.Recurrence.Weekdays)),
			inst.Paused,
			inst.DateLocal,
			inst.StartDateLocal,
			inst.CompletedToday,
			inst.Streak,
			inst.TotalCompleted,
			inst.LastCompletedDateLocal,
			pq.Array(nonNilStrings(inst.MissedDays)),
			failJSON,
			inst.SuccessRate,
			inst.Alert,
			inst.MetricsVersion,
			now,
		).Scan(&inst.CreatedAt, &inst.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to insert habit instance: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// ApplyMetrics writes metrics to every row of a recurrence if its metrics_version still
// equals the expected value, optionally flipping completed_today on one row in the same
// transaction. Returns the new version, or ErrVersionConflict when another writer won.
func (r *HabitRepository) ApplyMetrics(ctx context.Context, upd MetricsUpdate) (int64, error) {
	failJSON, err := json.Marshal(upd.Metrics.FailByWeekday)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal fail_by_weekday: %w", err)
	}

	newVersion := upd.ExpectedVersion + 1
	err = r.db.withTx(ctx, func(tx *sql.Tx) error {
		lockQuery := `SELECT COALESCE(MAX(metrics_version), -1) FROM (
			SELECT metrics_version FROM habit_instances WHERE recurrence_id = $1 FOR UPDATE
		) locked`
		var current int64
		if err := tx.QueryRowContext(ctx, lockQuery, upd.RecurrenceID).Scan(&current); err != nil {
			return fmt.Errorf("failed to lock habit instances: %w", err)
		}
		if current < 0 {
			return fmt.Errorf("recurrence %s: %w", upd.RecurrenceID, ErrNotFound)
		}
		if current != upd.ExpectedVersion {
			return ErrVersionConflict
		}

		query := `
			UPDATE habit_instances
			SET streak = $2, total_completed = $3, last_completed_date_local = $4, missed_days = $5,
				fail_by_weekday = $6, success_rate = $7, alert = $8, metrics_version = $9, updated_at = $10
			WHERE recurrence_id = $1
		`
		if _, err := tx.ExecContext(ctx, query,
			upd.RecurrenceID,
			upd.Metrics.Streak,
			upd.Metrics.TotalCompleted,
			upd.Metrics.LastCompletedDateLocal,
			pq.Array(nonNilStrings(upd.Metrics.MissedDays)),
			failJSON,
			upd.Metrics.SuccessRate,
			upd.Metrics.Alert,
			newVersion,
			time.Now(),
		); err != nil {
			return fmt.Errorf("failed to update habit metrics: %w", err)
		}

		if upd.Completion != nil {
			res, err := tx.ExecContext(ctx,
				`UPDATE habit_instances SET completed_today = $3 WHERE id = $1 AND recurrence_id = $2`,
				upd.Completion.InstanceID, upd.RecurrenceID, upd.Completion.Completed)
			if err != nil {
				return fmt.Errorf("failed to update completion: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return fmt.Errorf("habit instance %s: %w", upd.Completion.InstanceID, ErrNotFound)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newVersion, nil
}

// SetPaused pauses or resumes a recurrence owned by userID
func (r *HabitRepository) SetPaused(ctx context.Context, userID, recurrenceID uuid.UUID, paused bool) error {
	query := `UPDATE habit_instances SET paused = $3, updated_at = $4 WHERE recurrence_id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, recurrenceID, userID, paused, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set paused: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("recurrence %s: %w", recurrenceID, ErrNotFound)
	}
	return nil
}

// DeleteRecurrence removes every dated row and the history of a recurrence owned by userID
func (r *HabitRepository) DeleteRecurrence(ctx context.Context, userID, recurrenceID uuid.UUID) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM habit_instances WHERE recurrence_id = $1 AND user_id = $2`, recurrenceID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete habit instances: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("recurrence %s: %w", recurrenceID, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM habit_history WHERE recurrence_id = $1 AND user_id = $2`, recurrenceID, userID); err != nil {
			return fmt.Errorf("failed to delete habit history: %w", err)
		}
		return nil
	})
}

func weekdaysToInt64(w models.Weekdays) []int64 {
	out := make([]int64, 0, len(w))
	for _, d := range w {
		out = append(out, int64(d))
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
