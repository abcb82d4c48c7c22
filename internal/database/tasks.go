package database

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/habitual/internal/models"
	"github.com/google/uuid"
)

// TaskRepository handles the generic task rows touched by the daily reset
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// MarkOverdue moves every open task of the user whose due date is before todayLocal to the
// overdue board. Tasks already overdue are not touched again. Returns the number of rows changed.
func (r *TaskRepository) MarkOverdue(ctx context.Context, userID uuid.UUID, todayLocal string) (int, error) {
	query := `
		UPDATE tasks
		SET overdue = true, current_board = $3, updated_at = $4
		WHERE user_id = $1
			AND is_completed = false
			AND overdue = false
			AND due_date IS NOT NULL
			AND due_date < $2
	`

	res, err := r.db.ExecContext(ctx, query, userID, todayLocal, models.BoardOverdue, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to mark tasks overdue: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}
