package models

import (
	"time"

	"github.com/google/uuid"
)

// BoardOverdue is the board overdue tasks are moved to
const BoardOverdue = "overdue"

// TaskInstance is a non-recurring (or template-instantiated) task
type TaskInstance struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Title        string     `json:"title"`
	DueDate      *string    `json:"due_date,omitempty"` // YYYY-MM-DD in the owner's local calendar
	IsCompleted  bool       `json:"is_completed"`
	CurrentBoard string     `json:"current_board"`
	Overdue      bool       `json:"overdue"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
