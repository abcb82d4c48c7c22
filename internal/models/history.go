package models

import (
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is one row of the per-day completion ledger
type HistoryEntry struct {
	RecurrenceID uuid.UUID `json:"recurrence_id"`
	UserID       uuid.UUID `json:"user_id"`
	DateLocal    string    `json:"date_local"`
	Completed    bool      `json:"completed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
