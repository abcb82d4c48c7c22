package database

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/habitual/internal/models"
	"github.com/google/uuid"
)

// HistoryRepository writes and reads the per-day completion ledger
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Upsert records whether a recurrence was completed on a local day.
// Repeated writes for the same (recurrence, user, day) overwrite the completed flag.
func (r *HistoryRepository) Upsert(ctx context.Context, entry *models.HistoryEntry) error {
	query := `
		INSERT INTO habit_history (recurrence_id, user_id, date_local, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (recurrence_id, user_id, date_local) DO UPDATE SET
			completed = EXCLUDED.completed,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		entry.RecurrenceID,
		entry.UserID,
		entry.DateLocal,
		entry.Completed,
		time.Now(),
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert history entry: %w", err)
	}
	return nil
}

// ListRange returns the ledger rows of a recurrence between from and to inclusive
func (r *HistoryRepository) ListRange(ctx context.Context, userID, recurrenceID uuid.UUID, from, to string) ([]*models.HistoryEntry, error) {
	query := `
		SELECT recurrence_id, user_id, date_local, completed, created_at, updated_at
		FROM habit_history
		WHERE user_id = $1 AND recurrence_id = $2 AND date_local BETWEEN $3 AND $4
		ORDER BY date_local
	`

	rows, err := r.db.QueryContext(ctx, query, userID, recurrenceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		e := &models.HistoryEntry{}
		if err := rows.Scan(&e.RecurrenceID, &e.UserID, &e.DateLocal, &e.Completed, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return entries, nil
}
