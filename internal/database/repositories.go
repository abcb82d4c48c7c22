package database

import (
	"context"

	"github.com/benvon/habitual/internal/models"
	"github.com/google/uuid"
)

// UserRepositoryInterface defines the interface for user repository operations
type UserRepositoryInterface interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByProviderID(ctx context.Context, providerID string) (*models.User, error)
	ListAll(ctx context.Context) ([]*models.User, error)
}

// HabitRepositoryInterface defines the interface for habit instance repository operations
type HabitRepositoryInterface interface {
	LatestPerRecurrence(ctx context.Context, userID uuid.UUID, includePaused bool) ([]*models.HabitInstance, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.HabitInstance, error)
	GetForDay(ctx context.Context, recurrenceID uuid.UUID, dateLocal string) (*models.HabitInstance, error)
	Latest(ctx context.Context, recurrenceID uuid.UUID) (*models.HabitInstance, error)
	ListForDay(ctx context.Context, userID uuid.UUID, dateLocal string) ([]*models.HabitInstance, error)
	InsertCarryForward(ctx context.Context, inst *models.HabitInstance) (bool, error)
	ApplyMetrics(ctx context.Context, upd MetricsUpdate) (int64, error)
	SetPaused(ctx context.Context, userID, recurrenceID uuid.UUID, paused bool) error
	DeleteRecurrence(ctx context.Context, userID, recurrenceID uuid.UUID) error
}

// HistoryRepositoryInterface defines the interface for history ledger operations
type HistoryRepositoryInterface interface {
	Upsert(ctx context.Context, entry *models.HistoryEntry) error
	ListRange(ctx context.Context, userID, recurrenceID uuid.UUID, from, to string) ([]*models.HistoryEntry, error)
}

// TaskRepositoryInterface defines the interface for task operations used by the daily reset
type TaskRepositoryInterface interface {
	MarkOverdue(ctx context.Context, userID uuid.UUID, todayLocal string) (int, error)
}

// Ensure concrete types implement the interfaces
var (
	_ UserRepositoryInterface    = (*UserRepository)(nil)
	_ HabitRepositoryInterface   = (*HabitRepository)(nil)
	_ HistoryRepositoryInterface = (*HistoryRepository)(nil)
	_ TaskRepositoryInterface    = (*TaskRepository)(nil)
)
