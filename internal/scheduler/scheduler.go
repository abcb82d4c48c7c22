// Package scheduler materializes daily habit instances, closes out finished days and
// keeps the cumulative streak metrics of each recurrence consistent across its rows.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrNotToday is returned when toggling an instance that is not dated the user's current local day
	ErrNotToday = errors.New("instance is not dated today")
	// ErrForbidden is returned when a user touches an instance they do not own
	ErrForbidden = errors.New("instance belongs to another user")
)

// DefaultMaxAttempts bounds the re-read and re-apply loop after a metrics version conflict
const DefaultMaxAttempts = 3

// metricsMutation derives the next metrics from the current authoritative row.
// Returning a nil update means nothing needs to be written.
type metricsMutation func(ctx context.Context, latest *models.HabitInstance) (*database.MetricsUpdate, error)

// applyMetrics re-reads the latest row of a recurrence, applies mutate and writes the result
// with a compare-and-set on metrics_version, retrying on conflict. It returns the row the
// mutation was computed from and whether a write happened.
func applyMetrics(ctx context.Context, habits database.HabitRepositoryInterface, recurrenceID uuid.UUID, maxAttempts int, mutate metricsMutation) (*models.HabitInstance, bool, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		latest, err := habits.Latest(ctx, recurrenceID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load latest instance: %w", err)
		}

		upd, err := mutate(ctx, latest)
		if err != nil {
			return nil, false, err
		}
		if upd == nil {
			return latest, false, nil
		}

		upd.RecurrenceID = recurrenceID
		upd.ExpectedVersion = latest.MetricsVersion
		if _, err := habits.ApplyMetrics(ctx, *upd); err != nil {
			if errors.Is(err, database.ErrVersionConflict) {
				continue
			}
			return nil, false, fmt.Errorf("failed to apply metrics: %w", err)
		}
		return latest, true, nil
	}

	return nil, false, fmt.Errorf("recurrence %s after %d attempts: %w", recurrenceID, maxAttempts, database.ErrVersionConflict)
}
