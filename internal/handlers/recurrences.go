package handlers

import (
	"net/http"
	"time"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/recurrence"
	"github.com/benvon/habitual/internal/request"
	"github.com/benvon/habitual/internal/scheduler"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// MaxHistoryWindowDays bounds the span of one history query
const MaxHistoryWindowDays = 366

// RecurrenceHandler handles whole-recurrence operations: history, pause and delete
type RecurrenceHandler struct {
	habits   database.HabitRepositoryInterface
	history  database.HistoryRepositoryInterface
	resolver *calendar.Resolver
	logger   *zap.Logger
	now      func() time.Time
}

// NewRecurrenceHandler creates a new recurrence handler
func NewRecurrenceHandler(habits database.HabitRepositoryInterface, history database.HistoryRepositoryInterface, resolver *calendar.Resolver, logger *zap.Logger) *RecurrenceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecurrenceHandler{habits: habits, history: history, resolver: resolver, logger: logger, now: time.Now}
}

// RegisterRoutes registers recurrence routes on a router already prefixed with /recurrences
func (h *RecurrenceHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/{id}/history", h.GetHistory).Methods(http.MethodGet)
	r.HandleFunc("/{id}/pause", h.Pause).Methods(http.MethodPost)
	r.HandleFunc("/{id}/resume", h.Resume).Methods(http.MethodPost)
	r.HandleFunc("/{id}", h.Delete).Methods(http.MethodDelete)
}

// HistoryReport is the ledger of a recurrence over [From, To] with its success rate
type HistoryReport struct {
	RecurrenceID uuid.UUID              `json:"recurrence_id"`
	From         string                 `json:"from"`
	To           string                 `json:"to"`
	Entries      []*models.HistoryEntry `json:"entries"`
	EligibleDays int                    `json:"eligible_days"`
	Completed    int                    `json:"completed"`
	SuccessRate  float64                `json:"success_rate"`
	Streak       int                    `json:"streak"`
	Alert        bool                   `json:"alert"`
}

// GetHistory reports the ledger between ?from= (default: the recurrence start) and ?to= (default: today).
// The window never starts before the recurrence did.
func (h *RecurrenceHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	user, latest, ok := h.ownedRecurrence(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if to == "" {
		to = h.resolver.LocalDay(h.now(), user.Timezone)
	}
	if from == "" || from < latest.StartDateLocal {
		from = latest.StartDateLocal
	}
	if !calendar.ValidDay(from) || !calendar.ValidDay(to) {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "from and to must be YYYY-MM-DD")
		return
	}
	span, err := calendar.DaysBetween(from, to)
	if err != nil || span > MaxHistoryWindowDays {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "history window is limited to 366 days")
		return
	}

	report := HistoryReport{
		RecurrenceID: latest.RecurrenceID,
		From:         from,
		To:           to,
		Entries:      []*models.HistoryEntry{},
		Streak:       latest.Streak,
		Alert:        latest.Alert,
	}
	if span >= 0 {
		entries, err := h.history.ListRange(r.Context(), user.ID, latest.RecurrenceID, from, to)
		if err != nil {
			respondServiceError(w, h.logger, "list_history", err)
			return
		}
		if entries != nil {
			report.Entries = entries
		}
	}
	for _, e := range report.Entries {
		if e.Completed {
			report.Completed++
		}
	}
	report.EligibleDays = recurrence.CountEligibleDays(from, to, latest.Recurrence)
	report.SuccessRate = recurrence.SuccessRate(report.Completed, from, to, latest.Recurrence)

	respondJSON(w, http.StatusOK, report)
}

// Pause stops materializing and closing out the recurrence
func (h *RecurrenceHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// Resume restarts the recurrence from the next daily reset
func (h *RecurrenceHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *RecurrenceHandler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	user, latest, ok := h.ownedRecurrence(w, r)
	if !ok {
		return
	}
	if err := h.habits.SetPaused(r.Context(), user.ID, latest.RecurrenceID, paused); err != nil {
		respondServiceError(w, h.logger, "set_paused", err)
		return
	}
	h.logger.Info("recurrence_paused_changed",
		zap.String("user_id", user.ID.String()),
		zap.String("recurrence_id", latest.RecurrenceID.String()),
		zap.Bool("paused", paused))
	respondJSON(w, http.StatusOK, map[string]any{"recurrence_id": latest.RecurrenceID, "paused": paused})
}

// Delete removes every row and the ledger of the recurrence
func (h *RecurrenceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, latest, ok := h.ownedRecurrence(w, r)
	if !ok {
		return
	}
	if err := h.habits.DeleteRecurrence(r.Context(), user.ID, latest.RecurrenceID); err != nil {
		respondServiceError(w, h.logger, "delete_recurrence", err)
		return
	}
	h.logger.Info("recurrence_deleted",
		zap.String("user_id", user.ID.String()),
		zap.String("recurrence_id", latest.RecurrenceID.String()))
	w.WriteHeader(http.StatusNoContent)
}

// ownedRecurrence loads the latest row of the {id} recurrence and checks the caller owns it.
// It writes the error response itself and reports false when the request cannot proceed.
func (h *RecurrenceHandler) ownedRecurrence(w http.ResponseWriter, r *http.Request) (*models.User, *models.HabitInstance, bool) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return nil, nil, false
	}
	id, err := pathUUID(r, "id")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid recurrence ID")
		return nil, nil, false
	}
	latest, err := h.habits.Latest(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "load_recurrence", err)
		return nil, nil, false
	}
	if latest.UserID != user.ID {
		respondServiceError(w, h.logger, "load_recurrence", scheduler.ErrForbidden)
		return nil, nil, false
	}
	return user, latest, true
}
