package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/recurrence"
	"github.com/benvon/habitual/internal/request"
	"github.com/benvon/habitual/internal/scheduler"
	"github.com/benvon/habitual/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// CompletionToggler applies completion actions to today's instance
type CompletionToggler interface {
	Complete(ctx context.Context, user *models.User, instanceID uuid.UUID, now time.Time) (*models.HabitInstance, error)
	Uncomplete(ctx context.Context, user *models.User, instanceID uuid.UUID, now time.Time) (*models.HabitInstance, error)
}

var _ CompletionToggler = (*scheduler.Toggler)(nil)

// HabitHandler handles the caller's daily habit instances
type HabitHandler struct {
	habits   database.HabitRepositoryInterface
	toggler  CompletionToggler
	resolver *calendar.Resolver
	logger   *zap.Logger
	now      func() time.Time
}

// NewHabitHandler creates a new habit handler
func NewHabitHandler(habits database.HabitRepositoryInterface, toggler CompletionToggler, resolver *calendar.Resolver, logger *zap.Logger) *HabitHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HabitHandler{habits: habits, toggler: toggler, resolver: resolver, logger: logger, now: time.Now}
}

// RegisterRoutes registers habit routes on a router already prefixed with /habits
func (h *HabitHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListHabits).Methods(http.MethodGet)
	r.HandleFunc("", h.CreateHabit).Methods(http.MethodPost)
	r.HandleFunc("/{id}/complete", h.CompleteHabit).Methods(http.MethodPost)
	r.HandleFunc("/{id}/complete", h.UncompleteHabit).Methods(http.MethodDelete)
}

// CreateHabitRequest represents a create habit request
type CreateHabitRequest struct {
	Title       string          `json:"title" validate:"required,min=1,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Recurrence  RecurrenceInput `json:"recurrence"`
}

// RecurrenceInput is a recurrence as clients send it. Weekdays may be an array
// of indices or a comma-joined string such as "1,3,5".
type RecurrenceInput struct {
	Frequency models.Frequency `json:"frequency"`
	Weekdays  any              `json:"weekdays,omitempty"`
}

// ListHabitsResponse is the caller's instances for one local day
type ListHabitsResponse struct {
	DateLocal string                  `json:"date_local"`
	Habits    []*models.HabitInstance `json:"habits"`
}

// ListHabits lists the caller's instances dated ?date=, defaulting to the caller's today
func (h *HabitHandler) ListHabits(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	day := r.URL.Query().Get("date")
	if day == "" {
		day = h.resolver.LocalDay(h.now(), user.Timezone)
	} else if !calendar.ValidDay(day) {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
		return
	}

	habits, err := h.habits.ListForDay(r.Context(), user.ID, day)
	if err != nil {
		respondServiceError(w, h.logger, "list_habits", err)
		return
	}
	if habits == nil {
		habits = []*models.HabitInstance{}
	}

	respondJSON(w, http.StatusOK, ListHabitsResponse{DateLocal: day, Habits: habits})
}

// CreateHabit starts a new recurrence for the caller
func (h *HabitHandler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req CreateHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	req.Title = validation.SanitizeText(req.Title)
	req.Description = validation.SanitizeText(req.Description)
	if err := validation.Validate.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	weekdays, err := recurrence.ParseWeekdays(req.Recurrence.Weekdays)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	rule := models.Recurrence{Frequency: req.Recurrence.Frequency, Weekdays: weekdays}

	today := h.resolver.LocalDay(h.now(), user.Timezone)
	inst, err := scheduler.NewHabit(user.ID, req.Title, req.Description, rule, today)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	created, err := h.habits.InsertCarryForward(r.Context(), inst)
	if err != nil {
		respondServiceError(w, h.logger, "create_habit", err)
		return
	}
	if !created {
		// fresh recurrence ids make this unreachable short of a uuid collision
		respondServiceError(w, h.logger, "create_habit", errors.New("habit instance already exists"))
		return
	}

	h.logger.Info("habit_created",
		zap.String("user_id", user.ID.String()),
		zap.String("recurrence_id", inst.RecurrenceID.String()),
		zap.String("date_local", inst.DateLocal))
	respondJSON(w, http.StatusCreated, inst)
}

// CompleteHabit marks today's instance done
func (h *HabitHandler) CompleteHabit(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

// UncompleteHabit undoes today's completion
func (h *HabitHandler) UncompleteHabit(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *HabitHandler) toggle(w http.ResponseWriter, r *http.Request, completed bool) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid habit ID")
		return
	}

	var inst *models.HabitInstance
	if completed {
		inst, err = h.toggler.Complete(r.Context(), user, id, h.now())
	} else {
		inst, err = h.toggler.Uncomplete(r.Context(), user, id, h.now())
	}
	if err != nil {
		respondServiceError(w, h.logger, "toggle_habit", err)
		return
	}

	respondJSON(w, http.StatusOK, inst)
}
