package handlers

import (
	"net/http"
	"time"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/request"
)

// MeHandler describes the authenticated caller
type MeHandler struct {
	resolver *calendar.Resolver
	now      func() time.Time
}

// NewMeHandler creates a new me handler
func NewMeHandler(resolver *calendar.Resolver) *MeHandler {
	return &MeHandler{resolver: resolver, now: time.Now}
}

// MeResponse is the caller with the zone and local day the scheduler uses for them
type MeResponse struct {
	User           *models.User `json:"user"`
	EffectiveZone  string       `json:"effective_timezone"`
	TodayLocal     string       `json:"today_local"`
	NextResetAtUTC time.Time    `json:"next_reset_at_utc"`
}

// GetMe handles GET /me
func (h *MeHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	now := h.now()
	respondJSON(w, http.StatusOK, MeResponse{
		User:           user,
		EffectiveZone:  h.resolver.Location(user.Timezone).String(),
		TodayLocal:     h.resolver.LocalDay(now, user.Timezone),
		NextResetAtUTC: h.resolver.NextLocalMidnightUTC(now, user.Timezone),
	})
}
