package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/benvon/habitual/internal/models"
	"go.uber.org/zap"
)

// CronSecretHeader carries the shared secret of the external cron trigger
const CronSecretHeader = "X-Cron-Secret"

// BatchRunner runs the daily reset for every user
type BatchRunner interface {
	Run(ctx context.Context, now time.Time) (*models.RunSummary, error)
}

// CronHandler exposes the daily reset to an external scheduler
type CronHandler struct {
	runner BatchRunner
	secret string
	logger *zap.Logger
	now    func() time.Time
}

// NewCronHandler creates a new cron handler. An empty secret disables the trigger.
func NewCronHandler(runner BatchRunner, secret string, logger *zap.Logger) *CronHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronHandler{runner: runner, secret: secret, logger: logger, now: time.Now}
}

// DailyReset runs the batch and returns its summary. The run is detached from the request
// context so a disconnecting caller cannot abort it halfway.
func (h *CronHandler) DailyReset(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Daily reset trigger is not configured")
		return
	}
	given := r.Header.Get(CronSecretHeader)
	if subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) != 1 {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Invalid cron secret")
		return
	}

	// a full run can outlast the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	summary, err := h.runner.Run(context.WithoutCancel(r.Context()), h.now())
	if err != nil {
		h.logger.Error("daily_reset_trigger_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Daily reset failed")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}
