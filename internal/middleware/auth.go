package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/benvon/habitual/internal/database"
	logpkg "github.com/benvon/habitual/internal/logger"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/request"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenVerifier validates a bearer token and returns its claims
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*models.TokenClaims, error)
}

// Auth validates the bearer token and puts the matching user in the request context.
// Users are provisioned on first sight, taking their zone from the zoneinfo claim when it is valid.
func Auth(users database.UserRepositoryInterface, verifier TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := request.BearerToken(r)
			if !ok {
				respondErrorJSON(w, r, http.StatusUnauthorized, "Unauthorized", "Missing or malformed Authorization header", logger)
				return
			}

			ctx := r.Context()
			claims, err := verifier.Verify(ctx, token)
			if err != nil {
				logger.Info("token_rejected",
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("error", logpkg.SanitizeError(err)))
				respondErrorJSON(w, r, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token", logger)
				return
			}

			user, err := users.GetByProviderID(ctx, claims.Sub)
			if errors.Is(err, database.ErrNotFound) {
				user, err = provisionUser(ctx, users, claims)
				if err == nil {
					logger.Info("user_provisioned", zap.String("user_id", user.ID.String()))
				}
			}
			if err != nil {
				logger.Error("user_lookup_failed", zap.Error(err))
				respondErrorJSON(w, r, http.StatusInternalServerError, "Internal Server Error", "Failed to load user", logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithUser(ctx, user)))
		})
	}
}

func provisionUser(ctx context.Context, users database.UserRepositoryInterface, claims *models.TokenClaims) (*models.User, error) {
	sub := claims.Sub
	user := &models.User{
		ID:         uuid.New(),
		Email:      claims.Email,
		ProviderID: &sub,
	}
	if claims.Name != "" {
		name := claims.Name
		user.Name = &name
	}
	if claims.Zoneinfo != "" {
		if _, err := time.LoadLocation(claims.Zoneinfo); err == nil {
			zone := claims.Zoneinfo
			user.Timezone = &zone
		}
	}
	err := users.Create(ctx, user)
	if errors.Is(err, database.ErrDuplicate) {
		// a concurrent first request for the same subject won the insert
		return users.GetByProviderID(ctx, sub)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
