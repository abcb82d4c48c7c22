// Package commands implements habitctl, the operator CLI for the habit scheduler.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/habitual/internal/config"
	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/lock"
	"github.com/benvon/habitual/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRootCmd creates the habitctl command tree
func NewRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:           "habitctl",
		Short:         "Operator tool for the habitual scheduler",
		Long:          "CLI tool for running daily resets by hand, applying migrations and inspecting calendar rules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(newResetCmd(&debug))
	root.AddCommand(newMigrateCmd(&debug))
	root.AddCommand(newJWKSCmd())
	root.AddCommand(newEligibleCmd())
	root.AddCommand(newLocalDayCmd())
	return root
}

// env holds the connections a database-backed command needs
type env struct {
	cfg    *config.Config
	db     *database.DB
	redis  *redis.Client
	logger *zap.Logger
}

// openEnv loads configuration and connects to Postgres. Redis is optional here:
// without it locks are process-local, which is fine for a one-off run.
func openEnv(ctx context.Context, debug bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	zapLogger, err := logger.NewCLILogger(debug || cfg.WorkerDebugMode)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	e := &env{cfg: cfg, db: db, logger: zapLogger}
	if client, err := lock.NewRedisClient(ctx, cfg.RedisURL); err != nil {
		zapLogger.Warn("redis_unavailable_running_without_distributed_locks", zap.Error(err))
	} else {
		e.redis = client
	}
	return e, nil
}

func (e *env) Close() {
	if e.redis != nil {
		if err := e.redis.Close(); err != nil {
			e.logger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}
	if err := e.db.Close(); err != nil {
		e.logger.Warn("failed_to_close_database_connection", zap.Error(err))
	}
	_ = logger.Sync(e.logger)
}

// parseAt reads an --at flag value; empty means now
func parseAt(at string) (time.Time, error) {
	if at == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be RFC3339: %w", err)
	}
	return t, nil
}
