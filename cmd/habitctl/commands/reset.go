package commands

import (
	"encoding/json"
	"fmt"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/lock"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/scheduler"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newResetCmd(debug *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Run the daily reset outside the worker",
	}
	cmd.AddCommand(newResetRunCmd(debug))
	cmd.AddCommand(newResetUserCmd(debug))
	return cmd
}

func newResetRunCmd(debug *bool) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daily reset for every user",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			e, err := openEnv(cmd.Context(), *debug)
			if err != nil {
				return err
			}
			defer e.Close()

			summary, err := e.orchestrator().Run(cmd.Context(), now)
			if err != nil {
				return fmt.Errorf("daily reset failed: %w", err)
			}
			return printSummary(cmd, summary)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Run as if the current time were this RFC3339 instant")
	return cmd
}

func newResetUserCmd(debug *bool) *cobra.Command {
	var (
		id string
		at string
	)

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Run the daily reset for one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("--id must be a user UUID: %w", err)
			}
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			e, err := openEnv(cmd.Context(), *debug)
			if err != nil {
				return err
			}
			defer e.Close()

			user, err := database.NewUserRepository(e.db).GetByID(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("failed to load user: %w", err)
			}
			summary, err := e.orchestrator().RunUser(cmd.Context(), user, now)
			if err != nil {
				return fmt.Errorf("daily reset failed for user %s: %w", userID, err)
			}
			return printSummary(cmd, summary)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "User ID (required)")
	cmd.Flags().StringVar(&at, "at", "", "Run as if the current time were this RFC3339 instant")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (e *env) orchestrator() *scheduler.Orchestrator {
	return scheduler.NewOrchestrator(
		database.NewUserRepository(e.db),
		database.NewHabitRepository(e.db),
		database.NewHistoryRepository(e.db),
		database.NewTaskRepository(e.db),
		calendar.NewResolver(e.cfg.DefaultTimezone, e.logger),
		lock.NewLocker(e.redis, lock.DefaultTTL, e.logger),
		e.cfg.DailyResetConcurrency,
		e.logger,
	)
}

func printSummary(cmd *cobra.Command, summary *models.RunSummary) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
