package commands

import (
	"fmt"

	"github.com/benvon/habitual/internal/calendar"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/recurrence"
	"github.com/spf13/cobra"
)

func newEligibleCmd() *cobra.Command {
	var (
		date      string
		frequency string
		weekdays  string
	)

	cmd := &cobra.Command{
		Use:   "eligible",
		Short: "Report whether a recurrence is due on a local day",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !calendar.ValidDay(date) {
				return fmt.Errorf("--date must be YYYY-MM-DD")
			}
			r := models.Recurrence{Frequency: models.Frequency(frequency)}
			if weekdays != "" {
				days, err := recurrence.ParseWeekdays(weekdays)
				if err != nil {
					return err
				}
				r.Weekdays = days
			}
			r, err := recurrence.Normalize(r)
			if err != nil {
				return err
			}

			wd, _ := calendar.WeekdayOf(date)
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %t\n", date, wd, recurrence.IsEligible(date, r))
			if prev, ok := recurrence.PreviousEligibleDay(date, r); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "previous due day: %s\n", prev)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Local day, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&frequency, "frequency", string(models.FrequencyDaily), "daily, weekly or custom")
	cmd.Flags().StringVar(&weekdays, "weekdays", "", "Comma-separated weekdays, 0=Sunday")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newLocalDayCmd() *cobra.Command {
	var (
		tz string
		at string
	)

	cmd := &cobra.Command{
		Use:   "localday",
		Short: "Show the local day and next reset instant for a timezone",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			resolver := calendar.NewResolver(calendar.DefaultTimezone, nil)
			var zone *string
			if tz != "" {
				zone = &tz
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "zone: %s\n", resolver.Location(zone))
			fmt.Fprintf(out, "local day: %s\n", resolver.LocalDay(now, zone))
			fmt.Fprintf(out, "next reset: %s\n", resolver.NextLocalMidnightUTC(now, zone).Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone (defaults to "+calendar.DefaultTimezone+")")
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 instant (defaults to now)")
	return cmd
}
