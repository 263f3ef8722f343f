package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/commons/pkg/journal"
)

func newEventsCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query the event journal",
		Long: `Query and display recorded events from the SQLite journal.

Subcommands:
  list  - List every event
  kind  - List events of one kind
  show  - Show a single event by ID
  day   - List events recorded on a specific day

Examples:
  commons events list --db commons.sqlite
  commons events kind bid-received
  commons events show 01HQ8Z9X4T2K6V3R5N7M1P0A2B
  commons events day 2024-01-15`,
	}

	open := func() (*journal.SQLite, error) {
		j, err := journal.NewSQLite(rc.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		return j, nil
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			evs, err := j.ListAll()
			if err != nil {
				return fmt.Errorf("query events: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), journal.FormatEventsOrg(evs))
			return nil
		},
	}

	kindCmd := &cobra.Command{
		Use:   "kind <kind>",
		Short: "List events of one kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := journal.Kind(args[0])
			if !kind.Valid() {
				return fmt.Errorf("unknown event kind %q", args[0])
			}

			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			evs, err := j.ListByKind(kind)
			if err != nil {
				return fmt.Errorf("query events: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), journal.FormatEventsOrg(evs))
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <event-id>",
		Short: "Show a single event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			ev, err := j.GetEvent(args[0])
			if err != nil {
				return fmt.Errorf("get event: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), journal.FormatEventOrg(ev))
			return nil
		},
	}

	dayCmd := &cobra.Command{
		Use:   "day <YYYY-MM-DD>",
		Short: "List events recorded on a specific day (UTC)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := dayBounds(time.UTC, args[0])
			if err != nil {
				return fmt.Errorf("date: %w", err)
			}

			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			evs, err := j.ListBetween(start, end)
			if err != nil {
				return fmt.Errorf("query events: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), journal.FormatEventsOrg(evs))
			return nil
		},
	}

	cmd.AddCommand(listCmd, kindCmd, showCmd, dayCmd)
	return cmd
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}
