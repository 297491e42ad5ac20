package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/regflow/internal/app"
	"github.com/Shivanand-hulikatti/regflow/internal/escalation"
	"github.com/Shivanand-hulikatti/regflow/internal/model"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger escalation jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the escalation jobs",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range escalation.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "run <name>",
		Short:     "Run one escalation job now",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: escalation.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Runner.Run(cmd.Context(), args[0])
				if res != nil {
					if encErr := printJSON(cmd, res); encErr != nil {
						return encErr
					}
				}
				return err
			})
		},
	})

	var day string
	logs := &cobra.Command{
		Use:   "logs",
		Short: "Show the job log of a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if day == "" {
				day = model.DayKey(time.Now())
			} else if _, err := time.Parse(time.DateOnly, day); err != nil {
				return fmt.Errorf("day must be formatted as YYYY-MM-DD: %w", err)
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				entries, err := a.Runner.Logs(cmd.Context(), day)
				if err != nil {
					return err
				}
				return printJSON(cmd, entries)
			})
		},
	}
	logs.Flags().StringVar(&day, "day", "", "day to show, YYYY-MM-DD (default today, UTC)")
	cmd.AddCommand(logs)

	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
