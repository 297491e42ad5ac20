// Package cli implements the regflow command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/regflow/internal/app"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "regflow",
	Short:         "Event registration and escalation service",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			_ = cmd.Help()
			os.Exit(0)
		}
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (yaml, toml or json)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newJobsCmd())
	rootCmd.AddCommand(newRequestsCmd())
}

// withApp builds the application for one command and closes it afterwards.
func withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, logger, err := app.Load(configPath)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.Any("error", err))
		return err
	}
	defer a.Close()
	return fn(a)
}
