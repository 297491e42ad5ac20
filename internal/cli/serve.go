package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/regflow/internal/app"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if migrate {
				cfg, logger, err := app.Load(configPath)
				if err != nil {
					return err
				}
				if err := app.Migrate(cfg, "up", logger); err != nil {
					return err
				}
			}

			return withApp(ctx, func(a *app.App) error {
				return a.Serve(ctx)
			})
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving")

	return cmd
}
