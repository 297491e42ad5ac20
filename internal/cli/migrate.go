package cli

import (
	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/regflow/internal/app"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) > 0 {
				action = args[0]
			}

			cfg, logger, err := app.Load(configPath)
			if err != nil {
				return err
			}
			return app.Migrate(cfg, action, logger)
		},
	}

	return cmd
}
