package cli

import (
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *getConfig(cmd.Context())
			cfg.Database.Enabled = true

			// migrations run while the dependencies connect
			deps, err := InitDependencies(&cfg, getLogger(cmd.Context()))
			if err != nil {
				return err
			}
			deps.Cleanup()
			return nil
		},
	}
}
