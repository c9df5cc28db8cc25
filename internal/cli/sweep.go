package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired artifacts once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			deps, err := InitDependencies(getConfig(ctx), getLogger(ctx))
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			res := deps.NewScheduler().Sweep(ctx)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, deleted %d, failed %d, records deleted %d\n",
				res.Scanned, res.Deleted, res.Failed, res.RecordsDeleted)
			return nil
		},
	}

	cmd.Flags().String("storage", "", "Artifact storage directory")
	cmd.Flags().Int("retention", 0, "Days artifacts are kept (0 keeps everything)")
	cmd.Flags().Bool("db", false, "Also prune extraction records")

	return cmd
}
