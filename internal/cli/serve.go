package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose metrics and run the retention sweeper until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := getConfig(ctx)
			log := getLogger(ctx)

			deps, err := InitDependencies(cfg, log)
			if err != nil {
				return err
			}
			defer deps.Cleanup()

			scheduler := deps.NewScheduler()
			if err := scheduler.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			defer func() { <-scheduler.Stop().Done() }()

			if cfg.Storage.SweepOnStartup {
				scheduler.RunNow()
			}

			if cfg.Observability.MetricsEnabled {
				return deps.Metrics.Serve(ctx, cfg.Observability.MetricsPort, log)
			}

			log.Info("metrics disabled, waiting for shutdown", slog.String("schedule", cfg.Storage.SweepSchedule))
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().String("storage", "", "Artifact storage directory")
	cmd.Flags().Int("retention", 0, "Days artifacts are kept (0 keeps everything)")
	cmd.Flags().Bool("metrics", false, "Serve Prometheus metrics")
	cmd.Flags().Int("metrics-port", 0, "Metrics port")
	cmd.Flags().Bool("db", false, "Also prune extraction records")

	return cmd
}
