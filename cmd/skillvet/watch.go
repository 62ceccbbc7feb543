package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"skillvet/internal/config"
	"skillvet/internal/orchestrator"
	"skillvet/internal/telemetry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Analyze archives dropped into an inbox directory",
	Long: `Poll a directory for .zip and .tar.gz skill packages. Each archive is moved
to <dir>/processed, analyzed, and its report written next to it as
<name>.report.json.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		st, err := buildStack(cfg, buildOptions{withStore: true})
		if err != nil {
			return err
		}
		defer st.Close()

		poller, err := orchestrator.NewArchiveDirPoller(cfg.WatchDir)
		if err != nil {
			return err
		}

		if cfg.MetricsPort > 0 {
			if err := telemetry.StartMetricsServer(cfg.MetricsPort); err != nil {
				st.logger.Warn("Failed to start metrics server", "error", err)
			}
		}

		ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		st.watchRules(ctx)

		o := orchestrator.New(poller, orchestrator.NewReportProcessor(st.pipeline, ""), cfg.WatchInterval, cfg.Workers)
		if err := o.Run(ctx, st.logger); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().String("dir", "inbox", "Inbox directory")
	watchCmd.Flags().Duration("interval", 0, "Poll interval (default from watch.interval)")
	watchCmd.Flags().Int("workers", 4, "Concurrent analyses")
	viper.BindPFlag("watch.dir", watchCmd.Flags().Lookup("dir"))
	viper.BindPFlag("watch.interval", watchCmd.Flags().Lookup("interval"))
	viper.BindPFlag("workers", watchCmd.Flags().Lookup("workers"))
	rootCmd.AddCommand(watchCmd)
}
