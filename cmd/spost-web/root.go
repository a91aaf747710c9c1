package main

import (
	"fmt"

	"SPost-Planner/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// options is what every subcommand receives once the root has loaded
// configuration and installed the logger.
type options struct {
	configFile string
	cfg        config.Config
	log        *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "spost-web",
		Short:         "SPost planner: drafts, scheduling and the LinkedIn bridge",
		Long:          "spost-web serves the SPost post planner and talks to the SPost extension over the page bus to publish, schedule and sync LinkedIn posts.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			v, err := config.New(opts.configFile)
			if err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			log, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.log = log
			installLogger(log)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ~/.spost/config.toml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(opts),
		newProbeCmd(opts),
		newConnectCmd(opts),
		newPublishCmd(opts),
		newScheduleCmd(opts),
	)
	return rootCmd
}
