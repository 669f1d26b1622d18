package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pbvs-docking/pbvs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var natsURL string
	var logLevel string

	cmd := &cobra.Command{
		Use:           "pbvs",
		Short:         "Visual docking and claw controller",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := pbvs.LoadConfig(configPath)
			if err != nil {
				return errors.Wrapf(err, "load config %q", configPath)
			}
			if natsURL != "" {
				cfg.NATS.URL = natsURL
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}

			logger, err := pbvs.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := pbvs.Run(ctx, cfg, logger); err != nil {
				logger.Error("pbvs stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (defaults are embedded).")
	cmd.Flags().StringVar(&natsURL, "nats-url", "", "Override nats.url.")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error).")
	return cmd
}
