package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"relay/internal/engine"
	"relay/internal/logging"
)

var cmdRun = &cobra.Command{
	Use:   "run",
	Short: "Run the relay engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

var runArgs struct {
	config      string
	metricsPort int
}

func init() {
	cmdRun.Flags().StringVar(&runArgs.config, "config", "relay.yml", "Engine spec file")
	cmdRun.Flags().IntVar(&runArgs.metricsPort, "metrics-port", 0, "Override telemetry.metrics_port from the engine file")
	cmdRoot.AddCommand(cmdRun)
}

func run() error {
	logging.InitFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := engine.Bootstrap(engine.Config{
		SpecPath:    runArgs.config,
		MetricsPort: runArgs.metricsPort,
	})
	if err != nil {
		return err
	}
	return e.Run(ctx)
}
