// internal/cli/run.go
package cli

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/tamzrod/modbus-resetter/internal/app"
)

// NewRunCommand creates the run command: the long-lived daemon.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Run the daily reset scheduler until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), rootOpts, args[0])
		},
	}
}

func runDaemon(ctx context.Context, opts *RootOptions, path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	log, err := newLogger(opts, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	a, err := app.Build(ctx, cfg, log, true)
	if err != nil {
		return err
	}

	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		return err
	}

	<-ctx.Done()
	log.Info().Msg("shutdown requested")

	return a.Stop()
}
