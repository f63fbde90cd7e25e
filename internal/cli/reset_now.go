// internal/cli/reset_now.go
package cli

import (
	"fmt"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/tamzrod/modbus-resetter/internal/app"
)

// NewResetNowCommand creates the reset-now command: one manual reset,
// ignoring the window and the daily guard.
func NewResetNowCommand(rootOpts *RootOptions) *cobra.Command {
	var device string

	cmd := &cobra.Command{
		Use:   "reset-now <config.yaml>",
		Short: "Reset counters immediately, outside the schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResetNow(cmd, rootOpts, args[0], device)
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "reset only this device code")
	return cmd
}

func runResetNow(cmd *cobra.Command, opts *RootOptions, path, device string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	log, err := newLogger(opts, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer stop()

	a, err := app.Build(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := cmd.OutOrStdout()

	if device != "" {
		o, err := a.Coordinator().ResetDevice(ctx, device)
		if err != nil {
			return err
		}
		if !o.Succeeded {
			return fmt.Errorf("reset %s failed after %d attempts: %w", o.Device, o.Attempts, o.Err)
		}
		fmt.Fprintf(out, "%s reset (counter was %d)\n", o.Device, o.Counter)
		return nil
	}

	res := a.Coordinator().RunCycle(ctx)
	if !res.Ran() {
		return fmt.Errorf("reset skipped: %s", res.Skipped)
	}
	for _, o := range res.Outcomes {
		if o.Succeeded {
			fmt.Fprintf(out, "%s reset (counter was %d)\n", o.Device, o.Counter)
		} else {
			fmt.Fprintf(out, "%s FAILED: %v\n", o.Device, o.Err)
		}
	}
	if !res.Succeeded {
		return fmt.Errorf("%d of %d devices failed", len(res.Failed()), len(res.Outcomes))
	}
	return nil
}
