// internal/cli/validate.go
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tamzrod/modbus-resetter/internal/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Check a config file and print the effective schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args[0])
			if err != nil {
				return err
			}
			return printSummary(cmd, cfg)
		},
	}
}

func printSummary(cmd *cobra.Command, cfg *config.Config) error {
	r := cfg.Resetter
	s := r.Schedule
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "config OK\n")
	fmt.Fprintf(out, "window:   %02d:%02d +%dm %s (pre-check %dm earlier)\n",
		s.Hour, s.Minute, s.WindowMinutes, s.Timezone, s.PrecheckLeadMinutes)
	fmt.Fprintf(out, "retries:  %d every %s\n", s.MaxRetries, s.RetryDelay())
	fmt.Fprintf(out, "devices:  %d\n", len(r.Devices))

	for _, d := range r.Devices {
		fmt.Fprintf(out, "  %-16s %s:%d unit=%d counter@%d\n",
			d.Code, d.Host, d.Port, d.UnitID, d.Layout.Start+d.Layout.CounterOffset)
	}

	fmt.Fprintf(out, "status:   %t\n", r.StatusMemory != nil)
	fmt.Fprintf(out, "nats:     %t\n", r.NATS != nil)
	fmt.Fprintf(out, "database: %t\n", r.Database != nil)
	return nil
}
