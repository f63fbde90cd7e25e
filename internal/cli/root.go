// internal/cli/root.go
package cli

import (
	"fmt"
	"os"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tamzrod/modbus-resetter/internal/config"
	"github.com/tamzrod/modbus-resetter/internal/logger"
)

// shutdownSignals end run, persist and an in-flight reset-now cleanly.
var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
	Debug    bool
}

// NewRootCommand creates the root command for the resetter CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:          "resetter",
		Short:        "Daily Modbus counter reset",
		Long:         "Resets production counters on a fleet of Modbus TCP devices once per day, inside a configured window.",
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override logging.level from the config")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "debug logging")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewResetNowCommand(opts))
	cmd.AddCommand(NewPersistCommand(opts))

	return cmd
}

// loadConfig is Load, Validate, Normalize in that order.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

// newLogger builds the process logger, letting flags override the file.
func newLogger(opts *RootOptions, cfg *config.Config) (zerolog.Logger, error) {
	lc := logger.Config{
		Level:      cfg.Resetter.Logging.Level,
		Debug:      cfg.Resetter.Logging.Debug || opts.Debug,
		Output:     cfg.Resetter.Logging.Output,
		TimeFormat: cfg.Resetter.Logging.TimeFormat,
	}
	if opts.LogLevel != "" {
		lc.Level = opts.LogLevel
	}

	log, err := logger.New(lc)
	if err != nil {
		return log, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}
