// internal/cli/persist.go
package cli

import (
	"context"
	"errors"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/tamzrod/modbus-resetter/internal/logger"
	"github.com/tamzrod/modbus-resetter/internal/store"
	"github.com/tamzrod/modbus-resetter/internal/telemetry"
)

// NewPersistCommand creates the persist command: the JetStream to Postgres writer.
func NewPersistCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "persist <config.yaml>",
		Short: "Persist reset and telemetry events into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersist(cmd.Context(), rootOpts, args[0])
		},
	}
}

func runPersist(ctx context.Context, opts *RootOptions, path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	r := cfg.Resetter
	if r.NATS == nil || r.Database == nil {
		return errors.New("persist: both nats and database must be configured")
	}

	log, err := newLogger(opts, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals...)
	defer stop()

	slog := logger.WithComponent(log, "store")

	pool, err := store.NewPool(ctx, *r.Database, slog)
	if err != nil {
		return err
	}
	defer pool.Close()

	st := store.New(pool, slog)

	codes := make([]string, 0, len(r.Devices))
	for _, d := range r.Devices {
		codes = append(codes, d.Code)
	}
	if err := st.EnsureSchema(ctx, codes); err != nil {
		return err
	}

	js, nc, err := telemetry.Connect(ctx, *r.NATS, logger.WithComponent(log, "nats"))
	if err != nil {
		return err
	}
	defer func() { _ = nc.Drain() }()

	subjects := telemetry.Subjects{Prefix: r.NATS.SubjectPrefix}
	c, err := store.NewConsumer(ctx, js, r.NATS.Stream, r.NATS.Durable, subjects.All(), st, logger.WithComponent(log, "consumer"))
	if err != nil {
		return err
	}

	log.Info().Str("stream", r.NATS.Stream).Msg("persisting events")
	return c.Run(ctx)
}
