// internal/telemetry/publisher.go
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-resetter/internal/config"
	"github.com/tamzrod/modbus-resetter/internal/poller"
	"github.com/tamzrod/modbus-resetter/internal/reset"
)

const (
	defaultSource  = "resetter"
	publishTimeout = 5 * time.Second
)

// jsPublisher is the slice of jetstream.JetStream the publisher needs.
type jsPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher sends reset and telemetry events to JetStream.
// It implements reset.Observer; delivery failures are logged, never returned
// to the reset path.
type Publisher struct {
	js       jsPublisher
	subjects Subjects
	source   string
	log      zerolog.Logger
}

func NewPublisher(js jsPublisher, prefix string, log zerolog.Logger) *Publisher {
	return &Publisher{
		js:       js,
		subjects: Subjects{Prefix: prefix},
		source:   defaultSource,
		log:      log,
	}
}

func (p *Publisher) publish(ctx context.Context, subject, typ string, at time.Time, data any) error {
	ev, err := NewEvent(p.source, typ, subject, at, data)
	if err != nil {
		return err
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("telemetry: marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ack, err := p.js.Publish(ctx, subject, b, jetstream.WithMsgID(ev.ID))
	if err != nil {
		return fmt.Errorf("telemetry: publish %s: %w", subject, err)
	}

	p.log.Debug().
		Str("subject", subject).
		Str("event_id", ev.ID).
		Uint64("seq", ack.Sequence).
		Msg("event published")
	return nil
}

// PublishSample sends one telemetry poll.
func (p *Publisher) PublishSample(ctx context.Context, s poller.Sample) error {
	return p.publish(ctx, p.subjects.Telemetry(s.Device), TypeTelemetrySample, s.At, sampleData(s))
}

// ---- reset.Observer ----

func (p *Publisher) AttemptFinished(ctx context.Context, ev reset.AttemptEvent) {
	if err := p.publish(ctx, p.subjects.Attempt(ev.Device), TypeResetAttempt, ev.At, attemptData(ev)); err != nil {
		p.log.Warn().Err(err).Str("device", ev.Device).Msg("reset attempt event dropped")
	}
}

func (p *Publisher) CycleFinished(ctx context.Context, res reset.CycleResult) {
	if err := p.publish(ctx, p.subjects.Cycle(), TypeResetCycle, res.FinishedAt, cycleData(res)); err != nil {
		p.log.Warn().Err(err).Str("cycle_id", res.ID).Msg("reset cycle event dropped")
	}
}

var _ reset.Observer = (*Publisher)(nil)

// ---- connection ----

// Connect dials NATS and ensures the stream covering every subject exists.
func Connect(ctx context.Context, cfg config.NATSConfig, log zerolog.Logger) (jetstream.JetStream, *nats.Conn, error) {
	nc, err := Dial(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	subjects := Subjects{Prefix: cfg.SubjectPrefix}
	if err := EnsureStream(ctx, js, cfg.Stream, subjects.All()); err != nil {
		nc.Close()
		return nil, nil, err
	}

	return js, nc, nil
}

// Dial opens a NATS connection that reconnects forever and logs link changes.
func Dial(cfg config.NATSConfig, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(defaultSource),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// streamManager is the slice of jetstream.JetStream EnsureStream needs.
type streamManager interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// EnsureStream creates the stream when it does not exist yet.
func EnsureStream(ctx context.Context, js streamManager, name, subject string) error {
	_, err := js.Stream(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream %s: %w", name, err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	return nil
}
