// internal/store/consumer.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-resetter/internal/telemetry"
)

const (
	defaultMaxPullMessages = 50
	defaultPullExpiry      = 5 * time.Second
	defaultMaxDeliver      = 3
)

// message is the slice of jetstream.Msg the consumer needs.
type message interface {
	Data() []byte
	Subject() string
	Ack() error
	Nak() error
	Term() error
}

// consumeSource is the slice of jetstream.Consumer Run needs.
type consumeSource interface {
	Consume(handler jetstream.MessageHandler, opts ...jetstream.PullConsumeOpt) (jetstream.ConsumeContext, error)
}

// Consumer persists reset and telemetry events from a JetStream pull consumer.
type Consumer struct {
	consumer consumeSource
	store    *Store
	log      zerolog.Logger
}

// NewConsumer creates or retrieves a durable pull consumer on the stream.
func NewConsumer(ctx context.Context, js jetstream.JetStream, stream, durable, subject string, st *Store, log zerolog.Logger) (*Consumer, error) {
	c, err := js.Consumer(ctx, stream, durable)
	if err != nil {
		c, err = js.CreateConsumer(ctx, stream, jetstream.ConsumerConfig{
			Durable:       durable,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    defaultMaxDeliver,
			MaxAckPending: 1000,
			FilterSubject: subject,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer %s on %s: %w", durable, stream, err)
		}
	}

	log.Info().Str("stream", stream).Str("consumer", durable).Msg("pull consumer ready")

	return &Consumer{consumer: c, store: st, log: log}, nil
}

// Run persists messages until ctx is done, then stops pulling and waits
// for the handler in flight.
func (c *Consumer) Run(ctx context.Context) error {
	cc, err := c.consumer.Consume(
		func(msg jetstream.Msg) { c.handle(ctx, msg) },
		jetstream.PullMaxMessages(defaultMaxPullMessages),
		jetstream.PullExpiry(defaultPullExpiry),
		jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			c.log.Warn().Err(err).Msg("consume error")
		}),
	)
	if err != nil {
		return fmt.Errorf("store: start consume: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	<-cc.Closed()

	c.log.Info().Msg("consumer stopped")
	return nil
}

// handle acks on success, terminates undecodable messages and naks the rest.
func (c *Consumer) handle(ctx context.Context, msg message) {
	ev, err := telemetry.Decode(msg.Data())
	if err != nil {
		c.log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping malformed event")
		_ = msg.Term()
		return
	}

	if err := c.store.Apply(ctx, ev); err != nil {
		c.log.Warn().Err(err).Str("subject", msg.Subject()).Str("event_id", ev.ID).Msg("persist failed")
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
}

// Apply persists one decoded event according to its type.
// Unknown types are ignored.
func (s *Store) Apply(ctx context.Context, ev telemetry.Event) error {
	switch ev.Type {
	case telemetry.TypeResetAttempt:
		var a telemetry.AttemptData
		if err := json.Unmarshal(ev.Data, &a); err != nil {
			return fmt.Errorf("store: decode attempt: %w", err)
		}
		return s.RecordAttempt(ctx, ev.ID, a)

	case telemetry.TypeResetCycle:
		var cy telemetry.CycleData
		if err := json.Unmarshal(ev.Data, &cy); err != nil {
			return fmt.Errorf("store: decode cycle: %w", err)
		}
		return s.RecordCycle(ctx, cy)

	case telemetry.TypeTelemetrySample:
		var d telemetry.SampleData
		if err := json.Unmarshal(ev.Data, &d); err != nil {
			return fmt.Errorf("store: decode sample: %w", err)
		}
		return s.InsertSample(ctx, ev.ID, d)
	}

	s.log.Debug().Str("type", ev.Type).Msg("ignoring event type")
	return nil
}
