package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig describes the topic shared by all server processes.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	// Node must be unique per process. It names the consumer group, so every
	// process reads every event and fans it out to its own connections.
	Node string
}

// KafkaBus publishes events to a topic and dispatches what it consumes to local
// handlers. A process sees its own events only after the round trip through the
// broker, which keeps one delivery path for local and remote recipients.
type KafkaBus struct {
	writer *kafka.Writer
	reader *kafka.Reader
	local  *LocalBus
	log    *zerolog.Logger
}

// NewKafkaBus connects the writer and the per-node reader.
func NewKafkaBus(cfg KafkaConfig, logger *zerolog.Logger) (*KafkaBus, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka bus needs brokers and a topic")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     "cartchat-fanout-" + cfg.Node,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     250 * time.Millisecond,
	})

	return &KafkaBus{
		writer: writer,
		reader: reader,
		local:  NewLocalBus(),
		log:    logger,
	}, nil
}

func (b *KafkaBus) Subscribe(h Handler) {
	b.local.Subscribe(h)
}

// Publish keys records by conversation (or first user) so related events keep
// their relative order within a partition.
func (b *KafkaBus) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	key := ev.Target.Conversation
	if key == "" && len(ev.Target.Users) > 0 {
		key = ev.Target.Users[0]
	}

	if err := b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Name, err)
	}
	return nil
}

// Run consumes the topic until ctx is cancelled or the reader is closed.
func (b *KafkaBus) Run(ctx context.Context) {
	for {
		m, err := b.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				b.log.Error().Err(err).Msg("kafka consumer stopped")
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			b.log.Warn().Err(err).Int64("offset", m.Offset).Msg("skip malformed event")
			continue
		}
		b.local.dispatch(ev)
	}
}

// Close stops the consumer and flushes the writer.
func (b *KafkaBus) Close() error {
	rerr := b.reader.Close()
	werr := b.writer.Close()
	return errors.Join(rerr, werr)
}
