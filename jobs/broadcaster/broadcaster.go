// Package broadcaster replays pending trade events from the outbox to
// Kafka. It runs beside the matching path, never on it: a slow or
// unreachable broker delays delivery but cannot slow matching.
package broadcaster

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"hermes/infra/wal/exit"
)

type Broadcaster struct {
	outbox   *exit.Outbox
	producer sarama.SyncProducer
	topic    string
	every    time.Duration
	log      *zap.Logger
}

func New(outbox *exit.Outbox, brokers []string, topic string, every time.Duration, log *zap.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		outbox:   outbox,
		producer: producer,
		topic:    topic,
		every:    every,
		log:      log,
	}, nil
}

func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("broadcaster started",
		zap.String("topic", b.topic),
		zap.Duration("interval", b.every))

	ticker := time.NewTicker(b.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := b.producer.Close(); err != nil {
				b.log.Warn("producer close", zap.Error(err))
			}
			return
		case <-ticker.C:
			b.replayOnce()
			if err := b.outbox.PruneAcked(); err != nil {
				b.log.Warn("outbox prune", zap.Error(err))
			}
		}
	}
}

// replayOnce walks pending records in sequence order. Marking SENT
// before the publish makes delivery at-least-once: a crash inside
// SendMessage replays the record on the next pass.
func (b *Broadcaster) replayOnce() {
	err := b.outbox.ScanPending(func(rec *exit.Record) error {
		if err := b.outbox.MarkSent(rec.Seq); err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(keyOf(rec.Seq)),
			Value: sarama.ByteEncoder(rec.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn("kafka send failed, will retry",
				zap.Uint64("event_seq", rec.Seq),
				zap.Error(err))
			return nil // leave SENT, retried next pass
		}

		return b.outbox.MarkAcked(rec.Seq)
	})
	if err != nil {
		b.log.Error("outbox replay aborted", zap.Error(err))
	}
}

func keyOf(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}
