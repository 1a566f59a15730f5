// Package kafka publishes depth snapshots to a Kafka topic. The
// publisher is a market-data sink with its own bounded queue: when
// the broker cannot keep up, snapshots are dropped, never the
// matching path's time.
package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"hermes/api/wire"
	"hermes/domain/orderbook"
)

type DepthPublisher struct {
	writer  *kafka.Writer
	updates chan orderbook.DepthUpdate
	log     *zap.Logger
	drops   atomic.Uint64
}

func NewDepthPublisher(brokers []string, topic string, buffer int, log *zap.Logger) *DepthPublisher {
	if buffer <= 0 {
		buffer = 64
	}
	return &DepthPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne, // depth is periodic and lossy
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		updates: make(chan orderbook.DepthUpdate, buffer),
		log:     log,
	}
}

// PublishTrades is a no-op; trades travel through the outbox with
// delivery guarantees this lossy path does not provide.
func (p *DepthPublisher) PublishTrades([]orderbook.Trade) {}

// PublishDepth hands the snapshot to the writer goroutine. Called on
// the sequencer goroutine, so it must not block: a full queue drops
// the snapshot (the next tick supersedes it anyway).
func (p *DepthPublisher) PublishDepth(d orderbook.DepthUpdate) {
	select {
	case p.updates <- d:
	default:
		p.drops.Add(1)
	}
}

// Drops reports how many snapshots were shed due to a slow broker.
func (p *DepthPublisher) Drops() uint64 { return p.drops.Load() }

func (p *DepthPublisher) Run(ctx context.Context) {
	p.log.Info("depth publisher started", zap.String("topic", p.writer.Topic))

	for {
		select {
		case <-ctx.Done():
			if err := p.writer.Close(); err != nil {
				p.log.Warn("writer close", zap.Error(err))
			}
			return
		case d := <-p.updates:
			msg := kafka.Message{Value: wire.EncodeDepth(d)}
			if err := p.writer.WriteMessages(ctx, msg); err != nil && ctx.Err() == nil {
				p.log.Warn("depth publish failed", zap.Error(err))
			}
		}
	}
}
