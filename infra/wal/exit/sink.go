package exit

import (
	"go.uber.org/zap"

	"hermes/api/wire"
	"hermes/domain/orderbook"
)

// Sink adapts the outbox to the book's market-data sink interface:
// every trade is journaled as a pending outbox record for the
// broadcaster to deliver. Depth updates are not persisted; the next
// snapshot supersedes them.
//
// Called only from the sequencer goroutine, so the event counter
// needs no synchronization.
type Sink struct {
	outbox *Outbox
	log    *zap.Logger
	seq    uint64
}

// NewSink seeds the event counter above the highest key already in
// the outbox, so a restart cannot overwrite undelivered records.
func NewSink(outbox *Outbox, log *zap.Logger) (*Sink, error) {
	seq, err := outbox.MaxSeq()
	if err != nil {
		return nil, err
	}
	return &Sink{outbox: outbox, log: log, seq: seq}, nil
}

func (s *Sink) PublishTrades(trades []orderbook.Trade) {
	for _, t := range trades {
		s.seq++
		if err := s.outbox.Append(s.seq, wire.EncodeTrade(t)); err != nil {
			// The match is already committed; a failed append only
			// costs downstream delivery of this event.
			s.log.Error("outbox append failed",
				zap.Uint64("event_seq", s.seq),
				zap.Error(err))
		}
	}
}

func (s *Sink) PublishDepth(orderbook.DepthUpdate) {}
