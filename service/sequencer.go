// Package service hosts the sequencer: the single write entry point
// into the matching engine. Producers submit placement and
// cancellation requests into a bounded queue; one consumer goroutine
// drains it and applies each request to the book, which makes every
// mutation linearizable without locks and the resulting trade
// sequence deterministic given the serialized arrival order.
package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"hermes/api/wire"
	"hermes/domain/orderbook"
	"hermes/infra/wal/entry"
)

type reqKind uint8

const (
	reqPlace reqKind = iota
	reqCancel
)

// Result is the acknowledgment for one request. Trades are in match
// order for placements; Found reports whether a cancellation hit a
// resting order (false is a defined no-op, not an error).
type Result struct {
	Trades []orderbook.Trade
	Found  bool
	Err    error
}

type request struct {
	kind  reqKind
	ord   orderbook.Order
	side  orderbook.Side
	price int64
	uid   uint64
	ack   chan<- Result
}

type Config struct {
	// QueueSize bounds the request queue; producers block (or bail
	// out on context) when the consumer falls behind.
	QueueSize int
	// DepthInterval is the cadence of depth snapshot publication.
	DepthInterval time.Duration
}

type Sequencer struct {
	book    *orderbook.Book
	journal *entry.WAL // optional
	reqs    chan request
	log     *zap.Logger

	depthEvery time.Duration
	lastDepth  atomic.Pointer[orderbook.DepthUpdate]
	journalSeq uint64
}

// New wires a sequencer around book. journal may be nil to disable
// request journaling.
func New(book *orderbook.Book, journal *entry.WAL, cfg Config, log *zap.Logger) *Sequencer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.DepthInterval <= 0 {
		cfg.DepthInterval = 250 * time.Millisecond
	}
	s := &Sequencer{
		book:       book,
		journal:    journal,
		reqs:       make(chan request, cfg.QueueSize),
		log:        log,
		depthEvery: cfg.DepthInterval,
	}
	if journal != nil {
		// Continue the journal's sequence across restarts; Replay
		// requires it to be strictly increasing.
		s.journalSeq = journal.LastSeq()
	}
	return s
}

// Run drains the queue until ctx is cancelled. It is the only
// goroutine that touches the book.
func (s *Sequencer) Run(ctx context.Context) {
	s.log.Info("sequencer started",
		zap.Int("queue", cap(s.reqs)),
		zap.Duration("depth_interval", s.depthEvery))

	ticker := time.NewTicker(s.depthEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sequencer stopped")
			return
		case req := <-s.reqs:
			s.apply(req)
		case <-ticker.C:
			d := s.book.PublishDepth()
			s.lastDepth.Store(&d)
		}
	}
}

// Place submits a placement request. Validation errors are returned
// here, before the request enters the queue; a nil ack means
// fire-and-forget. ack must be buffered: the consumer never blocks on
// a slow caller.
func (s *Sequencer) Place(ctx context.Context, ord orderbook.Order, ack chan<- Result) error {
	if err := validate(ord); err != nil {
		return err
	}
	return s.submit(ctx, request{kind: reqPlace, ord: ord, ack: ack})
}

// Cancel submits a cancellation request for (side, price, uid).
func (s *Sequencer) Cancel(ctx context.Context, side orderbook.Side, price int64, uid uint64, ack chan<- Result) error {
	return s.submit(ctx, request{kind: reqCancel, side: side, price: price, uid: uid, ack: ack})
}

// PlaceWait submits and waits for the acknowledgment.
func (s *Sequencer) PlaceWait(ctx context.Context, ord orderbook.Order) (Result, error) {
	ack := make(chan Result, 1)
	if err := s.Place(ctx, ord, ack); err != nil {
		return Result{}, err
	}
	return wait(ctx, ack)
}

// CancelWait submits a cancellation and waits for the acknowledgment.
func (s *Sequencer) CancelWait(ctx context.Context, side orderbook.Side, price int64, uid uint64) (Result, error) {
	ack := make(chan Result, 1)
	if err := s.Cancel(ctx, side, price, uid, ack); err != nil {
		return Result{}, err
	}
	return wait(ctx, ack)
}

// Depths returns the most recently published snapshot. It may trail
// the book by up to one depth interval but is always internally
// consistent: the maps were copied in one step on the writer
// goroutine.
func (s *Sequencer) Depths() orderbook.DepthUpdate {
	if p := s.lastDepth.Load(); p != nil {
		return *p
	}
	return orderbook.DepthUpdate{
		Bids: map[int64]int64{},
		Asks: map[int64]int64{},
	}
}

// BBO derives the best bid and offer from the cached snapshot.
func (s *Sequencer) BBO() (bid, ask orderbook.BBO, bidOK, askOK bool) {
	d := s.Depths()
	bid, bidOK = bestOf(d.Bids, true)
	ask, askOK = bestOf(d.Asks, false)
	return
}

func (s *Sequencer) apply(req request) {
	var res Result

	switch req.kind {
	case reqPlace:
		s.appendJournal(entry.RecordPlace, wire.EncodePlace(req.ord))
		if req.ord.IsMarket() {
			res.Trades, res.Err = s.book.PlaceMarket(req.ord)
		} else {
			res.Trades, res.Err = s.book.PlaceLimit(req.ord)
		}
		if res.Err != nil {
			s.log.Warn("placement rejected",
				zap.Uint64("uid", req.ord.UID),
				zap.Error(res.Err))
		}
	case reqCancel:
		s.appendJournal(entry.RecordCancel, wire.EncodeCancel(req.side, req.price, req.uid))
		res.Found = s.book.Cancel(req.side, req.price, req.uid)
	}

	if req.ack != nil {
		select {
		case req.ack <- res:
		default:
			// Caller handed over an unbuffered or full channel;
			// dropping the ack beats stalling the match loop.
			s.log.Warn("ack dropped", zap.Uint64("uid", req.uid))
		}
	}
}

func (s *Sequencer) submit(ctx context.Context, req request) error {
	select {
	case s.reqs <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sequencer) appendJournal(t entry.RecordType, payload []byte) {
	if s.journal == nil {
		return
	}
	s.journalSeq++
	if err := s.journal.Append(entry.NewRecord(t, s.journalSeq, payload)); err != nil {
		s.log.Error("journal append failed",
			zap.Uint64("seq", s.journalSeq),
			zap.Error(err))
	}
}

func validate(ord orderbook.Order) error {
	if ord.Qty <= 0 {
		return fmt.Errorf("%w: qty=%d", orderbook.ErrInvalidOrder, ord.Qty)
	}
	if ord.Price < 0 {
		return fmt.Errorf("%w: price=%d", orderbook.ErrInvalidOrder, ord.Price)
	}
	if ord.Flags.AllOrNone {
		return fmt.Errorf("%w: all-or-none", orderbook.ErrUnsupportedFlag)
	}
	return nil
}

func wait(ctx context.Context, ack <-chan Result) (Result, error) {
	select {
	case res := <-ack:
		return res, res.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func bestOf(m map[int64]int64, highest bool) (orderbook.BBO, bool) {
	var best int64
	found := false
	for p := range m {
		if !found || (highest && p > best) || (!highest && p < best) {
			best = p
			found = true
		}
	}
	if !found {
		return orderbook.BBO{}, false
	}
	return orderbook.BBO{Price: best, Qty: m[best]}, true
}
