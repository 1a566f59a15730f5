package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"hermes/domain/orderbook"
	"hermes/infra/wal/entry"
)

// collectorSink records everything the book publishes.
type collectorSink struct {
	mu     sync.Mutex
	trades []orderbook.Trade
	depths int
}

func (c *collectorSink) PublishTrades(trades []orderbook.Trade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trades = append(c.trades, trades...)
}

func (c *collectorSink) PublishDepth(orderbook.DepthUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depths++
}

func startSequencer(t *testing.T, cfg Config) (*Sequencer, *collectorSink) {
	t.Helper()
	book := orderbook.NewBook()
	sink := &collectorSink{}
	book.AttachSink(sink)

	s := New(book, nil, cfg, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, sink
}

func TestPlaceWaitRoundTrip(t *testing.T) {
	s, sink := startSequencer(t, Config{})
	ctx := context.Background()

	res, err := s.PlaceWait(ctx, orderbook.NewLimit(1, "maker", 5, 100, orderbook.Sell))
	if err != nil || len(res.Trades) != 0 {
		t.Fatalf("resting placement: res=%+v err=%v", res, err)
	}

	res, err = s.PlaceWait(ctx, orderbook.NewLimit(2, "taker", 3, 100, orderbook.Buy))
	if err != nil {
		t.Fatalf("crossing placement: %v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].From != 1 || res.Trades[0].To != 2 || res.Trades[0].Qty != 3 {
		t.Fatalf("unexpected trades: %v", res.Trades)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.trades) != 1 {
		t.Fatalf("sink saw %d trades, want 1", len(sink.trades))
	}
}

func TestValidationBeforeEnqueue(t *testing.T) {
	s, _ := startSequencer(t, Config{})
	ctx := context.Background()

	if err := s.Place(ctx, orderbook.NewLimit(1, "", 0, 100, orderbook.Buy), nil); !errors.Is(err, orderbook.ErrInvalidOrder) {
		t.Fatalf("zero qty: %v", err)
	}
	aon := orderbook.NewLimit(1, "", 5, 100, orderbook.Buy)
	aon.Flags.AllOrNone = true
	if err := s.Place(ctx, aon, nil); !errors.Is(err, orderbook.ErrUnsupportedFlag) {
		t.Fatalf("all-or-none: %v", err)
	}
}

func TestCancelRaceIsBenign(t *testing.T) {
	s, _ := startSequencer(t, Config{})
	ctx := context.Background()

	if _, err := s.PlaceWait(ctx, orderbook.NewLimit(1, "", 5, 100, orderbook.Sell)); err != nil {
		t.Fatalf("place: %v", err)
	}

	// The taker and the cancel race to the serialization point; both
	// orderings are fine, and exactly one of them "wins" the resting
	// order.
	res1, err := s.PlaceWait(ctx, orderbook.NewLimit(2, "", 5, 100, orderbook.Buy))
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	res2, err := s.CancelWait(ctx, orderbook.Sell, 100, 1)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(res1.Trades) == 1 && res2.Found {
		t.Fatal("order both fully matched and cancelled")
	}

	// Cancelling again is always a quiet not-found.
	res3, err := s.CancelWait(ctx, orderbook.Sell, 100, 1)
	if err != nil || res3.Found {
		t.Fatalf("repeat cancel: res=%+v err=%v", res3, err)
	}
}

func TestConcurrentProducers(t *testing.T) {
	s, sink := startSequencer(t, Config{QueueSize: 64})
	ctx := context.Background()

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				uid := uint64(p*perProducer + i + 1)
				side := orderbook.Buy
				if uid%2 == 0 {
					side = orderbook.Sell
				}
				if _, err := s.PlaceWait(ctx, orderbook.NewLimit(uid, "", 1, 100, side)); err != nil {
					t.Errorf("place uid=%d: %v", uid, err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	// Equal buy and sell flow at one price must fully cross.
	sink.mu.Lock()
	total := int64(0)
	for _, tr := range sink.trades {
		total += tr.Qty
	}
	sink.mu.Unlock()
	if want := int64(producers * perProducer / 2); total != want {
		t.Fatalf("matched volume %d, want %d", total, want)
	}
}

func TestDepthPublishedOnTicker(t *testing.T) {
	s, sink := startSequencer(t, Config{DepthInterval: 10 * time.Millisecond})
	ctx := context.Background()

	if _, err := s.PlaceWait(ctx, orderbook.NewLimit(1, "", 5, 100, orderbook.Buy)); err != nil {
		t.Fatalf("place: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d := s.Depths()
		if d.Bids[100] == 5 {
			sink.mu.Lock()
			published := sink.depths
			sink.mu.Unlock()
			if published == 0 {
				t.Fatal("cache updated but sinks not notified")
			}
			bid, _, ok, _ := s.BBO()
			if !ok || bid != (orderbook.BBO{Price: 100, Qty: 5}) {
				t.Fatalf("bbo from cache: %+v ok=%v", bid, ok)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("depth snapshot never published")
}

// Two sequencer runs over the same journal directory must produce one
// strictly increasing record stream, or Replay aborts.
func TestJournalSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	run := func(uid uint64) {
		w, err := entry.Open(entry.Config{Dir: dir})
		if err != nil {
			t.Fatalf("open journal: %v", err)
		}
		defer w.Close()

		s := New(orderbook.NewBook(), w, Config{}, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			s.Run(ctx)
			close(done)
		}()

		if _, err := s.PlaceWait(ctx, orderbook.NewLimit(uid, "", 1, 100, orderbook.Buy)); err != nil {
			t.Fatalf("place uid=%d: %v", uid, err)
		}
		cancel()
		<-done
	}

	run(1)
	run(2)

	count := 0
	last, err := entry.Replay(dir, func(*entry.Record) error { count++; return nil })
	if err != nil {
		t.Fatalf("replay across runs: %v", err)
	}
	if count != 2 || last != 2 {
		t.Fatalf("replayed %d records, last=%d, want 2/2", count, last)
	}
}
