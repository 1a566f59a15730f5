package orderbook

import (
	"errors"
	"math/rand"
	"testing"
)

func limit(uid uint64, qty, price int64, side Side) Order {
	return NewLimit(uid, "", qty, price, side)
}

func market(uid uint64, qty int64, side Side) Order {
	return NewMarket(uid, "", qty, side)
}

func mustPlace(t *testing.T, b *Book, ord Order) []Trade {
	t.Helper()
	var trades []Trade
	var err error
	if ord.IsMarket() {
		trades, err = b.PlaceMarket(ord)
	} else {
		trades, err = b.PlaceLimit(ord)
	}
	if err != nil {
		t.Fatalf("place uid=%d: %v", ord.UID, err)
	}
	checkInvariants(t, b)
	return trades
}

func assertTrades(t *testing.T, got, want []Trade) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d trades, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.From != w.From || g.To != w.To || g.Qty != w.Qty || g.Price != w.Price {
			t.Fatalf("trade %d: got %v, want %v", i, g, w)
		}
	}
}

// checkInvariants verifies, after every mutation, that the book is not
// crossed and that each depth entry equals the sum of resting
// quantities at its price.
func checkInvariants(t *testing.T, b *Book) {
	t.Helper()
	bid, ask, bidOK, askOK := b.BBO()
	if bidOK && askOK && bid.Price >= ask.Price {
		t.Fatalf("book crossed at rest: bid=%d ask=%d", bid.Price, ask.Price)
	}
	for _, c := range []*Chain{b.bids, b.asks} {
		depth := c.DepthSnapshot()
		c.levels.ForEachAscending(func(lvl *PriceLevel) bool {
			var sum int64
			n := 0
			for r := lvl.head; r != nil; r = r.next {
				if r.Qty <= 0 {
					t.Fatalf("non-positive resting qty %d at price %d", r.Qty, lvl.Price)
				}
				sum += r.Qty
				n++
			}
			if sum == 0 {
				t.Fatalf("stale empty level at price %d", lvl.Price)
			}
			if depth[lvl.Price] != sum {
				t.Fatalf("depth[%d]=%d, resting sum %d", lvl.Price, depth[lvl.Price], sum)
			}
			if lvl.TotalQty != sum || lvl.Orders != n {
				t.Fatalf("level aggregates off at %d: qty=%d/%d orders=%d/%d",
					lvl.Price, lvl.TotalQty, sum, lvl.Orders, n)
			}
			return true
		})
	}
}

func TestPlaceLimitBuySide(t *testing.T) {
	b := NewBook()

	mustPlace(t, b, limit(0, 1, 100, Buy))
	mustPlace(t, b, limit(1, 5, 100, Buy))
	mustPlace(t, b, limit(2, 20, 100, Buy))
	mustPlace(t, b, limit(3, 4, 101, Buy))

	if d := b.Depths().Bids[100]; d != 26 {
		t.Fatalf("depth[100]=%d, want 26", d)
	}
	bid, _, bidOK, askOK := b.BBO()
	if !bidOK || askOK || bid != (BBO{Price: 101, Qty: 4}) {
		t.Fatalf("unexpected bbo: %+v", bid)
	}

	trades := mustPlace(t, b, limit(4, 2, 101, Sell))
	assertTrades(t, trades, []Trade{
		{From: 4, To: 3, Qty: 2, Price: 101},
	})
	if d := b.Depths().Bids[101]; d != 2 {
		t.Fatalf("depth[101]=%d, want 2", d)
	}

	trades = mustPlace(t, b, limit(5, 4, 100, Sell))
	assertTrades(t, trades, []Trade{
		{From: 5, To: 3, Qty: 2, Price: 101},
		{From: 5, To: 0, Qty: 1, Price: 100},
		{From: 5, To: 1, Qty: 1, Price: 100},
	})
	if d := b.Depths().Bids[100]; d != 24 {
		t.Fatalf("depth[100]=%d, want 24", d)
	}

	trades = mustPlace(t, b, limit(6, 5, 98, Sell))
	assertTrades(t, trades, []Trade{
		{From: 6, To: 1, Qty: 4, Price: 100},
		{From: 6, To: 2, Qty: 1, Price: 100},
	})
	if d := b.Depths().Bids[100]; d != 19 {
		t.Fatalf("depth[100]=%d, want 19", d)
	}

	trades = mustPlace(t, b, limit(7, 6, 101, Buy))
	assertTrades(t, trades, nil)

	trades = mustPlace(t, b, market(8, 20, Sell))
	assertTrades(t, trades, []Trade{
		{From: 8, To: 7, Qty: 6, Price: 101},
		{From: 8, To: 2, Qty: 14, Price: 100},
	})
	bid, _, bidOK, _ = b.BBO()
	if !bidOK || bid != (BBO{Price: 100, Qty: 5}) {
		t.Fatalf("unexpected bbo after sweep: %+v", bid)
	}

	trades = mustPlace(t, b, market(9, 20, Sell))
	assertTrades(t, trades, []Trade{
		{From: 9, To: 2, Qty: 5, Price: 100},
	})
	_, _, bidOK, askOK = b.BBO()
	if bidOK || askOK {
		t.Fatal("book should be empty")
	}
}

func TestPlaceLimitSellSide(t *testing.T) {
	b := NewBook()

	mustPlace(t, b, limit(0, 1, 100, Sell))
	mustPlace(t, b, limit(1, 5, 100, Sell))
	mustPlace(t, b, limit(2, 20, 100, Sell))
	mustPlace(t, b, limit(3, 4, 99, Sell))

	if d := b.Depths().Asks[100]; d != 26 {
		t.Fatalf("depth[100]=%d, want 26", d)
	}
	_, ask, bidOK, askOK := b.BBO()
	if bidOK || !askOK || ask != (BBO{Price: 99, Qty: 4}) {
		t.Fatalf("unexpected bbo: %+v", ask)
	}

	trades := mustPlace(t, b, limit(4, 2, 99, Buy))
	assertTrades(t, trades, []Trade{
		{From: 3, To: 4, Qty: 2, Price: 99},
	})

	trades = mustPlace(t, b, limit(5, 4, 100, Buy))
	assertTrades(t, trades, []Trade{
		{From: 3, To: 5, Qty: 2, Price: 99},
		{From: 0, To: 5, Qty: 1, Price: 100},
		{From: 1, To: 5, Qty: 1, Price: 100},
	})
	if d := b.Depths().Asks[100]; d != 24 {
		t.Fatalf("depth[100]=%d, want 24", d)
	}

	trades = mustPlace(t, b, limit(6, 5, 103, Buy))
	assertTrades(t, trades, []Trade{
		{From: 1, To: 6, Qty: 4, Price: 100},
		{From: 2, To: 6, Qty: 1, Price: 100},
	})
	if d := b.Depths().Asks[100]; d != 19 {
		t.Fatalf("depth[100]=%d, want 19", d)
	}

	trades = mustPlace(t, b, limit(7, 6, 99, Sell))
	assertTrades(t, trades, nil)

	trades = mustPlace(t, b, market(8, 20, Buy))
	assertTrades(t, trades, []Trade{
		{From: 7, To: 8, Qty: 6, Price: 99},
		{From: 2, To: 8, Qty: 14, Price: 100},
	})

	trades = mustPlace(t, b, market(9, 20, Buy))
	assertTrades(t, trades, []Trade{
		{From: 2, To: 9, Qty: 5, Price: 100},
	})
	_, _, bidOK, askOK = b.BBO()
	if bidOK || askOK {
		t.Fatal("book should be empty")
	}
}

func TestImmediateOrCancelRemainderDiscarded(t *testing.T) {
	b := NewBook()
	mustPlace(t, b, limit(1, 3, 100, Sell))

	ord := limit(2, 10, 100, Buy)
	ord.Flags.ImmediateOrCancel = true
	trades, err := b.PlaceLimit(ord)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	assertTrades(t, trades, []Trade{{From: 1, To: 2, Qty: 3, Price: 100}})

	d := b.Depths()
	if len(d.Bids) != 0 || len(d.Asks) != 0 {
		t.Fatalf("ioc remainder must not rest: %+v", d)
	}
}

func TestMarketOrderNeverRests(t *testing.T) {
	b := NewBook()
	trades, err := b.PlaceMarket(market(1, 10, Buy))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("no liquidity, expected no trades: %v", trades)
	}
	if b.bids.Len() != 0 || b.asks.Len() != 0 {
		t.Fatal("market order must not rest")
	}
}

func TestRejections(t *testing.T) {
	b := NewBook()

	cases := []struct {
		name string
		ord  Order
		mkt  bool
		want error
	}{
		{"zero qty", limit(1, 0, 100, Buy), false, ErrInvalidOrder},
		{"negative qty", limit(1, -5, 100, Buy), false, ErrInvalidOrder},
		{"zero price limit", limit(1, 5, 0, Buy), false, ErrInvalidOrder},
		{"market zero qty", market(1, 0, Sell), true, ErrInvalidOrder},
		{"all or none limit", func() Order {
			o := limit(1, 5, 100, Buy)
			o.Flags.AllOrNone = true
			return o
		}(), false, ErrUnsupportedFlag},
		{"all or none market", func() Order {
			o := market(1, 5, Sell)
			o.Flags.AllOrNone = true
			return o
		}(), true, ErrUnsupportedFlag},
	}

	for _, tc := range cases {
		var err error
		if tc.mkt {
			_, err = b.PlaceMarket(tc.ord)
		} else {
			_, err = b.PlaceLimit(tc.ord)
		}
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}

	if b.bids.Len() != 0 || b.asks.Len() != 0 {
		t.Fatal("rejected orders must never touch the book")
	}
}

func TestCancelIdempotent(t *testing.T) {
	b := NewBook()
	mustPlace(t, b, limit(1, 5, 100, Buy))

	if !b.Cancel(Buy, 100, 1) {
		t.Fatal("cancel should find the resting order")
	}
	depth := b.Depths()
	if len(depth.Bids) != 0 {
		t.Fatalf("depth not purged after cancel: %+v", depth.Bids)
	}

	// Repeated cancels of an absent order are defined no-ops.
	for i := 0; i < 3; i++ {
		if b.Cancel(Buy, 100, 1) {
			t.Fatal("cancel of absent order must report not found")
		}
		checkInvariants(t, b)
	}
}

func TestPartialFillKeepsTimePriority(t *testing.T) {
	b := NewBook()
	mustPlace(t, b, limit(1, 10, 100, Sell))
	// Partially consume uid=1, then add uid=2 at the same price.
	mustPlace(t, b, limit(3, 4, 100, Buy))
	mustPlace(t, b, limit(2, 10, 100, Sell))

	trades := mustPlace(t, b, limit(4, 8, 100, Buy))
	assertTrades(t, trades, []Trade{
		{From: 1, To: 4, Qty: 6, Price: 100},
		{From: 2, To: 4, Qty: 2, Price: 100},
	})
}

// TestConservation drives the book with a deterministic random stream
// and checks that every order's matched + resting + discarded quantity
// adds up to what was submitted.
func TestConservation(t *testing.T) {
	b := NewBook()
	rng := rand.New(rand.NewSource(42))

	submitted := make(map[uint64]int64)
	matched := make(map[uint64]int64)

	collect := func(trades []Trade) {
		for _, tr := range trades {
			matched[tr.From] += tr.Qty
			matched[tr.To] += tr.Qty
		}
	}

	for uid := uint64(1); uid <= 500; uid++ {
		side := Buy
		if rng.Intn(2) == 1 {
			side = Sell
		}
		qty := int64(rng.Intn(20) + 1)
		submitted[uid] = qty

		if rng.Intn(10) == 0 {
			trades, err := b.PlaceMarket(market(uid, qty, side))
			if err != nil {
				t.Fatalf("market uid=%d: %v", uid, err)
			}
			collect(trades)
		} else {
			price := int64(95 + rng.Intn(11))
			trades, err := b.PlaceLimit(limit(uid, qty, price, side))
			if err != nil {
				t.Fatalf("limit uid=%d: %v", uid, err)
			}
			collect(trades)
		}
		checkInvariants(t, b)
	}

	resting := make(map[uint64]int64)
	for _, c := range []*Chain{b.bids, b.asks} {
		c.levels.ForEachAscending(func(lvl *PriceLevel) bool {
			for r := lvl.head; r != nil; r = r.next {
				resting[r.UID] += r.Qty
			}
			return true
		})
	}

	for uid, q := range submitted {
		if matched[uid]+resting[uid] > q {
			t.Fatalf("uid=%d over-filled: submitted=%d matched=%d resting=%d",
				uid, q, matched[uid], resting[uid])
		}
	}
}

func BenchmarkPlaceLimit(b *testing.B) {
	book := NewBook()
	// Prefill one side so most placements cross.
	for i := 0; i < 1024; i++ {
		_, _ = book.PlaceLimit(limit(uint64(i), 10, int64(100+i%16), Sell))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		uid := uint64(1024 + i)
		if i%2 == 0 {
			_, _ = book.PlaceLimit(limit(uid, 5, int64(100+i%16), Buy))
		} else {
			_, _ = book.PlaceLimit(limit(uid, 5, int64(100+i%16), Sell))
		}
	}
}
