package orderbook

import "fmt"

// BBO is the top of one side of the book.
type BBO struct {
	Price int64
	Qty   int64
}

// Trade is one match step. From is the seller's uid and To the
// buyer's, following the wire convention of the market-data feed;
// Price is always the resting (maker) order's price.
type Trade struct {
	From  uint64
	To    uint64
	Price int64
	Qty   int64
	Ts    int64
}

func (t Trade) String() string {
	return fmt.Sprintf("%d -> %d: %d @ %d", t.From, t.To, t.Qty, t.Price)
}

// Book pairs the bid and ask chains and owns the sequence counter
// used for time priority. The counter is scoped to the book, so
// independent books stay independently testable and resettable.
type Book struct {
	bids  *Chain
	asks  *Chain
	seq   uint64
	sinks []MarketDataSink
}

func NewBook() *Book {
	return &Book{
		bids: NewChain(Buy),
		asks: NewChain(Sell),
	}
}

// PlaceLimit matches ord against the opposite chain while liquidity
// crosses its limit price, then rests any remainder unless the order
// is immediate-or-cancel. It returns the trades in match order; the
// same trades are fanned to the attached sinks before returning.
func (b *Book) PlaceLimit(ord Order) ([]Trade, error) {
	if ord.Qty <= 0 || ord.Price <= 0 {
		return nil, fmt.Errorf("%w: price=%d qty=%d", ErrInvalidOrder, ord.Price, ord.Qty)
	}
	if ord.Flags.AllOrNone {
		return nil, fmt.Errorf("%w: all-or-none", ErrUnsupportedFlag)
	}

	own, opp := b.chains(ord.Side)
	rem := ord.Qty
	var trades []Trade

	for rem > 0 {
		top := opp.PeekFirst()
		if top == nil {
			break
		}
		if ord.Side == Buy && top.Price > ord.Price {
			break
		}
		if ord.Side == Sell && top.Price < ord.Price {
			break
		}

		top = opp.PopFirst()
		matched := min64(rem, top.Qty)
		top.Qty -= matched
		rem -= matched
		trades = append(trades, makeTrade(ord, top, matched))

		// A partial fill goes back with its original sequence.
		if top.Qty > 0 {
			opp.Insert(top)
		}
	}

	if rem > 0 && !ord.Flags.ImmediateOrCancel {
		own.Insert(&Resting{
			UID:   ord.UID,
			Price: ord.Price,
			Qty:   rem,
			Side:  ord.Side,
			Seq:   b.nextSeq(),
		})
	}

	b.publishTrades(trades)
	return trades, nil
}

// PlaceMarket runs the same matching loop with no price gate: any
// opposing price is acceptable. The remainder is always discarded;
// market orders never rest.
func (b *Book) PlaceMarket(ord Order) ([]Trade, error) {
	if ord.Qty <= 0 {
		return nil, fmt.Errorf("%w: qty=%d", ErrInvalidOrder, ord.Qty)
	}
	if ord.Flags.AllOrNone {
		return nil, fmt.Errorf("%w: all-or-none", ErrUnsupportedFlag)
	}

	_, opp := b.chains(ord.Side)
	rem := ord.Qty
	var trades []Trade

	for rem > 0 {
		top := opp.PopFirst()
		if top == nil {
			break
		}
		matched := min64(rem, top.Qty)
		top.Qty -= matched
		rem -= matched
		trades = append(trades, makeTrade(ord, top, matched))

		if top.Qty > 0 {
			opp.Insert(top)
		}
	}

	b.publishTrades(trades)
	return trades, nil
}

// Cancel removes the resting order identified by (side, price, uid).
// Not found is a benign no-op: the order may already have matched or
// been cancelled by an earlier request.
func (b *Book) Cancel(side Side, price int64, uid uint64) bool {
	own, _ := b.chains(side)
	return own.Remove(price, uid) != nil
}

// BBO returns the best bid and offer; ok flags report empty chains.
func (b *Book) BBO() (bid, ask BBO, bidOK, askOK bool) {
	bid, bidOK = b.bids.Best()
	ask, askOK = b.asks.Best()
	return
}

// Depths copies both chains' depth mappings.
func (b *Book) Depths() DepthUpdate {
	return DepthUpdate{
		Bids: b.bids.DepthSnapshot(),
		Asks: b.asks.DepthSnapshot(),
	}
}

// Bids and Asks expose the chains read-only for invariant checks.
func (b *Book) Bids() *Chain { return b.bids }
func (b *Book) Asks() *Chain { return b.asks }

func (b *Book) chain(s Side) *Chain {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) chains(s Side) (own, opp *Chain) {
	return b.chain(s), b.chain(s.Opposite())
}

func (b *Book) nextSeq() uint64 {
	b.seq++
	return b.seq
}

func makeTrade(taker Order, maker *Resting, qty int64) Trade {
	t := Trade{Price: maker.Price, Qty: qty, Ts: taker.CreatedAt}
	if taker.Side == Sell {
		t.From, t.To = taker.UID, maker.UID
	} else {
		t.From, t.To = maker.UID, taker.UID
	}
	return t
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
