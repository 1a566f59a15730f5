package orderbook

import "time"

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the side an incoming order matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Flags carries the order-matching flags. AllOrNone is declared for
// wire compatibility but rejected by the book (ErrUnsupportedFlag).
type Flags struct {
	AllOrNone         bool
	ImmediateOrCancel bool
}

// Order is an immutable placement request. Price is in minor currency
// units; zero is reserved for market orders. CreatedAt is informational
// only and never participates in priority.
type Order struct {
	UID       uint64
	Creator   string
	Price     int64
	Qty       int64
	Side      Side
	Flags     Flags
	CreatedAt int64
}

func NewLimit(uid uint64, creator string, qty, price int64, side Side) Order {
	return Order{
		UID:       uid,
		Creator:   creator,
		Price:     price,
		Qty:       qty,
		Side:      side,
		CreatedAt: time.Now().UnixNano(),
	}
}

func NewMarket(uid uint64, creator string, qty int64, side Side) Order {
	return NewLimit(uid, creator, qty, 0, side)
}

func (o Order) IsMarket() bool { return o.Price == 0 }

// Resting is the mutable record of an order waiting in the book. Qty
// only ever decreases while resting. Seq is assigned once, from the
// book's counter, at the moment the order starts resting; it survives
// partial fills, so time priority is preserved when a partially
// matched maker goes back into its chain.
//
// A Resting is exclusively owned by the chain it rests in; the
// intrusive links below belong to that chain's price level.
type Resting struct {
	UID   uint64
	Price int64
	Qty   int64
	Side  Side
	Seq   uint64

	next, prev *Resting
}
