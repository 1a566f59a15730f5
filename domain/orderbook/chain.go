package orderbook

import "fmt"

// Chain is one side of the book: resting orders in matching-priority
// order (best price first, then sequence ascending) with incremental
// per-price depth aggregation.
//
// The same-side invariant is enforced here, at the API boundary: a
// Resting may only ever enter the chain of its own side. A violation
// is a caller bug, not a runtime condition, and panics.
type Chain struct {
	side   Side
	levels *levelTree
	orders int
}

func NewChain(side Side) *Chain {
	return &Chain{side: side, levels: newLevelTree()}
}

func (c *Chain) Side() Side { return c.side }

// Len returns the number of resting orders on the chain.
func (c *Chain) Len() int { return c.orders }

// Levels returns the number of distinct prices on the chain.
func (c *Chain) Levels() int { return c.levels.Size() }

// Insert adds r to the chain. The caller guarantees uid uniqueness at
// a price; the chain does not deduplicate. A reinserted partial fill
// keeps its original sequence and therefore its time priority.
func (c *Chain) Insert(r *Resting) {
	if r.Side != c.side {
		panic(fmt.Sprintf("orderbook: %s order inserted into %s chain", r.Side, c.side))
	}
	c.levels.UpsertLevel(r.Price).insert(r)
	c.orders++
}

// PeekFirst returns the highest-priority resting order without
// mutating the chain, or nil when the chain is empty.
func (c *Chain) PeekFirst() *Resting {
	lvl := c.bestLevel()
	if lvl == nil {
		return nil
	}
	return lvl.head
}

// PopFirst removes and returns the highest-priority resting order.
// Nil means the chain is empty, which is not an error.
func (c *Chain) PopFirst() *Resting {
	lvl := c.bestLevel()
	if lvl == nil {
		return nil
	}
	r := lvl.head
	c.remove(lvl, r)
	return r
}

// Remove takes the order with the given uid off the chain, scanning
// only the level at price. Nil means not found; the order may already
// have filled or been cancelled, so that is an expected outcome.
func (c *Chain) Remove(price int64, uid uint64) *Resting {
	lvl := c.levels.FindLevel(price)
	if lvl == nil {
		return nil
	}
	for r := lvl.head; r != nil; r = r.next {
		if r.UID == uid {
			c.remove(lvl, r)
			return r
		}
	}
	return nil
}

// Best returns the top-of-book price and aggregate quantity.
func (c *Chain) Best() (BBO, bool) {
	lvl := c.bestLevel()
	if lvl == nil {
		return BBO{}, false
	}
	return BBO{Price: lvl.Price, Qty: lvl.TotalQty}, true
}

// DepthSnapshot copies the full price -> aggregate quantity mapping.
func (c *Chain) DepthSnapshot() map[int64]int64 {
	out := make(map[int64]int64, c.levels.Size())
	c.levels.ForEachAscending(func(lvl *PriceLevel) bool {
		out[lvl.Price] = lvl.TotalQty
		return true
	})
	return out
}

func (c *Chain) bestLevel() *PriceLevel {
	if c.side == Buy {
		return c.levels.MaxLevel()
	}
	return c.levels.MinLevel()
}

func (c *Chain) remove(lvl *PriceLevel, r *Resting) {
	lvl.unlink(r)
	c.orders--
	if lvl.head == nil {
		c.levels.DeleteLevel(lvl.Price)
	}
}
