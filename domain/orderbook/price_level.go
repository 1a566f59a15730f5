package orderbook

import "fmt"

// PriceLevel is one price point on a chain: an intrusive doubly-linked
// list of resting orders ordered by sequence ascending, plus the
// aggregate quantity at that price. TotalQty is the chain's depth
// entry for this price; a level with no orders is removed from the
// tree immediately, so depth never carries zero entries.
type PriceLevel struct {
	Price    int64
	TotalQty int64
	Orders   int

	head, tail *Resting
}

// insert places r by sequence ascending. Fresh orders carry the
// newest sequence and append at the tail in O(1); a partially filled
// maker being reinserted carries its original sequence and walks back
// toward the head, which in practice puts it right back at the front.
func (p *PriceLevel) insert(r *Resting) {
	r.next, r.prev = nil, nil
	p.TotalQty += r.Qty
	p.Orders++

	if p.tail == nil {
		p.head, p.tail = r, r
		return
	}

	at := p.tail
	for at != nil && at.Seq > r.Seq {
		at = at.prev
	}
	if at == nil {
		r.next = p.head
		p.head.prev = r
		p.head = r
		return
	}
	r.prev = at
	r.next = at.next
	if at.next != nil {
		at.next.prev = r
	} else {
		p.tail = r
	}
	at.next = r
}

func (p *PriceLevel) unlink(r *Resting) {
	if r.prev != nil {
		r.prev.next = r.next
	} else {
		p.head = r.next
	}
	if r.next != nil {
		r.next.prev = r.prev
	} else {
		p.tail = r.prev
	}
	r.next, r.prev = nil, nil
	p.TotalQty -= r.Qty
	p.Orders--
}

func (p *PriceLevel) String() string {
	return fmt.Sprintf("level{price=%d qty=%d orders=%d}", p.Price, p.TotalQty, p.Orders)
}
