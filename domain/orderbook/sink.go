package orderbook

// DepthUpdate is a point-in-time copy of both chains' depth mappings.
// The maps are owned by the receiver; the book never retains them.
type DepthUpdate struct {
	Bids map[int64]int64
	Asks map[int64]int64
}

// MarketDataSink consumes trade and depth events from the book. Sinks
// are invoked on the book's writer goroutine and must not block; a
// sink that forwards to a slow consumer has to buffer or drop on its
// own side.
type MarketDataSink interface {
	PublishTrades(trades []Trade)
	PublishDepth(depth DepthUpdate)
}

// AttachSink registers an observer for market-data events. Not safe
// to call concurrently with matching.
func (b *Book) AttachSink(s MarketDataSink) {
	b.sinks = append(b.sinks, s)
}

func (b *Book) publishTrades(trades []Trade) {
	if len(trades) == 0 {
		return
	}
	for _, s := range b.sinks {
		s.PublishTrades(trades)
	}
}

// PublishDepth snapshots both chains and fans the update out to the
// attached sinks. The service layer calls this on a timer, never per
// mutation.
func (b *Book) PublishDepth() DepthUpdate {
	d := b.Depths()
	for _, s := range b.sinks {
		s.PublishDepth(d)
	}
	return d
}
