// Package wire encodes engine events and requests in protobuf wire
// format using encoding/protowire directly; no generated code. Field
// numbers below are the schema and must not be reassigned: journal
// segments, the trade outbox and the Kafka topics all carry these
// bytes.
package wire

import (
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"hermes/domain/orderbook"
)

// Trade message:
//
//	1 from   uint64
//	2 to     uint64
//	3 price  int64
//	4 qty    int64
//	5 ts     int64
func EncodeTrade(t orderbook.Trade) []byte {
	var b []byte
	b = appendVarintField(b, 1, t.From)
	b = appendVarintField(b, 2, t.To)
	b = appendVarintField(b, 3, uint64(t.Price))
	b = appendVarintField(b, 4, uint64(t.Qty))
	b = appendVarintField(b, 5, uint64(t.Ts))
	return b
}

func DecodeTrade(b []byte) (orderbook.Trade, error) {
	var t orderbook.Trade
	err := walkFields(b, func(num protowire.Number, v uint64, _ []byte) {
		switch num {
		case 1:
			t.From = v
		case 2:
			t.To = v
		case 3:
			t.Price = int64(v)
		case 4:
			t.Qty = int64(v)
		case 5:
			t.Ts = int64(v)
		}
	})
	return t, err
}

// Place message:
//
//	1 uid      uint64
//	2 creator  bytes
//	3 side     uint32 (0 buy, 1 sell)
//	4 price    int64 (0 = market)
//	5 qty      int64
//	6 all_or_none          bool
//	7 immediate_or_cancel  bool
//	8 created_at           int64
func EncodePlace(ord orderbook.Order) []byte {
	var b []byte
	b = appendVarintField(b, 1, ord.UID)
	if ord.Creator != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, ord.Creator)
	}
	b = appendVarintField(b, 3, uint64(ord.Side))
	b = appendVarintField(b, 4, uint64(ord.Price))
	b = appendVarintField(b, 5, uint64(ord.Qty))
	b = appendBoolField(b, 6, ord.Flags.AllOrNone)
	b = appendBoolField(b, 7, ord.Flags.ImmediateOrCancel)
	b = appendVarintField(b, 8, uint64(ord.CreatedAt))
	return b
}

func DecodePlace(b []byte) (orderbook.Order, error) {
	var ord orderbook.Order
	err := walkFields(b, func(num protowire.Number, v uint64, raw []byte) {
		switch num {
		case 1:
			ord.UID = v
		case 2:
			ord.Creator = string(raw)
		case 3:
			ord.Side = orderbook.Side(v)
		case 4:
			ord.Price = int64(v)
		case 5:
			ord.Qty = int64(v)
		case 6:
			ord.Flags.AllOrNone = v != 0
		case 7:
			ord.Flags.ImmediateOrCancel = v != 0
		case 8:
			ord.CreatedAt = int64(v)
		}
	})
	return ord, err
}

// Cancel message:
//
//	1 uid    uint64
//	2 side   uint32
//	3 price  int64
func EncodeCancel(side orderbook.Side, price int64, uid uint64) []byte {
	var b []byte
	b = appendVarintField(b, 1, uid)
	b = appendVarintField(b, 2, uint64(side))
	b = appendVarintField(b, 3, uint64(price))
	return b
}

func DecodeCancel(b []byte) (side orderbook.Side, price int64, uid uint64, err error) {
	err = walkFields(b, func(num protowire.Number, v uint64, _ []byte) {
		switch num {
		case 1:
			uid = v
		case 2:
			side = orderbook.Side(v)
		case 3:
			price = int64(v)
		}
	})
	return
}

// Depth message: repeated levels, each {1 price, 2 qty}, bids in
// field 1 and asks in field 2. Levels are emitted price-ascending so
// the same book state always yields the same bytes.
func EncodeDepth(d orderbook.DepthUpdate) []byte {
	var b []byte
	b = appendLevels(b, 1, d.Bids)
	b = appendLevels(b, 2, d.Asks)
	return b
}

func DecodeDepth(b []byte) (orderbook.DepthUpdate, error) {
	d := orderbook.DepthUpdate{
		Bids: make(map[int64]int64),
		Asks: make(map[int64]int64),
	}
	err := walkFields(b, func(num protowire.Number, _ uint64, raw []byte) {
		var m map[int64]int64
		switch num {
		case 1:
			m = d.Bids
		case 2:
			m = d.Asks
		default:
			return
		}
		var price, qty int64
		if werr := walkFields(raw, func(n protowire.Number, v uint64, _ []byte) {
			switch n {
			case 1:
				price = int64(v)
			case 2:
				qty = int64(v)
			}
		}); werr == nil {
			m[price] = qty
		}
	})
	return d, err
}

// PlaceAck message: 1 status bytes, 2 trades repeated Trade.
func EncodePlaceAck(status string, trades []orderbook.Trade) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, status)
	for _, t := range trades {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, EncodeTrade(t))
	}
	return b
}

func DecodePlaceAck(b []byte) (status string, trades []orderbook.Trade, err error) {
	err = walkFields(b, func(num protowire.Number, _ uint64, raw []byte) {
		switch num {
		case 1:
			status = string(raw)
		case 2:
			if t, terr := DecodeTrade(raw); terr == nil {
				trades = append(trades, t)
			}
		}
	})
	return
}

// CancelAck message: 1 status bytes, 2 found bool.
func EncodeCancelAck(status string, found bool) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, status)
	b = appendBoolField(b, 2, found)
	return b
}

func DecodeCancelAck(b []byte) (status string, found bool, err error) {
	err = walkFields(b, func(num protowire.Number, v uint64, raw []byte) {
		switch num {
		case 1:
			status = string(raw)
		case 2:
			found = v != 0
		}
	})
	return
}

/******************** helpers ********************/

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarintField(b, num, 1)
}

func appendLevels(b []byte, num protowire.Number, m map[int64]int64) []byte {
	prices := make([]int64, 0, len(m))
	for p := range m {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	for _, p := range prices {
		var lvl []byte
		lvl = appendVarintField(lvl, 1, uint64(p))
		lvl = appendVarintField(lvl, 2, uint64(m[p]))
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, lvl)
	}
	return b
}

// walkFields visits each top-level field. Varint fields report their
// value, bytes fields their payload; other wire types are skipped.
// Unknown field numbers are ignored so old readers tolerate new
// fields.
func walkFields(b []byte, visit func(num protowire.Number, v uint64, raw []byte)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			visit(num, v, nil)
			b = b[n:]
		case protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			visit(num, 0, raw)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
