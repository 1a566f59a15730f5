// Package feed streams trades and depth snapshots to websocket
// clients and accepts order commands from them. The hub is a
// market-data sink: the matching goroutine hands it events and moves
// on, and each client gets a bounded send buffer so one stalled
// connection never backs up into the engine or the other clients.
package feed

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"hermes/domain/orderbook"
	"hermes/service"
)

const (
	defaultSendBuf      = 256
	defaultPublishBuf   = 4096
	maxConsecutiveDrops = 50
)

// Engine is the slice of the sequencer the feed needs.
type Engine interface {
	PlaceWait(ctx context.Context, ord orderbook.Order) (service.Result, error)
	CancelWait(ctx context.Context, side orderbook.Side, price int64, uid uint64) (service.Result, error)
}

// ServerMsg is the envelope for everything the feed sends. Exactly
// one payload section is populated per message, keyed by Type.
type ServerMsg struct {
	Type string `json:"type"`

	// "set_username"
	Username string `json:"username,omitempty"`

	// "trades"
	Trades []TradeMsg `json:"trades,omitempty"`

	// "depth"
	Bids map[int64]int64 `json:"bids,omitempty"`
	Asks map[int64]int64 `json:"asks,omitempty"`

	// "ack"
	UID    uint64     `json:"uid,omitempty"`
	Status string     `json:"status,omitempty"`
	Found  *bool      `json:"found,omitempty"`
	Fills  []TradeMsg `json:"fills,omitempty"`
}

type TradeMsg struct {
	From  uint64 `json:"from"`
	To    uint64 `json:"to"`
	Price int64  `json:"price"`
	Qty   int64  `json:"qty"`
	Ts    int64  `json:"ts"`
}

func tradeMsgs(trades []orderbook.Trade) []TradeMsg {
	out := make([]TradeMsg, len(trades))
	for i, t := range trades {
		out[i] = TradeMsg{From: t.From, To: t.To, Price: t.Price, Qty: t.Qty, Ts: t.Ts}
	}
	return out
}

type directMsg struct {
	to   *Client
	data []byte
}

// Hub owns the client set. All membership changes and every write to
// a client's send channel happen on the Run goroutine; that single
// ownership is what makes closing the channel on eviction safe.
type Hub struct {
	engine Engine
	log    *zap.Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	direct     chan directMsg

	clients map[*Client]struct{}
	sendBuf int

	users    uint64
	orderIDs atomic.Uint64
	drops    atomic.Uint64
}

func NewHub(engine Engine, log *zap.Logger) *Hub {
	return &Hub{
		engine:     engine,
		log:        log,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, defaultPublishBuf),
		direct:     make(chan directMsg, defaultPublishBuf),
		clients:    make(map[*Client]struct{}),
		sendBuf:    defaultSendBuf,
	}
}

// Run is the hub event loop. Call as go hub.Run(ctx); it stops when
// ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("feed hub started")
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case m := <-h.direct:
			// Replies for clients already evicted are dropped; their
			// channel is closed.
			if _, ok := h.clients[m.to]; ok {
				select {
				case m.to.send <- m.data:
				default:
					h.drops.Add(1)
				}
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
					c.slow = 0
				default:
					h.drops.Add(1)
					c.slow++
					if c.slow > maxConsecutiveDrops {
						h.log.Warn("evicting slow client",
							zap.String("user", c.username),
							zap.Int("drops", c.slow))
						h.drop(c)
					}
				}
			}

		case <-ctx.Done():
			h.log.Info("feed hub shutting down")
			for c := range h.clients {
				h.drop(c)
			}
			return
		}
	}
}

// drop removes c and closes its send channel; the write pump exits
// when the channel drains. Hub goroutine only.
func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// PublishTrades fans trades out to every connected client. Called on
// the matching goroutine; a full broadcast buffer drops the batch
// rather than stalling the engine.
func (h *Hub) PublishTrades(trades []orderbook.Trade) {
	if len(trades) == 0 {
		return
	}
	h.enqueue(ServerMsg{Type: "trades", Trades: tradeMsgs(trades)})
}

// PublishDepth fans out a depth snapshot, same delivery policy as
// trades.
func (h *Hub) PublishDepth(d orderbook.DepthUpdate) {
	h.enqueue(ServerMsg{Type: "depth", Bids: d.Bids, Asks: d.Asks})
}

func (h *Hub) enqueue(msg ServerMsg) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal feed msg", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.drops.Add(1)
	}
}

// Drops reports messages shed on the broadcast path or at slow
// clients.
func (h *Hub) Drops() uint64 { return h.drops.Load() }

func (h *Hub) nextUsername() string {
	n := atomic.AddUint64(&h.users, 1)
	return "user-" + strconv.FormatUint(n, 10)
}

// nextOrderID hands out identifiers for orders submitted over the
// feed. gRPC callers bring their own.
func (h *Hub) nextOrderID() uint64 { return h.orderIDs.Add(1) }
