package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hermes/domain/orderbook"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	submitTimeout  = 5 * time.Second
)

// ClientMsg is a command from a connected client.
type ClientMsg struct {
	Type string `json:"type"` // "order" | "cancel"

	Side  string `json:"side"` // "buy" | "sell"
	Price int64  `json:"price"`
	Qty   int64  `json:"qty"`
	IOC   bool   `json:"ioc"`

	// "cancel" only
	UID uint64 `json:"uid"`
}

// Client is one websocket connection. conn may be nil in tests that
// exercise the hub loop directly.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	username string
	slow     int
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request, assigns the connection a username and
// registers it with the hub.
func ServeWS(h *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.sendBuf),
		username: h.nextUsername(),
	}
	h.register <- c

	c.reply(ServerMsg{Type: "set_username", Username: c.username})

	go c.writePump()
	go c.readPump()
}

// reply queues a message for this client only. It runs on the read
// pump, so it hands the bytes to the hub loop rather than touching
// c.send itself; the hub owns that channel and closes it on eviction.
func (c *Client) reply(msg ServerMsg) {
	b, err := json.Marshal(msg)
	if err != nil {
		c.hub.log.Error("marshal reply", zap.Error(err))
		return
	}
	select {
	case c.hub.direct <- directMsg{to: c, data: b}:
	default:
		c.hub.drops.Add(1)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			) {
				c.hub.log.Debug("read error", zap.Error(err))
			}
			return
		}

		var msg ClientMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(ServerMsg{Type: "ack", Status: "bad_request"})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg ClientMsg) {
	side, ok := parseSide(msg.Side)
	if !ok {
		c.reply(ServerMsg{Type: "ack", Status: "bad_side"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	switch msg.Type {
	case "order":
		uid := c.hub.nextOrderID()
		var ord orderbook.Order
		if msg.Price == 0 {
			ord = orderbook.NewMarket(uid, c.username, msg.Qty, side)
		} else {
			ord = orderbook.NewLimit(uid, c.username, msg.Qty, msg.Price, side)
		}
		ord.Flags.ImmediateOrCancel = msg.IOC

		res, err := c.hub.engine.PlaceWait(ctx, ord)
		if err != nil {
			c.reply(ServerMsg{Type: "ack", UID: uid, Status: "rejected"})
			return
		}
		c.reply(ServerMsg{Type: "ack", UID: uid, Status: "accepted", Fills: tradeMsgs(res.Trades)})

	case "cancel":
		res, err := c.hub.engine.CancelWait(ctx, side, msg.Price, msg.UID)
		if err != nil {
			c.reply(ServerMsg{Type: "ack", UID: msg.UID, Status: "rejected"})
			return
		}
		found := res.Found
		c.reply(ServerMsg{Type: "ack", UID: msg.UID, Status: "accepted", Found: &found})

	default:
		c.reply(ServerMsg{Type: "ack", Status: "unknown_type"})
	}
}

func parseSide(s string) (orderbook.Side, bool) {
	switch s {
	case "buy":
		return orderbook.Buy, true
	case "sell":
		return orderbook.Sell, true
	}
	return 0, false
}

// writePump serializes all writes to the connection and keeps the
// ping cadence. One per client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
