package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/guildex/guildex/pkg/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced on the REST routes
		return true
	},
}

// Hub maintains active WebSocket connections and fans engine events out to the clients
// subscribed to each channel.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns
	mu         sync.RWMutex

	logger *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run services client registration until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Infow("ws_client_connected", "client", client.id, "total", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Infow("ws_client_disconnected", "client", client.id, "total", len(h.clients))
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToChannel sends data to every client subscribed to channel. Clients whose
// buffer is full miss the message.
func (h *Hub) BroadcastToChannel(channel string, data any) {
	message, err := json.Marshal(data)
	if err != nil {
		h.logger.Warnw("ws_marshal_failed", "channel", channel, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.IsSubscribed(channel) {
			select {
			case client.send <- message:
			default:
			}
		}
	}
}

// sendTo queues message for one client if it is still connected.
func (h *Hub) sendTo(c *Client, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[c] {
		select {
		case c.send <- message:
		default:
		}
	}
}

func (h *Hub) PublishTrade(ev events.TradeEvent) {
	h.BroadcastToChannel("trades", ev)
	h.BroadcastToChannel("trades:"+ev.Ticker, ev)
}

func (h *Hub) PublishPrice(ev events.PriceEvent) {
	h.BroadcastToChannel("prices", ev)
	h.BroadcastToChannel("prices:"+ev.Ticker, ev)
}

var _ events.Publisher = (*Hub)(nil)

// Client is one websocket connection and the channels it listens to.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	channels map[string]struct{}
	chMu     sync.RWMutex
}

func (c *Client) IsSubscribed(channel string) bool {
	c.chMu.RLock()
	defer c.chMu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *Client) setSubscribed(channels []string, on bool) {
	c.chMu.Lock()
	defer c.chMu.Unlock()
	for _, ch := range channels {
		if on {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
}

// readPump applies subscription requests until the connection drops.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warnw("ws_read_failed", "client", c.id, "err", err)
			}
			return
		}

		var req WSSubscribeRequest
		if err := json.Unmarshal(message, &req); err != nil {
			c.hub.logger.Warnw("ws_invalid_message", "client", c.id, "err", err)
			continue
		}

		switch req.Op {
		case "subscribe", "unsubscribe":
			c.setSubscribed(req.Channels, req.Op == "subscribe")
		default:
			c.hub.logger.Warnw("ws_unknown_op", "client", c.id, "op", req.Op)
			continue
		}
		ack, _ := json.Marshal(map[string]any{"type": "ack", "op": req.Op, "channels": req.Channels})
		c.hub.sendTo(c, ack)
	}
}

// writePump delivers queued events and keeps the connection alive with pings. It exits
// when the hub closes the send channel or a write fails.
func (c *Client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer c.conn.Close()

	write := func(kind int, payload []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, payload)
	}
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, []byte{})
				return
			}
			if write(websocket.TextMessage, message) != nil {
				return
			}
		case <-ping.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("ws_upgrade_failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := &Client{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		id:       r.RemoteAddr,
		channels: make(map[string]struct{}),
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
