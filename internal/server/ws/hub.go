package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 4096
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// frame is the envelope of every server-to-client message.
type frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// filterMsg is what a client sends to narrow or widen its feed. An empty
// filter set means everything.
//
//	{"action":"subscribe","types":["OrderExecuted"],"accounts":["0xabc..."]}
type filterMsg struct {
	Action   string   `json:"action"`
	Types    []string `json:"types"`
	Accounts []string `json:"accounts"`
}

// Hub fans domain events out to websocket clients.
type Hub struct {
	clients    map[*client]struct{}
	broadcast  chan domain.Event
	register   chan *client
	unregister chan *client
	done       chan struct{}
	status     func() domain.EngineStatus
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a Hub. status, when non-nil, is sent to each client on
// connect.
func NewHub(status func() domain.EngineStatus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan domain.Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		status:     status,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", n))

		case e := <-h.broadcast:
			data, err := json.Marshal(frame{Type: "event", Payload: e})
			if err != nil {
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(e) {
					continue
				}
				select {
				case c.send <- data:
				default:
					h.logger.Warn("dropping event for slow client", slog.String("event_id", e.ID))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Forward relays events from src until it closes or ctx ends.
func (h *Hub) Forward(ctx context.Context, src <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-src:
			if !ok {
				return
			}
			h.push(ctx, e)
		}
	}
}

func (h *Hub) push(ctx context.Context, e domain.Event) {
	select {
	case h.broadcast <- e:
	case <-ctx.Done():
	case <-h.done:
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		types:    make(map[domain.EventType]bool),
		accounts: make(map[string]bool),
	}
	c.sendStatus()
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	types    map[domain.EventType]bool
	accounts map[string]bool
}

func (c *client) wants(e domain.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.types) > 0 && !c.types[e.Type] {
		return false
	}
	if len(c.accounts) > 0 && !c.accounts[strings.ToLower(e.Account)] {
		return false
	}
	return true
}

func (c *client) applyFilter(msg filterMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	on := msg.Action == "subscribe"
	for _, t := range msg.Types {
		if on {
			c.types[domain.EventType(t)] = true
		} else {
			delete(c.types, domain.EventType(t))
		}
	}
	for _, a := range msg.Accounts {
		a = strings.ToLower(a)
		if on {
			c.accounts[a] = true
		} else {
			delete(c.accounts, a)
		}
	}
}

func (c *client) sendStatus() {
	if c.hub.status == nil {
		return
	}
	data, err := json.Marshal(frame{Type: "engine_status", Payload: c.hub.status()})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg filterMsg
		if json.Unmarshal(message, &msg) != nil {
			continue
		}
		switch msg.Action {
		case "subscribe", "unsubscribe":
			c.applyFilter(msg)
		case "status":
			c.sendStatus()
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
