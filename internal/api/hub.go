package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vulx-io/vulx/internal/logger"
	"github.com/vulx-io/vulx/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard terminates auth in front of us; origins are not
		// restricted here.
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one WebSocket subscriber watching a single scan.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	scanID string
}

// Hub fans progress events out to the subscribers of each scan.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool
	log     *logger.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]bool),
		log:     logger.NewLogger("WS"),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.scanID] == nil {
		h.clients[c.scanID] = make(map[*Client]bool)
	}
	h.clients[c.scanID][c] = true
	h.log.Info("Client subscribed to scan", c.scanID)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.clients[c.scanID]; ok {
		if subs[c] {
			delete(subs, c)
			close(c.send)
		}
		if len(subs) == 0 {
			delete(h.clients, c.scanID)
		}
	}
}

// Publish delivers a progress event to the watchers of its scan. Slow
// clients are dropped rather than blocking the relay.
func (h *Hub) Publish(event models.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to marshal progress event", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients[event.ScanID] {
		select {
		case client.send <- payload:
		default:
			delete(h.clients[event.ScanID], client)
			close(client.send)
		}
	}
}

// SubscriberCount reports watchers of one scan, for tests and stats.
func (h *Hub) SubscriberCount(scanID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[scanID])
}

// Serve upgrades the request and pumps events until the peer leaves.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, scanID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("WebSocket upgrade failed", err)
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, 64), scanID: scanID}
	h.register(client)

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Subscribers only listen; inbound frames are drained for control
	// handling.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
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
