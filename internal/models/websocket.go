package models

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub maintains the set of active clients and delivers bus notifications to
// the clients subscribed to a target.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Clients per subscribed target, keyed by Target.String().
	subscriptions map[string]map[*Client]bool

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Closed when Run returns.
	done chan struct{}

	mu sync.RWMutex
}

// Client represents a WebSocket connection
type Client struct {
	Hub *Hub

	// The websocket connection. Nil for clients that are not backed by a socket.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	Persona Persona

	// Targets the client listens to when it registers.
	Targets []Target

	// Resubscribe reloads the targets of the client, called on a "subscribe" frame.
	Resubscribe func(ctx context.Context) ([]Target, error)
}

// ClientFrame is a frame sent by the browser over the socket.
type ClientFrame struct {
	EventName string `json:"event_name"`
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		done:          make(chan struct{}),
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]bool),
	}
}

// Run starts the hub's registration loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.subscribeLocked(client, client.Targets)
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.unsubscribeLocked(client)
				close(client.Send)
			}
			h.mu.Unlock()

		case <-ctx.Done():
			return
		}
	}
}

// Join registers the client. It reports false once the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters the client, if the hub is still running.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// Subscribe replaces the targets a registered client listens to.
func (h *Hub) Subscribe(client *Client, targets []Target) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return
	}
	h.unsubscribeLocked(client)
	h.subscribeLocked(client, targets)
}

func (h *Hub) subscribeLocked(client *Client, targets []Target) {
	client.Targets = targets
	for _, t := range targets {
		key := t.String()
		if _, exists := h.subscriptions[key]; !exists {
			h.subscriptions[key] = make(map[*Client]bool)
		}
		h.subscriptions[key][client] = true
	}
}

func (h *Hub) unsubscribeLocked(client *Client) {
	for _, t := range client.Targets {
		key := t.String()
		if subs, exists := h.subscriptions[key]; exists {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.subscriptions, key)
			}
		}
	}
}

// Publish sends a message to all clients subscribed to target and returns
// how many accepted it. Clients with a full buffer are skipped.
func (h *Hub) Publish(target Target, message []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.subscriptions[target.String()] {
		select {
		case client.Send <- message:
			delivered++
		default:
		}
	}
	return delivered
}

// IsSubscribed reports whether any client listens to target.
func (h *Hub) IsSubscribed(target Target) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[target.String()]) > 0
}

// ReadPump pumps frames from the WebSocket connection to the hub
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Leave(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}

		var frame ClientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			continue
		}
		if frame.EventName == "subscribe" && c.Resubscribe != nil {
			targets, err := c.Resubscribe(ctx)
			if err != nil {
				continue
			}
			c.Hub.Subscribe(c, targets)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed
	maxMessageSize = 512
)
