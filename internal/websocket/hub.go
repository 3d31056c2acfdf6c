package notifyws

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"
)

type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	logger     *zap.Logger
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte

	// mu guards send against a write after close; the hub and ReadPump both
	// write to it.
	mu     sync.Mutex
	closed bool
}

type Message struct {
	Type        string `json:"type"`
	RecipientID string `json:"recipient_id"`
	Payload     any    `json:"payload,omitempty"`
	Timestamp   string `json:"timestamp"`
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 64),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

// Run serves the hub until ctx is cancelled. Every open connection's send
// queue is closed on the way out and later Register/Unregister calls return
// immediately.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for userID, set := range h.clients {
				for client := range set {
					client.closeSend()
				}
				delete(h.clients, userID)
			}
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			set, ok := h.clients[client.userID]
			if !ok {
				continue
			}
			if _, exists := set[client]; exists {
				delete(set, client)
				client.closeSend()
			}
			if len(set) == 0 {
				delete(h.clients, client.userID)
			}
		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// Register adds client to the hub. A client registered after the hub stopped
// gets its send queue closed so its WritePump exits.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Notify queues a message for every connection of userID. It never blocks:
// when the queue is full the message is dropped and logged.
func (h *Hub) Notify(userID int64, kind string, payload any) {
	message := &Message{
		Type:        kind,
		RecipientID: strconv.FormatInt(userID, 10),
		Payload:     payload,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("notification dropped",
			zap.Int64("user_id", userID),
			zap.String("type", kind),
		)
	}
}

func (h *Hub) deliver(message *Message) {
	encoded, err := json.Marshal(message)
	if err != nil {
		h.logger.Warn("encode notification", zap.String("type", message.Type), zap.Error(err))
		return
	}

	set, ok := h.clients[message.RecipientID]
	if !ok {
		return
	}

	for client := range set {
		if !client.trySend(encoded) {
			delete(set, client)
			client.closeSend()
		}
	}
	if len(set) == 0 {
		delete(h.clients, message.RecipientID)
	}
}

// ReadPump only watches the connection; clients may send "ping" and get a "pong".
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil || incoming.Type != "ping" {
			continue
		}
		c.pong()
	}
}

// pong answers a client ping. It is dropped when the queue is full or the hub
// already closed it.
func (c *Client) pong() {
	payload, _ := json.Marshal(Message{
		Type:        "pong",
		RecipientID: c.userID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
	c.trySend(payload)
}

// trySend queues payload without blocking. It reports false when the queue is
// full or closed.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
