package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/HSouheill/nairobi_verified/events"
	"github.com/HSouheill/nairobi_verified/models"
)

const (
	NotificationTypeConnected = "connected"
	sendBuffer                = 32
)

// Notification represents a message sent over WebSocket
type Notification struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
	UserID    string            `json:"userId,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Client represents a connected WebSocket client
type Client struct {
	UserID primitive.ObjectID
	Role   string
	conn   *websocket.Conn
	send   chan Notification
}

func (c *Client) isAdmin() bool {
	return c.Role == models.RoleAdmin
}

// Hub tracks live connections per user and forwards bus events to them.
// A user may hold several connections, one per open tab.
type Hub struct {
	clients    map[primitive.ObjectID]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[primitive.ObjectID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop and closes every connection when ctx ends
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for userID, set := range h.clients {
				for client := range set {
					close(client.send)
				}
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.UserID]
			if !ok {
				set = make(map[*Client]bool)
				h.clients[client.UserID] = set
			}
			set[client] = true
			client.send <- Notification{
				Type:      NotificationTypeConnected,
				Message:   "WebSocket connection established",
				UserID:    client.UserID.Hex(),
				CreatedAt: time.Now(),
			}
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.clients[client.UserID]; ok && set[client] {
				delete(set, client)
				if len(set) == 0 {
					delete(h.clients, client.UserID)
				}
				close(client.send)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe forwards bus events to connected clients until the returned
// function is called.
func (h *Hub) Subscribe(bus events.Bus) func() {
	return bus.Subscribe(h.Dispatch)
}

// Dispatch routes one event by audience
func (h *Hub) Dispatch(event events.Event) {
	n := Notification{
		Type:      event.Topic,
		Message:   event.Message,
		Data:      event.Data,
		UserID:    event.UserID,
		CreatedAt: event.CreatedAt,
	}

	switch event.Audience {
	case events.AudienceAdmins:
		h.BroadcastToAdmins(n)
	case events.AudienceUser:
		userID, err := primitive.ObjectIDFromHex(event.UserID)
		if err != nil {
			log.Printf("websocket: dropping %s event with invalid user id %q", event.Topic, event.UserID)
			return
		}
		h.SendToUser(userID, n)
	}
}

// deliver never blocks: a client whose buffer is full misses the message
func deliver(client *Client, n Notification) bool {
	select {
	case client.send <- n:
		return true
	default:
		log.Printf("websocket: send buffer full for user %s, dropping %s", client.UserID.Hex(), n.Type)
		return false
	}
}

// SendToUser sends a message to every connection of a user and reports how
// many received it
func (h *Hub) SendToUser(userID primitive.ObjectID, n Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients[userID] {
		if deliver(client, n) {
			delivered++
		}
	}
	return delivered
}

// BroadcastToAdmins sends a message to every connected admin
func (h *Hub) BroadcastToAdmins(n Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, set := range h.clients {
		for client := range set {
			if client.isAdmin() && deliver(client, n) {
				delivered++
			}
		}
	}
	return delivered
}

// ConnectedUsers returns the number of users with at least one connection
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
