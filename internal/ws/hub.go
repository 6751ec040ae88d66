package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is a message pushed to every client watching an order.
type Event struct {
	Type    string          `json:"type"`
	OrderID string          `json:"order_id"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Hub maintains one room of clients per order and fans events out to them.
type Hub struct {
	// Registered clients by order ID
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan Event

	// Closed once Run returns
	done chan struct{}

	logger logrus.FieldLogger

	// Guards rooms for readers outside the run loop
	mu sync.RWMutex
}

func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is done, then closes
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for orderID, clients := range h.rooms {
				for client := range clients {
					close(client.send)
				}
				delete(h.rooms, orderID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.orderID] == nil {
				h.rooms[client.orderID] = make(map[*Client]bool)
			}
			h.rooms[client.orderID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event)
			if err != nil {
				h.logger.WithError(err).WithField("order_id", event.OrderID).Error("marshal ws event")
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[event.OrderID] {
				select {
				case client.send <- message:
				default:
					// Slow client: drop it rather than stall the room
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// join and leave hand a client to the run loop unless the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// remove closes client and deletes empty rooms. Callers hold h.mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.rooms[client.orderID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.orderID)
	}
}

// BroadcastToOrder queues event for the order's room. Events are dropped
// when the queue is full.
func (h *Hub) BroadcastToOrder(orderID string, event Event) {
	event.OrderID = orderID
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.WithFields(logrus.Fields{"order_id": orderID, "type": event.Type}).Warn("ws broadcast queue full, event dropped")
	}
}

// Notify marshals data and broadcasts it as an event of eventType.
func (h *Hub) Notify(orderID, eventType string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.WithError(err).WithField("order_id", orderID).Error("marshal ws payload")
		return
	}
	h.BroadcastToOrder(orderID, Event{Type: eventType, Payload: payload})
}

// Watchers returns the number of clients watching orderID.
func (h *Hub) Watchers(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[orderID])
}
