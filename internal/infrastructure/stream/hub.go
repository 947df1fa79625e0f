// Package stream fans the normalized event feed out to websocket clients.
// The hub is a second subscriber on the raw-event bus and sits outside the
// ingestion critical path: a slow client is disconnected, never waited on.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"meshbridge/internal/domain/device"
	"meshbridge/internal/infrastructure/pubsub"
	"meshbridge/internal/shared/goroutine"
	"meshbridge/internal/shared/logger"
)

// ClientBuffer is the per-client frame backlog before disconnection.
const ClientBuffer = 256

// Message is the wire frame pushed to stream clients.
type Message struct {
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
	TS        time.Time      `json:"ts"`
}

// Client is one connected stream consumer. Frames arrive on Send until the
// hub closes it, either on shutdown or because the client fell behind.
type Client struct {
	id   string
	send chan *Message
}

func (c *Client) ID() string            { return c.id }
func (c *Client) Send() <-chan *Message { return c.send }

// Hub broadcasts every bus event to all registered clients.
type Hub struct {
	bus    *pubsub.Bus
	events <-chan device.Event

	clientsMu sync.RWMutex
	clients   map[string]*Client

	logger logger.Interface
	done   chan struct{}
}

// NewHub creates a hub subscribed to the event bus. Subscribing at
// construction time means no event published before Start is missed.
func NewHub(bus *pubsub.Bus, log logger.Interface) *Hub {
	return &Hub{
		bus:     bus,
		events:  bus.Subscribe("stream", 0),
		clients: make(map[string]*Client),
		logger:  log.Named("stream"),
		done:    make(chan struct{}),
	}
}

// Start launches the broadcast loop.
func (h *Hub) Start(ctx context.Context) {
	goroutine.SafeGo(h.logger, "stream-hub", func() {
		h.run(ctx)
	})
}

// Done is closed once the broadcast loop has exited and every client
// channel is closed.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			h.bus.Unsubscribe(h.events)
			return
		case ev, ok := <-h.events:
			if !ok {
				return
			}
			h.broadcast(&Message{
				EventType: string(ev.Type),
				Data:      ev.Payload,
				TS:        ev.ReceivedAt,
			})
		}
	}
}

// Register adds a new client and returns it.
func (h *Hub) Register() *Client {
	c := &Client{
		id:   uuid.NewString(),
		send: make(chan *Message, ClientBuffer),
	}
	h.clientsMu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Infow("stream client connected", "client_id", c.id, "clients", count)
	return c
}

// Unregister removes a client and closes its channel. Safe to call twice.
func (h *Hub) Unregister(id string) {
	h.clientsMu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.send)
	}
	count := len(h.clients)
	h.clientsMu.Unlock()

	if ok {
		h.logger.Infow("stream client disconnected", "client_id", id, "clients", count)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// broadcast pushes one frame to every client without blocking. Clients with
// a full buffer are dropped after the pass so the write never stalls.
func (h *Hub) broadcast(msg *Message) {
	var slow []string
	h.clientsMu.RLock()
	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, id)
		}
	}
	h.clientsMu.RUnlock()

	for _, id := range slow {
		h.logger.Warnw("stream client fell behind, dropping", "client_id", id)
		h.Unregister(id)
	}
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}
