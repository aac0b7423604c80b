package api

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-gateways/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateways/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gateways/internal/registry"
)

// Message types exchanged over the event stream.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgPing        = "ping"
	MsgPong        = "pong"
	MsgEvent       = "event"
	MsgAck         = "ack"
	MsgError       = "error"
)

// AllEvents subscribes a client to every event type.
const AllEvents registry.EventType = "*"

// sendBufferSize is the per-client queue of outbound frames. A client
// that falls this far behind loses events rather than stalling the hub.
const sendBufferSize = 256

// ClientMessage is a frame sent by a client.
type ClientMessage struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Filter Filter `json:"filter"`
}

// ServerMessage is a frame sent to a client. Event is set for MsgEvent
// frames, Filter for MsgAck frames answering (un)subscribe.
type ServerMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Event     *registry.Event `json:"event,omitempty"`
	Filter    *Filter         `json:"filter,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Filter selects the events a client receives. A client that never named
// a gateway receives events for every gateway; once it has, only the
// gateways still in its filter match.
type Filter struct {
	Events   []registry.EventType `json:"events"`
	Gateways []int64              `json:"gateways,omitempty"`
}

// Hub fans committed registry events out to connected WebSocket clients.
// It implements registry.Notifier.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	dropped atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("event stream client connected", "clients", n)
}

// unregister detaches c and closes its queue.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.closeSend()
		h.logger.Debug("event stream client disconnected", "clients", n)
	}
}

// Notify delivers ev to every client whose filter matches. The frame is
// encoded once and queued without blocking.
func (h *Hub) Notify(ev registry.Event) {
	data, err := json.Marshal(ServerMessage{Type: MsgEvent, Event: &ev, Timestamp: time.Now().UTC()})
	if err != nil {
		h.logger.Error("encoding registry event", "event", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if !c.matches(ev) {
			continue
		}
		if c.enqueue(data) {
			delivered++
		} else {
			h.dropped.Add(1)
		}
	}
	if delivered > 0 {
		h.logger.Debug("registry event streamed", "event", ev.Type, "gateway_id", ev.GatewayID, "clients", delivered)
	}
}

var _ registry.Notifier = (*Hub)(nil)

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many event frames were discarded because a
// client's queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.closeSend()
		if c.conn != nil {
			c.conn.Close()
		}
	}
}
