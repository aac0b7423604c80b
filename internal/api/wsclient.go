package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-gateways/internal/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by corsMiddleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// knownEvents are the event types a filter may name.
var knownEvents = map[registry.EventType]struct{}{
	AllEvents:                       {},
	registry.EventGatewayCreated:    {},
	registry.EventPeripheralCreated: {},
	registry.EventPeripheralDeleted: {},
}

// wsClient is one connection on the event stream.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	mu       sync.RWMutex
	events   map[registry.EventType]struct{}
	gateways map[int64]struct{}
	// scoped stays set once a subscribe names gateways, so removing the
	// last gateway narrows the stream to nothing instead of widening it.
	scoped bool
}

func newWSClient(hub *Hub, conn *websocket.Conn) *wsClient {
	return &wsClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		events:   make(map[registry.EventType]struct{}),
		gateways: make(map[int64]struct{}),
	}
}

// handleWebSocket upgrades the request and attaches the connection to the
// hub. Nothing is sent until the client subscribes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn)
	s.hub.register(c)

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) pingInterval() time.Duration {
	return time.Duration(c.hub.cfg.PingInterval) * time.Second
}

func (c *wsClient) pongWait() time.Duration {
	return time.Duration(c.hub.cfg.PongTimeout) * time.Second
}

// readPump handles client frames until the connection fails, then
// detaches the client.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pingInterval() + c.pongWait()))
	}
	_ = extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("event stream read error", "error", err)
			}
			return
		}
		// Application pings count as liveness too.
		_ = extend() //nolint:errcheck // see above
		c.handle(data)
	}
}

// writePump drains c.send and keeps the connection alive with pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.pingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.pongWait())) //nolint:errcheck // write reports it
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) handle(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(ServerMessage{Type: MsgError, Error: "invalid JSON message"})
		return
	}

	switch msg.Type {
	case MsgSubscribe:
		if len(msg.Filter.Events) == 0 {
			c.reply(ServerMessage{Type: MsgError, ID: msg.ID, Error: "filter.events is required"})
			return
		}
		if err := checkEvents(msg.Filter.Events); err != nil {
			c.reply(ServerMessage{Type: MsgError, ID: msg.ID, Error: err.Error()})
			return
		}
		c.subscribe(msg.Filter)
		c.ack(msg.ID)
	case MsgUnsubscribe:
		c.unsubscribe(msg.Filter)
		c.ack(msg.ID)
	case MsgPing:
		c.reply(ServerMessage{Type: MsgPong, ID: msg.ID})
	default:
		c.reply(ServerMessage{Type: MsgError, ID: msg.ID, Error: "unknown message type: " + msg.Type})
	}
}

func checkEvents(events []registry.EventType) error {
	for _, ev := range events {
		if _, ok := knownEvents[ev]; !ok {
			return fmt.Errorf("unknown event type: %s", ev)
		}
	}
	return nil
}

func (c *wsClient) subscribe(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range f.Events {
		c.events[ev] = struct{}{}
	}
	for _, id := range f.Gateways {
		c.gateways[id] = struct{}{}
	}
	if len(f.Gateways) > 0 {
		c.scoped = true
	}
}

// unsubscribe removes the named events and gateways. Dropping every event
// type resets the client to its unsubscribed state, gateway scope included.
func (c *wsClient) unsubscribe(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range f.Events {
		delete(c.events, ev)
	}
	for _, id := range f.Gateways {
		delete(c.gateways, id)
	}
	if len(c.events) == 0 {
		clear(c.gateways)
		c.scoped = false
	}
}

// filter returns a sorted snapshot of the client's subscriptions.
func (c *wsClient) filter() Filter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f := Filter{Events: make([]registry.EventType, 0, len(c.events))}
	for ev := range c.events {
		f.Events = append(f.Events, ev)
	}
	for id := range c.gateways {
		f.Gateways = append(f.Gateways, id)
	}
	slices.Sort(f.Events)
	slices.Sort(f.Gateways)
	return f
}

// matches reports whether ev passes the client's filter.
func (c *wsClient) matches(ev registry.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, all := c.events[AllEvents]
	_, typed := c.events[ev.Type]
	if !all && !typed {
		return false
	}
	if !c.scoped {
		return true
	}
	_, ok := c.gateways[ev.GatewayID]
	return ok
}

func (c *wsClient) ack(id string) {
	f := c.filter()
	c.reply(ServerMessage{Type: MsgAck, ID: id, Filter: &f})
}

func (c *wsClient) reply(msg ServerMessage) {
	msg.Timestamp = time.Now().UTC()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// enqueue queues data without blocking. It reports false when the queue
// is full or the client has already been detached.
func (c *wsClient) enqueue(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound queue once, which stops writePump.
func (c *wsClient) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
