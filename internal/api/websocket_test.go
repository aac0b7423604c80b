package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-gateways/internal/registry"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(testWSConfig(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

// mockClient registers a connectionless client with the given filter.
func mockClient(hub *Hub, f Filter) *wsClient {
	c := newWSClient(hub, nil)
	c.subscribe(f)
	hub.register(c)
	return c
}

func receive(t *testing.T, c *wsClient) ServerMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return ServerMessage{}
}

func expectNothing(t *testing.T, c *wsClient) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Errorf("unexpected frame: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func event(typ registry.EventType, gatewayID int64) registry.Event {
	return registry.Event{Type: typ, GatewayID: gatewayID, Peripherals: 1, At: time.Now().UTC()}
}

// ─── Hub Tests ─────────────────────────────────────────────────────

func TestHub_NotifySubscribed(t *testing.T) {
	hub := newTestHub(t)
	c := mockClient(hub, Filter{Events: []registry.EventType{registry.EventPeripheralCreated}})

	hub.Notify(registry.Event{
		Type:         registry.EventPeripheralCreated,
		GatewayID:    3,
		PeripheralID: 7,
		Peripherals:  2,
	})

	msg := receive(t, c)
	if msg.Type != MsgEvent || msg.Event == nil {
		t.Fatalf("message = %+v", msg)
	}
	if msg.Event.GatewayID != 3 || msg.Event.PeripheralID != 7 || msg.Event.Peripherals != 2 {
		t.Errorf("event = %+v", msg.Event)
	}
}

func TestHub_FilterByEventType(t *testing.T) {
	hub := newTestHub(t)
	c := mockClient(hub, Filter{Events: []registry.EventType{registry.EventGatewayCreated}})

	hub.Notify(event(registry.EventPeripheralDeleted, 1))
	expectNothing(t, c)
}

func TestHub_FilterByGateway(t *testing.T) {
	hub := newTestHub(t)
	c := mockClient(hub, Filter{Events: []registry.EventType{AllEvents}, Gateways: []int64{2}})

	hub.Notify(event(registry.EventPeripheralCreated, 1))
	hub.Notify(event(registry.EventPeripheralCreated, 2))

	if msg := receive(t, c); msg.Event.GatewayID != 2 {
		t.Errorf("gateway_id = %d, want 2", msg.Event.GatewayID)
	}
	expectNothing(t, c)
}

func TestHub_AllEvents(t *testing.T) {
	hub := newTestHub(t)
	c := mockClient(hub, Filter{Events: []registry.EventType{AllEvents}})

	hub.Notify(event(registry.EventGatewayCreated, 1))
	hub.Notify(event(registry.EventPeripheralDeleted, 1))

	if got := receive(t, c).Event.Type; got != registry.EventGatewayCreated {
		t.Errorf("first event = %q", got)
	}
	if got := receive(t, c).Event.Type; got != registry.EventPeripheralDeleted {
		t.Errorf("second event = %q", got)
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := newTestHub(t)
	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	c := mockClient(hub, Filter{})
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.unregister(c)
	hub.unregister(c)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
	if c.enqueue([]byte("late")) {
		t.Error("enqueue succeeded on a detached client")
	}
}

func TestHub_SlowClientDropsEvents(t *testing.T) {
	hub := newTestHub(t)
	c := newWSClient(hub, nil)
	c.send = make(chan []byte, 1)
	c.subscribe(Filter{Events: []registry.EventType{AllEvents}})
	hub.register(c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Notify(event(registry.EventPeripheralCreated, 1))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a slow client")
	}
	if len(c.send) != 1 {
		t.Errorf("queued = %d, want 1", len(c.send))
	}
	if hub.Dropped() != 4 {
		t.Errorf("Dropped() = %d, want 4", hub.Dropped())
	}
}

func TestHub_RunClosesClients(t *testing.T) {
	hub := NewHub(testWSConfig(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	c := mockClient(hub, Filter{})
	cancel()
	<-done

	if _, open := <-c.send; open {
		t.Error("send channel still open after Run returned")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("client count = %d after Run returned", hub.ClientCount())
	}
}

func TestClientFilter_Unsubscribe(t *testing.T) {
	c := newWSClient(newTestHub(t), nil)
	c.subscribe(Filter{
		Events:   []registry.EventType{registry.EventPeripheralDeleted, registry.EventGatewayCreated},
		Gateways: []int64{5, 1},
	})

	f := c.filter()
	if strings.Join([]string{string(f.Events[0]), string(f.Events[1])}, ",") != "gateway.created,peripheral.deleted" {
		t.Errorf("events = %v, want sorted", f.Events)
	}
	if len(f.Gateways) != 2 || f.Gateways[0] != 1 {
		t.Errorf("gateways = %v, want [1 5]", f.Gateways)
	}

	c.unsubscribe(Filter{Events: []registry.EventType{registry.EventGatewayCreated}, Gateways: []int64{5}})
	if c.matches(event(registry.EventGatewayCreated, 1)) {
		t.Error("unsubscribed event type still matches")
	}
	if c.matches(event(registry.EventPeripheralDeleted, 5)) {
		t.Error("unsubscribed gateway still matches")
	}
	if !c.matches(event(registry.EventPeripheralDeleted, 1)) {
		t.Error("remaining subscription does not match")
	}
}

func TestClientFilter_UnsubscribeLastGateway(t *testing.T) {
	c := newWSClient(newTestHub(t), nil)
	c.subscribe(Filter{Events: []registry.EventType{AllEvents}, Gateways: []int64{3}})

	c.unsubscribe(Filter{Gateways: []int64{3}})
	if c.matches(event(registry.EventPeripheralCreated, 7)) {
		t.Error("removing the only gateway widened the filter to every gateway")
	}
	if c.matches(event(registry.EventPeripheralCreated, 3)) {
		t.Error("removed gateway still matches")
	}

	c.subscribe(Filter{Events: []registry.EventType{AllEvents}, Gateways: []int64{7}})
	if !c.matches(event(registry.EventPeripheralCreated, 7)) {
		t.Error("re-subscribed gateway does not match")
	}
}

func TestClientFilter_UnsubscribeAllResetsScope(t *testing.T) {
	c := newWSClient(newTestHub(t), nil)
	c.subscribe(Filter{Events: []registry.EventType{registry.EventGatewayCreated}, Gateways: []int64{3}})
	c.unsubscribe(Filter{Events: []registry.EventType{registry.EventGatewayCreated}})

	if f := c.filter(); len(f.Events) != 0 || len(f.Gateways) != 0 {
		t.Errorf("filter = %+v, want empty", f)
	}

	c.subscribe(Filter{Events: []registry.EventType{registry.EventGatewayCreated}})
	if !c.matches(event(registry.EventGatewayCreated, 9)) {
		t.Error("fresh subscription should match every gateway")
	}
}

func TestClient_EnqueueAfterClose(t *testing.T) {
	c := newWSClient(newTestHub(t), nil)
	if !c.enqueue([]byte("a")) {
		t.Fatal("enqueue on open client failed")
	}

	c.closeSend()
	c.closeSend()
	if c.enqueue([]byte("b")) {
		t.Error("enqueue after close reported success")
	}
	if _, ok := <-c.send; !ok {
		t.Error("queued frame lost on close")
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel still open")
	}
}

// ─── WebSocket Connection Tests ────────────────────────────────────

func connectWebSocket(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readWS(t *testing.T, ws *websocket.Conn) ServerMessage {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ServerMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func subscribe(t *testing.T, ws *websocket.Conn, f Filter) {
	t.Helper()
	if err := ws.WriteJSON(ClientMessage{Type: MsgSubscribe, ID: "sub-1", Filter: f}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != MsgAck || resp.ID != "sub-1" {
		t.Fatalf("subscribe response = %+v", resp)
	}
}

func TestWebSocket_SubscribeUnsubscribe(t *testing.T) {
	srv, _ := testServer(t)
	ws := connectWebSocket(t, startServer(t, srv))

	subscribe(t, ws, Filter{Events: []registry.EventType{registry.EventGatewayCreated, registry.EventPeripheralCreated}})
	if srv.hub.ClientCount() != 1 {
		t.Errorf("hub client count = %d, want 1", srv.hub.ClientCount())
	}

	if err := ws.WriteJSON(ClientMessage{
		Type:   MsgUnsubscribe,
		ID:     "unsub-1",
		Filter: Filter{Events: []registry.EventType{registry.EventGatewayCreated}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	resp := readWS(t, ws)
	if resp.Type != MsgAck || resp.ID != "unsub-1" || resp.Filter == nil {
		t.Fatalf("unsubscribe response = %+v", resp)
	}
	if len(resp.Filter.Events) != 1 || resp.Filter.Events[0] != registry.EventPeripheralCreated {
		t.Errorf("remaining events = %v", resp.Filter.Events)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	srv, _ := testServer(t)
	ws := connectWebSocket(t, startServer(t, srv))

	if err := ws.WriteJSON(ClientMessage{Type: MsgPing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != MsgPong || resp.ID != "ping-1" {
		t.Errorf("pong = %+v", resp)
	}
}

func TestWebSocket_InvalidMessages(t *testing.T) {
	srv, _ := testServer(t)
	ws := connectWebSocket(t, startServer(t, srv))

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write invalid message: %v", err)
	}
	if resp := readWS(t, ws); resp.Type != MsgError {
		t.Errorf("response type = %s, want error", resp.Type)
	}

	for _, msg := range []ClientMessage{
		{Type: "unknown_type", ID: "t-1"},
		{Type: MsgSubscribe, ID: "t-2"},
		{Type: MsgSubscribe, ID: "t-3", Filter: Filter{Events: []registry.EventType{"gateway.deleted"}}},
	} {
		if err := ws.WriteJSON(msg); err != nil {
			t.Fatalf("write: %v", err)
		}
		if resp := readWS(t, ws); resp.Type != MsgError || resp.ID != msg.ID || resp.Error == "" {
			t.Errorf("response to %+v = %+v", msg, resp)
		}
	}
}

func TestWebSocket_ReceivesRegistryEvents(t *testing.T) {
	srv, _ := testServer(t)
	addr := startServer(t, srv)
	ws := connectWebSocket(t, addr)
	subscribe(t, ws, Filter{Events: []registry.EventType{AllEvents}})

	post := func(path, body string) {
		t.Helper()
		resp, err := http.Post("http://"+addr+path, "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("POST %s status = %d", path, resp.StatusCode)
		}
	}

	post("/api/gateways", `{"serial":"GW-001","name":"Lobby","address":"10.0.0.1"}`)
	if msg := readWS(t, ws); msg.Event == nil || msg.Event.Type != registry.EventGatewayCreated {
		t.Errorf("first frame = %+v, want gateway.created", msg)
	}

	post("/api/peripherals", `{"vendor":"acme","status":"online","gateway_id":1}`)
	msg := readWS(t, ws)
	if msg.Event == nil || msg.Event.Type != registry.EventPeripheralCreated {
		t.Fatalf("second frame = %+v, want peripheral.created", msg)
	}
	if msg.Event.GatewayID != 1 || msg.Event.PeripheralID != 1 || msg.Event.Peripherals != 1 {
		t.Errorf("event = %+v", msg.Event)
	}

	req, _ := http.NewRequest(http.MethodDelete, "http://"+addr+"/api/peripherals/1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	msg = readWS(t, ws)
	if msg.Event == nil || msg.Event.Type != registry.EventPeripheralDeleted || msg.Event.Peripherals != 0 {
		t.Errorf("third frame = %+v, want peripheral.deleted with 0 peripherals", msg)
	}
}

func TestWebSocket_NoEventOnRejectedWrite(t *testing.T) {
	srv, _ := testServer(t)
	addr := startServer(t, srv)
	ws := connectWebSocket(t, addr)
	subscribe(t, ws, Filter{Events: []registry.EventType{AllEvents}})

	resp, err := http.Post("http://"+addr+"/api/gateways", "application/json",
		strings.NewReader(`{"serial":"GW-001","name":"Lobby","address":"nope"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	ws.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg ServerMessage
	if err := ws.ReadJSON(&msg); err == nil {
		t.Errorf("unexpected message after rejected write: %+v", msg)
	}
}
