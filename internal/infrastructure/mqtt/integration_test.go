//go:build integration

package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-gateways/internal/registry"
)

// Integration tests against a real broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	cfg.TopicPrefix = "gatewayd-int"

	client, err := Connect(cfg)
	if err != nil {
		t.Skipf("MQTT broker unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestIntegration_EventRoundtrip(t *testing.T) {
	client := connectOrSkip(t, "gatewayd-int-publisher")

	received := make(chan pahomqtt.Message, 1)
	subOpts := pahomqtt.NewClientOptions().
		AddBroker("tcp://127.0.0.1:1883").
		SetClientID("gatewayd-int-subscriber")
	sub := pahomqtt.NewClient(subOpts)
	if token := sub.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Skipf("subscriber connect failed: %v", token.Error())
	}
	defer sub.Disconnect(100)

	token := sub.Subscribe(client.Topics().AllRegistryEvents(), 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		received <- msg
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("Subscribe() error = %v", token.Error())
	}

	NewEventPublisher(client, 1, nil).Notify(registry.Event{
		Type:        registry.EventGatewayCreated,
		GatewayID:   42,
		Peripherals: 0,
		At:          time.Now().UTC(),
	})

	select {
	case msg := <-received:
		if msg.Topic() != "gatewayd-int/registry/gateway.created" {
			t.Errorf("topic = %q", msg.Topic())
		}
		if msg.Retained() {
			t.Error("registry events must not be retained")
		}
		var ev registry.Event
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil || ev.GatewayID != 42 {
			t.Errorf("payload = %s (err %v)", msg.Payload(), err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for registry event")
	}
}

func TestIntegration_HealthCheckAfterClose(t *testing.T) {
	client := connectOrSkip(t, "gatewayd-int-health")

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}
