package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-gateways/internal/registry"
)

// MeasurementRegistryEvents holds one point per registry change.
const MeasurementRegistryEvents = "registry_events"

// eventPoint builds the registry_events point for ev.
//
// Tags: event type and gateway id. Fields: the gateway's peripheral count
// after the change, the slots still free under registry.CapacityLimit and,
// for peripheral events, the peripheral id.
func eventPoint(ev registry.Event) *write.Point {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	p := write.NewPointWithMeasurement(MeasurementRegistryEvents).
		AddTag("event", string(ev.Type)).
		AddTag("gateway_id", strconv.FormatInt(ev.GatewayID, 10)).
		AddField("peripherals", int64(ev.Peripherals)).
		AddField("free_slots", int64(max(registry.CapacityLimit-ev.Peripherals, 0))).
		SetTime(at)
	if ev.PeripheralID != 0 {
		p.AddField("peripheral_id", ev.PeripheralID)
	}
	return p
}

// WriteRegistryEvent queues ev for the next batch. It is a no-op once the
// client is closed.
func (c *Client) WriteRegistryEvent(ev registry.Event) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(eventPoint(ev))
}

// Notify implements registry.Notifier.
func (c *Client) Notify(ev registry.Event) {
	c.WriteRegistryEvent(ev)
}

var _ registry.Notifier = (*Client)(nil)
