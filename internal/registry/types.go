package registry

import "time"

// CapacityLimit is the maximum number of peripherals a single gateway may own.
const CapacityLimit = 10

// Gateway is a registered network device reachable at an IPv4 address.
// Serial is unique across all gateways and never changes after creation.
type Gateway struct {
	ID      int64
	Serial  string
	Name    string
	Address string
}

// Peripheral is a device attached to exactly one gateway.
type Peripheral struct {
	ID        int64
	UUID      string
	Vendor    string
	Date      time.Time
	Status    Status
	GatewayID int64
}

// Status is the reported connectivity of a peripheral.
type Status string

// Peripheral status values.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// AllStatuses returns every accepted peripheral status.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusOffline}
}

// GatewayInput is the caller-editable field set of a gateway.
// Pointer fields distinguish "absent" from "empty".
type GatewayInput struct {
	Serial  *string
	Name    *string
	Address *string
}

// PeripheralInput is the caller-editable field set of a peripheral.
type PeripheralInput struct {
	Vendor    *string
	Status    *string
	GatewayID *int64
}

// EventType names a registry change broadcast to notifiers.
type EventType string

// Registry event types.
const (
	EventGatewayCreated    EventType = "gateway.created"
	EventPeripheralCreated EventType = "peripheral.created"
	EventPeripheralDeleted EventType = "peripheral.deleted"
)

// Event describes a committed registry change.
type Event struct {
	Type         EventType `json:"type"`
	GatewayID    int64     `json:"gateway_id"`
	PeripheralID int64     `json:"peripheral_id,omitempty"`
	// Peripherals is the gateway's peripheral count after the change.
	Peripherals int       `json:"peripherals"`
	At          time.Time `json:"at"`
}
