package registry

import (
	"context"
	"strings"
)

// Lookup is the read-only slice of a Store used by the validation engine.
type Lookup interface {
	// GetGateway returns ErrNotFound if no gateway has the given id.
	GetGateway(ctx context.Context, id int64) (*Gateway, error)

	// GatewayBySerial returns ErrNotFound if no gateway has the given serial.
	GatewayBySerial(ctx context.Context, serial string) (*Gateway, error)

	// CountPeripheralsByGateway counts peripherals referencing gatewayID.
	CountPeripheralsByGateway(ctx context.Context, gatewayID int64) (int, error)
}

// Store is the durable record store for gateways and peripherals.
// Implementations assign ids on insert and must be safe for concurrent use.
// The Service is the only caller.
type Store interface {
	Lookup

	// CreateGateway inserts g and sets g.ID.
	// Returns ErrDuplicateSerial if the serial is already stored.
	CreateGateway(ctx context.Context, g *Gateway) error

	// ListGateways returns all gateways ordered by id.
	ListGateways(ctx context.Context) ([]Gateway, error)

	// CreatePeripheral inserts p and sets p.ID.
	CreatePeripheral(ctx context.Context, p *Peripheral) error

	// GetPeripheral returns ErrNotFound if no peripheral has the given id.
	GetPeripheral(ctx context.Context, id int64) (*Peripheral, error)

	// ListPeripherals returns all peripherals ordered by id.
	ListPeripherals(ctx context.Context) ([]Peripheral, error)

	// ListPeripheralsByGateway returns the peripherals referencing gatewayID, ordered by id.
	ListPeripheralsByGateway(ctx context.Context, gatewayID int64) ([]Peripheral, error)

	// DeletePeripheral removes a peripheral.
	// Returns ErrNotFound if the peripheral does not exist.
	DeletePeripheral(ctx context.Context, id int64) error

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
// Matches SQLite, PostgreSQL and MySQL driver messages.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "Duplicate entry")
}
