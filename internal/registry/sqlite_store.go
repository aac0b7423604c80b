package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore implements Store using SQLite.
// The schema lives in migrations/*_registry_schema.up.sql.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
// The db parameter should be an open SQLite connection with foreign keys enabled.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// CreateGateway inserts a gateway and sets its id.
func (s *SQLiteStore) CreateGateway(ctx context.Context, g *Gateway) error {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO gateways (serial, name, address) VALUES (?, ?, ?)",
		g.Serial, g.Name, g.Address,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateSerial
		}
		return fmt.Errorf("inserting gateway: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading gateway id: %w", err)
	}
	g.ID = id
	return nil
}

// GetGateway retrieves a gateway by id.
func (s *SQLiteStore) GetGateway(ctx context.Context, id int64) (*Gateway, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, serial, name, address FROM gateways WHERE id = ?", id)
	return scanGateway(row)
}

// GatewayBySerial retrieves a gateway by serial.
func (s *SQLiteStore) GatewayBySerial(ctx context.Context, serial string) (*Gateway, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, serial, name, address FROM gateways WHERE serial = ?", serial)
	return scanGateway(row)
}

// ListGateways retrieves all gateways.
func (s *SQLiteStore) ListGateways(ctx context.Context) ([]Gateway, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, serial, name, address FROM gateways ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying gateways: %w", err)
	}
	defer rows.Close()

	var gateways []Gateway
	for rows.Next() {
		g, err := scanGateway(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning gateway: %w", err)
		}
		gateways = append(gateways, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gateways: %w", err)
	}
	return gateways, nil
}

// CreatePeripheral inserts a peripheral and sets its id.
func (s *SQLiteStore) CreatePeripheral(ctx context.Context, p *Peripheral) error {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO peripherals (uuid, vendor, date, status, gateway_id) VALUES (?, ?, ?, ?, ?)",
		p.UUID,
		p.Vendor,
		p.Date.UTC().Format(time.RFC3339),
		string(p.Status),
		p.GatewayID,
	)
	if err != nil {
		return fmt.Errorf("inserting peripheral: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading peripheral id: %w", err)
	}
	p.ID = id
	return nil
}

// GetPeripheral retrieves a peripheral by id.
func (s *SQLiteStore) GetPeripheral(ctx context.Context, id int64) (*Peripheral, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, uuid, vendor, date, status, gateway_id FROM peripherals WHERE id = ?", id)
	return scanPeripheral(row)
}

// ListPeripherals retrieves all peripherals.
func (s *SQLiteStore) ListPeripherals(ctx context.Context) ([]Peripheral, error) {
	return s.queryPeripherals(ctx,
		"SELECT id, uuid, vendor, date, status, gateway_id FROM peripherals ORDER BY id")
}

// ListPeripheralsByGateway retrieves the peripherals attached to a gateway.
func (s *SQLiteStore) ListPeripheralsByGateway(ctx context.Context, gatewayID int64) ([]Peripheral, error) {
	return s.queryPeripherals(ctx,
		"SELECT id, uuid, vendor, date, status, gateway_id FROM peripherals WHERE gateway_id = ? ORDER BY id",
		gatewayID)
}

// CountPeripheralsByGateway counts the peripherals attached to a gateway.
func (s *SQLiteStore) CountPeripheralsByGateway(ctx context.Context, gatewayID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM peripherals WHERE gateway_id = ?", gatewayID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting peripherals: %w", err)
	}
	return count, nil
}

// DeletePeripheral removes a peripheral by id.
func (s *SQLiteStore) DeletePeripheral(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM peripherals WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting peripheral: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database answers queries.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) queryPeripherals(ctx context.Context, query string, args ...any) ([]Peripheral, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying peripherals: %w", err)
	}
	defer rows.Close()

	var peripherals []Peripheral
	for rows.Next() {
		p, err := scanPeripheral(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning peripheral: %w", err)
		}
		peripherals = append(peripherals, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating peripherals: %w", err)
	}
	return peripherals, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanGateway(scanner rowScanner) (*Gateway, error) {
	var g Gateway
	if err := scanner.Scan(&g.ID, &g.Serial, &g.Name, &g.Address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying gateway: %w", err)
	}
	return &g, nil
}

func scanPeripheral(scanner rowScanner) (*Peripheral, error) {
	var p Peripheral
	var date, status string
	if err := scanner.Scan(&p.ID, &p.UUID, &p.Vendor, &date, &status, &p.GatewayID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying peripheral: %w", err)
	}

	t, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return nil, fmt.Errorf("parsing date: %w", err)
	}
	p.Date = t
	p.Status = Status(status)
	return &p, nil
}
