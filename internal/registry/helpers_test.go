package registry

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testSchema mirrors migrations/*_registry_schema.up.sql.
const testSchema = `
	CREATE TABLE gateways (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		serial TEXT NOT NULL,
		name TEXT NOT NULL,
		address TEXT NOT NULL
	) STRICT;
	CREATE UNIQUE INDEX idx_gateways_serial ON gateways(serial);

	CREATE TABLE peripherals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL,
		vendor TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		gateway_id INTEGER NOT NULL REFERENCES gateways(id) ON DELETE RESTRICT
	) STRICT;
	CREATE INDEX idx_peripherals_gateway_id ON peripherals(gateway_id);
`

// setupTestDB creates an in-memory SQLite database with the registry schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// A second pooled connection would see a different in-memory database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(testSchema); err != nil {
		db.Close()
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// setupTestService creates a service over a fresh SQLite store.
func setupTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewSQLiteStore(setupTestDB(t)), NewLinks(""))
}

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }

func gatewayInput(serial, name, address string) GatewayInput {
	return GatewayInput{Serial: strPtr(serial), Name: strPtr(name), Address: strPtr(address)}
}

func peripheralInput(vendor, status string, gatewayID int64) PeripheralInput {
	return PeripheralInput{Vendor: strPtr(vendor), Status: strPtr(status), GatewayID: int64Ptr(gatewayID)}
}

// mockStore is an in-memory Store with injectable failures.
type mockStore struct {
	mu          sync.Mutex
	gateways    map[int64]Gateway
	peripherals map[int64]Peripheral
	nextID      int64

	// failAll makes every call return this error.
	failAll error
	// createPeripheralErr fails only CreatePeripheral.
	createPeripheralErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		gateways:    make(map[int64]Gateway),
		peripherals: make(map[int64]Peripheral),
	}
}

func (m *mockStore) CreateGateway(_ context.Context, g *Gateway) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	for _, existing := range m.gateways {
		if existing.Serial == g.Serial {
			return ErrDuplicateSerial
		}
	}
	m.nextID++
	g.ID = m.nextID
	m.gateways[g.ID] = *g
	return nil
}

func (m *mockStore) GetGateway(_ context.Context, id int64) (*Gateway, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	g, ok := m.gateways[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &g, nil
}

func (m *mockStore) GatewayBySerial(_ context.Context, serial string) (*Gateway, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	for _, g := range m.gateways {
		if g.Serial == serial {
			return &g, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockStore) ListGateways(_ context.Context) ([]Gateway, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	out := make([]Gateway, 0, len(m.gateways))
	for _, g := range m.gateways {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStore) CreatePeripheral(_ context.Context, p *Peripheral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	if m.createPeripheralErr != nil {
		return m.createPeripheralErr
	}
	m.nextID++
	p.ID = m.nextID
	m.peripherals[p.ID] = *p
	return nil
}

func (m *mockStore) GetPeripheral(_ context.Context, id int64) (*Peripheral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	p, ok := m.peripherals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *mockStore) ListPeripherals(ctx context.Context) ([]Peripheral, error) {
	return m.filterPeripherals(func(Peripheral) bool { return true })
}

func (m *mockStore) ListPeripheralsByGateway(_ context.Context, gatewayID int64) ([]Peripheral, error) {
	return m.filterPeripherals(func(p Peripheral) bool { return p.GatewayID == gatewayID })
}

func (m *mockStore) CountPeripheralsByGateway(ctx context.Context, gatewayID int64) (int, error) {
	list, err := m.ListPeripheralsByGateway(ctx, gatewayID)
	return len(list), err
}

func (m *mockStore) DeletePeripheral(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	if _, ok := m.peripherals[id]; !ok {
		return ErrNotFound
	}
	delete(m.peripherals, id)
	return nil
}

func (m *mockStore) HealthCheck(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failAll
}

func (m *mockStore) filterPeripherals(keep func(Peripheral) bool) ([]Peripheral, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	var out []Peripheral
	for _, p := range m.peripherals {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockStore) setFailAll(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = err
}

// recordingNotifier captures emitted events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingNotifier) Notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// validationErr extracts a *ValidationError or fails the test.
func validationErr(t *testing.T, err error) *ValidationError {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	return verr
}

var errBackendDown = errors.New("backend down")
