package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier receives committed registry changes.
// Implementations must not block the caller for long and never fail the
// operation that produced the event.
type Notifier interface {
	Notify(ev Event)
}

// Notifiers fans an event out to several sinks in order.
type Notifiers []Notifier

// Notify implements Notifier.
func (n Notifiers) Notify(ev Event) {
	for _, sink := range n {
		if sink != nil {
			sink.Notify(ev)
		}
	}
}

// Service orchestrates validation, persistence and rendering for every
// registry operation. It holds no state between requests apart from the
// per-key locks that serialize check-and-write sequences.
//
// All public methods are safe for concurrent use.
type Service struct {
	store    Store
	links    Links
	logger   Logger
	notifier Notifier
	locks    *keyedMutex
	now      func() time.Time
	newUUID  func() string
}

// NewService creates a registry service backed by store.
func NewService(store Store, links Links) *Service {
	return &Service{
		store:    store,
		links:    links,
		logger:   noopLogger{},
		notifier: Notifiers(nil),
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
		newUUID:  uuid.NewString,
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetNotifier sets the sink for registry events.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Links returns the link builder used for representations.
func (s *Service) Links() Links {
	return s.links
}

// HealthCheck verifies the backing store is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.store.HealthCheck(ctx); err != nil {
		return s.storeErr("health check", err)
	}
	return nil
}

// ListGateways returns the list representation of every gateway.
// The result is never nil.
func (s *Service) ListGateways(ctx context.Context) ([]GatewayListItem, error) {
	gateways, err := s.store.ListGateways(ctx)
	if err != nil {
		return nil, s.storeErr("listing gateways", err)
	}
	peripherals, err := s.store.ListPeripherals(ctx)
	if err != nil {
		return nil, s.storeErr("listing peripherals", err)
	}

	byGateway := make(map[int64][]Peripheral, len(gateways))
	for _, p := range peripherals {
		byGateway[p.GatewayID] = append(byGateway[p.GatewayID], p)
	}

	items := make([]GatewayListItem, 0, len(gateways))
	for _, g := range gateways {
		items = append(items, s.links.GatewayListItem(g, byGateway[g.ID]))
	}
	return items, nil
}

// GetGateway returns the detail representation of a gateway.
// Returns ErrNotFound if the gateway does not exist.
func (s *Service) GetGateway(ctx context.Context, id int64) (*GatewayDetail, error) {
	g, err := s.store.GetGateway(ctx, id)
	if err != nil {
		return nil, s.storeErr("getting gateway", err)
	}
	peripherals, err := s.store.ListPeripheralsByGateway(ctx, id)
	if err != nil {
		return nil, s.storeErr("listing gateway peripherals", err)
	}
	detail := s.links.GatewayDetail(*g, peripherals)
	return &detail, nil
}

// GatewayPeripherals returns the list representation of the peripherals
// attached to a gateway. Returns ErrNotFound if the gateway does not exist.
func (s *Service) GatewayPeripherals(ctx context.Context, gatewayID int64) ([]PeripheralListItem, error) {
	if _, err := s.store.GetGateway(ctx, gatewayID); err != nil {
		return nil, s.storeErr("getting gateway", err)
	}
	peripherals, err := s.store.ListPeripheralsByGateway(ctx, gatewayID)
	if err != nil {
		return nil, s.storeErr("listing gateway peripherals", err)
	}
	return s.peripheralItems(peripherals), nil
}

// CreateGateway validates and stores a gateway, returning its detail
// representation. parsed carries field errors found while decoding the
// payload; they are reported together with validation errors.
func (s *Service) CreateGateway(ctx context.Context, in GatewayInput, parsed *ValidationError) (*GatewayDetail, error) {
	if in.Serial != nil {
		unlock := s.locks.Lock("serial:" + *in.Serial)
		defer unlock()
	}

	if err := s.validated(ValidateGateway(ctx, s.store, in), parsed); err != nil {
		return nil, err
	}

	g := &Gateway{
		Serial:  *in.Serial,
		Name:    *in.Name,
		Address: *in.Address,
	}
	if err := s.store.CreateGateway(ctx, g); err != nil {
		if errors.Is(err, ErrDuplicateSerial) {
			verr := &ValidationError{}
			verr.Add("serial", CodeDuplicateSerial)
			return nil, verr
		}
		return nil, s.storeErr("creating gateway", err)
	}

	s.logger.Info("gateway created", "id", g.ID, "serial", g.Serial)
	s.notifier.Notify(Event{Type: EventGatewayCreated, GatewayID: g.ID, At: s.now()})

	detail := s.links.GatewayDetail(*g, nil)
	return &detail, nil
}

// ListPeripherals returns the list representation of every peripheral.
// The result is never nil.
func (s *Service) ListPeripherals(ctx context.Context) ([]PeripheralListItem, error) {
	peripherals, err := s.store.ListPeripherals(ctx)
	if err != nil {
		return nil, s.storeErr("listing peripherals", err)
	}
	return s.peripheralItems(peripherals), nil
}

// GetPeripheral returns the detail representation of a peripheral.
// Returns ErrNotFound if the peripheral does not exist.
func (s *Service) GetPeripheral(ctx context.Context, id int64) (*PeripheralDetail, error) {
	p, err := s.store.GetPeripheral(ctx, id)
	if err != nil {
		return nil, s.storeErr("getting peripheral", err)
	}
	detail := s.links.PeripheralDetail(*p)
	return &detail, nil
}

// CreatePeripheral validates and stores a peripheral, generating its UUID
// and creation date. See CreateGateway for the meaning of parsed.
func (s *Service) CreatePeripheral(ctx context.Context, in PeripheralInput, parsed *ValidationError) (*PeripheralDetail, error) {
	if in.GatewayID != nil {
		unlock := s.locks.Lock("gateway:" + strconv.FormatInt(*in.GatewayID, 10))
		defer unlock()
	}

	if err := s.validated(ValidatePeripheral(ctx, s.store, in), parsed); err != nil {
		return nil, err
	}

	p := &Peripheral{
		UUID:      s.newUUID(),
		Vendor:    *in.Vendor,
		Date:      s.now().Truncate(time.Second),
		Status:    Status(*in.Status),
		GatewayID: *in.GatewayID,
	}
	if err := s.store.CreatePeripheral(ctx, p); err != nil {
		return nil, s.storeErr("creating peripheral", err)
	}

	s.logger.Info("peripheral created", "id", p.ID, "uuid", p.UUID, "gateway_id", p.GatewayID)
	s.notify(ctx, EventPeripheralCreated, p)

	detail := s.links.PeripheralDetail(*p)
	return &detail, nil
}

// DeletePeripheral removes a peripheral.
// Returns ErrNotFound if the peripheral does not exist.
func (s *Service) DeletePeripheral(ctx context.Context, id int64) error {
	p, err := s.store.GetPeripheral(ctx, id)
	if err != nil {
		return s.storeErr("getting peripheral", err)
	}

	unlock := s.locks.Lock("gateway:" + strconv.FormatInt(p.GatewayID, 10))
	defer unlock()

	if err := s.store.DeletePeripheral(ctx, id); err != nil {
		return s.storeErr("deleting peripheral", err)
	}

	s.logger.Info("peripheral deleted", "id", id, "gateway_id", p.GatewayID)
	s.notify(ctx, EventPeripheralDeleted, p)
	return nil
}

func (s *Service) peripheralItems(peripherals []Peripheral) []PeripheralListItem {
	items := make([]PeripheralListItem, 0, len(peripherals))
	for _, p := range peripherals {
		items = append(items, s.links.PeripheralListItem(p))
	}
	return items
}

// notify emits a peripheral event carrying the gateway's current load.
// Called with the gateway lock held, so the count is consistent with the write.
func (s *Service) notify(ctx context.Context, typ EventType, p *Peripheral) {
	count, err := s.store.CountPeripheralsByGateway(ctx, p.GatewayID)
	if err != nil {
		s.logger.Warn("counting peripherals for event", "gateway_id", p.GatewayID, "error", err)
	}
	s.notifier.Notify(Event{
		Type:         typ,
		GatewayID:    p.GatewayID,
		PeripheralID: p.ID,
		Peripherals:  count,
		At:           s.now(),
	})
}

// validated combines decode-time field errors with the validation result.
// A "required" code is dropped for fields the decoder already rejected.
func (s *Service) validated(validateErr error, parsed *ValidationError) error {
	var verr *ValidationError
	if validateErr != nil && !errors.As(validateErr, &verr) {
		return s.storeErr("validating", validateErr)
	}

	out := &ValidationError{}
	out.Merge(parsed)
	if verr != nil {
		for field, codes := range verr.Fields {
			for _, code := range codes {
				if code == CodeRequired && len(out.Fields[field]) > 0 {
					continue
				}
				out.Add(field, code)
			}
		}
	}
	return out.Err()
}

// storeErr passes ErrNotFound through and wraps everything else as
// ErrStoreUnavailable.
func (s *Service) storeErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	s.logger.Error("registry store failure", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
