package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// gatewayModel maps Gateway onto the gateways table.
type gatewayModel struct {
	ID      int64  `gorm:"primaryKey;autoIncrement"`
	Serial  string `gorm:"size:100;not null;uniqueIndex:idx_gateways_serial"`
	Name    string `gorm:"size:100;not null"`
	Address string `gorm:"size:15;not null"`
}

func (gatewayModel) TableName() string { return "gateways" }

// peripheralModel maps Peripheral onto the peripherals table.
type peripheralModel struct {
	ID        int64        `gorm:"primaryKey;autoIncrement"`
	UUID      string       `gorm:"column:uuid;size:36;not null;uniqueIndex:idx_peripherals_uuid"`
	Vendor    string       `gorm:"size:50;not null"`
	Date      time.Time    `gorm:"not null"`
	Status    string       `gorm:"size:16;not null"`
	GatewayID int64        `gorm:"not null;index:idx_peripherals_gateway_id"`
	Gateway   gatewayModel `gorm:"constraint:OnDelete:RESTRICT"`
}

func (peripheralModel) TableName() string { return "peripherals" }

// GormStore implements Store on top of GORM so the registry can run on
// PostgreSQL or MySQL as well as SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates the registry tables.
func (s *GormStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&gatewayModel{}, &peripheralModel{}); err != nil {
		return fmt.Errorf("migrating registry tables: %w", err)
	}
	return nil
}

// CreateGateway inserts a gateway and sets its id.
func (s *GormStore) CreateGateway(ctx context.Context, g *Gateway) error {
	m := gatewayModel{Serial: g.Serial, Name: g.Name, Address: g.Address}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueConstraintError(err) {
			return ErrDuplicateSerial
		}
		return fmt.Errorf("inserting gateway: %w", err)
	}
	g.ID = m.ID
	return nil
}

// GetGateway retrieves a gateway by id.
func (s *GormStore) GetGateway(ctx context.Context, id int64) (*Gateway, error) {
	var m gatewayModel
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, notFound("querying gateway", err)
	}
	return m.toGateway(), nil
}

// GatewayBySerial retrieves a gateway by serial.
func (s *GormStore) GatewayBySerial(ctx context.Context, serial string) (*Gateway, error) {
	var m gatewayModel
	if err := s.db.WithContext(ctx).Where("serial = ?", serial).First(&m).Error; err != nil {
		return nil, notFound("querying gateway", err)
	}
	return m.toGateway(), nil
}

// ListGateways retrieves all gateways.
func (s *GormStore) ListGateways(ctx context.Context) ([]Gateway, error) {
	var models []gatewayModel
	if err := s.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("querying gateways: %w", err)
	}
	out := make([]Gateway, 0, len(models))
	for _, m := range models {
		out = append(out, *m.toGateway())
	}
	return out, nil
}

// CreatePeripheral inserts a peripheral and sets its id.
func (s *GormStore) CreatePeripheral(ctx context.Context, p *Peripheral) error {
	m := peripheralModel{
		UUID:      p.UUID,
		Vendor:    p.Vendor,
		Date:      p.Date.UTC(),
		Status:    string(p.Status),
		GatewayID: p.GatewayID,
	}
	if err := s.db.WithContext(ctx).Omit("Gateway").Create(&m).Error; err != nil {
		return fmt.Errorf("inserting peripheral: %w", err)
	}
	p.ID = m.ID
	return nil
}

// GetPeripheral retrieves a peripheral by id.
func (s *GormStore) GetPeripheral(ctx context.Context, id int64) (*Peripheral, error) {
	var m peripheralModel
	if err := s.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, notFound("querying peripheral", err)
	}
	return m.toPeripheral(), nil
}

// ListPeripherals retrieves all peripherals.
func (s *GormStore) ListPeripherals(ctx context.Context) ([]Peripheral, error) {
	return s.findPeripherals(s.db.WithContext(ctx))
}

// ListPeripheralsByGateway retrieves the peripherals attached to a gateway.
func (s *GormStore) ListPeripheralsByGateway(ctx context.Context, gatewayID int64) ([]Peripheral, error) {
	return s.findPeripherals(s.db.WithContext(ctx).Where("gateway_id = ?", gatewayID))
}

// CountPeripheralsByGateway counts the peripherals attached to a gateway.
func (s *GormStore) CountPeripheralsByGateway(ctx context.Context, gatewayID int64) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&peripheralModel{}).
		Where("gateway_id = ?", gatewayID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting peripherals: %w", err)
	}
	return int(n), nil
}

// DeletePeripheral removes a peripheral by id.
func (s *GormStore) DeletePeripheral(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&peripheralModel{}, id)
	if res.Error != nil {
		return fmt.Errorf("deleting peripheral: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// HealthCheck pings the underlying connection pool.
func (s *GormStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

func (s *GormStore) findPeripherals(tx *gorm.DB) ([]Peripheral, error) {
	var models []peripheralModel
	if err := tx.Order("id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("querying peripherals: %w", err)
	}
	out := make([]Peripheral, 0, len(models))
	for _, m := range models {
		out = append(out, *m.toPeripheral())
	}
	return out, nil
}

func (m gatewayModel) toGateway() *Gateway {
	return &Gateway{ID: m.ID, Serial: m.Serial, Name: m.Name, Address: m.Address}
}

func (m peripheralModel) toPeripheral() *Peripheral {
	return &Peripheral{
		ID:        m.ID,
		UUID:      m.UUID,
		Vendor:    m.Vendor,
		Date:      m.Date.UTC(),
		Status:    Status(m.Status),
		GatewayID: m.GatewayID,
	}
}

func notFound(op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
