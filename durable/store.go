package durable

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"voltageems.io/core/errs"
	"voltageems.io/core/routing"
)

// Store wraps a *gorm.DB configured with the connection-pool tuning the
// teacher applies in db.PGInfo, and provides the handful of read/write
// operations the Instance Manager and reload path need on top of plain
// GORM CRUD.
type Store struct {
	db *gorm.DB
}

// Open connects to dsn and tunes the pool exactly as db.PGInfo does:
// 10 idle / 100 open connections, 1-hour max connection lifetime.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errs.Wrap("durable.Open", errs.ConnectionError, err, nil)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errs.Wrap("durable.Open", errs.ConnectionError, err, nil)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Store{db: db}, nil
}

// Migrate runs AutoMigrate over every durable model, safe to call on
// every startup per the teacher's db.PGMigrations convention.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&Channel{}, &MeasurementPoint{}, &ActionPoint{},
		&Product{}, &PropertyTemplate{}, &Instance{},
		&RoutingC2M{}, &RoutingM2C{}, &RoutingC2C{},
	)
}

func (s *Store) DB() *gorm.DB { return s.db }

// Channels returns every durable channel record with its point catalogs
// preloaded, the input the reload path diffs against runtime state.
func (s *Store) Channels() ([]Channel, error) {
	var channels []Channel
	err := s.db.Preload("MeasurementPoints").Preload("ActionPoints").Find(&channels).Error
	if err != nil {
		return nil, errs.Wrap("durable.Channels", errs.ConnectionError, err, nil)
	}
	return channels, nil
}

// LoadRoutingTable rebuilds an in-memory routing.Table from the three
// durable routing tables, the input to routing.Cache.Update on startup
// and on every reload.
func (s *Store) LoadRoutingTable() (*routing.Table, error) {
	table := routing.NewTable()

	var c2m []RoutingC2M
	if err := s.db.Find(&c2m).Error; err != nil {
		return nil, errs.Wrap("durable.LoadRoutingTable", errs.ConnectionError, err, nil)
	}
	for _, r := range c2m {
		table.C2M[r.SourceKey] = r.TargetKey
	}

	var m2c []RoutingM2C
	if err := s.db.Find(&m2c).Error; err != nil {
		return nil, errs.Wrap("durable.LoadRoutingTable", errs.ConnectionError, err, nil)
	}
	for _, r := range m2c {
		table.M2C[r.SourceKey] = r.TargetKey
	}

	var c2c []RoutingC2C
	if err := s.db.Find(&c2c).Error; err != nil {
		return nil, errs.Wrap("durable.LoadRoutingTable", errs.ConnectionError, err, nil)
	}
	for _, r := range c2c {
		table.C2C[r.SourceKey] = r.TargetKey
	}

	return table, nil
}

// RenameInstance implements §4.7's rename protocol step (a): update the
// durable record within a transaction. The RTDB name-index update is the
// caller's responsibility (instance package) — durable does not know
// about the RTDB.
func (s *Store) RenameInstance(instanceID uint, newName string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&Instance{}).Where("id = ?", instanceID).Update("name", newName).Error
	})
	if err != nil {
		return errs.Wrap("durable.RenameInstance", errs.ConnectionError, err, map[string]any{"instance_id": instanceID})
	}
	return nil
}

// CreateInstance inserts a new Instance row from a Product template.
func (s *Store) CreateInstance(name string, productID uint) (*Instance, error) {
	inst := &Instance{Name: name, ProductID: productID}
	if err := s.db.Create(inst).Error; err != nil {
		return nil, errs.Wrap("durable.CreateInstance", errs.ConnectionError, err, map[string]any{"name": name})
	}
	return inst, nil
}

// DeleteInstance removes the durable Instance record.
func (s *Store) DeleteInstance(instanceID uint) error {
	if err := s.db.Delete(&Instance{}, instanceID).Error; err != nil {
		return errs.Wrap("durable.DeleteInstance", errs.ConnectionError, err, map[string]any{"instance_id": instanceID})
	}
	return nil
}

// Product loads a product and its property templates by id.
func (s *Store) Product(productID uint) (*Product, error) {
	var p Product
	if err := s.db.Preload("Properties").First(&p, productID).Error; err != nil {
		return nil, errs.Wrap("durable.Product", errs.ConnectionError, err, map[string]any{"product_id": productID})
	}
	return &p, nil
}
