// Package durable is the SQL-backed configuration store: channels,
// products, instances, and the three routing tables, the durable source
// of truth the RTDB caches from. Grounded on the teacher's db/postgres.go
// (GORM + gorm.io/driver/postgres, embedded gorm.Model, pool tuning via
// SetMaxIdleConns/SetMaxOpenConns/SetConnMaxLifetime).
package durable

import (
	"time"

	"gorm.io/gorm"
)

// Channel is the durable record of one field-device channel: its
// protocol, connection parameters, and poll/reconnect tuning. The
// MeasurementPoints and ActionPoints associations are the point catalog a
// Product's PropertyTemplates are instantiated against.
type Channel struct {
	gorm.Model
	Name         string `gorm:"uniqueIndex;size:128"`
	Description  string `gorm:"size:512"`
	Protocol     string `gorm:"size:32"` // "modbus_tcp", "modbus_rtu", "virtual"
	Address      string `gorm:"size:256"` // host:port; modbus_rtu is also dialed over TCP (serial gateway)
	PollInterval time.Duration
	Enabled      bool `gorm:"default:true"`

	// Connection tuning: changing these only forces a reconnect, never a
	// full channel recreate (§4.9's NonCritical class).
	ConnectTimeout time.Duration
	RetryCount     int
	KeepAlive      time.Duration

	MeasurementPoints []MeasurementPoint
	ActionPoints      []ActionPoint
}

// MeasurementPoint is one telemetry/signal point exposed by a channel.
type MeasurementPoint struct {
	gorm.Model
	ChannelID uint
	PointID   uint32
	Kind      string `gorm:"size:1"` // "T" or "S"
	Scale     float64
	Offset    float64
	Reverse   bool

	// Modbus-specific addressing; empty for the virtual adapter.
	SlaveID     byte
	Register    uint16
	Function    byte
	Format      string `gorm:"size:16"`
	ByteOrder   string `gorm:"size:8"`
	BitPosition *uint8
}

// ActionPoint is one control/adjustment point exposed by a channel.
type ActionPoint struct {
	gorm.Model
	ChannelID uint
	PointID   uint32
	Kind      string `gorm:"size:1"` // "C" or "A"
	Scale     float64
	Offset    float64
	Reverse   bool

	SlaveID     byte
	Register    uint16
	Function    byte
	Format      string `gorm:"size:16"`
	ByteOrder   string `gorm:"size:8"`
	BitPosition *uint8
}

// PropertyTemplate describes one named property a Product exposes to
// instances created from it; it binds a logical property name to a
// measurement or action point on the template's channel.
type PropertyTemplate struct {
	gorm.Model
	ProductID    uint
	PropertyName string `gorm:"size:128"`
	PointKind    string `gorm:"size:1"`
	PointID      uint32
}

// Product is a reusable instance template: a named set of
// PropertyTemplates an Instance is created from.
type Product struct {
	gorm.Model
	Name       string `gorm:"uniqueIndex;size:128"`
	Properties []PropertyTemplate
}

// Instance is one model-side object created from a Product, with its own
// measurement/action key roots in the RTDB (inst:{id}:M / inst:{id}:A).
type Instance struct {
	gorm.Model
	Name      string `gorm:"uniqueIndex;size:128"`
	ProductID uint
}

// RoutingC2M, RoutingM2C, RoutingC2C persist one entry each of the three
// routing tables the routing.Table in-memory snapshot is built from.
type RoutingC2M struct {
	gorm.Model
	SourceKey string `gorm:"uniqueIndex;size:64"`
	TargetKey string `gorm:"size:64"`
}

type RoutingM2C struct {
	gorm.Model
	SourceKey string `gorm:"uniqueIndex;size:64"`
	TargetKey string `gorm:"size:64"`
}

type RoutingC2C struct {
	gorm.Model
	SourceKey string `gorm:"uniqueIndex;size:64"`
	TargetKey string `gorm:"size:64"`
}
