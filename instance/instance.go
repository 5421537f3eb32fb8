// Package instance is the Instance Manager (spec §4.7): CRUD for
// model-side instances created from a durable Product template, the
// rename protocol, and property sync to the RTDB. Grounded on the
// repository-style CRUD methods in db/repository/interfaces.go and the
// durable-then-cache write ordering used throughout the teacher's
// repositories (durable write first, RTDB/cache refresh second, cache
// treated as reconcilable rather than authoritative).
package instance

import (
	"context"
	"fmt"

	"voltageems.io/core/durable"
	"voltageems.io/core/errs"
	"voltageems.io/core/logging"
	"voltageems.io/core/point"
	"voltageems.io/core/rtdb"
)

// DurableStore is the subset of *durable.Store the Manager needs,
// narrowed to an interface so tests can exercise the rename/create/delete
// protocol against a fake without a real Postgres connection.
type DurableStore interface {
	Product(productID uint) (*durable.Product, error)
	CreateInstance(name string, productID uint) (*durable.Instance, error)
	RenameInstance(instanceID uint, newName string) error
	DeleteInstance(instanceID uint) error
}

// Manager owns instance lifecycle. It talks to the durable store for the
// source of truth and to the RTDB for the inst:{id}:M/A key roots and the
// inst:name:index lookup.
type Manager struct {
	store       rtdb.Rtdb
	ks          rtdb.KeySpace
	db          DurableStore
	skipCleanup bool
}

// New builds a Manager. Whether Delete removes a deleted instance's orphaned
// RTDB keys is controlled by SKIP_REDIS_CLEANUP=true|1|yes|on (spec §6's
// environment toggle), read once at construction time.
func New(store rtdb.Rtdb, ks rtdb.KeySpace, db DurableStore) *Manager {
	return &Manager{store: store, ks: ks, db: db, skipCleanup: logging.GetEnvBool("SKIP_REDIS_CLEANUP", false)}
}

// Create makes a new instance from productID's template: a durable
// Instance row, then an inst:name:index entry, then seeded
// measurement/action hashes for every PropertyTemplate on the product.
func (m *Manager) Create(ctx context.Context, name string, productID uint) (*durable.Instance, error) {
	product, err := m.db.Product(productID)
	if err != nil {
		return nil, err
	}

	inst, err := m.db.CreateInstance(name, productID)
	if err != nil {
		return nil, err
	}

	if err := m.store.HSet(ctx, m.ks.InstanceNameIndex(), name, fmt.Sprint(inst.ID)); err != nil {
		logging.Logger.WithError(err).WithField("instance", name).Warn("instance created but name index update failed; will reconcile on reload")
	}

	for _, prop := range product.Properties {
		kind := point.Kind(prop.PointKind)
		field := fmt.Sprint(prop.PointID)
		var key string
		if kind == point.Telemetry || kind == point.Signal {
			key = m.ks.InstanceMeasurement(uint32(inst.ID))
		} else {
			key = m.ks.InstanceAction(uint32(inst.ID))
		}
		if err := m.store.HSet(ctx, key, field, "0"); err != nil {
			logging.Logger.WithError(err).WithField("instance", name).WithField("property", prop.PropertyName).Warn("property seed failed")
		}
	}

	return inst, nil
}

// Rename updates the durable record in a transaction, then updates
// inst:name:index, removing the old name and adding the new one. No
// per-instance inst:{id}:name key is written or updated. A failure in
// the name-index step is logged as a warning, not rolled back — durable
// state is the source of truth and reconciliation happens on the next
// reload.
func (m *Manager) Rename(ctx context.Context, instanceID uint, oldName, newName string) error {
	if err := m.db.RenameInstance(instanceID, newName); err != nil {
		return err
	}

	if err := m.store.HDel(ctx, m.ks.InstanceNameIndex(), oldName); err != nil {
		logging.Logger.WithError(err).WithField("instance_id", instanceID).Warn("rename: name index removal failed, will reconcile on reload")
	}
	if err := m.store.HSet(ctx, m.ks.InstanceNameIndex(), newName, fmt.Sprint(instanceID)); err != nil {
		logging.Logger.WithError(err).WithField("instance_id", instanceID).Warn("rename: name index insertion failed, will reconcile on reload")
	}
	return nil
}

// Delete removes the durable Instance record and every inst:{id}:* RTDB
// key (measurement hash, action hash, and name index entry). Orphan-key
// cleanup is skipped when SKIP_REDIS_CLEANUP is set, leaving the durable
// delete as the only effect.
func (m *Manager) Delete(ctx context.Context, instanceID uint, name string) error {
	if err := m.db.DeleteInstance(instanceID); err != nil {
		return err
	}

	if m.skipCleanup {
		return nil
	}

	if err := m.store.Del(ctx, m.ks.InstanceMeasurement(uint32(instanceID))); err != nil {
		logging.Logger.WithError(err).WithField("instance_id", instanceID).Warn("delete: measurement hash cleanup failed")
	}
	if err := m.store.Del(ctx, m.ks.InstanceAction(uint32(instanceID))); err != nil {
		logging.Logger.WithError(err).WithField("instance_id", instanceID).Warn("delete: action hash cleanup failed")
	}
	if err := m.store.HDel(ctx, m.ks.InstanceNameIndex(), name); err != nil {
		logging.Logger.WithError(err).WithField("instance_id", instanceID).Warn("delete: name index cleanup failed")
	}
	return nil
}

// Lookup resolves an instance name to its id via inst:name:index.
func (m *Manager) Lookup(ctx context.Context, name string) (uint32, error) {
	raw, ok, err := m.store.HGet(ctx, m.ks.InstanceNameIndex(), name)
	if err != nil {
		return 0, errs.Wrap("instance.Lookup", errs.ConnectionError, err, nil)
	}
	if !ok {
		return 0, errs.New("instance.Lookup", errs.ValidationError, map[string]any{"name": name, "reason": "not found"})
	}
	var id uint32
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
		return 0, errs.Wrap("instance.Lookup", errs.ValidationError, err, map[string]any{"raw": raw})
	}
	return id, nil
}
