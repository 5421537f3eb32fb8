// Package routing implements the three-way Channel↔Model↔Channel mapping
// table as an immutable-after-publish snapshot: readers get a lock-free
// pointer load, writers replace the whole table atomically on reload.
// This mirrors the atomic-swap hot-path fields in the teacher's
// network.LoadBalancer, generalized from a single counter/flag to a whole
// published struct.
package routing

import "sync/atomic"

// Table is one immutable routing snapshot: three maps keyed by the source
// token ("{cid}:{kind}:{pid}" or "{iid}:A:{pid}"), each mapping to its
// destination token. There is no partial-update API — a Table is replaced
// wholesale, never mutated after it is passed to Cache.Update.
type Table struct {
	C2M map[string]string
	M2C map[string]string
	C2C map[string]string
}

// NewTable returns an empty, immediately-usable routing table.
func NewTable() *Table {
	return &Table{
		C2M: make(map[string]string),
		M2C: make(map[string]string),
		C2C: make(map[string]string),
	}
}

func (t *Table) LookupC2M(key string) (string, bool) { v, ok := t.C2M[key]; return v, ok }
func (t *Table) LookupM2C(key string) (string, bool) { v, ok := t.M2C[key]; return v, ok }
func (t *Table) LookupC2C(key string) (string, bool) { v, ok := t.C2C[key]; return v, ok }

// Cache holds the currently-published Table behind an atomic pointer so
// every write-path lookup is a lock-free load; replacement (on reload) is
// a single atomic store of a brand new Table, avoiding any torn read.
type Cache struct {
	current atomic.Pointer[Table]
}

// NewCache returns a Cache published with an empty table.
func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(NewTable())
	return c
}

// Snapshot returns the currently-published table. The returned pointer is
// safe to hold and query after a concurrent Update — callers never see a
// torn read, only a possibly-stale-by-one-reload table.
func (c *Cache) Snapshot() *Table {
	return c.current.Load()
}

// Update atomically replaces the entire routing table. This is the
// hot-reload primitive: the whole table is treated as an atom, there is
// no field-by-field merge.
func (c *Cache) Update(table *Table) {
	if table == nil {
		table = NewTable()
	}
	c.current.Store(table)
}
