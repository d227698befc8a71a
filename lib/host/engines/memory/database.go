package memory

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Shared database state
// --------------------------------------------------------------------------

// database is the state shared by every connection to one named database
type database struct {
	name string

	mu      sync.RWMutex
	version uint64
	stores  map[string]*storeData
	order   []string
	conns   map[string]*connection
}

type schemaSnapshot struct {
	version uint64
	stores  map[string]*storeData
	order   []string
}

func newDatabase(name string) *database {
	return &database{
		name:   name,
		stores: make(map[string]*storeData),
		conns:  make(map[string]*connection),
	}
}

func (db *database) currentVersion() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.version
}

// sizeBytes sums the record sizes of all object stores
func (db *database) sizeBytes() int64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var total int64
	for _, st := range db.stores {
		total += st.size.Load()
	}
	return total
}

func (db *database) setVersion(v uint64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.version = v
}

func (db *database) snapshot() schemaSnapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()
	stores := make(map[string]*storeData, len(db.stores))
	for name, st := range db.stores {
		stores[name] = st
	}
	return schemaSnapshot{
		version: db.version,
		stores:  stores,
		order:   append([]string(nil), db.order...),
	}
}

func (db *database) restore(s schemaSnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.version = s.version
	db.stores = s.stores
	db.order = s.order
}

func (db *database) store(name string) (*storeData, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	st, ok := db.stores[name]
	return st, ok
}

func (db *database) storeNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]string(nil), db.order...)
}

func (db *database) connectionCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.conns)
}

func (db *database) attach(c *connection) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.conns[c.id] = c
}

func (db *database) detach(c *connection) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.conns, c.id)
}

// --------------------------------------------------------------------------
// Connection (implements host.Database)
// --------------------------------------------------------------------------

type connection struct {
	id      string
	factory *factoryImpl
	db      *database

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
	active   atomic.Int64
}

func newConnection(f *factoryImpl, db *database) *connection {
	return &connection{
		id:      uuid.NewString(),
		factory: f,
		db:      db,
	}
}

func (c *connection) Name() string {
	return c.db.name
}

func (c *connection) Version() uint64 {
	return c.db.currentVersion()
}

func (c *connection) StoreNames() []string {
	return c.db.storeNames()
}

func (c *connection) HasStore(name string) bool {
	_, ok := c.db.store(name)
	return ok
}

func (c *connection) Transaction(stores []string, mode host.Mode) (host.Transaction, error) {
	switch mode {
	case host.ModeReadOnly, host.ModeReadWrite:
	case host.ModeVersionChange:
		return nil, host.NewError(host.NameInvalidAccess, "versionchange transactions are only created by Open")
	default:
		return nil, host.NewError(host.NameInvalidAccess, "invalid transaction mode %q", mode)
	}
	if len(stores) == 0 {
		return nil, host.NewError(host.NameInvalidAccess, "the transaction scope is empty")
	}

	scope := make(map[string]*storeData, len(stores))
	for _, name := range stores {
		st, ok := c.db.store(name)
		if !ok {
			return nil, host.NewError(host.NameNotFound, "object store %q does not exist", name)
		}
		scope[name] = st
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return nil, host.NewError(host.NameInvalidState, "the database connection is closing")
	}
	return newTransaction(c, scope, mode), nil
}

// track registers a transaction with the connection. Callers hold c.mu or
// own the connection exclusively.
func (c *connection) track() {
	c.inflight.Add(1)
	c.active.Add(1)
}

func (c *connection) untrack() {
	c.active.Add(-1)
	c.inflight.Done()
}

func (c *connection) ActiveTransactions() int {
	return int(c.active.Load())
}

func (c *connection) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	c.inflight.Wait()
	c.db.detach(c)
	Logger.Debugf("closed connection %s to %q", c.id, c.db.name)
	return nil
}

// sortedNames returns the keys of scope in ascending order
func sortedNames(scope map[string]*storeData) []string {
	names := make([]string, 0, len(scope))
	for name := range scope {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
