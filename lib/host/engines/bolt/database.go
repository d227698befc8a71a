package bolt

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/idxdb/lib/host"
)

// connection implements host.Database. Its schema cannot change while it is
// open, since upgrades are blocked by open connections.
type connection struct {
	factory *factoryImpl
	name    string
	schema  *schema

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
	active   atomic.Int64
}

func newConnection(f *factoryImpl, name string, s *schema) *connection {
	return &connection{factory: f, name: name, schema: s}
}

func (c *connection) Name() string {
	return c.name
}

func (c *connection) Version() uint64 {
	return c.schema.Version
}

func (c *connection) StoreNames() []string {
	return c.schema.storeNames()
}

func (c *connection) HasStore(name string) bool {
	return c.schema.store(name) != nil
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

	scope := make(map[string]*storeSchema, len(stores))
	for _, name := range stores {
		st := c.schema.store(name)
		if st == nil {
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
	c.factory.release(c.name)
	return nil
}

func sortedNames(scope map[string]*storeSchema) []string {
	names := make([]string, 0, len(scope))
	for name := range scope {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
