package memory

import (
	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/ValentinKolb/idxdb/lib/host/codec"
)

// --------------------------------------------------------------------------
// Transaction (implements host.Transaction and host.UpgradeTransaction)
// --------------------------------------------------------------------------

// transaction executes its requests on a host.Runner. All state below except
// the immutable fields is only touched on the runner goroutine.
type transaction struct {
	conn   *connection
	mode   host.Mode
	scope  map[string]*storeData // nil for versionchange transactions
	names  []string
	runner *host.Runner
	undo   []func()
}

func newTransaction(conn *connection, scope map[string]*storeData, mode host.Mode) *transaction {
	tx := &transaction{
		conn:  conn,
		mode:  mode,
		scope: scope,
		names: sortedNames(scope),
	}
	conn.track()
	tx.runner = host.NewRunner(&txBackend{tx: tx}, func(err error) {
		conn.untrack()
		if err != nil {
			Logger.Debugf("%s transaction on %v aborted: %v", mode, tx.names, err)
		}
	})
	return tx
}

func (tx *transaction) codec() codec.Codec {
	return tx.conn.factory.codec
}

// onUndo registers a compensation that is run if the transaction aborts
func (tx *transaction) onUndo(fn func()) {
	tx.undo = append(tx.undo, fn)
}

func (tx *transaction) finished() bool {
	select {
	case <-tx.runner.Done():
		return true
	default:
		return false
	}
}

func (tx *transaction) Mode() host.Mode {
	return tx.mode
}

func (tx *transaction) Stores() []string {
	if tx.mode == host.ModeVersionChange {
		return tx.conn.db.storeNames()
	}
	return append([]string(nil), tx.names...)
}

func (tx *transaction) ObjectStore(name string) (host.ObjectStore, error) {
	if tx.finished() {
		return nil, host.NewError(host.NameInvalidState, "the transaction has finished")
	}
	var (
		st *storeData
		ok bool
	)
	if tx.mode == host.ModeVersionChange {
		st, ok = tx.conn.db.store(name)
	} else {
		st, ok = tx.scope[name]
	}
	if !ok {
		return nil, host.NewError(host.NameNotFound, "object store %q is not in the scope of the transaction", name)
	}
	return &objectStore{tx: tx, data: st}, nil
}

func (tx *transaction) Commit() error {
	return tx.runner.Commit()
}

func (tx *transaction) Abort() error {
	return tx.runner.Abort()
}

func (tx *transaction) Done() <-chan struct{} {
	return tx.runner.Done()
}

func (tx *transaction) Err() error {
	return tx.runner.Err()
}

func (tx *transaction) CreateObjectStore(name string, opts host.StoreOptions) (host.ObjectStore, error) {
	if !host.ValidKeyPath(opts.KeyPath) {
		return nil, host.NewError(host.NameSyntax, "%q is not a valid key path", opts.KeyPath)
	}
	v, err := tx.runner.Call(func() (any, error) {
		db := tx.conn.db
		db.mu.Lock()
		defer db.mu.Unlock()
		if _, exists := db.stores[name]; exists {
			return nil, host.NewError(host.NameConstraint, "object store %q already exists", name)
		}
		st := newStoreData(name, opts)
		db.stores[name] = st
		db.order = append(db.order, name)
		return &objectStore{tx: tx, data: st}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*objectStore), nil
}

func (tx *transaction) DeleteObjectStore(name string) error {
	_, err := tx.runner.Call(func() (any, error) {
		db := tx.conn.db
		db.mu.Lock()
		defer db.mu.Unlock()
		if _, exists := db.stores[name]; !exists {
			return nil, host.NewError(host.NameNotFound, "object store %q does not exist", name)
		}
		delete(db.stores, name)
		order := make([]string, 0, len(db.order))
		for _, n := range db.order {
			if n != name {
				order = append(order, n)
			}
		}
		db.order = order
		return nil, nil
	})
	return err
}

// --------------------------------------------------------------------------
// Runner backend
// --------------------------------------------------------------------------

// txBackend takes the store locks in name order, which keeps transactions
// with overlapping scopes from deadlocking.
type txBackend struct {
	tx     *transaction
	locked []*storeData
}

func (b *txBackend) Begin() error {
	if b.tx.mode == host.ModeVersionChange {
		return nil
	}
	for _, name := range b.tx.names {
		st := b.tx.scope[name]
		if b.tx.mode == host.ModeReadOnly {
			st.lock.RLock()
		} else {
			st.lock.Lock()
		}
		b.locked = append(b.locked, st)
	}
	return nil
}

func (b *txBackend) Commit() error {
	b.tx.undo = nil
	b.unlock()
	return nil
}

func (b *txBackend) Rollback() {
	for i := len(b.tx.undo) - 1; i >= 0; i-- {
		b.tx.undo[i]()
	}
	b.tx.undo = nil
	b.unlock()
}

func (b *txBackend) unlock() {
	for i := len(b.locked) - 1; i >= 0; i-- {
		if b.tx.mode == host.ModeReadOnly {
			b.locked[i].lock.RUnlock()
		} else {
			b.locked[i].lock.Unlock()
		}
	}
	b.locked = nil
}
