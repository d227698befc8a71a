package bolt

import (
	"fmt"

	"github.com/ValentinKolb/idxdb/lib/host"
	bolt "go.etcd.io/bbolt"
)

// --------------------------------------------------------------------------
// Transaction (implements host.Transaction and host.UpgradeTransaction)
// --------------------------------------------------------------------------

// transaction maps a host transaction onto one bolt transaction that lives
// on the runner goroutine. readonly transactions use a bolt read
// transaction, all others the single bolt writer.
type transaction struct {
	conn   *connection
	mode   host.Mode
	scope  map[string]*storeSchema // nil for versionchange transactions
	names  []string
	runner *host.Runner
	btx    *bolt.Tx
}

func newTransaction(conn *connection, scope map[string]*storeSchema, mode host.Mode) *transaction {
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
		return tx.conn.schema.storeNames()
	}
	return append([]string(nil), tx.names...)
}

func (tx *transaction) ObjectStore(name string) (host.ObjectStore, error) {
	if tx.finished() {
		return nil, host.NewError(host.NameInvalidState, "the transaction has finished")
	}
	var st *storeSchema
	if tx.mode == host.ModeVersionChange {
		st = tx.conn.schema.store(name)
	} else {
		st = tx.scope[name]
	}
	if st == nil {
		return nil, host.NewError(host.NameNotFound, "object store %q is not in the scope of the transaction", name)
	}
	return &objectStore{tx: tx, schema: st}, nil
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
		s := tx.conn.schema
		if s.store(name) != nil {
			return nil, host.NewError(host.NameConstraint, "object store %q already exists", name)
		}
		dbBucket, err := tx.databaseBucket()
		if err != nil {
			return nil, err
		}
		if _, err := dbBucket.CreateBucket(recordBucketName(name)); err != nil {
			return nil, host.Wrap(host.NameUnknown, err, "creating object store %q failed", name)
		}
		st := &storeSchema{Name: name, StoreOptions: opts}
		s.Stores = append(s.Stores, st)
		return &objectStore{tx: tx, schema: st}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*objectStore), nil
}

func (tx *transaction) DeleteObjectStore(name string) error {
	_, err := tx.runner.Call(func() (any, error) {
		s := tx.conn.schema
		st := s.store(name)
		if st == nil {
			return nil, host.NewError(host.NameNotFound, "object store %q does not exist", name)
		}
		dbBucket, err := tx.databaseBucket()
		if err != nil {
			return nil, err
		}
		if err := dbBucket.DeleteBucket(recordBucketName(name)); err != nil {
			return nil, host.Wrap(host.NameUnknown, err, "deleting object store %q failed", name)
		}
		for _, idx := range st.Indexes {
			if err := dbBucket.DeleteBucket(indexBucketName(name, idx.Name)); err != nil {
				return nil, host.Wrap(host.NameUnknown, err, "deleting index %q failed", idx.Name)
			}
		}
		stores := make([]*storeSchema, 0, len(s.Stores))
		for _, other := range s.Stores {
			if other != st {
				stores = append(stores, other)
			}
		}
		s.Stores = stores
		return nil, nil
	})
	return err
}

// --------------------------------------------------------------------------
// Bucket access (runner goroutine only)
// --------------------------------------------------------------------------

func (tx *transaction) databaseBucket() (*bolt.Bucket, error) {
	b, err := databaseBucket(tx.btx, tx.conn.name, false)
	if err != nil {
		return nil, host.Wrap(host.NameUnknown, err, "opening database %q failed", tx.conn.name)
	}
	if b == nil {
		return nil, host.NewError(host.NameNotFound, "database %q does not exist", tx.conn.name)
	}
	return b, nil
}

func (tx *transaction) recordBucket(st *storeSchema) (*bolt.Bucket, error) {
	dbBucket, err := tx.databaseBucket()
	if err != nil {
		return nil, err
	}
	b := dbBucket.Bucket(recordBucketName(st.Name))
	if b == nil {
		return nil, host.NewError(host.NameNotFound, "object store %q does not exist", st.Name)
	}
	return b, nil
}

func (tx *transaction) indexBucket(st *storeSchema, idx *indexSchema) (*bolt.Bucket, error) {
	dbBucket, err := tx.databaseBucket()
	if err != nil {
		return nil, err
	}
	b := dbBucket.Bucket(indexBucketName(st.Name, idx.Name))
	if b == nil {
		return nil, host.NewError(host.NameNotFound, "index %q does not exist", idx.Name)
	}
	return b, nil
}

// --------------------------------------------------------------------------
// Runner backend
// --------------------------------------------------------------------------

type txBackend struct {
	tx *transaction
}

func (b *txBackend) Begin() error {
	btx, err := b.tx.conn.factory.db.Begin(b.tx.mode != host.ModeReadOnly)
	if err != nil {
		return fmt.Errorf("beginning bolt transaction: %w", err)
	}
	if b.tx.mode == host.ModeVersionChange {
		if _, err := databaseBucket(btx, b.tx.conn.name, true); err != nil {
			_ = btx.Rollback()
			return err
		}
	}
	b.tx.btx = btx
	return nil
}

func (b *txBackend) Commit() error {
	btx := b.tx.btx
	if !btx.Writable() {
		return btx.Rollback()
	}
	if b.tx.mode == host.ModeVersionChange {
		if err := writeSchema(btx, b.tx.conn.name, b.tx.conn.schema); err != nil {
			_ = btx.Rollback()
			return err
		}
	}
	return btx.Commit()
}

func (b *txBackend) Rollback() {
	_ = b.tx.btx.Rollback()
}
