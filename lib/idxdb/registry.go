package idxdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("idxdb")

// Info describes an open database
type Info struct {
	Name    string   `json:"name"`
	Version uint64   `json:"version"`
	Stores  []string `json:"stores"`
}

// --------------------------------------------------------------------------
// Store Registry
// --------------------------------------------------------------------------

// DB is a handle on an open database. All operations share one host
// connection; CreateStore replaces it.
type DB struct {
	factory host.Factory
	name    string
	opts    Config

	// mu is held shared by every operation and exclusively by CreateStore
	// and Close, so no operation runs while the connection is swapped.
	mu       sync.RWMutex
	conn     host.Database
	declared []string
	query    *QueryAdapter
	command  *CommandAdapter
}

// Init opens the database described by cfg on factory. When the requested
// version is newer than the stored one, every declared store that does not
// exist yet is created during the upgrade.
func Init(ctx context.Context, factory host.Factory, cfg Config) (*DB, error) {
	if cfg.DBName == "" {
		cfg.DBName = DefaultConfig().DBName
	}
	details := Details{"name": cfg.DBName, "version": cfg.Version}
	if factory == nil {
		return nil, NewError(CodeUnknown, "no host factory given", details, nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewError(CodeUnknown, "invalid configuration", details, err)
	}

	conn, err := factory.Open(ctx, cfg.DBName, cfg.Version, createMissing(cfg.Stores))
	if err != nil {
		Logger.Errorf("opening %q at version %d failed: %v", cfg.DBName, cfg.Version, err)
		return nil, openError(err, details)
	}

	db := &DB{
		factory: factory,
		name:    cfg.DBName,
		opts:    cfg,
	}
	for _, def := range cfg.Stores {
		db.declared = append(db.declared, def.Name)
	}
	db.attach(conn)
	Logger.Infof("opened %q at version %d with stores %v", db.name, conn.Version(), conn.StoreNames())
	return db, nil
}

// createMissing returns the upgrade callback that creates every store of
// defs that is not part of the schema yet
func createMissing(defs []StoreDef) host.UpgradeFunc {
	return func(tx host.UpgradeTransaction, oldVersion, newVersion uint64) error {
		existing := make(map[string]bool)
		for _, name := range tx.Stores() {
			existing[name] = true
		}
		for _, def := range defs {
			if existing[def.Name] {
				continue
			}
			if err := def.create(tx); err != nil {
				return fmt.Errorf("creating store %q: %w", def.Name, err)
			}
			Logger.Infof("created store %q (version %d -> %d)", def.Name, oldVersion, newVersion)
		}
		return nil
	}
}

// openError classifies a failed open. Everything but a version mismatch is
// reported as a generic error carrying the host error.
func openError(err error, details Details) *Error {
	if Classify(err) == CodeVersionErr {
		return FromHost(err, details)
	}
	return NewError(CodeUnknown, "the database could not be opened", details, err)
}

// attach makes conn the live connection. The caller holds mu exclusively
// (or has not published db yet).
func (db *DB) attach(conn host.Database) {
	db.conn = conn
	db.query, db.command = nil, nil
	if db.opts.PersistentQuery {
		db.query = NewQueryAdapter(conn)
	}
	if db.opts.PersistentCommand {
		db.command = NewCommandAdapter(conn)
	}
}

// Name returns the database name the handle was opened with
func (db *DB) Name() string {
	return db.name
}

// Info returns name, version and stores of the database. Declared stores
// come first in declaration order.
func (db *DB) Info() Info {
	db.mu.RLock()
	defer db.mu.RUnlock()
	info := Info{Name: db.name, Stores: []string{}}
	if db.conn == nil {
		return info
	}
	info.Version = db.conn.Version()

	listed := make(map[string]bool)
	for _, name := range db.declared {
		if db.conn.HasStore(name) && !listed[name] {
			info.Stores = append(info.Stores, name)
			listed[name] = true
		}
	}
	for _, name := range db.conn.StoreNames() {
		if !listed[name] {
			info.Stores = append(info.Stores, name)
			listed[name] = true
		}
	}
	return info
}

// CreateStore adds a store to the open database. It waits for the running
// operations of this handle, closes the connection and reopens it at the
// next version, creating the store in the upgrade. Without options the store
// gets auto-increment keys.
//
// Other connections to the same database block the upgrade; the handle is
// reopened at its previous version in that case.
func (db *DB) CreateStore(ctx context.Context, name string, opts ...StoreOption) error {
	if len(opts) == 0 {
		opts = []StoreOption{AutoIncrement()}
	}
	def := Define(name, opts...)
	details := Details{"store": name, "options": def.StoreOptions}
	if err := def.Validate(); err != nil {
		return NewError(CodeUnknown, "invalid store definition", details, err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn == nil {
		return NewError(CodeUnknown, "the database handle is closed", details, ErrClosed)
	}
	if db.conn.HasStore(name) {
		return NewError(CodeUnknown, fmt.Sprintf("object store %q already exists", name), details, ErrStoreExists)
	}

	version := db.conn.Version() + 1
	details["version"] = version
	if err := db.conn.Close(); err != nil {
		return NewError(CodeUnknown, "the connection could not be closed", details, err)
	}

	conn, err := db.factory.Open(ctx, db.name, version, createMissing([]StoreDef{def}))
	if err != nil {
		Logger.Warningf("creating store %q in %q failed: %v", name, db.name, err)
		if reopened, reopenErr := db.factory.Open(context.WithoutCancel(ctx), db.name, 0, nil); reopenErr == nil {
			db.attach(reopened)
		} else {
			Logger.Errorf("reopening %q failed: %v", db.name, reopenErr)
			db.conn, db.query, db.command = nil, nil, nil
		}
		return NewError(Classify(err), "the object store could not be created", details, err)
	}

	db.attach(conn)
	db.declared = append(db.declared, name)
	return nil
}

// Close closes the connection after the running operations finished.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn, db.query, db.command = nil, nil, nil
	Logger.Debugf("closed %q", db.name)
	return err
}

// --------------------------------------------------------------------------
// Operations (docu see QueryAdapter and CommandAdapter)
// --------------------------------------------------------------------------

// queryAdapter returns the persistent query adapter or a transient one.
// The caller holds mu shared.
func (db *DB) queryAdapter() (*QueryAdapter, error) {
	if db.conn == nil {
		return nil, NewError(CodeUnknown, "the database handle is closed", nil, ErrClosed)
	}
	if db.query != nil {
		return db.query, nil
	}
	return NewQueryAdapter(db.conn), nil
}

// commandAdapter returns the persistent command adapter or a transient one.
// The caller holds mu shared.
func (db *DB) commandAdapter() (*CommandAdapter, error) {
	if db.conn == nil {
		return nil, NewError(CodeUnknown, "the database handle is closed", nil, ErrClosed)
	}
	if db.command != nil {
		return db.command, nil
	}
	return NewCommandAdapter(db.conn), nil
}

func (db *DB) Get(ctx context.Context, query Query, target Target) (any, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	q, err := db.queryAdapter()
	if err != nil {
		return nil, err
	}
	return q.Get(ctx, query, target)
}

func (db *DB) Cursor(ctx context.Context, handler Handler, index string, target Target) (any, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	q, err := db.queryAdapter()
	if err != nil {
		return nil, err
	}
	return q.Cursor(ctx, handler, index, target)
}

func (db *DB) Create(ctx context.Context, records []any, target Target) ([]any, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, err := db.commandAdapter()
	if err != nil {
		return nil, err
	}
	return c.Create(ctx, records, target)
}

func (db *DB) Update(ctx context.Context, req UpdateRequest, target Target) (host.Key, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, err := db.commandAdapter()
	if err != nil {
		return nil, err
	}
	return c.Update(ctx, req, target)
}

func (db *DB) Delete(ctx context.Context, key host.Key, target Target) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, err := db.commandAdapter()
	if err != nil {
		return err
	}
	return c.Delete(ctx, key, target)
}
