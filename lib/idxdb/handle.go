package idxdb

import (
	"context"

	"github.com/ValentinKolb/idxdb/lib/host"
)

// Store is an immutable handle that scopes operations of a DB to one object
// store. Handles are cheap to create and safe for concurrent use.
type Store struct {
	db   *DB
	name string
	mode host.Mode
}

// Store returns a handle scoped to the named store. The store is only
// checked when an operation runs; operations on a missing store fail with
// ErrNoSuchStore. Use LookupStore to check up front.
func (db *DB) Store(name string) *Store {
	return &Store{db: db, name: name}
}

// LookupStore returns a handle scoped to the named store, or ErrNoSuchStore
// if the open database has no such store.
func (db *DB) LookupStore(name string) (*Store, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.conn == nil {
		return nil, NewError(CodeUnknown, "the database handle is closed", nil, ErrClosed)
	}
	if !db.conn.HasStore(name) {
		return nil, noSuchStore(name, Details{"store": name})
	}
	return db.Store(name), nil
}

// HasStore reports whether the open database has the named store
func (db *DB) HasStore(name string) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn != nil && db.conn.HasStore(name)
}

// Name returns the name of the store
func (s *Store) Name() string {
	return s.name
}

// WithMode returns a copy of the handle that runs its operations in mode.
// The default is readonly for queries and readwrite for commands.
func (s *Store) WithMode(mode host.Mode) *Store {
	c := *s
	c.mode = mode
	return &c
}

func (s *Store) target() Target {
	return Target{Store: s.name, Mode: s.mode}
}

// Get see QueryAdapter.Get
func (s *Store) Get(ctx context.Context, query Query) (any, error) {
	return s.db.Get(ctx, query, s.target())
}

// Cursor see QueryAdapter.Cursor
func (s *Store) Cursor(ctx context.Context, handler Handler, index string) (any, error) {
	return s.db.Cursor(ctx, handler, index, s.target())
}

// Create see CommandAdapter.Create
func (s *Store) Create(ctx context.Context, records ...any) ([]any, error) {
	return s.db.Create(ctx, records, s.target())
}

// Update see CommandAdapter.Update
func (s *Store) Update(ctx context.Context, data any, key host.Key) (host.Key, error) {
	return s.db.Update(ctx, UpdateRequest{Data: data, Key: key}, s.target())
}

// Delete see CommandAdapter.Delete
func (s *Store) Delete(ctx context.Context, key host.Key) error {
	return s.db.Delete(ctx, key, s.target())
}
