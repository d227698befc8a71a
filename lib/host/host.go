package host

import "context"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMemory  Implementation = "memory"
	ImplBolt    Implementation = "bolt"
	ImplBrowser Implementation = "browser"
)

// Mode is the access mode of a transaction.
type Mode string

const (
	// ModeReadOnly allows only read requests.
	ModeReadOnly Mode = "readonly"
	// ModeReadWrite allows read and write requests.
	ModeReadWrite Mode = "readwrite"
	// ModeVersionChange is only used by the upgrade transaction started by Factory.Open.
	ModeVersionChange Mode = "versionchange"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeReadOnly || m == ModeReadWrite || m == ModeVersionChange
}

// StoreOptions configures an object store at creation time.
type StoreOptions struct {
	KeyPath       string `json:"key_path,omitempty" toml:"key_path" yaml:"key_path,omitempty"`
	AutoIncrement bool   `json:"auto_increment,omitempty" toml:"auto_increment" yaml:"auto_increment,omitempty"`
}

// IndexOptions configures a secondary index at creation time.
type IndexOptions struct {
	Unique     bool `json:"unique,omitempty" toml:"unique" yaml:"unique,omitempty"`
	MultiEntry bool `json:"multi_entry,omitempty" toml:"multi_entry" yaml:"multi_entry,omitempty"`
}

// Info describes a factory instance.
type Info struct {
	Implementation Implementation `json:"implementation"`
	Persistent     bool           `json:"persistent"`
	Databases      int            `json:"databases"`
	SizeBytes      int64          `json:"size_bytes"`
	Metadata       interface{}    `json:"metadata"`
}

// DatabaseInfo names a database and its stored version.
type DatabaseInfo struct {
	Name    string `json:"name"`
	Version uint64 `json:"version"`
}

// UpgradeFunc is invoked exactly once by Factory.Open when the requested
// version is newer than the stored one. Returning an error aborts the
// upgrade and makes Open fail.
type UpgradeFunc func(tx UpgradeTransaction, oldVersion, newVersion uint64) error

// --------------------------------------------------------------------------
// Facility Interfaces
// --------------------------------------------------------------------------

// Factory is the entry point of a host object-storage facility. It is the
// explicit replacement of the ambient storage-open object a browser exposes.
type Factory interface {
	// Open opens the named database at version. A version of 0 opens the
	// current version, or version 1 if the database does not exist yet.
	// Requesting a version lower than the stored one fails with a VersionError.
	// Requesting a higher one runs upgrade inside a versionchange transaction;
	// this fails with a BlockedError while other connections to the database
	// are open.
	Open(ctx context.Context, name string, version uint64, upgrade UpgradeFunc) (Database, error)

	// DeleteDatabase removes the named database. It has no effect if the
	// database does not exist and fails with a BlockedError while connections
	// to it are open.
	DeleteDatabase(ctx context.Context, name string) error

	// Databases lists all databases sorted by name.
	Databases(ctx context.Context) ([]DatabaseInfo, error)

	// Info returns information about the facility.
	Info() Info

	// Close releases the facility. Open connections are not closed.
	Close() error
}

// Database is an open connection to a database.
type Database interface {
	Name() string
	Version() uint64
	// StoreNames returns the object store names in creation order.
	StoreNames() []string
	// HasStore reports whether the named object store exists.
	HasStore(name string) bool
	// Transaction starts a transaction over the given stores. ModeVersionChange
	// is rejected; upgrade transactions are only created by Factory.Open.
	Transaction(stores []string, mode Mode) (Transaction, error)
	// ActiveTransactions returns the number of transactions that have not
	// finished yet.
	ActiveTransactions() int
	// Close prevents new transactions and blocks until every in-flight
	// transaction has committed or aborted.
	Close() error
}

// Transaction is a single-use unit of work bound to a set of stores and a mode.
//
// Requests are executed in submission order. A request that fails does not
// abort the transaction by itself; the owner decides between Commit and
// Abort. Every transaction must end with exactly one of them, otherwise the
// stores it locked stay locked.
type Transaction interface {
	Mode() Mode
	Stores() []string
	ObjectStore(name string) (ObjectStore, error)
	// Commit commits once all submitted requests have been executed. It does
	// not block; use Done to wait for the outcome.
	Commit() error
	// Abort rolls back every write of the transaction and rejects requests
	// that have not been executed yet with an AbortError.
	Abort() error
	// Done is closed when the transaction has committed or aborted.
	Done() <-chan struct{}
	// Err returns nil after a successful commit, and the abort cause otherwise.
	// It must only be called after Done is closed.
	Err() error
}

// UpgradeTransaction is the versionchange transaction handed to an UpgradeFunc.
type UpgradeTransaction interface {
	Transaction
	CreateObjectStore(name string, opts StoreOptions) (ObjectStore, error)
	DeleteObjectStore(name string) error
}

// ObjectStore is a named partition of records, scoped to one transaction.
// Write requests on a readonly transaction are rejected with a ReadOnlyError.
type ObjectStore interface {
	Name() string
	KeyPath() string
	AutoIncrement() bool
	IndexNames() []string
	Index(name string) (Index, error)
	// CreateIndex is only allowed inside an upgrade transaction.
	CreateIndex(name, keyPath string, opts IndexOptions) (Index, error)

	// Add inserts value. key must be nil for stores with a key path.
	// Resolves with the record key; fails with a ConstraintError wrapping
	// ErrKeyExists if the key is taken.
	Add(value any, key Key) *Request
	// Put inserts or replaces value. Resolves with the record key.
	Put(value any, key Key) *Request
	// Get resolves with the record, or nil if there is none.
	Get(key Key) *Request
	// GetAll resolves with all records ([]any) in ascending key order.
	GetAll() *Request
	// Delete removes the record if it exists and resolves with nil.
	Delete(key Key) *Request
	// Count resolves with the number of records (int).
	Count() *Request
	// Clear removes all records.
	Clear() *Request
	// OpenCursor resolves with a Cursor on the first record, or nil.
	OpenCursor() *Request
}

// Index is a secondary index of an object store, scoped to one transaction.
type Index interface {
	Name() string
	KeyPath() string
	Unique() bool
	MultiEntry() bool
	// Get resolves with the first record whose index key equals key, or nil.
	Get(key Key) *Request
	// GetAll resolves with all records whose index key equals key ([]any).
	GetAll(key Key) *Request
	// Count resolves with the number of index entries (int).
	Count() *Request
	// OpenCursor resolves with a Cursor on the first entry in index order, or nil.
	OpenCursor() *Request
}

// Cursor is a forward-only position in an object store or index.
type Cursor interface {
	// Key is the index key for index cursors and the primary key otherwise.
	Key() Key
	PrimaryKey() Key
	Value() any
	// Continue resolves with the cursor advanced to the next record, or nil
	// when the end is reached.
	Continue() *Request
}
