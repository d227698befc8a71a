package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/ValentinKolb/idxdb/lib/host/codec"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("host/memory")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures the in-memory facility
type Options struct {
	Codec codec.Codec // Encoding of stored records (nil = binary)
}

// DefaultOptions returns the default options
func DefaultOptions() *Options {
	return &Options{
		Codec: codec.NewBinaryCodec(),
	}
}

// --------------------------------------------------------------------------
// Factory
// --------------------------------------------------------------------------

// factoryImpl keeps every database in memory. Nothing survives the process.
type factoryImpl struct {
	codec     codec.Codec
	mu        sync.Mutex // serializes Open and DeleteDatabase
	databases *xsync.MapOf[string, *database]
	closed    atomic.Bool
}

// NewFactory creates a new in-memory facility with the specified options (optional)
func NewFactory(opts *Options) host.Factory {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Codec == nil {
		opts.Codec = codec.NewBinaryCodec()
	}
	return &factoryImpl{
		codec:     opts.Codec,
		databases: xsync.NewMapOf[string, *database](),
	}
}

func (f *factoryImpl) Open(ctx context.Context, name string, version uint64, upgrade host.UpgradeFunc) (host.Database, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.closed.Load() {
		return nil, host.NewError(host.NameInvalidState, "the factory is closed")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	db, exists := f.databases.Load(name)
	if !exists {
		db = newDatabase(name)
	}

	current := db.currentVersion()
	if version == 0 {
		version = max(current, 1)
	}
	if version < current {
		return nil, host.NewError(host.NameVersion,
			"the requested version (%d) is less than the existing version (%d)", version, current)
	}

	conn := newConnection(f, db)
	if version > current {
		if n := db.connectionCount(); n > 0 {
			return nil, host.NewError(host.NameBlocked,
				"cannot upgrade %q to version %d while %d connection(s) are open", name, version, n)
		}
		if err := f.upgrade(ctx, db, conn, current, version, upgrade); err != nil {
			return nil, err
		}
		Logger.Infof("upgraded database %q from version %d to %d", name, current, version)
	}

	f.databases.Store(name, db)
	db.attach(conn)
	Logger.Debugf("opened connection %s to %q at version %d", conn.id, name, version)
	return conn, nil
}

// upgrade runs fn inside a versionchange transaction. On failure every
// schema change, the version bump and all writes are rolled back.
func (f *factoryImpl) upgrade(ctx context.Context, db *database, conn *connection, oldVersion, newVersion uint64, fn host.UpgradeFunc) error {
	snapshot := db.snapshot()
	db.setVersion(newVersion)

	tx := newTransaction(conn, nil, host.ModeVersionChange)
	err := runUpgrade(fn, tx, oldVersion, newVersion)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = tx.Abort()
		<-tx.Done()
		db.restore(snapshot)
		Logger.Warningf("upgrade of %q to version %d aborted: %v", db.name, newVersion, err)
		return host.Wrap(host.NameAbort, err, "the upgrade transaction was aborted")
	}

	if err := tx.Commit(); err != nil {
		<-tx.Done()
		db.restore(snapshot)
		return host.Wrap(host.NameAbort, tx.Err(), "the upgrade transaction was aborted")
	}
	<-tx.Done()
	if err := tx.Err(); err != nil {
		db.restore(snapshot)
		return err
	}
	return nil
}

// runUpgrade calls fn and turns a panic into an error
func runUpgrade(fn host.UpgradeFunc, tx host.UpgradeTransaction, oldVersion, newVersion uint64) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = host.NewError(host.NameUnknown, "upgrade callback panicked: %v", p)
		}
	}()
	return fn(tx, oldVersion, newVersion)
}

func (f *factoryImpl) DeleteDatabase(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	db, exists := f.databases.Load(name)
	if !exists {
		return nil
	}
	if n := db.connectionCount(); n > 0 {
		return host.NewError(host.NameBlocked, "cannot delete %q while %d connection(s) are open", name, n)
	}
	f.databases.Delete(name)
	Logger.Infof("deleted database %q", name)
	return nil
}

func (f *factoryImpl) Databases(ctx context.Context) ([]host.DatabaseInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos := make([]host.DatabaseInfo, 0, f.databases.Size())
	f.databases.Range(func(name string, db *database) bool {
		infos = append(infos, host.DatabaseInfo{Name: name, Version: db.currentVersion()})
		return true
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (f *factoryImpl) Info() host.Info {
	var size int64
	f.databases.Range(func(_ string, db *database) bool {
		size += db.sizeBytes()
		return true
	})
	return host.Info{
		Implementation: host.ImplMemory,
		Persistent:     false,
		Databases:      f.databases.Size(),
		SizeBytes:      size,
		Metadata: map[string]string{
			"codec": f.codec.Name(),
		},
	}
}

func (f *factoryImpl) Close() error {
	f.closed.Store(true)
	return nil
}
