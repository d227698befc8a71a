package bolt

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/ValentinKolb/idxdb/lib/host/codec"
	"github.com/lni/dragonboat/v4/logger"
	bolt "go.etcd.io/bbolt"
)

var Logger = logger.GetLogger("host/bolt")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures the bolt facility
type Options struct {
	Path    string        // Path of the bolt file (created if missing)
	Codec   codec.Codec   // Encoding of stored records (nil = binary)
	Timeout time.Duration // How long to wait for the file lock (0 = forever)
	NoSync  bool          // Skip fsync on commit, only for tests and bulk loads
}

// DefaultOptions returns the default options for the file at path
func DefaultOptions(path string) *Options {
	return &Options{
		Path:    path,
		Codec:   codec.NewBinaryCodec(),
		Timeout: time.Second,
	}
}

// --------------------------------------------------------------------------
// Factory
// --------------------------------------------------------------------------

// factoryImpl stores every database of the facility in one bolt file.
type factoryImpl struct {
	db    *bolt.DB
	codec codec.Codec

	mu    sync.Mutex     // serializes Open and DeleteDatabase
	conns map[string]int // open connections per database
}

// NewFactory opens the bolt file configured in opts
func NewFactory(opts *Options) (host.Factory, error) {
	if opts == nil || opts.Path == "" {
		return nil, fmt.Errorf("bolt: a file path is required")
	}
	if opts.Codec == nil {
		opts.Codec = codec.NewBinaryCodec()
	}
	db, err := bolt.Open(opts.Path, 0600, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	db.NoSync = opts.NoSync
	Logger.Debugf("opened %s", opts.Path)
	return &factoryImpl{
		db:    db,
		codec: opts.Codec,
		conns: make(map[string]int),
	}, nil
}

func (f *factoryImpl) Open(ctx context.Context, name string, version uint64, upgrade host.UpgradeFunc) (host.Database, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var current *schema
	err := f.db.View(func(tx *bolt.Tx) error {
		var err error
		current, err = readSchema(tx, name)
		return err
	})
	if err != nil {
		return nil, host.Wrap(host.NameUnknown, err, "reading the schema of %q failed", name)
	}

	if version == 0 {
		version = max(current.Version, 1)
	}
	if version < current.Version {
		return nil, host.NewError(host.NameVersion,
			"the requested version (%d) is less than the existing version (%d)", version, current.Version)
	}

	if version > current.Version {
		if n := f.conns[name]; n > 0 {
			return nil, host.NewError(host.NameBlocked,
				"cannot upgrade %q to version %d while %d connection(s) are open", name, version, n)
		}
		upgraded, err := f.upgrade(ctx, name, current, version, upgrade)
		if err != nil {
			return nil, err
		}
		Logger.Infof("upgraded database %q from version %d to %d", name, current.Version, version)
		current = upgraded
	}

	f.conns[name]++
	return newConnection(f, name, current), nil
}

// upgrade runs fn inside a versionchange transaction and returns the new
// schema. Nothing is persisted unless fn succeeds.
func (f *factoryImpl) upgrade(ctx context.Context, name string, current *schema, newVersion uint64, fn host.UpgradeFunc) (*schema, error) {
	working := current.clone()
	working.Version = newVersion

	conn := newConnection(f, name, working)
	tx := newTransaction(conn, nil, host.ModeVersionChange)

	err := runUpgrade(fn, tx, current.Version, newVersion)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = tx.Abort()
		<-tx.Done()
		Logger.Warningf("upgrade of %q to version %d aborted: %v", name, newVersion, err)
		return nil, host.Wrap(host.NameAbort, err, "the upgrade transaction was aborted")
	}

	// the upgrade must persist the new version even if fn issued no request
	if _, err := tx.runner.Call(func() (any, error) { return nil, nil }); err != nil {
		<-tx.Done()
		return nil, host.Wrap(host.NameAbort, err, "the upgrade transaction was aborted")
	}
	if err := tx.Commit(); err != nil {
		<-tx.Done()
		return nil, host.Wrap(host.NameAbort, tx.Err(), "the upgrade transaction was aborted")
	}
	<-tx.Done()
	if err := tx.Err(); err != nil {
		return nil, err
	}
	return working, nil
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

// release is called by a connection once it is closed
func (f *factoryImpl) release(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conns[name]--; f.conns[name] <= 0 {
		delete(f.conns, name)
	}
}

func (f *factoryImpl) DeleteDatabase(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if n := f.conns[name]; n > 0 {
		return host.NewError(host.NameBlocked, "cannot delete %q while %d connection(s) are open", name, n)
	}
	err := f.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(rootBucket)
		if root == nil || root.Bucket([]byte(name)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(name))
	})
	if err != nil {
		return host.Wrap(host.NameUnknown, err, "deleting %q failed", name)
	}
	Logger.Infof("deleted database %q", name)
	return nil
}

func (f *factoryImpl) Databases(ctx context.Context) ([]host.DatabaseInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var infos []host.DatabaseInfo
	err := f.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(rootBucket)
		if root == nil {
			return nil
		}
		return root.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil // not a bucket
			}
			s, err := readSchema(tx, string(k))
			if err != nil {
				return err
			}
			infos = append(infos, host.DatabaseInfo{Name: string(k), Version: s.Version})
			return nil
		})
	})
	if err != nil {
		return nil, host.Wrap(host.NameUnknown, err, "listing databases failed")
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (f *factoryImpl) Info() host.Info {
	info := host.Info{
		Implementation: host.ImplBolt,
		Persistent:     true,
		Metadata: map[string]string{
			"path":  f.db.Path(),
			"codec": f.codec.Name(),
		},
	}
	_ = f.db.View(func(tx *bolt.Tx) error {
		info.SizeBytes = tx.Size()
		if root := tx.Bucket(rootBucket); root != nil {
			_ = root.ForEach(func(_, v []byte) error {
				if v == nil {
					info.Databases++
				}
				return nil
			})
		}
		return nil
	})
	return info
}

func (f *factoryImpl) Close() error {
	Logger.Debugf("closing %s", f.db.Path())
	return f.db.Close()
}
