package lockmgr

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ValentinKolb/idxdb/lib/idxdb"
	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("lockmgr")

// DefaultStore is the name of the lease store used by the CLI
const DefaultStore = "locks"

// StoreDef returns the definition of a lease store with the given name.
// Add it to the idxdb.Config of the database or create it with Ensure.
func StoreDef(name string) idxdb.StoreDef {
	return idxdb.Define(name, leaseStoreOptions()...)
}

// Ensure creates the lease store if the database does not have it yet.
func Ensure(ctx context.Context, db *idxdb.DB, name string) error {
	err := db.CreateStore(ctx, name, leaseStoreOptions()...)
	if errors.Is(err, idxdb.ErrStoreExists) {
		return nil
	}
	return err
}

func leaseStoreOptions() []idxdb.StoreOption {
	return []idxdb.StoreOption{idxdb.KeyPath("resource"), idxdb.WithIndex("owner", "owner")}
}

type scope struct {
	database string
	store    string
}

// takeovers serializes the operations that delete leases. Managers on the
// same database name and store share one mutex, also across DB handles.
var takeovers = xsync.NewMapOf[scope, *sync.Mutex]()

type lockMgrImpl struct {
	store *idxdb.Store
	mu    *sync.Mutex
	now   func() time.Time
}

// NewLockManager creates a lock manager that keeps its leases in the named
// store of db.
func NewLockManager(db *idxdb.DB, store string) ILockManager {
	mu, _ := takeovers.LoadOrCompute(scope{database: db.Name(), store: store}, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	return &lockMgrImpl{
		store: db.Store(store),
		mu:    mu,
		now:   time.Now,
	}
}

func (lm *lockMgrImpl) AcquireLock(ctx context.Context, key string, timeout time.Duration) (bool, string, error) {
	lease := lm.newLease(key, timeout)

	// add-if-absent, fails with KEY_EXISTS while another lease is stored
	ok, err := lm.create(ctx, lease)
	if ok || err != nil {
		return ok, ownerOf(ok, lease), err
	}

	// the stored lease may have expired
	lm.mu.Lock()
	defer lm.mu.Unlock()

	current, err := lm.load(ctx, key)
	if err != nil {
		return false, "", err
	}
	if current != nil && !current.Expired(lm.now()) {
		return false, "", nil
	}
	if current != nil {
		Logger.Debugf("taking over expired lease of %q held by %s", key, current.Owner)
		if err := lm.store.Delete(ctx, key); err != nil {
			return false, "", err
		}
	}
	lease = lm.newLease(key, timeout)
	ok, err = lm.create(ctx, lease)
	return ok, ownerOf(ok, lease), err
}

func (lm *lockMgrImpl) ReleaseLock(ctx context.Context, key string, ownerID string) (bool, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	current, err := lm.load(ctx, key)
	if err != nil || current == nil {
		return err == nil, err
	}
	if current.Owner != ownerID {
		return false, nil
	}
	if err := lm.store.Delete(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

func (lm *lockMgrImpl) Holder(ctx context.Context, key string) (*Lease, error) {
	current, err := lm.load(ctx, key)
	if err != nil || current == nil || current.Expired(lm.now()) {
		return nil, err
	}
	return current, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (lm *lockMgrImpl) newLease(key string, timeout time.Duration) *Lease {
	lease := &Lease{Resource: key, Owner: uuid.NewString()}
	if timeout > 0 {
		lease.ExpiresAt = lm.now().Add(timeout).UnixMilli()
	}
	return lease
}

// create stores lease. It reports false without error if the key is taken.
func (lm *lockMgrImpl) create(ctx context.Context, lease *Lease) (bool, error) {
	_, err := lm.store.Create(ctx, lease)
	if idxdb.CodeOf(err) == idxdb.CodeKeyExists {
		return false, nil
	}
	return err == nil, err
}

// load reads the stored lease of key, expired or not
func (lm *lockMgrImpl) load(ctx context.Context, key string) (*Lease, error) {
	record, err := lm.store.Get(ctx, idxdb.ByKey(key))
	if err != nil || record == nil {
		return nil, err
	}
	lease := &Lease{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  lease,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(record); err != nil {
		return nil, err
	}
	return lease, nil
}

func ownerOf(ok bool, lease *Lease) string {
	if !ok {
		return ""
	}
	return lease.Owner
}
