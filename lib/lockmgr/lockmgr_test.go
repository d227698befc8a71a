package lockmgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/idxdb/lib/host/engines/memory"
	"github.com/ValentinKolb/idxdb/lib/idxdb"
)

func newTestManager(t *testing.T) (*idxdb.DB, ILockManager) {
	t.Helper()
	factory := memory.NewFactory(nil)
	cfg := idxdb.DefaultConfig()
	cfg.Version = 1
	cfg.Stores = []idxdb.StoreDef{StoreDef(DefaultStore)}
	db, err := idxdb.Init(context.Background(), factory, cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		_ = factory.Close()
	})
	return db, NewLockManager(db, DefaultStore)
}

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	_, locks := newTestManager(t)

	ok, owner, err := locks.AcquireLock(ctx, "res", 0)
	if err != nil || !ok || owner == "" {
		t.Fatalf("Expected to acquire the lock, got %v %q %v", ok, owner, err)
	}

	ok, other, err := locks.AcquireLock(ctx, "res", 0)
	if err != nil || ok || other != "" {
		t.Errorf("Expected the second acquire to fail, got %v %q %v", ok, other, err)
	}

	holder, err := locks.Holder(ctx, "res")
	if err != nil || holder == nil || holder.Owner != owner {
		t.Errorf("Expected %s to hold the lock, got %+v (%v)", owner, holder, err)
	}

	if ok, err := locks.ReleaseLock(ctx, "res", "someone-else"); err != nil || ok {
		t.Errorf("Expected a release by another owner to fail, got %v %v", ok, err)
	}
	if ok, err := locks.ReleaseLock(ctx, "res", owner); err != nil || !ok {
		t.Errorf("Expected the release to succeed, got %v %v", ok, err)
	}
	if ok, err := locks.ReleaseLock(ctx, "res", owner); err != nil || !ok {
		t.Errorf("Expected releasing a free lock to succeed, got %v %v", ok, err)
	}
	if holder, _ := locks.Holder(ctx, "res"); holder != nil {
		t.Errorf("Expected no holder, got %+v", holder)
	}

	if ok, _, err := locks.AcquireLock(ctx, "res", 0); err != nil || !ok {
		t.Errorf("Expected to acquire the released lock, got %v %v", ok, err)
	}
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestManager(t)

	now := time.Now()
	impl := NewLockManager(db, DefaultStore).(*lockMgrImpl)
	impl.now = func() time.Time { return now }

	ok, first, err := impl.AcquireLock(ctx, "res", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected to acquire the lock, got %v %v", ok, err)
	}
	if ok, _, _ := impl.AcquireLock(ctx, "res", time.Minute); ok {
		t.Errorf("Expected the lease to be held before it expires")
	}

	now = now.Add(2 * time.Minute)
	if holder, _ := impl.Holder(ctx, "res"); holder != nil {
		t.Errorf("Expected an expired lease to have no holder, got %+v", holder)
	}
	ok, second, err := impl.AcquireLock(ctx, "res", 0)
	if err != nil || !ok || second == first {
		t.Fatalf("Expected to take over the expired lease, got %v %q %v", ok, second, err)
	}
	if ok, _ := impl.ReleaseLock(ctx, "res", first); ok {
		t.Errorf("Expected the previous owner to lose the lease")
	}
	if ok, _ := impl.ReleaseLock(ctx, "res", second); !ok {
		t.Errorf("Expected the new owner to release the lease")
	}
}

func TestConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestManager(t)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// every worker uses its own manager
			ok, owner, err := NewLockManager(db, DefaultStore).AcquireLock(ctx, "shared", 0)
			if err != nil {
				t.Errorf("AcquireLock failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				winners = append(winners, owner)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Errorf("Expected exactly one winner, got %d", len(winners))
	}
}

func TestTakeoverScope(t *testing.T) {
	db, _ := newTestManager(t)

	before := takeovers.Size()
	first := NewLockManager(db, DefaultStore).(*lockMgrImpl)
	for i := 0; i < 10; i++ {
		again := NewLockManager(db, DefaultStore).(*lockMgrImpl)
		if again.mu != first.mu {
			t.Fatalf("Expected managers on the same store to share a mutex")
		}
	}
	if other := NewLockManager(db, "other").(*lockMgrImpl); other.mu == first.mu {
		t.Errorf("Expected managers on different stores to use different mutexes")
	}
	if grown := takeovers.Size() - before; grown > 1 {
		t.Errorf("Expected at most one new takeover entry, got %d", grown)
	}

	// a second handle to the same database shares the mutex
	second, err := idxdb.Init(context.Background(), memory.NewFactory(nil), idxdb.DefaultConfig())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer second.Close()
	if second.Name() != db.Name() {
		t.Fatalf("Expected both handles to use database %q", db.Name())
	}
	if NewLockManager(second, DefaultStore).(*lockMgrImpl).mu != first.mu {
		t.Errorf("Expected handles of the same database to share a mutex")
	}
}

func TestEnsure(t *testing.T) {
	ctx := context.Background()
	factory := memory.NewFactory(nil)
	defer factory.Close()

	db, err := idxdb.Init(ctx, factory, idxdb.DefaultConfig())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer db.Close()

	if err := Ensure(ctx, db, "leases"); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if err := Ensure(ctx, db, "leases"); err != nil {
		t.Errorf("Ensure on an existing store failed: %v", err)
	}
	if ok, _, err := NewLockManager(db, "leases").AcquireLock(ctx, "res", 0); err != nil || !ok {
		t.Errorf("Expected to acquire a lock in the new store, got %v %v", ok, err)
	}
}

func TestMissingStore(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestManager(t)

	_, _, err := NewLockManager(db, "nope").AcquireLock(ctx, "res", 0)
	if err == nil {
		t.Errorf("Expected an error for a missing store")
	}
}
