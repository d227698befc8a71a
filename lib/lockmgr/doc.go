// Package lockmgr implements lease locks on top of an idxdb object store.
// It provides a simple way to coordinate access to shared resources between
// the goroutines and commands that use the same database.
//
// The lockmgr only ever stores in the provided object store and has no other
// internal state. Therefore it is safe to be created multiple times on the
// same store. It is even possible to create a new lockmgr for every acquire
// and or release operation. As long as the same store is used every time, all
// locks will work as expected.
//
// Core Functionality:
//   - Lock acquisition with ownership verification
//   - Lease expiration through configurable timeouts
//   - Safe release operations that verify ownership
//
// Implementation Approach:
//
//	Locks are records in a store whose key path is "resource":
//
//	- Lock Acquisition: Inserts a lease with the idxdb Create command. The
//	  insert fails with KEY_EXISTS while another lease for the resource is
//	  stored, so only one requester can create it. The lease carries a
//	  random owner ID (uuid) that identifies the holder.
//
//	- Timeouts: A lease can carry an expiry. An acquirer that finds an
//	  expired lease deletes it and retries the insert once.
//
//	- Safe Release: ReleaseLock first verifies that the requester is the
//	  owner of the lease by comparing owner IDs before deleting it.
//
// Thread Safety:
//
//	Inserts rely on the transactions of the store. Operations that delete a
//	lease are serialized per database and store inside the process.
//
// Usage Example:
//
//	cfg.Stores = append(cfg.Stores, lockmgr.StoreDef("locks"))
//	db, _ := idxdb.Init(ctx, factory, cfg)
//	locks := lockmgr.NewLockManager(db, "locks")
//
//	acquired, ownerID, err := locks.AcquireLock(ctx, "resource:123", 30*time.Second)
//	if err != nil {
//	    // Handle error
//	}
//	if acquired {
//	    // Use the resource safely
//	    released, err := locks.ReleaseLock(ctx, "resource:123", ownerID)
//	}
//
// Performance Impact:
//
//	- AcquireLock: One Create, plus one Get, Delete and Create if the
//	  resource is locked
//	- ReleaseLock: One Get followed by a conditional Delete
package lockmgr
