package lockmgr

import (
	"context"
	"time"
)

// ILockManager defines the interface for a lock provider.
type ILockManager interface {
	// AcquireLock acquires the lock for the given key with an optional timeout
	// (0 = the lease never expires). Returns whether the lock was acquired, the
	// owner ID needed to release it, and an error if any.
	AcquireLock(ctx context.Context, key string, timeout time.Duration) (ok bool, ownerID string, err error)

	// ReleaseLock releases the lock for the given key.
	// Returns whether the lock was released, and an error if any.
	// The method also returns true if the lock did not exist.
	ReleaseLock(ctx context.Context, key string, ownerID string) (ok bool, err error)

	// Holder returns the current lease of key, or nil if the key is not
	// locked. Expired leases are reported as nil.
	Holder(ctx context.Context, key string) (*Lease, error)
}

// Lease is the record stored for a held lock
type Lease struct {
	Resource  string `json:"resource"`
	Owner     string `json:"owner"`
	ExpiresAt int64  `json:"expires_at"` // unix milliseconds, 0 = never
}

// Expired reports whether the lease has run out at now
func (l *Lease) Expired(now time.Time) bool {
	return l.ExpiresAt > 0 && now.UnixMilli() >= l.ExpiresAt
}
