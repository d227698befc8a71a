package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/idxdb/cmd/util"
	"github.com/ValentinKolb/idxdb/lib/idxdb"
	"github.com/ValentinKolb/idxdb/lib/lockmgr"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	acquireTimeout uint64
	lockStore      string

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:   "lock",
		Short: "Perform lock operations",
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [key]",
		Short: "Acquire a lock",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	// releaseCmd represents the release command
	releaseCmd = &cobra.Command{
		Use:   "release [key] [ownerID]",
		Short: "Release a previously acquired lock",
		Long:  "Release a lock using the key and owner ID. The owner ID is the uuid returned by the acquire command.",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}
)

func init() {
	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(releaseCmd)

	LockCommands.PersistentFlags().StringVar(&lockStore, "store", lockmgr.DefaultStore, util.WrapString("Store that holds the leases (created if missing)"))

	// Add flags specific to acquire
	acquireCmd.Flags().Uint64Var(&acquireTimeout, "lease", 30, "Lease duration in seconds (0 for no expiry)")
}

// withLockManager opens the database, makes sure the lease store exists and
// runs fn with a lock manager on it
func withLockManager(fn func(ctx context.Context, locks lockmgr.ILockManager) error) error {
	return util.WithDB(func(ctx context.Context, db *idxdb.DB) error {
		if err := lockmgr.Ensure(ctx, db, lockStore); err != nil {
			return err
		}
		return fn(ctx, lockmgr.NewLockManager(db, lockStore))
	})
}

// runAcquire handles the acquire lock command
func runAcquire(_ *cobra.Command, args []string) error {
	key := args[0]

	return withLockManager(func(ctx context.Context, locks lockmgr.ILockManager) error {
		acquired, ownerID, err := locks.AcquireLock(ctx, key, time.Duration(acquireTimeout)*time.Second)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %v", err)
		}

		if !acquired {
			fmt.Printf("acquired=false\n")
			return nil
		}

		fmt.Printf("acquired=true, ownerId=%s\n", ownerID)
		return nil
	})
}

// runRelease handles the release lock command
func runRelease(_ *cobra.Command, args []string) error {
	key := args[0]
	ownerID := args[1]

	if err := uuid.Validate(ownerID); err != nil {
		return fmt.Errorf("invalid owner ID format: %v", err)
	}

	return withLockManager(func(ctx context.Context, locks lockmgr.ILockManager) error {
		released, err := locks.ReleaseLock(ctx, key, ownerID)
		if err != nil {
			return fmt.Errorf("failed to release lock: %v", err)
		}

		fmt.Printf("released=%v\n", released)
		return nil
	})
}
