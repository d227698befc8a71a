package testing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/idxdb/lib/host"
)

// FactoryFunc is a function that creates a new, empty host facility
type FactoryFunc func() host.Factory

// RunHostTests runs a comprehensive test suite for a host facility implementation.
func RunHostTests(t *testing.T, name string, factory FactoryFunc) {
	t.Run(name, func(t *testing.T) {
		t.Run("OpenAndUpgrade", func(t *testing.T) {
			testOpenAndUpgrade(t, factory())
		})

		t.Run("VersionError", func(t *testing.T) {
			testVersionError(t, factory())
		})

		t.Run("Blocked", func(t *testing.T) {
			testBlocked(t, factory())
		})

		t.Run("UpgradeAbort", func(t *testing.T) {
			testUpgradeAbort(t, factory())
		})

		t.Run("Add&Get", func(t *testing.T) {
			testAddGet(t, factory())
		})

		t.Run("KeyGenerator", func(t *testing.T) {
			testKeyGenerator(t, factory())
		})

		t.Run("KeyErrors", func(t *testing.T) {
			testKeyErrors(t, factory())
		})

		t.Run("Put", func(t *testing.T) {
			testPut(t, factory())
		})

		t.Run("KeyOrder", func(t *testing.T) {
			testKeyOrder(t, factory())
		})

		t.Run("Delete&Count&Clear", func(t *testing.T) {
			testDeleteCountClear(t, factory())
		})

		t.Run("AbortRollsBack", func(t *testing.T) {
			testAbortRollsBack(t, factory())
		})

		t.Run("ReadOnly", func(t *testing.T) {
			testReadOnly(t, factory())
		})

		t.Run("Indexes", func(t *testing.T) {
			testIndexes(t, factory())
		})

		t.Run("Cursor", func(t *testing.T) {
			testCursor(t, factory())
		})

		t.Run("ValueSemantics", func(t *testing.T) {
			testValueSemantics(t, factory())
		})

		t.Run("ConcurrentTransactions", func(t *testing.T) {
			testConcurrentTransactions(t, factory())
		})

		t.Run("CloseWaitsForTransactions", func(t *testing.T) {
			testCloseWaits(t, factory())
		})

		t.Run("TransactionErrors", func(t *testing.T) {
			testTransactionErrors(t, factory())
		})

		t.Run("DeleteDatabase", func(t *testing.T) {
			testDeleteDatabase(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// createStores returns an upgrade callback that creates the stores used by
// most tests:
//   - users: key path "id", unique index "email", multi entry index "tags"
//   - logs: auto increment, out-of-line keys
//   - items: key path "id" with auto increment
//   - plain: out-of-line keys without generator
func createStores(tx host.UpgradeTransaction, _, _ uint64) error {
	users, err := tx.CreateObjectStore("users", host.StoreOptions{KeyPath: "id"})
	if err != nil {
		return err
	}
	if _, err := users.CreateIndex("email", "email", host.IndexOptions{Unique: true}); err != nil {
		return err
	}
	if _, err := users.CreateIndex("tags", "tags", host.IndexOptions{MultiEntry: true}); err != nil {
		return err
	}
	if _, err := tx.CreateObjectStore("logs", host.StoreOptions{AutoIncrement: true}); err != nil {
		return err
	}
	if _, err := tx.CreateObjectStore("items", host.StoreOptions{KeyPath: "id", AutoIncrement: true}); err != nil {
		return err
	}
	_, err = tx.CreateObjectStore("plain", host.StoreOptions{})
	return err
}

func openDB(t testing.TB, factory host.Factory, name string) host.Database {
	t.Helper()
	database, err := factory.Open(context.Background(), name, 1, createStores)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", name, err)
	}
	return database
}

func begin(t testing.TB, database host.Database, mode host.Mode, stores ...string) host.Transaction {
	t.Helper()
	tx, err := database.Transaction(stores, mode)
	if err != nil {
		t.Fatalf("Failed to start %s transaction on %v: %v", mode, stores, err)
	}
	return tx
}

func objectStore(t testing.TB, tx host.Transaction, name string) host.ObjectStore {
	t.Helper()
	store, err := tx.ObjectStore(name)
	if err != nil {
		t.Fatalf("Failed to get object store %s: %v", name, err)
	}
	return store
}

// await returns the result of req and fails the test on error
func await(t testing.TB, req *host.Request) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	v, err := req.Wait(ctx)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return v
}

// awaitErr returns the error of req and fails the test if it succeeded
func awaitErr(t testing.TB, req *host.Request) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := req.Wait(ctx)
	if err == nil {
		t.Fatalf("Expected the request to fail")
	}
	return err
}

func commit(t testing.TB, tx host.Transaction) {
	t.Helper()
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	<-tx.Done()
	if err := tx.Err(); err != nil {
		t.Fatalf("Transaction did not commit: %v", err)
	}
}

func abort(t testing.TB, tx host.Transaction) {
	t.Helper()
	if err := tx.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}
	<-tx.Done()
}

// write runs fn in a readwrite transaction on store and commits it
func write(t testing.TB, database host.Database, store string, fn func(s host.ObjectStore)) {
	t.Helper()
	tx := begin(t, database, host.ModeReadWrite, store)
	fn(objectStore(t, tx, store))
	commit(t, tx)
}

// read runs fn in a readonly transaction on store
func read(t testing.TB, database host.Database, store string, fn func(s host.ObjectStore)) {
	t.Helper()
	tx := begin(t, database, host.ModeReadOnly, store)
	fn(objectStore(t, tx, store))
	commit(t, tx)
}

func user(id, email string, tags ...any) map[string]any {
	if tags == nil {
		tags = []any{}
	}
	return map[string]any{"id": id, "email": email, "tags": tags}
}

func requireName(t testing.TB, err error, name string) {
	t.Helper()
	if !host.IsName(err, name) {
		t.Errorf("Expected a %s, got %v", name, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testOpenAndUpgrade(t *testing.T, factory host.Factory) {
	defer factory.Close()
	ctx := context.Background()

	calls := 0
	var versions [2]uint64
	database, err := factory.Open(ctx, "app", 1, func(tx host.UpgradeTransaction, oldVersion, newVersion uint64) error {
		calls++
		versions = [2]uint64{oldVersion, newVersion}
		if tx.Mode() != host.ModeVersionChange {
			t.Errorf("Expected a versionchange transaction, got %s", tx.Mode())
		}
		return createStores(tx, oldVersion, newVersion)
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if calls != 1 || versions != [2]uint64{0, 1} {
		t.Errorf("Expected one upgrade from 0 to 1, got %d calls with %v", calls, versions)
	}
	if database.Version() != 1 {
		t.Errorf("Expected version 1, got %d", database.Version())
	}
	expected := []string{"users", "logs", "items", "plain"}
	if got := database.StoreNames(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected stores %v in creation order, got %v", expected, got)
	}
	if !database.HasStore("logs") || database.HasStore("missing") {
		t.Errorf("HasStore reports wrong results")
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// version 0 opens the current version without an upgrade
	database, err = factory.Open(ctx, "app", 0, func(host.UpgradeTransaction, uint64, uint64) error {
		t.Errorf("Upgrade must not run when opening the current version")
		return nil
	})
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if database.Version() != 1 || len(database.StoreNames()) != 4 {
		t.Errorf("Reopened database lost its schema: version %d, stores %v", database.Version(), database.StoreNames())
	}
	_ = database.Close()

	// a higher version runs the upgrade again and keeps existing stores
	database, err = factory.Open(ctx, "app", 2, func(tx host.UpgradeTransaction, oldVersion, newVersion uint64) error {
		versions = [2]uint64{oldVersion, newVersion}
		_, err := tx.CreateObjectStore("extra", host.StoreOptions{})
		return err
	})
	if err != nil {
		t.Fatalf("Upgrade to version 2 failed: %v", err)
	}
	defer database.Close()
	if versions != [2]uint64{1, 2} {
		t.Errorf("Expected an upgrade from 1 to 2, got %v", versions)
	}
	expected = append(expected, "extra")
	if got := database.StoreNames(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Expected stores %v, got %v", expected, got)
	}

	infos, err := factory.Databases(ctx)
	if err != nil {
		t.Fatalf("Databases failed: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "app" || infos[0].Version != 2 {
		t.Errorf("Unexpected database list %v", infos)
	}
	if info := factory.Info(); info.Databases != 1 {
		t.Errorf("Expected Info to report 1 database, got %d", info.Databases)
	}
}

func testVersionError(t *testing.T, factory host.Factory) {
	defer factory.Close()
	ctx := context.Background()

	database, err := factory.Open(ctx, "versions", 3, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = database.Close()

	_, err = factory.Open(ctx, "versions", 2, nil)
	requireName(t, err, host.NameVersion)
}

func testBlocked(t *testing.T, factory host.Factory) {
	defer factory.Close()
	ctx := context.Background()

	first := openDB(t, factory, "blocked")

	_, err := factory.Open(ctx, "blocked", 2, nil)
	requireName(t, err, host.NameBlocked)

	if err := factory.DeleteDatabase(ctx, "blocked"); !host.IsName(err, host.NameBlocked) {
		t.Errorf("Expected DeleteDatabase to be blocked, got %v", err)
	}

	// a second connection at the current version is fine
	second, err := factory.Open(ctx, "blocked", 1, nil)
	if err != nil {
		t.Fatalf("Opening a second connection failed: %v", err)
	}
	_ = second.Close()
	_ = first.Close()

	upgraded, err := factory.Open(ctx, "blocked", 2, nil)
	if err != nil {
		t.Fatalf("Upgrade after closing all connections failed: %v", err)
	}
	_ = upgraded.Close()
}

func testUpgradeAbort(t *testing.T, factory host.Factory) {
	defer factory.Close()
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := factory.Open(ctx, "aborted", 1, func(tx host.UpgradeTransaction, _, _ uint64) error {
		if _, err := tx.CreateObjectStore("never", host.StoreOptions{}); err != nil {
			return err
		}
		return boom
	})
	requireName(t, err, host.NameAbort)
	if !errors.Is(err, boom) {
		t.Errorf("Expected the upgrade error to be attached, got %v", err)
	}

	infos, err := factory.Databases(ctx)
	if err != nil {
		t.Fatalf("Databases failed: %v", err)
	}
	for _, info := range infos {
		if info.Name == "aborted" && info.Version != 0 {
			t.Errorf("Aborted upgrade left version %d behind", info.Version)
		}
	}

	// upgrading an existing database keeps its previous schema on abort
	database := openDB(t, factory, "aborted")
	write(t, database, "plain", func(s host.ObjectStore) {
		await(t, s.Add("kept", "k"))
	})
	_ = database.Close()

	_, err = factory.Open(ctx, "aborted", 2, func(tx host.UpgradeTransaction, _, _ uint64) error {
		s, err := tx.ObjectStore("plain")
		if err != nil {
			return err
		}
		s.Put("changed", "k")
		if err := tx.DeleteObjectStore("logs"); err != nil {
			return err
		}
		return boom
	})
	if err == nil {
		t.Fatalf("Expected the upgrade to fail")
	}

	database, err = factory.Open(ctx, "aborted", 0, nil)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer database.Close()
	if database.Version() != 1 || !database.HasStore("logs") || database.HasStore("never") {
		t.Errorf("Schema changed by aborted upgrade: version %d, stores %v", database.Version(), database.StoreNames())
	}
	read(t, database, "plain", func(s host.ObjectStore) {
		if v := await(t, s.Get("k")); v != "kept" {
			t.Errorf("Expected the write of the aborted upgrade to be rolled back, got %v", v)
		}
	})
}

func testAddGet(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "addget")
	defer database.Close()

	alice := user("alice", "alice@example.com", "admin")
	write(t, database, "users", func(s host.ObjectStore) {
		if key := await(t, s.Add(alice, nil)); key != "alice" {
			t.Errorf("Expected key alice, got %v", key)
		}
	})

	read(t, database, "users", func(s host.ObjectStore) {
		if got := await(t, s.Get("alice")); !reflect.DeepEqual(got, alice) {
			t.Errorf("Expected %v, got %v", alice, got)
		}
		if got := await(t, s.Get("nobody")); got != nil {
			t.Errorf("Expected nil for a missing key, got %v", got)
		}
	})

	// a second add with the same key is a primary key collision
	tx := begin(t, database, host.ModeReadWrite, "users")
	err := awaitErr(t, objectStore(t, tx, "users").Add(user("alice", "other@example.com"), nil))
	requireName(t, err, host.NameConstraint)
	if !errors.Is(err, host.ErrKeyExists) {
		t.Errorf("Expected ErrKeyExists, got %v", err)
	}
	abort(t, tx)

	read(t, database, "users", func(s host.ObjectStore) {
		if got := await(t, s.Get("alice")); !reflect.DeepEqual(got, alice) {
			t.Errorf("Failed add changed the record: %v", got)
		}
	})
}

func testKeyGenerator(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "generator")
	defer database.Close()

	write(t, database, "logs", func(s host.ObjectStore) {
		for i := 1; i <= 3; i++ {
			if key := await(t, s.Add(fmt.Sprintf("entry-%d", i), nil)); key != float64(i) {
				t.Errorf("Expected generated key %d, got %v", i, key)
			}
		}
		// explicit numeric keys raise the generator
		if key := await(t, s.Add("explicit", 10)); key != float64(10) {
			t.Errorf("Expected key 10, got %v", key)
		}
		if key := await(t, s.Add("after", nil)); key != float64(11) {
			t.Errorf("Expected generated key 11, got %v", key)
		}
	})

	// generated keys are injected at the key path
	write(t, database, "items", func(s host.ObjectStore) {
		key := await(t, s.Add(map[string]any{"name": "first"}, nil))
		if key != float64(1) {
			t.Errorf("Expected generated key 1, got %v", key)
		}
		got := await(t, s.Get(key))
		expected := map[string]any{"id": float64(1), "name": "first"}
		if !reflect.DeepEqual(got, expected) {
			t.Errorf("Expected %v, got %v", expected, got)
		}
	})

	// aborted transactions do not consume generated keys
	tx := begin(t, database, host.ModeReadWrite, "logs")
	await(t, objectStore(t, tx, "logs").Add("discarded", nil))
	abort(t, tx)
	write(t, database, "logs", func(s host.ObjectStore) {
		if key := await(t, s.Add("next", nil)); key != float64(12) {
			t.Errorf("Expected generated key 12 after abort, got %v", key)
		}
	})
}

func testKeyErrors(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "keyerrors")
	defer database.Close()

	tx := begin(t, database, host.ModeReadWrite, "users", "plain")
	users := objectStore(t, tx, "users")
	plain := objectStore(t, tx, "plain")

	// explicit key on a key path store
	requireName(t, awaitErr(t, users.Put(user("bob", "bob@example.com"), "bob")), host.NameData)
	// key path does not resolve
	requireName(t, awaitErr(t, users.Add(map[string]any{"name": "nameless"}, nil)), host.NameData)
	// no key for an out-of-line store without generator
	requireName(t, awaitErr(t, plain.Add("value", nil)), host.NameData)
	// invalid keys
	requireName(t, awaitErr(t, plain.Add("value", map[string]any{"not": "a key"})), host.NameData)
	requireName(t, awaitErr(t, plain.Get(nil)), host.NameData)

	// failed requests do not abort the transaction
	await(t, plain.Add("value", "valid"))
	commit(t, tx)

	read(t, database, "plain", func(s host.ObjectStore) {
		if got := await(t, s.Get("valid")); got != "value" {
			t.Errorf("Expected value, got %v", got)
		}
	})
}

func testPut(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "put")
	defer database.Close()

	write(t, database, "plain", func(s host.ObjectStore) {
		await(t, s.Put("v1", "k"))
		if key := await(t, s.Put("v2", "k")); key != "k" {
			t.Errorf("Expected key k, got %v", key)
		}
	})
	read(t, database, "plain", func(s host.ObjectStore) {
		if got := await(t, s.Get("k")); got != "v2" {
			t.Errorf("Expected v2 after overwrite, got %v", got)
		}
		if n := await(t, s.Count()); n != 1 {
			t.Errorf("Expected 1 record, got %v", n)
		}
	})
}

func testKeyOrder(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "order")
	defer database.Close()

	date := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	keys := []host.Key{
		[]any{"a", 1},
		"b",
		[]byte{0x00, 0x01},
		float64(10),
		"a",
		date,
		float64(-1),
		"",
		[]any{"a"},
	}
	write(t, database, "plain", func(s host.ObjectStore) {
		for i, k := range keys {
			await(t, s.Add(float64(i), k))
		}
	})

	// number < date < string < binary < array
	expected := []any{
		float64(6), // -1
		float64(3), // 10
		float64(5), // date
		float64(7), // ""
		float64(4), // "a"
		float64(1), // "b"
		float64(2), // binary
		float64(8), // ["a"]
		float64(0), // ["a", 1]
	}
	read(t, database, "plain", func(s host.ObjectStore) {
		if got := await(t, s.GetAll()); !reflect.DeepEqual(got, expected) {
			t.Errorf("Expected records in key order %v, got %v", expected, got)
		}
		if got := await(t, s.Get(date)); got != float64(5) {
			t.Errorf("Expected the record stored under a date key, got %v", got)
		}
		if got := await(t, s.Get([]any{"a", 1})); got != float64(0) {
			t.Errorf("Expected the record stored under an array key, got %v", got)
		}
	})
}

func testDeleteCountClear(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "delete")
	defer database.Close()

	write(t, database, "users", func(s host.ObjectStore) {
		for i := 0; i < 5; i++ {
			await(t, s.Add(user(fmt.Sprintf("u%d", i), fmt.Sprintf("u%d@example.com", i)), nil))
		}
	})

	write(t, database, "users", func(s host.ObjectStore) {
		if got := await(t, s.Delete("u1")); got != nil {
			t.Errorf("Expected delete to resolve with nil, got %v", got)
		}
		// deleting a missing key is not an error
		await(t, s.Delete("missing"))
	})

	tx := begin(t, database, host.ModeReadOnly, "users")
	users := objectStore(t, tx, "users")
	if n := await(t, users.Count()); n != 4 {
		t.Errorf("Expected 4 records, got %v", n)
	}
	email, err := users.Index("email")
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if got := await(t, email.Get("u1@example.com")); got != nil {
		t.Errorf("Deleted record is still indexed: %v", got)
	}
	commit(t, tx)

	write(t, database, "users", func(s host.ObjectStore) {
		await(t, s.Clear())
		if n := await(t, s.Count()); n != 0 {
			t.Errorf("Expected an empty store after Clear, got %v", n)
		}
		// indexes are cleared as well
		await(t, s.Add(user("u2", "u2@example.com"), nil))
	})
}

func testAbortRollsBack(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "abort")
	defer database.Close()

	write(t, database, "plain", func(s host.ObjectStore) {
		await(t, s.Add("original", "a"))
		await(t, s.Add("delete-me", "b"))
	})

	tx := begin(t, database, host.ModeReadWrite, "plain")
	s := objectStore(t, tx, "plain")
	await(t, s.Put("changed", "a"))
	await(t, s.Delete("b"))
	await(t, s.Add("new", "c"))
	abort(t, tx)

	if !host.IsName(tx.Err(), host.NameAbort) {
		t.Errorf("Expected an AbortError as outcome, got %v", tx.Err())
	}
	if err := awaitErr(t, s.Get("a")); !host.IsName(err, host.NameTransactionInactive) {
		t.Errorf("Expected requests on a finished transaction to fail, got %v", err)
	}

	read(t, database, "plain", func(s host.ObjectStore) {
		expected := []any{"original", "delete-me"}
		if got := await(t, s.GetAll()); !reflect.DeepEqual(got, expected) {
			t.Errorf("Expected %v after abort, got %v", expected, got)
		}
	})
}

func testReadOnly(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "readonly")
	defer database.Close()

	tx := begin(t, database, host.ModeReadOnly, "plain")
	s := objectStore(t, tx, "plain")
	requireName(t, awaitErr(t, s.Add("v", "k")), host.NameReadOnly)
	requireName(t, awaitErr(t, s.Put("v", "k")), host.NameReadOnly)
	requireName(t, awaitErr(t, s.Delete("k")), host.NameReadOnly)
	requireName(t, awaitErr(t, s.Clear()), host.NameReadOnly)
	commit(t, tx)
}

func testIndexes(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "indexes")
	defer database.Close()

	write(t, database, "users", func(s host.ObjectStore) {
		await(t, s.Add(user("alice", "alice@example.com", "admin", "ops"), nil))
		await(t, s.Add(user("bob", "bob@example.com", "ops", "ops"), nil))
		await(t, s.Add(map[string]any{"id": "carol"}, nil)) // not indexed
	})

	tx := begin(t, database, host.ModeReadWrite, "users")
	users := objectStore(t, tx, "users")
	if got := users.IndexNames(); !reflect.DeepEqual(got, []string{"email", "tags"}) {
		t.Errorf("Unexpected index names %v", got)
	}

	err := awaitErr(t, users.Add(user("dave", "bob@example.com"), nil))
	requireName(t, err, host.NameConstraint)
	if errors.Is(err, host.ErrKeyExists) {
		t.Errorf("A unique index violation must not be reported as a primary key collision")
	}

	// replacing a record keeps its own unique index key
	await(t, users.Put(user("bob", "bob@example.com", "dev"), nil))

	email, err := users.Index("email")
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if !email.Unique() || email.KeyPath() != "email" {
		t.Errorf("Unexpected index metadata")
	}
	got := await(t, email.Get("bob@example.com"))
	if got.(map[string]any)["id"] != "bob" {
		t.Errorf("Expected bob, got %v", got)
	}
	if got := await(t, email.Get("nobody@example.com")); got != nil {
		t.Errorf("Expected nil for a missing index key, got %v", got)
	}
	if n := await(t, email.Count()); n != 2 {
		t.Errorf("Expected 2 entries in the email index, got %v", n)
	}

	tags, err := users.Index("tags")
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	ops := await(t, tags.GetAll("ops")).([]any)
	if len(ops) != 1 || ops[0].(map[string]any)["id"] != "alice" {
		t.Errorf("Expected only alice to be tagged ops after bob's update, got %v", ops)
	}
	if n := await(t, tags.Count()); n != 3 {
		t.Errorf("Expected 3 entries in the tags index, got %v", n)
	}

	if _, err := users.Index("missing"); !host.IsName(err, host.NameNotFound) {
		t.Errorf("Expected a NotFoundError for a missing index, got %v", err)
	}
	if _, err := users.CreateIndex("late", "late", host.IndexOptions{}); !host.IsName(err, host.NameInvalidState) {
		t.Errorf("Expected CreateIndex outside an upgrade to fail, got %v", err)
	}
	commit(t, tx)
	_ = database.Close()

	// an index created later covers the existing records
	ctx := context.Background()
	database, err = factory.Open(ctx, "indexes", 2, func(tx host.UpgradeTransaction, _, _ uint64) error {
		s, err := tx.ObjectStore("users")
		if err != nil {
			return err
		}
		_, err = s.CreateIndex("byEmail", "email", host.IndexOptions{})
		return err
	})
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	read(t, database, "users", func(s host.ObjectStore) {
		idx, err := s.Index("byEmail")
		if err != nil {
			t.Fatalf("Index failed: %v", err)
		}
		if n := await(t, idx.Count()); n != 2 {
			t.Errorf("Expected the new index to cover 2 records, got %v", n)
		}
	})
	_ = database.Close()

	// a unique index over duplicate values aborts the upgrade
	_, err = factory.Open(ctx, "indexes", 3, func(tx host.UpgradeTransaction, _, _ uint64) error {
		s, err := tx.ObjectStore("plain")
		if err != nil {
			return err
		}
		s.Put(map[string]any{"kind": "x"}, "first")
		s.Put(map[string]any{"kind": "x"}, "second")
		_, err = s.CreateIndex("kind", "kind", host.IndexOptions{Unique: true})
		return err
	})
	requireName(t, err, host.NameAbort)
	if !host.IsName(errors.Unwrap(err), host.NameConstraint) {
		t.Errorf("Expected the upgrade to fail with a ConstraintError, got %v", err)
	}

	database, err = factory.Open(ctx, "indexes", 0, nil)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer database.Close()
	if database.Version() != 2 {
		t.Errorf("Expected version 2 after the failed upgrade, got %d", database.Version())
	}
	read(t, database, "plain", func(s host.ObjectStore) {
		if names := s.IndexNames(); len(names) != 0 {
			t.Errorf("Expected the failed upgrade to leave no index, got %v", names)
		}
		if n := await(t, s.Count()); n != 0 {
			t.Errorf("Expected the writes of the failed upgrade to be rolled back, got %v records", n)
		}
	})
}

func testCursor(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "cursor")
	defer database.Close()

	write(t, database, "users", func(s host.ObjectStore) {
		await(t, s.Add(user("c", "a@example.com"), nil))
		await(t, s.Add(user("a", "c@example.com"), nil))
		await(t, s.Add(user("b", "b@example.com"), nil))
	})

	collect := func(req *host.Request) (keys, primaryKeys []any) {
		t.Helper()
		v := await(t, req)
		for v != nil {
			c := v.(host.Cursor)
			keys = append(keys, c.Key())
			primaryKeys = append(primaryKeys, c.PrimaryKey())
			if c.Value().(map[string]any)["id"] != c.PrimaryKey() {
				t.Errorf("Cursor value does not match its primary key")
			}
			v = await(t, c.Continue())
		}
		return keys, primaryKeys
	}

	tx := begin(t, database, host.ModeReadOnly, "users")
	users := objectStore(t, tx, "users")

	keys, _ := collect(users.OpenCursor())
	if !reflect.DeepEqual(keys, []any{"a", "b", "c"}) {
		t.Errorf("Expected primary key order, got %v", keys)
	}

	email, _ := users.Index("email")
	keys, primaryKeys := collect(email.OpenCursor())
	if !reflect.DeepEqual(keys, []any{"a@example.com", "b@example.com", "c@example.com"}) {
		t.Errorf("Expected index key order, got %v", keys)
	}
	if !reflect.DeepEqual(primaryKeys, []any{"c", "b", "a"}) {
		t.Errorf("Expected primary keys in index order, got %v", primaryKeys)
	}
	commit(t, tx)

	read(t, database, "plain", func(s host.ObjectStore) {
		if c := await(t, s.OpenCursor()); c != nil {
			t.Errorf("Expected no cursor on an empty store, got %v", c)
		}
	})
}

func testValueSemantics(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "values")
	defer database.Close()

	record := map[string]any{"nested": map[string]any{"n": 1}}
	write(t, database, "plain", func(s host.ObjectStore) {
		req := s.Add(record, "k")
		record["nested"].(map[string]any)["n"] = 2
		await(t, req)
	})

	read(t, database, "plain", func(s host.ObjectStore) {
		got := await(t, s.Get("k")).(map[string]any)
		if got["nested"].(map[string]any)["n"] != float64(1) {
			t.Errorf("Stored record shares memory with the caller's value: %v", got)
		}
		got["nested"].(map[string]any)["n"] = float64(3)

		again := await(t, s.Get("k")).(map[string]any)
		if again["nested"].(map[string]any)["n"] != float64(1) {
			t.Errorf("Returned record shares memory with the stored one: %v", again)
		}
	})

	// structs are stored with their json field names
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	write(t, database, "plain", func(s host.ObjectStore) {
		await(t, s.Put(point{X: 1, Y: 2}, "p"))
	})
	read(t, database, "plain", func(s host.ObjectStore) {
		expected := map[string]any{"x": float64(1), "y": float64(2)}
		if got := await(t, s.Get("p")); !reflect.DeepEqual(got, expected) {
			t.Errorf("Expected %v, got %v", expected, got)
		}
	})
}

func testConcurrentTransactions(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "concurrent")
	defer database.Close()

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tx, err := database.Transaction([]string{"plain", "logs"}, host.ModeReadWrite)
				if err != nil {
					errs <- err
					return
				}
				plain, _ := tx.ObjectStore("plain")
				logs, _ := tx.ObjectStore("logs")
				plainReq := plain.Add(i, fmt.Sprintf("w%d-%d", w, i))
				logReq := logs.Add(w, nil)
				if _, err := plainReq.Result(); err != nil {
					_ = tx.Abort()
					errs <- err
					return
				}
				if _, err := logReq.Result(); err != nil {
					_ = tx.Abort()
					errs <- err
					return
				}
				_ = tx.Commit()
				if err := tx.Err(); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Concurrent transaction failed: %v", err)
	}

	tx := begin(t, database, host.ModeReadOnly, "plain", "logs")
	if n := await(t, objectStore(t, tx, "plain").Count()); n != workers*perWorker {
		t.Errorf("Expected %d records, got %v", workers*perWorker, n)
	}
	if n := await(t, objectStore(t, tx, "logs").Count()); n != workers*perWorker {
		t.Errorf("Expected %d log entries, got %v", workers*perWorker, n)
	}
	commit(t, tx)
}

func testCloseWaits(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "close")

	tx := begin(t, database, host.ModeReadWrite, "plain")
	await(t, objectStore(t, tx, "plain").Add("v", "k"))
	if n := database.ActiveTransactions(); n != 1 {
		t.Errorf("Expected 1 active transaction, got %d", n)
	}

	closed := make(chan struct{})
	go func() {
		_ = database.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatalf("Close returned while a transaction was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	// no new transactions while closing
	deadline := time.Now().Add(time.Second)
	for {
		probe, err := database.Transaction([]string{"plain"}, host.ModeReadOnly)
		if host.IsName(err, host.NameInvalidState) {
			break
		}
		if err == nil {
			_ = probe.Commit()
			<-probe.Done()
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected new transactions to be rejected while closing, got %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	commit(t, tx)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatalf("Close did not return after the transaction finished")
	}
}

func testTransactionErrors(t *testing.T, factory host.Factory) {
	defer factory.Close()
	database := openDB(t, factory, "txerrors")
	defer database.Close()

	if _, err := database.Transaction([]string{"plain"}, host.ModeVersionChange); !host.IsName(err, host.NameInvalidAccess) {
		t.Errorf("Expected an InvalidAccessError for a versionchange transaction, got %v", err)
	}
	if _, err := database.Transaction(nil, host.ModeReadOnly); !host.IsName(err, host.NameInvalidAccess) {
		t.Errorf("Expected an InvalidAccessError for an empty scope, got %v", err)
	}
	if _, err := database.Transaction([]string{"missing"}, host.ModeReadOnly); !host.IsName(err, host.NameNotFound) {
		t.Errorf("Expected a NotFoundError for a missing store, got %v", err)
	}

	tx := begin(t, database, host.ModeReadOnly, "plain")
	if _, err := tx.ObjectStore("users"); !host.IsName(err, host.NameNotFound) {
		t.Errorf("Expected a NotFoundError for a store outside the scope, got %v", err)
	}
	commit(t, tx)
	if err := tx.Commit(); !host.IsName(err, host.NameInvalidState) {
		t.Errorf("Expected a second commit to fail, got %v", err)
	}
	if _, err := tx.ObjectStore("plain"); !host.IsName(err, host.NameInvalidState) {
		t.Errorf("Expected ObjectStore on a finished transaction to fail, got %v", err)
	}
}

func testDeleteDatabase(t *testing.T, factory host.Factory) {
	defer factory.Close()
	ctx := context.Background()

	database := openDB(t, factory, "doomed")
	write(t, database, "plain", func(s host.ObjectStore) {
		await(t, s.Add("v", "k"))
	})
	_ = database.Close()

	if err := factory.DeleteDatabase(ctx, "doomed"); err != nil {
		t.Fatalf("DeleteDatabase failed: %v", err)
	}
	if err := factory.DeleteDatabase(ctx, "never-existed"); err != nil {
		t.Errorf("Deleting a missing database should succeed, got %v", err)
	}

	infos, err := factory.Databases(ctx)
	if err != nil {
		t.Fatalf("Databases failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected no databases, got %v", infos)
	}

	database, err = factory.Open(ctx, "doomed", 0, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()
	if database.Version() != 1 || len(database.StoreNames()) != 0 {
		t.Errorf("Expected a fresh database, got version %d with stores %v", database.Version(), database.StoreNames())
	}
}
