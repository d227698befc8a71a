package idxdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/ValentinKolb/idxdb/lib/host/codec"
	"github.com/ValentinKolb/idxdb/lib/host/engines/memory"
)

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func testConfig(name string) Config {
	cfg := DefaultConfig()
	cfg.DBName = name
	cfg.Version = 1
	cfg.Stores = []StoreDef{
		Define("users", KeyPath("id"),
			WithIndex("email", "email", Unique()),
			WithIndex("tags", "tags", MultiEntry())),
		Define("logs", AutoIncrement()),
		Define("kv"),
	}
	return cfg
}

func newTestDB(t *testing.T) (*DB, host.Factory) {
	t.Helper()
	factory := memory.NewFactory(nil)
	db, err := Init(context.Background(), factory, testConfig("test"))
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
		_ = factory.Close()
	})
	return db, factory
}

func user(id, email string, tags ...any) map[string]any {
	return map[string]any{"id": id, "email": email, "tags": tags}
}

// countingConn counts the transactions started on a connection
type countingConn struct {
	host.Database
	started atomic.Int64
}

func (c *countingConn) Transaction(stores []string, mode host.Mode) (host.Transaction, error) {
	c.started.Add(1)
	return c.Database.Transaction(stores, mode)
}

// --------------------------------------------------------------------------
// Store Registry
// --------------------------------------------------------------------------

func TestInit(t *testing.T) {
	ctx := context.Background()
	factory := memory.NewFactory(nil)
	defer factory.Close()

	cfg := DefaultConfig()
	cfg.DBName = "ordered"
	cfg.Version = 1
	for _, name := range []string{"zeta", "alpha", "mid"} {
		cfg.Stores = append(cfg.Stores, Define(name))
	}
	db, err := Init(ctx, factory, cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	info := db.Info()
	if info.Name != "ordered" || info.Version != 1 {
		t.Errorf("Unexpected info %+v", info)
	}
	if !reflect.DeepEqual(info.Stores, []string{"zeta", "alpha", "mid"}) {
		t.Errorf("Expected stores in declaration order, got %v", info.Stores)
	}
	_ = db.Close()

	// a higher version adds new stores and keeps existing ones
	cfg.Version = 2
	cfg.Stores = append(cfg.Stores, Define("extra", KeyPath("id")))
	db, err = Init(ctx, factory, cfg)
	if err != nil {
		t.Fatalf("Init at version 2 failed: %v", err)
	}
	defer db.Close()
	if info := db.Info(); info.Version != 2 || len(info.Stores) != 4 || info.Stores[3] != "extra" {
		t.Errorf("Unexpected info after upgrade %+v", info)
	}
}

func TestLookupStore(t *testing.T) {
	db, _ := newTestDB(t)

	if !db.HasStore("users") || db.HasStore("missing") {
		t.Errorf("Expected HasStore to report users only")
	}
	store, err := db.LookupStore("users")
	if err != nil || store.Name() != "users" {
		t.Errorf("Expected a handle for users, got %v, %v", store, err)
	}
	if _, err := db.LookupStore("missing"); !errors.Is(err, ErrNoSuchStore) {
		t.Errorf("Expected ErrNoSuchStore, got %v", err)
	}

	_ = db.Close()
	if db.HasStore("users") {
		t.Errorf("Expected HasStore to be false after Close")
	}
	if _, err := db.LookupStore("users"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestInitDefaults(t *testing.T) {
	factory := memory.NewFactory(nil)
	defer factory.Close()

	db, err := Init(context.Background(), factory, Config{})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer db.Close()
	if info := db.Info(); info.Name != "db" || info.Version != 1 || len(info.Stores) != 0 {
		t.Errorf("Unexpected info %+v", info)
	}
}

func TestInitErrors(t *testing.T) {
	ctx := context.Background()
	factory := memory.NewFactory(nil)
	defer factory.Close()

	if _, err := Init(ctx, nil, DefaultConfig()); err == nil {
		t.Errorf("Expected Init without factory to fail")
	}

	cfg := DefaultConfig()
	cfg.Stores = []StoreDef{Define("a"), Define("a")}
	if _, err := Init(ctx, factory, cfg); err == nil {
		t.Errorf("Expected duplicate store names to be rejected")
	}
	cfg.Stores = []StoreDef{Define("a", WithIndex("i", ""))}
	if _, err := Init(ctx, factory, cfg); err == nil {
		t.Errorf("Expected an index without key path to be rejected")
	}

	first, err := Init(ctx, factory, testConfig("shared"))
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	// upgrading while another connection is open is blocked
	cfg = testConfig("shared")
	cfg.Version = 2
	_, err = Init(ctx, factory, cfg)
	if CodeOf(err) != CodeUnknown || !host.IsName(err, host.NameBlocked) {
		t.Errorf("Expected a generic error caused by a BlockedError, got %v", err)
	}
	_ = first.Close()

	db, err := Init(ctx, factory, cfg)
	if err != nil {
		t.Fatalf("Init at version 2 failed: %v", err)
	}
	_ = db.Close()

	// lower version than stored
	_, err = Init(ctx, factory, testConfig("shared"))
	if CodeOf(err) != CodeVersionErr {
		t.Errorf("Expected VERSION_ERR, got %v", err)
	}
}

func TestCreateStore(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	if _, err := db.Store("kv").Update(ctx, "value", "k"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	err := db.CreateStore(ctx, "users")
	if !errors.Is(err, ErrStoreExists) {
		t.Errorf("Expected ErrStoreExists, got %v", err)
	}
	if db.Info().Version != 1 {
		t.Errorf("A failed CreateStore must not change the version")
	}

	if err := db.CreateStore(ctx, "events"); err != nil {
		t.Fatalf("CreateStore failed: %v", err)
	}
	info := db.Info()
	if info.Version != 2 || info.Stores[len(info.Stores)-1] != "events" {
		t.Errorf("Unexpected info after CreateStore %+v", info)
	}

	// the default key policy is auto increment
	records, err := db.Store("events").Create(ctx, "a", "b")
	if err != nil {
		t.Fatalf("Create on the new store failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 records, got %v", records)
	}
	if got, _ := db.Store("events").Get(ctx, ByKey(2)); got != "b" {
		t.Errorf("Expected generated key 2 to hold b, got %v", got)
	}

	// existing data survives the reopen
	if got, _ := db.Store("kv").Get(ctx, ByKey("k")); got != "value" {
		t.Errorf("Expected value, got %v", got)
	}

	if err := db.CreateStore(ctx, "people", KeyPath("id"), WithIndex("name", "name")); err != nil {
		t.Fatalf("CreateStore with options failed: %v", err)
	}
	if _, err := db.Store("people").Create(ctx, map[string]any{"id": 1, "name": "ada"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := db.Store("people").Get(ctx, ByIndex("name", "ada"))
	if err != nil || got.(map[string]any)["id"] != float64(1) {
		t.Errorf("Expected the record through the new index, got %v (%v)", got, err)
	}
}

func TestCreateStoreBlocked(t *testing.T) {
	ctx := context.Background()
	db, factory := newTestDB(t)

	other, err := factory.Open(ctx, "test", 0, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	err = db.CreateStore(ctx, "events")
	if err == nil || !host.IsName(err, host.NameBlocked) {
		t.Errorf("Expected CreateStore to be blocked, got %v", err)
	}
	_ = other.Close()

	// the handle was reopened at its previous version
	if info := db.Info(); info.Version != 1 {
		t.Errorf("Expected version 1, got %d", info.Version)
	}
	if _, err := db.Store("kv").Update(ctx, "v", "k"); err != nil {
		t.Errorf("Expected the handle to stay usable, got %v", err)
	}
	if err := db.CreateStore(ctx, "events"); err != nil {
		t.Errorf("CreateStore failed after the other connection closed: %v", err)
	}
}

func TestCreateStoreWaitsForOperations(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	if _, err := db.Store("logs").Create(ctx, "a", "b", "c"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	var visited atomic.Int64
	done := make(chan error, 1)
	go func() {
		_, err := db.Store("logs").Cursor(ctx, func(_ context.Context, record any) (any, error) {
			if visited.Add(1) == 1 {
				close(entered)
				<-release
			}
			return record, nil
		}, "")
		done <- err
	}()

	<-entered
	created := make(chan error, 1)
	go func() {
		created <- db.CreateStore(ctx, "events")
	}()

	select {
	case err := <-created:
		t.Fatalf("CreateStore returned while a cursor was running: %v", err)
	default:
	}
	close(release)

	if err := <-done; err != nil {
		t.Errorf("Cursor failed: %v", err)
	}
	if err := <-created; err != nil {
		t.Errorf("CreateStore failed: %v", err)
	}
	if visited.Load() != 3 {
		t.Errorf("Expected the cursor to visit 3 records, got %d", visited.Load())
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("A second Close should be a no-op, got %v", err)
	}
	if _, err := db.Store("kv").Get(ctx, All()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := db.Store("kv").Delete(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := db.CreateStore(ctx, "late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

// --------------------------------------------------------------------------
// Command Adapter
// --------------------------------------------------------------------------

func TestCreate(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	users := db.Store("users")

	input := []any{
		user("ada", "ada@example.com"),
		user("bob", "bob@example.com"),
	}
	records, err := users.Create(ctx, input...)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !reflect.DeepEqual(records, input) {
		t.Errorf("Expected the records in input order, got %v", records)
	}

	// a duplicate key rejects the batch and leaves the store unchanged
	_, err = users.Create(ctx, user("cid", "cid@example.com"), user("ada", "other@example.com"))
	if CodeOf(err) != CodeKeyExists || !errors.Is(err, host.ErrKeyExists) {
		t.Errorf("Expected KEY_EXISTS, got %v", err)
	}
	var idxErr *Error
	if errors.As(err, &idxErr) && (idxErr.Details["store"] != "users" || idxErr.Details["data"] == nil) {
		t.Errorf("Expected the payload in the error details, got %v", idxErr.Details)
	}
	all, _ := users.Get(ctx, All())
	if len(all.([]any)) != 2 {
		t.Errorf("Expected the failed batch to be rolled back, got %v", all)
	}

	// unique index
	_, err = users.Create(ctx, user("dan", "ada@example.com"))
	if CodeOf(err) != CodeConstraintViolation {
		t.Errorf("Expected CONSTRAINT_VIOLATION, got %v", err)
	}

	_, err = db.Store("missing").Create(ctx, "x")
	if !errors.Is(err, ErrNoSuchStore) {
		t.Errorf("Expected ErrNoSuchStore, got %v", err)
	}
}

func TestCreateNonFinite(t *testing.T) {
	ctx := context.Background()
	for _, c := range []codec.Codec{codec.NewBinaryCodec(), codec.NewJSONCodec()} {
		t.Run(c.Name(), func(t *testing.T) {
			factory := memory.NewFactory(&memory.Options{Codec: c})
			db, err := Init(ctx, factory, testConfig("test"))
			if err != nil {
				t.Fatalf("Init failed: %v", err)
			}
			defer factory.Close()
			defer db.Close()

			logs := db.Store("logs")
			for _, record := range []any{map[string]any{"x": math.NaN()}, math.Inf(1)} {
				_, err := logs.Create(ctx, record)
				if CodeOf(err) != CodeUnknown || !host.IsName(err, host.NameData) {
					t.Errorf("Expected a DataError for %v, got %v", record, err)
				}
			}
			_, err = db.Store("kv").Update(ctx, map[string]any{"x": math.Inf(-1)}, "k")
			if !host.IsName(err, host.NameData) {
				t.Errorf("Expected a DataError on update, got %v", err)
			}

			all, _ := logs.Get(ctx, All())
			if len(all.([]any)) != 0 {
				t.Errorf("Expected no stored records, got %v", all)
			}
		})
	}
}

func TestCreateWithoutData(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	conn := &countingConn{Database: db.conn}
	command := NewCommandAdapter(conn)
	for _, records := range [][]any{nil, {}} {
		_, err := command.Create(ctx, records, Target{Store: "logs"})
		if !errors.Is(err, ErrNoData) || CodeOf(err) != CodeUnknown {
			t.Errorf("Expected ErrNoData, got %v", err)
		}
	}
	if n := conn.started.Load(); n != 0 {
		t.Errorf("Expected no transaction to be started, got %d", n)
	}

	if _, err := db.Store("logs").Create(ctx); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData through the handle, got %v", err)
	}
}

func TestCreateConcurrent(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	users := db.Store("users")

	const workers = 16
	var wg sync.WaitGroup
	results := make([][]any, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%02d", i)
			results[i], errs[i] = users.Create(ctx, user(id, id+"@example.com"))
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Errorf("Create %d failed: %v", i, errs[i])
			continue
		}
		if results[i][0].(map[string]any)["id"] != fmt.Sprintf("u%02d", i) {
			t.Errorf("Create %d resolved with the wrong record %v", i, results[i])
		}
	}
	all, _ := users.Get(ctx, All())
	if len(all.([]any)) != workers {
		t.Errorf("Expected %d records, got %d", workers, len(all.([]any)))
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	// explicit key and key path are mutually exclusive
	_, err := db.Store("users").Update(ctx, user("ada", "ada@example.com"), "ada")
	if err == nil || !host.IsName(err, host.NameData) {
		t.Errorf("Expected a DataError, got %v", err)
	}

	key, err := db.Store("users").Update(ctx, user("ada", "ada@example.com"), nil)
	if err != nil || key != "ada" {
		t.Errorf("Expected key ada, got %v (%v)", key, err)
	}

	kv := db.Store("kv")
	key, err = kv.Update(ctx, "v1", "k")
	if err != nil || key != "k" {
		t.Errorf("Expected key k, got %v (%v)", key, err)
	}
	if _, err := kv.Update(ctx, "v2", "k"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got, _ := kv.Get(ctx, ByKey("k")); got != "v2" {
		t.Errorf("Expected v2, got %v", got)
	}

	// int keys come back normalised
	key, err = kv.Update(ctx, "seven", 7)
	if err != nil || key != float64(7) {
		t.Errorf("Expected key float64(7), got %#v (%v)", key, err)
	}

	// out-of-line store without generator needs a key
	if _, err := kv.Update(ctx, "v", nil); err == nil {
		t.Errorf("Expected Update without key to fail")
	}

	key, err = db.Store("logs").Update(ctx, "entry", nil)
	if err != nil || key != float64(1) {
		t.Errorf("Expected generated key 1, got %v (%v)", key, err)
	}

	if _, err := db.Store("missing").Update(ctx, "v", "k"); !errors.Is(err, ErrNoSuchStore) {
		t.Errorf("Expected ErrNoSuchStore, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	kv := db.Store("kv")

	if _, err := kv.Update(ctx, "v", "k"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := kv.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if got, _ := kv.Get(ctx, ByKey("k")); got != nil {
		t.Errorf("Expected the record to be gone, got %v", got)
	}

	if err := kv.Delete(ctx, "never-stored"); err != nil {
		t.Errorf("Deleting a missing key must succeed, got %v", err)
	}
	if err := kv.Delete(ctx, nil); !errors.Is(err, ErrNoKey) {
		t.Errorf("Expected ErrNoKey, got %v", err)
	}
	if err := db.Store("missing").Delete(ctx, "k"); !errors.Is(err, ErrNoSuchStore) {
		t.Errorf("Expected ErrNoSuchStore, got %v", err)
	}
}

func TestModes(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	kv := db.Store("kv")
	readonly := kv.WithMode(host.ModeReadOnly)
	if _, err := readonly.Update(ctx, "v", "k"); !host.IsName(err, host.NameReadOnly) {
		t.Errorf("Expected a ReadOnlyError, got %v", err)
	}
	if _, err := kv.Update(ctx, "v", "k"); err != nil {
		t.Errorf("WithMode must not change the original handle, got %v", err)
	}
	if got, err := readonly.Get(ctx, ByKey("k")); err != nil || got != "v" {
		t.Errorf("Expected v, got %v (%v)", got, err)
	}

	if _, err := kv.WithMode(host.ModeVersionChange).Get(ctx, All()); !host.IsName(err, host.NameInvalidAccess) {
		t.Errorf("Expected versionchange to be rejected, got %v", err)
	}
}

// --------------------------------------------------------------------------
// Query Adapter
// --------------------------------------------------------------------------

func TestGet(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	logs := db.Store("logs")
	if _, err := logs.Create(ctx, "r1", "r2"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	all, err := logs.Get(ctx, All())
	if err != nil || !reflect.DeepEqual(all, []any{"r1", "r2"}) {
		t.Errorf("Expected [r1 r2], got %v (%v)", all, err)
	}

	if got, err := logs.Get(ctx, ByKey(99)); got != nil || err != nil {
		t.Errorf("Expected nil for a missing key, got %v (%v)", got, err)
	}

	users := db.Store("users")
	if _, err := users.Create(ctx, user("ada", "ada@example.com", "admin")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := users.Get(ctx, ByIndex("email", "ada@example.com"))
	if err != nil || got.(map[string]any)["id"] != "ada" {
		t.Errorf("Expected ada through the index, got %v (%v)", got, err)
	}
	if got, err := users.Get(ctx, ByIndex("tags", "admin")); err != nil || got == nil {
		t.Errorf("Expected ada through the multi entry index, got %v (%v)", got, err)
	}
	if got, err := users.Get(ctx, ByIndex("email", "nobody@example.com")); got != nil || err != nil {
		t.Errorf("Expected nil for a missing index key, got %v (%v)", got, err)
	}
	if _, err := users.Get(ctx, ByIndex("phone", "123")); err == nil || !host.IsName(err, host.NameNotFound) {
		t.Errorf("Expected a missing index to fail, got %v", err)
	}

	if _, err := db.Store("missing").Get(ctx, All()); !errors.Is(err, ErrNoSuchStore) {
		t.Errorf("Expected ErrNoSuchStore, got %v", err)
	}
	if empty, err := db.Store("kv").Get(ctx, All()); err != nil || len(empty.([]any)) != 0 {
		t.Errorf("Expected an empty list, got %v (%v)", empty, err)
	}
}

func TestCursor(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)
	users := db.Store("users")

	if _, err := users.Create(ctx,
		user("a", "c@example.com"),
		user("b", "a@example.com"),
		user("c", "b@example.com"),
	); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var visited []string
	collect := func(_ context.Context, record any) (any, error) {
		id := record.(map[string]any)["id"].(string)
		visited = append(visited, id)
		return id, nil
	}

	last, err := users.Cursor(ctx, collect, "")
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	if !reflect.DeepEqual(visited, []string{"a", "b", "c"}) || last != "c" {
		t.Errorf("Expected a, b, c ending with c, got %v ending with %v", visited, last)
	}

	visited = nil
	last, err = users.Cursor(ctx, collect, "email")
	if err != nil {
		t.Fatalf("Index cursor failed: %v", err)
	}
	if !reflect.DeepEqual(visited, []string{"b", "c", "a"}) || last != "a" {
		t.Errorf("Expected index order b, c, a, got %v ending with %v", visited, last)
	}

	// a failing handler stops the iteration
	boom := errors.New("boom")
	visited = nil
	_, err = users.Cursor(ctx, func(ctx context.Context, record any) (any, error) {
		if _, err := collect(ctx, record); err != nil {
			return nil, err
		}
		return nil, boom
	}, "")
	if err != boom {
		t.Errorf("Expected the handler error, got %v", err)
	}
	if len(visited) != 1 {
		t.Errorf("Expected the iteration to stop after the first record, got %v", visited)
	}

	// nil handler returns the last record
	last, err = users.Cursor(ctx, nil, "")
	if err != nil || last.(map[string]any)["id"] != "c" {
		t.Errorf("Expected the last record, got %v (%v)", last, err)
	}

	if last, err := db.Store("kv").Cursor(ctx, collect, ""); last != nil || err != nil {
		t.Errorf("Expected nil for an empty store, got %v (%v)", last, err)
	}
	if _, err := users.Cursor(ctx, collect, "phone"); err == nil {
		t.Errorf("Expected a missing index to fail")
	}
	if _, err := db.Store("missing").Cursor(ctx, collect, ""); !errors.Is(err, ErrNoSuchStore) {
		t.Errorf("Expected ErrNoSuchStore, got %v", err)
	}
}

func TestTransientAdapters(t *testing.T) {
	ctx := context.Background()
	factory := memory.NewFactory(nil)
	defer factory.Close()

	cfg := testConfig("transient")
	cfg.PersistentQuery = false
	cfg.PersistentCommand = false
	db, err := Init(ctx, factory, cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer db.Close()

	if db.query != nil || db.command != nil {
		t.Errorf("Expected no persistent adapters")
	}
	if _, err := db.Store("kv").Update(ctx, "v", "k"); err != nil {
		t.Errorf("Update failed: %v", err)
	}
	if got, err := db.Store("kv").Get(ctx, ByKey("k")); err != nil || got != "v" {
		t.Errorf("Expected v, got %v (%v)", got, err)
	}
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	_, _ = db.Store("kv").Get(ctx, All())
	_, _ = db.Store("kv").Get(ctx, ByKey(nil))

	var buf bytes.Buffer
	WriteMetrics(&buf)
	out := buf.String()
	for _, expected := range []string{
		`idxdb_operations_total{op="get",store="kv",result="ok"}`,
		`idxdb_operations_total{op="get",store="kv",result="error"}`,
		`idxdb_operation_duration_seconds_bucket{op="get",store="kv"`,
	} {
		if !strings.Contains(out, expected) {
			t.Errorf("Expected %s in the metrics output", expected)
		}
	}
}
