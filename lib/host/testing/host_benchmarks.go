package testing

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/idxdb/lib/host"
)

// RunHostBenchmarks runs all benchmarks for a host facility implementation
func RunHostBenchmarks(b *testing.B, name string, factory FactoryFunc) {
	b.Run(name, func(b *testing.B) {
		b.Run("Add", func(b *testing.B) {
			benchmarkAdd(b, factory())
		})

		b.Run("AddBatch", func(b *testing.B) {
			benchmarkAddBatch(b, factory())
		})

		b.Run("Put(indexed)", func(b *testing.B) {
			benchmarkPutIndexed(b, factory())
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, factory())
		})

		b.Run("GetParallel", func(b *testing.B) {
			benchmarkGetParallel(b, factory())
		})

		b.Run("IndexGet", func(b *testing.B) {
			benchmarkIndexGet(b, factory())
		})

		b.Run("Cursor", func(b *testing.B) {
			benchmarkCursor(b, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

const benchRecords = 1000

func benchRecord(i int) map[string]any {
	return map[string]any{
		"id":    fmt.Sprintf("user-%06d", i),
		"email": fmt.Sprintf("user-%06d@example.com", i),
		"tags":  []any{"bench", fmt.Sprintf("group-%d", i%10)},
		"score": float64(i),
	}
}

// prefill opens a database and stores benchRecords users
func prefill(b *testing.B, factory host.Factory) host.Database {
	b.Helper()
	database := openDB(b, factory, "bench")
	tx := begin(b, database, host.ModeReadWrite, "users")
	users := objectStore(b, tx, "users")
	var last *host.Request
	for i := 0; i < benchRecords; i++ {
		last = users.Put(benchRecord(i), nil)
	}
	await(b, last)
	commit(b, tx)
	return database
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkAdd(b *testing.B, factory host.Factory) {
	database := openDB(b, factory, "bench")
	b.Cleanup(func() {
		_ = database.Close()
		_ = factory.Close()
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx := begin(b, database, host.ModeReadWrite, "logs")
		await(b, objectStore(b, tx, "logs").Add(i, nil))
		commit(b, tx)
	}
}

func benchmarkAddBatch(b *testing.B, factory host.Factory) {
	database := openDB(b, factory, "bench")
	b.Cleanup(func() {
		_ = database.Close()
		_ = factory.Close()
	})

	const batch = 100
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx := begin(b, database, host.ModeReadWrite, "logs")
		logs := objectStore(b, tx, "logs")
		var last *host.Request
		for j := 0; j < batch; j++ {
			last = logs.Add(j, nil)
		}
		await(b, last)
		commit(b, tx)
	}
}

func benchmarkPutIndexed(b *testing.B, factory host.Factory) {
	database := prefill(b, factory)
	b.Cleanup(func() {
		_ = database.Close()
		_ = factory.Close()
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx := begin(b, database, host.ModeReadWrite, "users")
		await(b, objectStore(b, tx, "users").Put(benchRecord(i%benchRecords), nil))
		commit(b, tx)
	}
}

func benchmarkGet(b *testing.B, factory host.Factory) {
	database := prefill(b, factory)
	b.Cleanup(func() {
		_ = database.Close()
		_ = factory.Close()
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx := begin(b, database, host.ModeReadOnly, "users")
		await(b, objectStore(b, tx, "users").Get(fmt.Sprintf("user-%06d", i%benchRecords)))
		commit(b, tx)
	}
}

func benchmarkGetParallel(b *testing.B, factory host.Factory) {
	database := prefill(b, factory)
	b.Cleanup(func() {
		_ = database.Close()
		_ = factory.Close()
	})

	var misses atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			tx, err := database.Transaction([]string{"users"}, host.ModeReadOnly)
			if err != nil {
				b.Error(err)
				return
			}
			users, _ := tx.ObjectStore("users")
			v, err := users.Get(fmt.Sprintf("user-%06d", r.Intn(benchRecords))).Result()
			if err != nil || v == nil {
				misses.Add(1)
			}
			_ = tx.Commit()
			<-tx.Done()
		}
	})
	if n := misses.Load(); n > 0 {
		b.Errorf("%d reads missed", n)
	}
}

func benchmarkIndexGet(b *testing.B, factory host.Factory) {
	database := prefill(b, factory)
	b.Cleanup(func() {
		_ = database.Close()
		_ = factory.Close()
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx := begin(b, database, host.ModeReadOnly, "users")
		idx, err := objectStore(b, tx, "users").Index("email")
		if err != nil {
			b.Fatal(err)
		}
		await(b, idx.Get(fmt.Sprintf("user-%06d@example.com", i%benchRecords)))
		commit(b, tx)
	}
}

func benchmarkCursor(b *testing.B, factory host.Factory) {
	database := prefill(b, factory)
	b.Cleanup(func() {
		_ = database.Close()
		_ = factory.Close()
	})

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx := begin(b, database, host.ModeReadOnly, "users")
		v, err := objectStore(b, tx, "users").OpenCursor().Wait(ctx)
		n := 0
		for err == nil && v != nil {
			n++
			v, err = v.(host.Cursor).Continue().Wait(ctx)
		}
		if err != nil || n != benchRecords {
			b.Fatalf("Cursor visited %d of %d records: %v", n, benchRecords, err)
		}
		commit(b, tx)
	}
}
