package memory

import (
	"context"
	"testing"

	"github.com/ValentinKolb/idxdb/lib/host"
	"github.com/ValentinKolb/idxdb/lib/host/codec"
	hosttesting "github.com/ValentinKolb/idxdb/lib/host/testing"
)

func Test(t *testing.T) {
	hosttesting.RunHostTests(t, "Memory", func() host.Factory {
		return NewFactory(nil)
	})
	hosttesting.RunHostTests(t, "Memory(json)", func() host.Factory {
		return NewFactory(&Options{Codec: codec.NewJSONCodec()})
	})
	hosttesting.RunHostTests(t, "Memory(gob)", func() host.Factory {
		return NewFactory(&Options{Codec: codec.NewGOBCodec()})
	})
}

func Benchmark(b *testing.B) {
	hosttesting.RunHostBenchmarks(b, "Memory", func() host.Factory {
		return NewFactory(nil)
	})
}

func TestInfoTracksSize(t *testing.T) {
	factory := NewFactory(nil)
	defer factory.Close()
	ctx := context.Background()

	database, err := factory.Open(ctx, "size", 1, func(tx host.UpgradeTransaction, _, _ uint64) error {
		_, err := tx.CreateObjectStore("blobs", host.StoreOptions{})
		return err
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	if size := factory.Info().SizeBytes; size != 0 {
		t.Errorf("Expected an empty facility, got %d bytes", size)
	}

	tx, err := database.Transaction([]string{"blobs"}, host.ModeReadWrite)
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
	blobs, _ := tx.ObjectStore("blobs")
	if _, err := blobs.Put("0123456789", "k").Result(); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	_ = tx.Commit()
	<-tx.Done()

	info := factory.Info()
	if info.SizeBytes <= 0 {
		t.Errorf("Expected a positive size after a write, got %d", info.SizeBytes)
	}
	if info.Implementation != host.ImplMemory || info.Persistent || info.Databases != 1 {
		t.Errorf("Unexpected info %+v", info)
	}

	if _, err := factory.Open(ctx, "other", 1, nil); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = factory.Close()
	if _, err := factory.Open(ctx, "other", 0, nil); !host.IsName(err, host.NameInvalidState) {
		t.Errorf("Expected Open on a closed factory to fail, got %v", err)
	}
}
