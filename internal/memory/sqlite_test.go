package memory

import (
	"path/filepath"
	"testing"
)

func TestSQLiteStorage_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")

	cfg := Config{MaxItems: 10, Persist: true, StoragePath: path}
	store, err := OpenStore(cfg, "agent:researcher")
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Store("fact", "the sky is blue"); err != nil {
		t.Fatal(err)
	}
	if err := store.StoreWithMetadata("source", "almanac", map[string]interface{}{"page": "12"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopen and verify persisted items come back.
	reopened, err := OpenStore(cfg, "agent:researcher")
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if reopened.Len() != 2 {
		t.Fatalf("expected 2 persisted items, got %d", reopened.Len())
	}
	item, ok := reopened.Retrieve("fact")
	if !ok {
		t.Fatal("expected persisted item")
	}
	if item.Value != "the sky is blue" {
		t.Errorf("unexpected value: %v", item.Value)
	}
	meta, ok := reopened.Retrieve("source")
	if !ok {
		t.Fatal("expected persisted item with metadata")
	}
	if meta.Metadata["page"] != "12" {
		t.Errorf("expected metadata to survive persistence, got %v", meta.Metadata)
	}
}

func TestSQLiteStorage_NamespaceIsolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	cfg := Config{MaxItems: 10, Persist: true, StoragePath: path}

	a, err := OpenStore(cfg, "agent:a")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := OpenStore(cfg, "agent:b")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	a.Store("private", "only a")

	if _, ok := b.Retrieve("private"); ok {
		t.Error("namespaces must be isolated within one database file")
	}
}

func TestSQLiteStorage_DeleteAndClearMirrored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	cfg := Config{MaxItems: 10, Persist: true, StoragePath: path}

	store, err := OpenStore(cfg, "crew:review")
	if err != nil {
		t.Fatal(err)
	}

	store.Store("a", 1)
	store.Store("b", 2)
	if err := store.Delete("a"); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := OpenStore(cfg, "crew:review")
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Len() != 1 {
		t.Fatalf("delete should be mirrored; expected 1 item, got %d", reopened.Len())
	}
	if err := reopened.Clear(); err != nil {
		t.Fatal(err)
	}
	reopened.Close()

	again, err := OpenStore(cfg, "crew:review")
	if err != nil {
		t.Fatal(err)
	}
	defer again.Close()
	if again.Len() != 0 {
		t.Errorf("clear should be mirrored; expected 0 items, got %d", again.Len())
	}
}

func TestSQLiteStorage_EvictionMirrored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	cfg := Config{MaxItems: 2, Persist: true, StoragePath: path}

	store, err := OpenStore(cfg, "crew:small")
	if err != nil {
		t.Fatal(err)
	}
	clk := newFakeClock()
	store.now = clk.Now

	store.Store("a", 1)
	store.Store("b", 2)
	store.Store("c", 3) // evicts a
	store.Close()

	reopened, err := OpenStore(cfg, "crew:small")
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if reopened.Len() != 2 {
		t.Fatalf("expected 2 items after mirrored eviction, got %d", reopened.Len())
	}
	if _, ok := reopened.Retrieve("a"); ok {
		t.Error("evicted item should not be resurrected on reload")
	}
}

func TestOpenStore_NoPersistence(t *testing.T) {
	store, err := OpenStore(Config{MaxItems: 5}, "whatever")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	store.Store("k", "v")
	if _, ok := store.Retrieve("k"); !ok {
		t.Error("plain in-memory store should work without a storage path")
	}
}
