package rules

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

const storeDocV1 = "version: v1\nrules:\n  - id: r1\n    priority: 1\n    actions: {warnings: [w]}\n"
const storeDocV2 = "version: v2\nrules:\n  - id: r1\n    priority: 1\n    actions: {warnings: [w]}\n  - id: r2\n    priority: 2\n    actions: {warnings: [x]}\n"

func writeCatalog(t *testing.T, path, doc string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
}

func TestStoreReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	writeCatalog(t, path, storeDocV1)

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore() = %v", err)
	}
	old := store.Current()
	if old.Version() != "v1" {
		t.Fatalf("version = %q, want v1", old.Version())
	}

	writeCatalog(t, path, storeDocV2)
	cat, err := store.Reload()
	if err != nil {
		t.Fatalf("Reload() = %v", err)
	}
	if cat.Version() != "v2" || store.Current().Len() != 2 {
		t.Errorf("expected v2 with 2 rules, got %s with %d", cat.Version(), store.Current().Len())
	}
	if old.Len() != 1 {
		t.Error("previous snapshot must not change after reload")
	}

	writeCatalog(t, path, "rules: [")
	cat, err = store.Reload()
	if err == nil {
		t.Fatal("expected reload of a broken catalog to fail")
	}
	if cat.Version() != "v2" || store.Current().Version() != "v2" {
		t.Error("failed reload must keep the previous snapshot")
	}
}

func TestNewStoreFailsOnMissingFile(t *testing.T) {
	if _, err := NewStore(filepath.Join(t.TempDir(), "none.yaml")); !IsConfigError(err) {
		t.Errorf("NewStore() error = %v, want ConfigError", err)
	}
}

func TestStoreConcurrentReadsDuringReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	writeCatalog(t, path, storeDocV1)
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore() = %v", err)
	}
	writeCatalog(t, path, storeDocV2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				cat := store.Current()
				if n := cat.Len(); n != len(cat.Rules()) || (n != 1 && n != 2) {
					t.Errorf("torn snapshot: len=%d", n)
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		if _, err := store.Reload(); err != nil {
			t.Errorf("Reload() = %v", err)
		}
	}
	wg.Wait()
}

func TestStaticStore(t *testing.T) {
	cat, err := Parse([]byte(storeDocV1))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	store := NewStaticStore(cat)
	got, err := store.Reload()
	if err != nil || got != cat {
		t.Errorf("static reload = %v, %v", got, err)
	}
	cat2, _ := Parse([]byte(storeDocV2))
	if prev := store.Swap(cat2); prev != cat {
		t.Error("Swap should return the previous catalog")
	}
	if store.Current() != cat2 {
		t.Error("Swap should install the new catalog")
	}
}
