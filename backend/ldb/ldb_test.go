package ldb

import (
	"fmt"
	"testing"

	"github.com/pavel-mukhanov/exonum/backend"
)

func openTestDb(t *testing.T) *Database {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestDatabase_MergeIsVisible(t *testing.T) {
	db := openTestDb(t)

	patch := backend.NewPatch()
	patch.Put([]byte("key"), []byte("value"))
	patch.Put([]byte("other"), []byte("data"))
	if err := db.Merge(patch); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	if v, ok, err := db.Get([]byte("key")); err != nil || !ok || string(v) != "value" {
		t.Errorf("unexpected read result: %q, %t, %v", v, ok, err)
	}
	if _, ok, err := db.Get([]byte("missing")); err != nil || ok {
		t.Errorf("absent key must not be an error: %t, %v", ok, err)
	}

	patch = backend.NewPatch()
	patch.Delete([]byte("key"))
	if err := db.Merge(patch); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if ok, _ := db.Has([]byte("key")); ok {
		t.Errorf("deleted key still present")
	}
}

func TestDatabase_IteratorRange(t *testing.T) {
	db := openTestDb(t)

	patch := backend.NewPatch()
	for i := 0; i < 5; i++ {
		patch.Put([]byte(fmt.Sprintf("p/%d", i)), []byte{byte(i)})
	}
	patch.Put([]byte("q/0"), []byte{0xFF})
	if err := db.Merge(patch); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	it := db.NewIterator([]byte("p/"), []byte("p/2"))
	defer it.Release()
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	want := []string{"p/2", "p/3", "p/4"}
	if len(keys) != len(want) {
		t.Fatalf("unexpected keys: %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("unexpected key at %d: %s", i, keys[i])
		}
	}
}

func TestDatabase_SnapshotIsFrozen(t *testing.T) {
	db := openTestDb(t)

	patch := backend.NewPatch()
	patch.Put([]byte("k"), []byte("old"))
	if err := db.Merge(patch); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	snap, err := db.GetSnapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	defer snap.Release()

	patch = backend.NewPatch()
	patch.Put([]byte("k"), []byte("new"))
	if err := db.Merge(patch); err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	if v, ok, _ := snap.Get([]byte("k")); !ok || string(v) != "old" {
		t.Errorf("snapshot observed a later merge: %q", v)
	}
}
