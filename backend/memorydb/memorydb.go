// Package memorydb provides an in-memory implementation of the backend
// store, used as the reference backend in tests and as a temporary
// database for short-lived computations.
package memorydb

import (
	"bytes"
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/pavel-mukhanov/exonum/backend"
	"github.com/pavel-mukhanov/exonum/common"
)

// ErrClosed is reported for operations on a closed database.
const ErrClosed = common.ConstError("database is closed")

type entry struct {
	key   string
	value []byte
}

// Database keeps all pairs in a sorted list guarded by a mutex.
// Snapshots copy the list, so they stay consistent while the database
// moves on.
type Database struct {
	mu     sync.RWMutex
	data   []entry
	closed bool
}

// NewDatabase creates an empty in-memory database.
func NewDatabase() *Database {
	return &Database{}
}

func (db *Database) find(key string) (int, bool) {
	return slices.BinarySearchFunc(db.data, key, func(e entry, k string) int {
		return strings.Compare(e.key, k)
	})
}

func (db *Database) Get(key []byte) ([]byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, false, ErrClosed
	}
	if idx, ok := db.find(string(key)); ok {
		res := make([]byte, len(db.data[idx].value))
		copy(res, db.data[idx].value)
		return res, true, nil
	}
	return nil, false, nil
}

func (db *Database) Has(key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return false, ErrClosed
	}
	_, ok := db.find(string(key))
	return ok, nil
}

func (db *Database) NewIterator(prefix, start []byte) backend.Iterator {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return newIterator(db.data, prefix, start)
}

func (db *Database) GetSnapshot() (backend.Snapshot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	data := make([]entry, len(db.data))
	copy(data, db.data)
	return &snapshot{data: data}, nil
}

// Merge applies the patch atomically. The database lock is held for the
// whole merge, so concurrent readers either see none or all of it.
func (db *Database) Merge(patch *backend.Patch) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	patch.ForEach(func(key []byte, change backend.Change) {
		idx, ok := db.find(string(key))
		switch {
		case change.Deleted && ok:
			db.data = append(db.data[:idx], db.data[idx+1:]...)
		case !change.Deleted:
			value := make([]byte, len(change.Value))
			copy(value, change.Value)
			if ok {
				db.data[idx].value = value
			} else {
				db.data = slices.Insert(db.data, idx, entry{key: string(key), value: value})
			}
		}
	})
	return nil
}

func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	db.data = nil
	return nil
}

type snapshot struct {
	data []entry
}

func (s *snapshot) Get(key []byte) ([]byte, bool, error) {
	idx, ok := slices.BinarySearchFunc(s.data, string(key), func(e entry, k string) int {
		return strings.Compare(e.key, k)
	})
	if !ok {
		return nil, false, nil
	}
	return s.data[idx].value, true, nil
}

func (s *snapshot) Has(key []byte) (bool, error) {
	_, ok, err := s.Get(key)
	return ok, err
}

func (s *snapshot) NewIterator(prefix, start []byte) backend.Iterator {
	return newIterator(s.data, prefix, start)
}

func (s *snapshot) Release() {}

type iterator struct {
	entries []entry
	pos     int
}

func newIterator(data []entry, prefix, start []byte) backend.Iterator {
	if start == nil || bytes.Compare(start, prefix) < 0 {
		start = prefix
	}
	from, _ := slices.BinarySearchFunc(data, string(start), func(e entry, k string) int {
		return strings.Compare(e.key, k)
	})
	var entries []entry
	for i := from; i < len(data); i++ {
		if !strings.HasPrefix(data[i].key, string(prefix)) {
			break
		}
		entries = append(entries, data[i])
	}
	return &iterator{entries: entries, pos: -1}
}

func (it *iterator) Next() bool {
	if it.pos+1 >= len(it.entries) {
		it.pos = len(it.entries)
		return false
	}
	it.pos++
	return true
}

func (it *iterator) Key() []byte {
	return []byte(it.entries[it.pos].key)
}

func (it *iterator) Value() []byte {
	return it.entries[it.pos].value
}

func (it *iterator) Error() error {
	return nil
}

func (it *iterator) Release() {}
