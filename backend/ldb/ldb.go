// Package ldb implements the backend store on top of LevelDB.
package ldb

import (
	"bytes"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/pavel-mukhanov/exonum/backend"
)

// Database is a LevelDB-backed implementation of backend.Database.
// Snapshots map to LevelDB snapshots and Merge to a single batch write,
// so the all-or-nothing commit contract is carried by the store itself.
type Database struct {
	db *leveldb.DB
}

// Open opens (or creates) a LevelDB database in the given directory.
func Open(path string, options *opt.Options) (*Database, error) {
	db, err := leveldb.OpenFile(path, options)
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

// OpenInMemory opens a LevelDB database over volatile in-memory
// storage. Intended for tests.
func OpenInMemory() (*Database, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

func (d *Database) Get(key []byte) ([]byte, bool, error) {
	value, err := d.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (d *Database) Has(key []byte) (bool, error) {
	return d.db.Has(key, nil)
}

// NewIterator returns an iterator over the prefixed key range. The
// goleveldb iterator protocol matches backend.Iterator directly.
func (d *Database) NewIterator(prefix, start []byte) backend.Iterator {
	return d.db.NewIterator(iterRange(prefix, start), nil)
}

func (d *Database) GetSnapshot() (backend.Snapshot, error) {
	snap, err := d.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &snapshot{snap: snap}, nil
}

// Merge applies the patch as one LevelDB batch write.
func (d *Database) Merge(patch *backend.Patch) error {
	batch := new(leveldb.Batch)
	patch.ForEach(func(key []byte, change backend.Change) {
		if change.Deleted {
			batch.Delete(key)
		} else {
			batch.Put(key, change.Value)
		}
	})
	return d.db.Write(batch, nil)
}

func (d *Database) Close() error {
	return d.db.Close()
}

type snapshot struct {
	snap *leveldb.Snapshot
}

func (s *snapshot) Get(key []byte) ([]byte, bool, error) {
	value, err := s.snap.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *snapshot) Has(key []byte) (bool, error) {
	return s.snap.Has(key, nil)
}

func (s *snapshot) NewIterator(prefix, start []byte) backend.Iterator {
	return s.snap.NewIterator(iterRange(prefix, start), nil)
}

func (s *snapshot) Release() {
	s.snap.Release()
}

func iterRange(prefix, start []byte) *util.Range {
	r := util.BytesPrefix(prefix)
	if start != nil && bytes.Compare(start, r.Start) > 0 {
		r.Start = start
	}
	return r
}
