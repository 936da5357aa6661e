// Package backend defines the ordered byte-keyed store abstraction the
// authenticated collections are built on, together with the
// transactional view model: read-only point-in-time Snapshots and
// mutable Forks accumulating a pending changeset.
package backend

//go:generate mockgen -source database.go -destination database_mock.go -package backend

// Iterator walks ordered key/value pairs. It follows the goleveldb
// iterator protocol: Next must be called before the first access, the
// slices returned by Key and Value are only valid until the next call
// to Next, and Release must be called after use.
type Iterator interface {
	// Next moves to the next pair and reports whether one exists.
	Next() bool

	// Key returns the key of the current pair.
	Key() []byte

	// Value returns the value of the current pair.
	Value() []byte

	// Error returns the first error encountered during iteration.
	Error() error

	// Release frees resources associated with the iterator.
	Release()
}

// Reader provides point reads and ordered range iteration over a
// byte-keyed store.
type Reader interface {
	// Get returns the value stored for the key and whether the key is
	// present. An absent key is not an error.
	Get(key []byte) ([]byte, bool, error)

	// Has reports whether the store contains the key.
	Has(key []byte) (bool, error)

	// NewIterator returns an iterator over all keys with the given
	// prefix, in ascending byte order, starting at the first key >=
	// start. A nil start begins at the prefix itself.
	NewIterator(prefix, start []byte) Iterator
}

// Snapshot is a read-only, point-in-time consistent view of a Database.
type Snapshot interface {
	Reader

	// Release frees resources associated with the snapshot.
	Release()
}

// Database is the raw persistent ordered key-value store.
//
// Reads through the Database itself observe the latest persisted state;
// GetSnapshot freezes a consistent view. Merge applies a changeset
// atomically: either the whole patch lands or none of it does. Conflict
// resolution between concurrently prepared patches is the
// responsibility of the caller or the concrete store, not of this
// interface.
type Database interface {
	Reader

	// GetSnapshot returns a point-in-time consistent view.
	GetSnapshot() (Snapshot, error)

	// Merge atomically applies the patch to the persisted state.
	Merge(patch *Patch) error

	// Close releases the store. Subsequent operations fail.
	Close() error
}
