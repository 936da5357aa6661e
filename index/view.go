// Package index provides the per-collection view over the backend
// store: prefix-resolved access bound to a Fork or Snapshot, and the
// metadata record keeping item count and root descriptor of every
// collection consistent with its structural state.
package index

import (
	"github.com/pavel-mukhanov/exonum/backend"
	"github.com/pavel-mukhanov/exonum/codec"
)

// Key spaces within one collection. The full backend key of a record is
// LEB128(len(name)) | name | space | suffix.
const (
	spaceMeta byte = iota
	// SpaceNode holds tree node records (trie nodes, list subtree
	// digests).
	SpaceNode
	// SpaceValue holds the canonical value bytes addressed by plain
	// keys or positions.
	SpaceValue
)

// View routes reads and writes of one named collection through a Fork
// or a Snapshot. Several Views may be bound to the same Fork; they
// share its changeset. Writes through a read-only View are a contract
// violation and panic.
type View struct {
	name   string
	prefix []byte
	reader backend.Reader
	fork   *backend.Fork
}

// NewView binds a mutable view of the named collection to the fork.
func NewView(fork *backend.Fork, name string) *View {
	return &View{name: name, prefix: resolve(name), reader: fork, fork: fork}
}

// NewReadonlyView binds a read-only view of the named collection to a
// snapshot or any other reader.
func NewReadonlyView(reader backend.Reader, name string) *View {
	return &View{name: name, prefix: resolve(name), reader: reader}
}

// resolve computes the collection's key prefix. The length prefix keeps
// encodings of distinct names from sharing a prefix.
func resolve(name string) []byte {
	prefix := codec.AppendUleb128(nil, uint64(len(name)))
	return append(prefix, name...)
}

// Name returns the collection identifier this view is bound to.
func (v *View) Name() string {
	return v.name
}

func (v *View) key(space byte, suffix []byte) []byte {
	key := make([]byte, 0, len(v.prefix)+1+len(suffix))
	key = append(key, v.prefix...)
	key = append(key, space)
	return append(key, suffix...)
}

// Get reads the record stored under the suffix in the given space.
func (v *View) Get(space byte, suffix []byte) ([]byte, bool, error) {
	return v.reader.Get(v.key(space, suffix))
}

// Has reports whether a record exists under the suffix.
func (v *View) Has(space byte, suffix []byte) (bool, error) {
	return v.reader.Has(v.key(space, suffix))
}

// Put stores a record. Panics on a read-only view.
func (v *View) Put(space byte, suffix, value []byte) {
	v.writer().Put(v.key(space, suffix), value)
}

// Delete removes a record. Panics on a read-only view.
func (v *View) Delete(space byte, suffix []byte) {
	v.writer().Delete(v.key(space, suffix))
}

func (v *View) writer() *backend.Fork {
	if v.fork == nil {
		panic("write through a read-only view of collection " + v.name)
	}
	return v.fork
}

// NewIterator iterates the records of one space in ascending suffix
// order, starting at the first suffix >= start. Returned keys have the
// collection prefix and space stripped.
func (v *View) NewIterator(space byte, start []byte) backend.Iterator {
	prefix := v.key(space, nil)
	return &viewIterator{
		inner: v.reader.NewIterator(prefix, v.key(space, start)),
		strip: len(prefix),
	}
}

// Clear removes every record of the collection, including its metadata.
func (v *View) Clear() error {
	fork := v.writer()
	it := v.reader.NewIterator(v.prefix, nil)
	defer it.Release()
	for it.Next() {
		key := make([]byte, len(it.Key()))
		copy(key, it.Key())
		fork.Delete(key)
	}
	return it.Error()
}

type viewIterator struct {
	inner backend.Iterator
	strip int
}

func (it *viewIterator) Next() bool {
	return it.inner.Next()
}

func (it *viewIterator) Key() []byte {
	return it.inner.Key()[it.strip:]
}

func (it *viewIterator) Value() []byte {
	return it.inner.Value()
}

func (it *viewIterator) Error() error {
	return it.inner.Error()
}

func (it *viewIterator) Release() {
	it.inner.Release()
}
