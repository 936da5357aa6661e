package proofmap

import (
	"fmt"

	"github.com/pavel-mukhanov/exonum/backend"
	"github.com/pavel-mukhanov/exonum/codec"
	"github.com/pavel-mukhanov/exonum/common"
	"github.com/pavel-mukhanov/exonum/index"
)

// ErrKeyPrefix reports an insertion whose key encoding is a strict
// bit-prefix of an existing key, or extends one. The trie cannot hold
// both; key codecs are expected to produce prefix-free encodings.
const ErrKeyPrefix = common.ConstError("key encoding is a prefix of another key")

// Map is a Merkle map from keys of type K to values of type V backed by
// a collection view. Trie node records live under the node space keyed
// by the compact node path; raw values live under the value space keyed
// by the canonical key encoding. The metadata root descriptor holds the
// compact path of the trie root.
type Map[K, V any] struct {
	view   *index.View
	keys   codec.KeyCodec[K]
	values codec.ValueCodec[V]
}

// New binds a Merkle map of the given name layout to the view. The
// collection's saved metadata type is validated; a fresh collection is
// initialized lazily on its first mutation.
func New[K, V any](view *index.View, keys codec.KeyCodec[K], values codec.ValueCodec[V]) (*Map[K, V], error) {
	if _, err := view.State(index.TypeProofMap); err != nil {
		return nil, err
	}
	return &Map[K, V]{view: view, keys: keys, values: values}, nil
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() (uint64, error) {
	state, err := m.view.State(index.TypeProofMap)
	if err != nil {
		return 0, err
	}
	return state.Count, nil
}

// Get returns the value stored under key, or false if the key is
// absent.
func (m *Map[K, V]) Get(key K) (V, bool, error) {
	var zero V
	data, ok, err := m.view.Get(index.SpaceValue, m.keys.ToBytes(key))
	if err != nil || !ok {
		return zero, false, err
	}
	value, err := m.values.FromBytes(data)
	if err != nil {
		return zero, false, fmt.Errorf("map %q value: %w", m.view.Name(), err)
	}
	return value, true, nil
}

// Contains reports whether the key is present.
func (m *Map[K, V]) Contains(key K) (bool, error) {
	return m.view.Has(index.SpaceValue, m.keys.ToBytes(key))
}

// frame remembers a branch visited on the way down to a key: the branch
// and the side the descent took.
type frame struct {
	path        Path
	left, right child
	side        byte
}

// Put stores a value under the key, replacing a previous value if the
// key is present.
func (m *Map[K, V]) Put(key K, value V) error {
	kb := m.keys.ToBytes(key)
	kp := PathFromKey(kb)
	vb := m.values.ToBytes(value)
	vd := common.HashBytes(vb)
	state, err := m.view.State(index.TypeProofMap)
	if err != nil {
		return err
	}
	if len(state.Root) == 0 {
		m.view.Put(index.SpaceValue, kb, vb)
		m.putNode(kp, vd.ToBytes())
		m.view.SetState(index.State{Type: index.TypeProofMap, Count: 1, Root: kp.Compact(nil)})
		return nil
	}
	rootPath, err := m.rootPath(state)
	if err != nil {
		return err
	}

	var stack []frame
	var updated child
	count := state.Count
	current := rootPath
descent:
	for {
		prefixLen := current.CommonPrefixLen(kp)
		if prefixLen < current.BitLen() {
			// The key leaves the edge to current before reaching it:
			// split the edge with a new branch holding current's
			// subtree and the new leaf.
			if prefixLen == kp.BitLen() {
				return fmt.Errorf("map %q: %w: existing keys extend %s", m.view.Name(), ErrKeyPrefix, kp)
			}
			digest, err := m.digestAt(current)
			if err != nil {
				return err
			}
			m.view.Put(index.SpaceValue, kb, vb)
			m.putNode(kp, vd.ToBytes())
			leaf := child{path: kp, digest: leafDigest(kb, vd)}
			subtree := child{path: current, digest: digest}
			left, right := leaf, subtree
			if kp.Bit(prefixLen) == 1 {
				left, right = subtree, leaf
			}
			branchPath := kp.Prefix(prefixLen)
			m.putNode(branchPath, branchRecord(left, right))
			updated = child{path: branchPath, digest: branchDigest(left, right)}
			count++
			break descent
		}
		record, err := m.record(current)
		if err != nil {
			return err
		}
		if len(record) == common.HashSize {
			if current.BitLen() != kp.BitLen() {
				return fmt.Errorf("map %q: %w: the key extends the existing key %s",
					m.view.Name(), ErrKeyPrefix, current)
			}
			m.view.Put(index.SpaceValue, kb, vb)
			m.putNode(kp, vd.ToBytes())
			updated = child{path: kp, digest: leafDigest(kb, vd)}
			break descent
		}
		left, right, err := branchFromRecord(record)
		if err != nil {
			return fmt.Errorf("map %q node at %s: %w", m.view.Name(), current, err)
		}
		if current.BitLen() == kp.BitLen() {
			return fmt.Errorf("map %q: %w: existing keys extend %s", m.view.Name(), ErrKeyPrefix, kp)
		}
		side := kp.Bit(current.BitLen())
		stack = append(stack, frame{path: current, left: left, right: right, side: side})
		if side == 0 {
			current = left.path
		} else {
			current = right.path
		}
	}
	m.propagate(stack, updated, count)
	return nil
}

// Remove deletes the key and its value. Removing an absent key is a
// no-op.
func (m *Map[K, V]) Remove(key K) error {
	kb := m.keys.ToBytes(key)
	kp := PathFromKey(kb)
	state, err := m.view.State(index.TypeProofMap)
	if err != nil {
		return err
	}
	if len(state.Root) == 0 {
		return nil
	}
	rootPath, err := m.rootPath(state)
	if err != nil {
		return err
	}

	var stack []frame
	current := rootPath
	for {
		if current.CommonPrefixLen(kp) < current.BitLen() {
			return nil
		}
		record, err := m.record(current)
		if err != nil {
			return err
		}
		if len(record) == common.HashSize {
			if current.BitLen() != kp.BitLen() {
				return nil
			}
			break
		}
		if current.BitLen() == kp.BitLen() {
			return nil
		}
		left, right, err := branchFromRecord(record)
		if err != nil {
			return fmt.Errorf("map %q node at %s: %w", m.view.Name(), current, err)
		}
		side := kp.Bit(current.BitLen())
		stack = append(stack, frame{path: current, left: left, right: right, side: side})
		if side == 0 {
			current = left.path
		} else {
			current = right.path
		}
	}

	m.view.Delete(index.SpaceValue, kb)
	m.deleteNode(kp)
	if len(stack) == 0 {
		m.view.SetState(index.State{Type: index.TypeProofMap, Count: 0})
		return nil
	}
	// The parent branch collapses: its record is dropped and the
	// sibling takes its place in the grandparent.
	parent := stack[len(stack)-1]
	stack = stack[:len(stack)-1]
	m.deleteNode(parent.path)
	sibling := parent.right
	if parent.side == 1 {
		sibling = parent.left
	}
	m.propagate(stack, sibling, state.Count-1)
	return nil
}

// propagate rewrites the branches on the descent path with the updated
// child, recomputing digests bottom-up, and stores the metadata record.
func (m *Map[K, V]) propagate(stack []frame, updated child, count uint64) {
	for i := len(stack) - 1; i >= 0; i-- {
		f := stack[i]
		if f.side == 0 {
			f.left = updated
		} else {
			f.right = updated
		}
		m.putNode(f.path, branchRecord(f.left, f.right))
		updated = child{path: f.path, digest: branchDigest(f.left, f.right)}
	}
	m.view.SetState(index.State{Type: index.TypeProofMap, Count: count, Root: updated.path.Compact(nil)})
}

// RootHash returns the digest identifying the state of the whole map.
func (m *Map[K, V]) RootHash() (common.Hash, error) {
	state, err := m.view.State(index.TypeProofMap)
	if err != nil {
		return common.Hash{}, err
	}
	if len(state.Root) == 0 {
		return EmptyMapHash, nil
	}
	rootPath, err := m.rootPath(state)
	if err != nil {
		return common.Hash{}, err
	}
	digest, err := m.digestAt(rootPath)
	if err != nil {
		return common.Hash{}, err
	}
	return rootDigest(rootPath, digest), nil
}

// Clear removes the map with all its records, including metadata.
func (m *Map[K, V]) Clear() error {
	return m.view.Clear()
}

func (m *Map[K, V]) rootPath(state index.State) (Path, error) {
	path, n, err := pathFromCompact(state.Root)
	if err == nil && n != len(state.Root) {
		err = fmt.Errorf("%w: trailing bytes", codec.ErrDecode)
	}
	if err != nil {
		return Path{}, fmt.Errorf("map %q root descriptor: %w", m.view.Name(), err)
	}
	return path, nil
}

func (m *Map[K, V]) putNode(path Path, record []byte) {
	m.view.Put(index.SpaceNode, path.Compact(nil), record)
}

func (m *Map[K, V]) deleteNode(path Path) {
	m.view.Delete(index.SpaceNode, path.Compact(nil))
}

func (m *Map[K, V]) record(path Path) ([]byte, error) {
	record, ok, err := m.view.Get(index.SpaceNode, path.Compact(nil))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("map %q: missing trie node at %s", m.view.Name(), path)
	}
	return record, nil
}

// digestAt recomputes the digest of the node stored at path. A 32-byte
// record is a leaf holding the value digest; anything longer is a
// branch record, hashed as stored.
func (m *Map[K, V]) digestAt(path Path) (common.Hash, error) {
	record, err := m.record(path)
	if err != nil {
		return common.Hash{}, err
	}
	if len(record) == common.HashSize {
		if path.BitLen()%8 != 0 {
			return common.Hash{}, fmt.Errorf("%w: map %q: leaf at the unaligned path %s",
				codec.ErrDecode, m.view.Name(), path)
		}
		var valueDigest common.Hash
		valueDigest.SetBytes(record)
		return leafDigest(path.KeyBytes(), valueDigest), nil
	}
	return common.HashBytes([]byte{tagMapNode}, record), nil
}

// Entries iterates the map ordered by the key encoding.
func (m *Map[K, V]) Entries() *Iterator[K, V] {
	return &Iterator[K, V]{
		inner:  m.view.NewIterator(index.SpaceValue, nil),
		keys:   m.keys,
		values: m.values,
	}
}

// Keys iterates the keys of the map in encoding order without decoding
// the values.
func (m *Map[K, V]) Keys() *Iterator[K, V] {
	it := m.Entries()
	it.keysOnly = true
	return it
}

// Iterator walks the entries of a map. The protocol follows
// backend.Iterator: call Next before the first access and Release after
// use.
type Iterator[K, V any] struct {
	inner    backend.Iterator
	keys     codec.KeyCodec[K]
	values   codec.ValueCodec[V]
	keysOnly bool
	key      K
	value    V
	err      error
}

func (it *Iterator[K, V]) Next() bool {
	if it.err != nil || !it.inner.Next() {
		return false
	}
	if it.key, it.err = it.keys.Read(it.inner.Key()); it.err != nil {
		return false
	}
	if it.keysOnly {
		return true
	}
	it.value, it.err = it.values.FromBytes(it.inner.Value())
	return it.err == nil
}

// Key returns the key of the current entry.
func (it *Iterator[K, V]) Key() K {
	return it.key
}

// Value returns the value of the current entry.
func (it *Iterator[K, V]) Value() V {
	return it.value
}

func (it *Iterator[K, V]) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.inner.Error()
}

func (it *Iterator[K, V]) Release() {
	it.inner.Release()
}
