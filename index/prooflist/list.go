// Package prooflist implements a Merkelized append-only list: an
// ordered sequence of values with an overlaid binary hash tree
// following the RFC 6962 Merkle Tree Hash construction. The list
// supports appending and removing from the tail; every element can be
// proven to belong to the list identified by a single root digest.
package prooflist

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/pavel-mukhanov/exonum/backend"
	"github.com/pavel-mukhanov/exonum/codec"
	"github.com/pavel-mukhanov/exonum/common"
	"github.com/pavel-mukhanov/exonum/index"
)

// ErrOutOfRange reports a position at or beyond the end of the list, or
// a truncation target larger than the current length.
const ErrOutOfRange = common.ConstError("index out of range")

// Domain-separation prefixes of the list hashing protocol
// (RFC 6962 §2.1).
const (
	tagLeaf   = 0x00
	tagBranch = 0x01
)

// EmptyListHash is the root digest of a list without elements, the
// digest of the empty string.
var EmptyListHash = common.HashBytes()

// List is a Merkle list of values of type V backed by a collection
// view. Values live under the view's value space keyed by position;
// digests of every tree node live under the node space keyed by
// (height, position). Node (h, i) covers the leaves
// [i*2^h, min((i+1)*2^h, n)); a node whose right child is empty passes
// the left child digest through unchanged, so lengths that are not
// powers of two never require padding.
type List[V any] struct {
	view   *index.View
	values codec.ValueCodec[V]
}

// New binds a Merkle list of the given name layout to the view. The
// collection's saved metadata type is validated; a fresh collection is
// initialized lazily on its first mutation.
func New[V any](view *index.View, values codec.ValueCodec[V]) (*List[V], error) {
	if _, err := view.State(index.TypeProofList); err != nil {
		return nil, err
	}
	return &List[V]{view: view, values: values}, nil
}

func valueKey(i uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, i)
}

func nodeKey(height int, i uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{byte(height)}, i)
}

// rootLevel returns the height of the root node of a tree over n
// leaves.
func rootLevel(n uint64) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(n - 1)
}

// Len returns the number of elements.
func (l *List[V]) Len() (uint64, error) {
	state, err := l.view.State(index.TypeProofList)
	if err != nil {
		return 0, err
	}
	return state.Count, nil
}

// Get returns the element at position i, or false if i is past the end
// of the list.
func (l *List[V]) Get(i uint64) (V, bool, error) {
	var zero V
	data, ok, err := l.view.Get(index.SpaceValue, valueKey(i))
	if err != nil || !ok {
		return zero, false, err
	}
	value, err := l.values.FromBytes(data)
	if err != nil {
		return zero, false, fmt.Errorf("list %q value at %d: %w", l.view.Name(), i, err)
	}
	return value, true, nil
}

// Push appends a value to the tail of the list.
func (l *List[V]) Push(value V) error {
	state, err := l.view.State(index.TypeProofList)
	if err != nil {
		return err
	}
	i := state.Count
	data := l.values.ToBytes(value)
	l.view.Put(index.SpaceValue, valueKey(i), data)
	l.putNode(0, i, common.HashBytes([]byte{tagLeaf}, data))
	return l.rehashTail(i, state.Count+1)
}

// Set replaces the element at position i, recomputing the digests on
// its path to the root.
func (l *List[V]) Set(i uint64, value V) error {
	state, err := l.view.State(index.TypeProofList)
	if err != nil {
		return err
	}
	if i >= state.Count {
		return fmt.Errorf("%w: position %d in a list of %d", ErrOutOfRange, i, state.Count)
	}
	data := l.values.ToBytes(value)
	l.view.Put(index.SpaceValue, valueKey(i), data)
	l.putNode(0, i, common.HashBytes([]byte{tagLeaf}, data))
	return l.rehashTail(i, state.Count)
}

// Pop removes and returns the last element of the list.
func (l *List[V]) Pop() (V, bool, error) {
	var zero V
	state, err := l.view.State(index.TypeProofList)
	if err != nil {
		return zero, false, err
	}
	if state.Count == 0 {
		return zero, false, nil
	}
	value, ok, err := l.Get(state.Count - 1)
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, fmt.Errorf("list %q: missing value at %d", l.view.Name(), state.Count-1)
	}
	if err := l.Truncate(state.Count - 1); err != nil {
		return zero, false, err
	}
	return value, true, nil
}

// Truncate shortens the list to n elements, removing from the tail.
func (l *List[V]) Truncate(n uint64) error {
	state, err := l.view.State(index.TypeProofList)
	if err != nil {
		return err
	}
	if n > state.Count {
		return fmt.Errorf("%w: truncating a list of %d to %d", ErrOutOfRange, state.Count, n)
	}
	if n == state.Count {
		return nil
	}
	for i := n; i < state.Count; i++ {
		l.view.Delete(index.SpaceValue, valueKey(i))
		l.view.Delete(index.SpaceNode, nodeKey(0, i))
	}
	// Nodes whose leaf range became empty are dropped; the node on the
	// new right edge of every remaining level is recomputed.
	newLevel := rootLevel(n)
	for h := 1; h <= rootLevel(state.Count); h++ {
		oldBound := boundAt(state.Count, h)
		newBound := uint64(0)
		if n > 0 && h <= newLevel {
			newBound = boundAt(n, h)
		}
		for i := newBound; i < oldBound; i++ {
			l.view.Delete(index.SpaceNode, nodeKey(h, i))
		}
	}
	if n > 0 {
		if err := l.rehashTail(n-1, n); err != nil {
			return err
		}
		return nil
	}
	l.view.SetState(index.State{Type: index.TypeProofList, Count: 0, Root: EmptyListHash.ToBytes()})
	return nil
}

// boundAt returns the number of nodes at the given height of a tree
// over n leaves.
func boundAt(n uint64, height int) uint64 {
	return (n + (1 << height) - 1) >> height
}

// rehashTail recomputes the nodes covering leaf i for a list of n
// elements and stores the updated metadata record.
func (l *List[V]) rehashTail(i, n uint64) error {
	for h := 1; h <= rootLevel(n); h++ {
		if err := l.updateNode(h, i>>h); err != nil {
			return err
		}
	}
	root, err := l.nodeDigest(rootLevel(n), 0)
	if err != nil {
		return err
	}
	l.view.SetState(index.State{Type: index.TypeProofList, Count: n, Root: root.ToBytes()})
	return nil
}

// updateNode recomputes the digest of node (h, i) from its children.
// The right child may be absent, in which case the left digest passes
// through.
func (l *List[V]) updateNode(height int, i uint64) error {
	left, err := l.nodeDigest(height-1, 2*i)
	if err != nil {
		return err
	}
	right, ok, err := l.maybeNodeDigest(height-1, 2*i+1)
	if err != nil {
		return err
	}
	digest := left
	if ok {
		digest = common.HashBytes([]byte{tagBranch}, left.ToBytes(), right.ToBytes())
	}
	l.putNode(height, i, digest)
	return nil
}

func (l *List[V]) putNode(height int, i uint64, digest common.Hash) {
	l.view.Put(index.SpaceNode, nodeKey(height, i), digest.ToBytes())
}

func (l *List[V]) nodeDigest(height int, i uint64) (common.Hash, error) {
	digest, ok, err := l.maybeNodeDigest(height, i)
	if err != nil {
		return digest, err
	}
	if !ok {
		return digest, fmt.Errorf("list %q: missing tree node (%d, %d)", l.view.Name(), height, i)
	}
	return digest, nil
}

func (l *List[V]) maybeNodeDigest(height int, i uint64) (common.Hash, bool, error) {
	var digest common.Hash
	data, ok, err := l.view.Get(index.SpaceNode, nodeKey(height, i))
	if err != nil || !ok {
		return digest, false, err
	}
	if !digest.SetBytes(data) {
		return digest, false, fmt.Errorf("%w: list %q: tree node (%d, %d) is not a digest",
			codec.ErrDecode, l.view.Name(), height, i)
	}
	return digest, true, nil
}

// RootHash returns the digest identifying the state of the whole list.
func (l *List[V]) RootHash() (common.Hash, error) {
	state, err := l.view.State(index.TypeProofList)
	if err != nil {
		return common.Hash{}, err
	}
	if state.Count == 0 {
		return EmptyListHash, nil
	}
	var root common.Hash
	if !root.SetBytes(state.Root) {
		return root, fmt.Errorf("%w: list %q: metadata root descriptor is not a digest",
			codec.ErrDecode, l.view.Name())
	}
	return root, nil
}

// Clear removes the list with all its records, including metadata.
func (l *List[V]) Clear() error {
	return l.view.Clear()
}

// Values iterates the elements of the list in positional order.
func (l *List[V]) Values() *Iterator[V] {
	return &Iterator[V]{inner: l.view.NewIterator(index.SpaceValue, nil), values: l.values}
}

// Iterator walks the elements of a list. The protocol follows
// backend.Iterator: call Next before the first access and Release after
// use.
type Iterator[V any] struct {
	inner  backend.Iterator
	values codec.ValueCodec[V]
	index  uint64
	value  V
	err    error
}

func (it *Iterator[V]) Next() bool {
	if it.err != nil || !it.inner.Next() {
		return false
	}
	if len(it.inner.Key()) != 8 {
		it.err = fmt.Errorf("%w: list position key has %d bytes", codec.ErrDecode, len(it.inner.Key()))
		return false
	}
	it.index = binary.BigEndian.Uint64(it.inner.Key())
	it.value, it.err = it.values.FromBytes(it.inner.Value())
	return it.err == nil
}

// Index returns the position of the current element.
func (it *Iterator[V]) Index() uint64 {
	return it.index
}

// Value returns the current element.
func (it *Iterator[V]) Value() V {
	return it.value
}

func (it *Iterator[V]) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.inner.Error()
}

func (it *Iterator[V]) Release() {
	it.inner.Release()
}
