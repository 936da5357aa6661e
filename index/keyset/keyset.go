// Package keyset implements a plain set of keys over a collection
// view. Members are stored as records keyed by their canonical
// encoding with an empty payload; iteration follows the encoding
// order. The set is not Merkelized and carries no proofs.
package keyset

import (
	"fmt"

	"github.com/pavel-mukhanov/exonum/backend"
	"github.com/pavel-mukhanov/exonum/codec"
	"github.com/pavel-mukhanov/exonum/index"
)

// Set is a collection of unique keys of type K backed by a collection
// view.
type Set[K any] struct {
	view *index.View
	keys codec.KeyCodec[K]
}

// New binds a key set of the given name layout to the view. The
// collection's saved metadata type is validated; a fresh collection is
// initialized lazily on its first mutation.
func New[K any](view *index.View, keys codec.KeyCodec[K]) (*Set[K], error) {
	if _, err := view.State(index.TypeKeySet); err != nil {
		return nil, err
	}
	return &Set[K]{view: view, keys: keys}, nil
}

// Len returns the number of members.
func (s *Set[K]) Len() (uint64, error) {
	state, err := s.view.State(index.TypeKeySet)
	if err != nil {
		return 0, err
	}
	return state.Count, nil
}

// Contains reports whether the key is a member of the set.
func (s *Set[K]) Contains(key K) (bool, error) {
	return s.view.Has(index.SpaceValue, s.keys.ToBytes(key))
}

// Insert adds the key to the set. Inserting a present key is a no-op.
func (s *Set[K]) Insert(key K) error {
	kb := s.keys.ToBytes(key)
	ok, err := s.view.Has(index.SpaceValue, kb)
	if err != nil || ok {
		return err
	}
	state, err := s.view.State(index.TypeKeySet)
	if err != nil {
		return err
	}
	s.view.Put(index.SpaceValue, kb, nil)
	s.view.SetState(index.State{Type: index.TypeKeySet, Count: state.Count + 1})
	return nil
}

// Remove deletes the key from the set. Removing an absent key is a
// no-op.
func (s *Set[K]) Remove(key K) error {
	kb := s.keys.ToBytes(key)
	ok, err := s.view.Has(index.SpaceValue, kb)
	if err != nil || !ok {
		return err
	}
	state, err := s.view.State(index.TypeKeySet)
	if err != nil {
		return err
	}
	s.view.Delete(index.SpaceValue, kb)
	s.view.SetState(index.State{Type: index.TypeKeySet, Count: state.Count - 1})
	return nil
}

// Clear removes the set with all its records, including metadata.
func (s *Set[K]) Clear() error {
	return s.view.Clear()
}

// Keys iterates the members of the set in encoding order.
func (s *Set[K]) Keys() *Iterator[K] {
	return &Iterator[K]{inner: s.view.NewIterator(index.SpaceValue, nil), keys: s.keys}
}

// Iterator walks the members of a set. The protocol follows
// backend.Iterator: call Next before the first access and Release after
// use.
type Iterator[K any] struct {
	inner backend.Iterator
	keys  codec.KeyCodec[K]
	key   K
	err   error
}

func (it *Iterator[K]) Next() bool {
	if it.err != nil || !it.inner.Next() {
		return false
	}
	if it.key, it.err = it.keys.Read(it.inner.Key()); it.err != nil {
		it.err = fmt.Errorf("set member: %w", it.err)
		return false
	}
	return true
}

// Key returns the current member.
func (it *Iterator[K]) Key() K {
	return it.key
}

func (it *Iterator[K]) Error() error {
	if it.err != nil {
		return it.err
	}
	return it.inner.Error()
}

func (it *Iterator[K]) Release() {
	it.inner.Release()
}
