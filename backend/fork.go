package backend

import "bytes"

// Fork is a mutable transaction over a base Reader (a Snapshot or the
// live Database state). Reads observe the base overlaid with the
// pending changeset; writes only touch the changeset until the patch is
// merged into the Database. A Fork is single-writer: it must be driven
// from one logical sequence of operations. Independent Forks are fully
// isolated from each other until merge.
type Fork struct {
	base  Reader
	patch *Patch
}

// NewFork creates a transaction on top of the given base view.
func NewFork(base Reader) *Fork {
	return &Fork{base: base, patch: NewPatch()}
}

// Patch exposes the accumulated changeset, e.g. to pass it to
// Database.Merge. The Fork keeps owning the patch.
func (f *Fork) Patch() *Patch {
	return f.patch
}

// Rollback discards all pending changes, reverting the Fork to its
// base state.
func (f *Fork) Rollback() {
	f.patch.Reset()
}

// Put records a pending write.
func (f *Fork) Put(key, value []byte) {
	f.patch.Put(key, value)
}

// Delete records a pending deletion.
func (f *Fork) Delete(key []byte) {
	f.patch.Delete(key)
}

func (f *Fork) Get(key []byte) ([]byte, bool, error) {
	if change, ok := f.patch.Get(key); ok {
		if change.Deleted {
			return nil, false, nil
		}
		return change.Value, true, nil
	}
	return f.base.Get(key)
}

func (f *Fork) Has(key []byte) (bool, error) {
	if change, ok := f.patch.Get(key); ok {
		return !change.Deleted, nil
	}
	return f.base.Has(key)
}

// NewIterator merges the base iterator with the pending changes:
// pending puts shadow base values, pending deletes hide them.
func (f *Fork) NewIterator(prefix, start []byte) Iterator {
	return &forkIterator{
		base:    f.base.NewIterator(prefix, start),
		patch:   f.patch,
		pending: f.patch.sortedKeys(prefix, start),
	}
}

type forkIterator struct {
	base     Iterator
	patch    *Patch
	pending  []string
	key      []byte
	value    []byte
	baseDone bool
	baseKey  []byte
}

func (it *forkIterator) Next() bool {
	for {
		if it.baseKey == nil && !it.baseDone {
			if it.base.Next() {
				it.baseKey = it.base.Key()
			} else {
				it.baseDone = true
			}
		}

		var fromPatch bool
		switch {
		case it.baseDone && len(it.pending) == 0:
			it.key, it.value = nil, nil
			return false
		case it.baseDone:
			fromPatch = true
		case len(it.pending) == 0:
			fromPatch = false
		default:
			fromPatch = bytes.Compare([]byte(it.pending[0]), it.baseKey) <= 0
		}

		if !fromPatch {
			it.key, it.value = it.baseKey, it.base.Value()
			it.baseKey = nil
			return true
		}

		key := it.pending[0]
		it.pending = it.pending[1:]
		if it.baseKey != nil && bytes.Equal([]byte(key), it.baseKey) {
			// Shadowed by the pending change, skip the base pair.
			it.baseKey = nil
		}
		change, _ := it.patch.Get([]byte(key))
		if change.Deleted {
			continue
		}
		it.key, it.value = []byte(key), change.Value
		return true
	}
}

func (it *forkIterator) Key() []byte {
	return it.key
}

func (it *forkIterator) Value() []byte {
	return it.value
}

func (it *forkIterator) Error() error {
	return it.base.Error()
}

func (it *forkIterator) Release() {
	it.base.Release()
}
