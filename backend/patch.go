package backend

import (
	"bytes"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Change is a single pending operation on one key: either a put of a
// value or a deletion.
type Change struct {
	Value   []byte
	Deleted bool
}

// Patch is an accumulated changeset of key -> Change entries. A Patch
// is owned by exactly one Fork; collections bound to the Fork share it.
// A Patch is not safe for concurrent mutation.
type Patch struct {
	changes map[string]Change
}

// NewPatch creates an empty changeset.
func NewPatch() *Patch {
	return &Patch{changes: make(map[string]Change)}
}

// Put records a pending write of value under key. The last operation
// recorded for a key wins.
func (p *Patch) Put(key, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	p.changes[string(key)] = Change{Value: v}
}

// Delete records a pending deletion of key.
func (p *Patch) Delete(key []byte) {
	p.changes[string(key)] = Change{Deleted: true}
}

// Get returns the pending change for the key, if any.
func (p *Patch) Get(key []byte) (Change, bool) {
	c, ok := p.changes[string(key)]
	return c, ok
}

// Len returns the number of keys with pending changes.
func (p *Patch) Len() int {
	return len(p.changes)
}

// Reset drops all pending changes.
func (p *Patch) Reset() {
	maps.Clear(p.changes)
}

// ForEach calls the callback for every pending change in ascending key
// order.
func (p *Patch) ForEach(callback func(key []byte, change Change)) {
	for _, key := range p.sortedKeys(nil, nil) {
		callback([]byte(key), p.changes[key])
	}
}

// sortedKeys returns the changed keys with the given prefix that are
// >= start, in ascending byte order.
func (p *Patch) sortedKeys(prefix, start []byte) []string {
	keys := make([]string, 0, len(p.changes))
	for key := range p.changes {
		if !bytes.HasPrefix([]byte(key), prefix) {
			continue
		}
		if start != nil && bytes.Compare([]byte(key), start) < 0 {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
