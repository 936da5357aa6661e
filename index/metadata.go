package index

import (
	"fmt"

	"github.com/pavel-mukhanov/exonum/codec"
)

// Type tags the kind of collection a metadata record belongs to. A
// collection name, once used with one type, cannot be reused with
// another without clearing it first.
type Type byte

const (
	// TypeProofList marks a Merkle list collection.
	TypeProofList Type = 1
	// TypeProofMap marks a Merkle map collection.
	TypeProofMap Type = 2
	// TypeKeySet marks a key set collection.
	TypeKeySet Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeProofList:
		return "ProofList"
	case TypeProofMap:
		return "ProofMap"
	case TypeKeySet:
		return "KeySet"
	}
	return fmt.Sprintf("Type(%d)", byte(t))
}

// State is the per-collection metadata record: the number of live
// entries and a descriptor of the tree root (the root digest for lists,
// the compact root path for maps; empty while the collection is empty).
// It is updated in the same changeset as every structural mutation, so
// it always reflects a consistent snapshot of the tree.
type State struct {
	Type  Type
	Count uint64
	Root  []byte
}

// encoding: type | LEB128(count) | root descriptor (rest of the record)

func (s State) toBytes() []byte {
	buf := []byte{byte(s.Type)}
	buf = codec.AppendUleb128(buf, s.Count)
	return append(buf, s.Root...)
}

func stateFromBytes(data []byte) (State, error) {
	if len(data) < 1 {
		return State{}, fmt.Errorf("%w: empty metadata record", codec.ErrDecode)
	}
	count, n, err := codec.Uleb128(data[1:])
	if err != nil {
		return State{}, fmt.Errorf("metadata item count: %w", err)
	}
	root := make([]byte, len(data)-1-n)
	copy(root, data[1+n:])
	return State{Type: Type(data[0]), Count: count, Root: root}, nil
}

// State loads the collection's metadata record, lazily treating an
// absent record as a fresh empty collection of the expected type. A
// record saved with a different type is a programmer error and panics.
func (v *View) State(expected Type) (State, error) {
	data, ok, err := v.Get(spaceMeta, nil)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return State{Type: expected}, nil
	}
	state, err := stateFromBytes(data)
	if err != nil {
		return State{}, err
	}
	if state.Type != expected {
		panic(fmt.Sprintf("collection %q is a %v, not a %v", v.name, state.Type, expected))
	}
	return state, nil
}

// SetState stores the metadata record in the view's changeset.
func (v *View) SetState(state State) {
	v.Put(spaceMeta, nil, state.toBytes())
}
