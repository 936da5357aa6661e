package proofmap

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/pavel-mukhanov/exonum/codec"
	"github.com/pavel-mukhanov/exonum/common"
	"github.com/pavel-mukhanov/exonum/index"
)

// ProofEntry is the digest of a trie subtree disjoint from the proven
// key, addressed by the absolute path of its root node.
type ProofEntry struct {
	Path Path
	Hash common.Hash
}

// Proof demonstrates the presence or absence of a key in a map with a
// known root digest. Value carries the canonical encoding of the stored
// value for an existence proof and is nil for a non-existence proof.
// Entries hold the subtree digests off the key's path, sorted
// bit-lexicographically.
type Proof struct {
	Key     []byte
	Value   []byte
	Entries []ProofEntry
}

// BuildProof collects a proof of presence or absence for the key.
func (m *Map[K, V]) BuildProof(key K) (*Proof, error) {
	kb := m.keys.ToBytes(key)
	kp := PathFromKey(kb)
	proof := &Proof{Key: kb}
	state, err := m.view.State(index.TypeProofMap)
	if err != nil {
		return nil, err
	}
	if len(state.Root) == 0 {
		return proof, nil
	}
	rootPath, err := m.rootPath(state)
	if err != nil {
		return nil, err
	}
	current := rootPath
	currentDigest, err := m.digestAt(rootPath)
	if err != nil {
		return nil, err
	}
	for {
		if current.CommonPrefixLen(kp) < current.BitLen() {
			// The whole remaining subtree is off the key's path.
			proof.Entries = append(proof.Entries, ProofEntry{Path: current, Hash: currentDigest})
			break
		}
		record, err := m.record(current)
		if err != nil {
			return nil, err
		}
		if len(record) == common.HashSize {
			if current.BitLen() != kp.BitLen() {
				return nil, fmt.Errorf("map %q: the stored key %s is a prefix of the proven key",
					m.view.Name(), current)
			}
			value, ok, err := m.view.Get(index.SpaceValue, kb)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("map %q: missing value for the key at %s", m.view.Name(), kp)
			}
			if value == nil {
				value = []byte{}
			}
			proof.Value = value
			break
		}
		left, right, err := branchFromRecord(record)
		if err != nil {
			return nil, fmt.Errorf("map %q node at %s: %w", m.view.Name(), current, err)
		}
		if current.BitLen() == kp.BitLen() {
			// A branch sits exactly at the key's path, so the key is
			// absent; both children witness the neighborhood.
			proof.Entries = append(proof.Entries,
				ProofEntry{Path: left.path, Hash: left.digest},
				ProofEntry{Path: right.path, Hash: right.digest})
			break
		}
		chosen, other := left, right
		if kp.Bit(current.BitLen()) == 1 {
			chosen, other = right, left
		}
		proof.Entries = append(proof.Entries, ProofEntry{Path: other.path, Hash: other.digest})
		current, currentDigest = chosen.path, chosen.digest
	}
	slices.SortFunc(proof.Entries, func(a, b ProofEntry) bool {
		return a.Path.Compare(b.Path) < 0
	})
	return proof, nil
}

// Root recomputes the map root from the proof contents alone. The proof
// is rejected as malformed if the entries are unsorted, duplicated or
// nested, or if a non-existence proof contains an entry on the key's
// own path.
func (p *Proof) Root() (common.Hash, error) {
	kp := PathFromKey(p.Key)
	for i, e := range p.Entries {
		if i > 0 {
			if order := p.Entries[i-1].Path.Compare(e.Path); order >= 0 {
				return common.Hash{}, fmt.Errorf("%w: entries out of order", index.ErrMalformedProof)
			}
			if p.Entries[i-1].Path.IsPrefixOf(e.Path) {
				return common.Hash{}, fmt.Errorf("%w: entry %s contains entry %s",
					index.ErrMalformedProof, p.Entries[i-1].Path, e.Path)
			}
		}
	}
	items := make([]ProofEntry, 0, len(p.Entries)+1)
	items = append(items, p.Entries...)
	if p.Value != nil {
		leaf := ProofEntry{Path: kp, Hash: leafDigest(p.Key, common.HashBytes(p.Value))}
		at, found := slices.BinarySearchFunc(items, leaf, func(a, b ProofEntry) int {
			return a.Path.Compare(b.Path)
		})
		if found {
			return common.Hash{}, fmt.Errorf("%w: an entry at the key's own path", index.ErrMalformedProof)
		}
		items = slices.Insert(items, at, leaf)
		if at > 0 && items[at-1].Path.IsPrefixOf(kp) {
			return common.Hash{}, fmt.Errorf("%w: entry %s contains the key",
				index.ErrMalformedProof, items[at-1].Path)
		}
		if at+1 < len(items) && kp.IsPrefixOf(items[at+1].Path) {
			return common.Hash{}, fmt.Errorf("%w: the key contains entry %s",
				index.ErrMalformedProof, items[at+1].Path)
		}
	} else {
		// Every entry subtree holds the keys it covers; absence of the
		// key requires that none of them can cover it.
		for _, e := range p.Entries {
			if e.Path.IsPrefixOf(kp) {
				return common.Hash{}, fmt.Errorf("%w: entry %s covers the key",
					index.ErrMalformedProof, e.Path)
			}
		}
	}
	if len(items) == 0 {
		return EmptyMapHash, nil
	}
	root := fold(items)
	return rootDigest(root.Path, root.Hash), nil
}

// fold assembles sorted, prefix-free subtree entries into the digest of
// their lowest common ancestor. Consecutive groups split at the first
// bit where the group's common prefix ends.
func fold(items []ProofEntry) ProofEntry {
	if len(items) == 1 {
		return items[0]
	}
	// All paths are longer than the shared prefix of the first and last
	// one, and both bit values occur right after it.
	prefixLen := items[0].Path.CommonPrefixLen(items[len(items)-1].Path)
	split := len(items) - 1
	for i := 1; i < len(items); i++ {
		if items[i].Path.Bit(prefixLen) == 1 {
			split = i
			break
		}
	}
	left := fold(items[:split])
	right := fold(items[split:])
	digest := branchDigest(
		child{path: left.Path, digest: left.Hash},
		child{path: right.Path, digest: right.Hash},
	)
	return ProofEntry{Path: left.Path.Prefix(prefixLen), Hash: digest}
}

// Verify checks the proof against a trusted root digest.
func (p *Proof) Verify(expected common.Hash) error {
	root, err := p.Root()
	if err != nil {
		return err
	}
	if root != expected {
		return index.ErrHashMismatch
	}
	return nil
}

// binary encoding:
//
//	LEB128(len(key)) | key
//	presence flag; for an existence proof LEB128(len(value)) | value
//	LEB128(#entries) then per entry compact path | digest

// MarshalBinary encodes the proof for transmission.
func (p *Proof) MarshalBinary() ([]byte, error) {
	buf := codec.AppendUleb128(nil, uint64(len(p.Key)))
	buf = append(buf, p.Key...)
	if p.Value != nil {
		buf = append(buf, 1)
		buf = codec.AppendUleb128(buf, uint64(len(p.Value)))
		buf = append(buf, p.Value...)
	} else {
		buf = append(buf, 0)
	}
	buf = codec.AppendUleb128(buf, uint64(len(p.Entries)))
	for _, e := range p.Entries {
		buf = e.Path.Compact(buf)
		buf = append(buf, e.Hash.ToBytes()...)
	}
	return buf, nil
}

// UnmarshalBinary decodes a proof, rejecting any trailing garbage.
func (p *Proof) UnmarshalBinary(data []byte) error {
	fail := func(what string, err error) error {
		return fmt.Errorf("%w: %s: %v", index.ErrMalformedProof, what, err)
	}
	keyLen, n, err := codec.Uleb128(data)
	if err != nil {
		return fail("key length", err)
	}
	data = data[n:]
	// Compared without arithmetic on keyLen, which is attacker
	// controlled and may be close to the uint64 maximum.
	if uint64(len(data)) <= keyLen {
		return fmt.Errorf("%w: key truncated", index.ErrMalformedProof)
	}
	p.Key = append([]byte(nil), data[:keyLen]...)
	flag := data[keyLen]
	data = data[keyLen+1:]
	p.Value = nil
	switch flag {
	case 0:
	case 1:
		valueLen, n, err := codec.Uleb128(data)
		if err != nil {
			return fail("value length", err)
		}
		data = data[n:]
		if uint64(len(data)) < valueLen {
			return fmt.Errorf("%w: value truncated", index.ErrMalformedProof)
		}
		p.Value = make([]byte, valueLen)
		copy(p.Value, data[:valueLen])
		data = data[valueLen:]
	default:
		return fmt.Errorf("%w: presence flag %d", index.ErrMalformedProof, flag)
	}
	count, n, err := codec.Uleb128(data)
	if err != nil {
		return fail("entry count", err)
	}
	data = data[n:]
	p.Entries = nil
	for i := uint64(0); i < count; i++ {
		path, n, err := pathFromCompact(data)
		if err != nil {
			return fail("entry path", err)
		}
		data = data[n:]
		if len(data) < common.HashSize {
			return fmt.Errorf("%w: entry digest truncated", index.ErrMalformedProof)
		}
		var digest common.Hash
		digest.SetBytes(data[:common.HashSize])
		data = data[common.HashSize:]
		p.Entries = append(p.Entries, ProofEntry{Path: path, Hash: digest})
	}
	if len(data) > 0 {
		return fmt.Errorf("%w: %d trailing bytes", index.ErrMalformedProof, len(data))
	}
	return nil
}
