package prooflist

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/pavel-mukhanov/exonum/codec"
	"github.com/pavel-mukhanov/exonum/common"
	"github.com/pavel-mukhanov/exonum/index"
)

// Entry is an element disclosed by a proof, carrying its canonical
// encoding so that verification does not depend on the value codec.
type Entry struct {
	Index uint64
	Value []byte
}

// HashedEntry is the digest of a tree node at (Height, Index) covering
// a leaf range disjoint from the disclosed elements.
type HashedEntry struct {
	Height uint8
	Index  uint64
	Hash   common.Hash
}

// Proof demonstrates that a contiguous range of elements belongs to a
// list with a known root digest. It carries the list length, the
// disclosed elements and the minimal set of sibling digests needed to
// recompute the root.
type Proof struct {
	Length  uint64
	Entries []Entry
	Hashes  []HashedEntry
}

// BuildProof collects a proof for the elements in positions [from, to).
func (l *List[V]) BuildProof(from, to uint64) (*Proof, error) {
	state, err := l.view.State(index.TypeProofList)
	if err != nil {
		return nil, err
	}
	n := state.Count
	if from >= to || to > n {
		return nil, fmt.Errorf("%w: proving [%d, %d) of a list of %d", ErrOutOfRange, from, to, n)
	}
	proof := &Proof{Length: n}
	if err := l.collect(rootLevel(n), 0, from, to, n, proof); err != nil {
		return nil, err
	}
	return proof, nil
}

func (l *List[V]) collect(height int, i, from, to, n uint64, proof *Proof) error {
	lo := i << height
	hi := lo + uint64(1)<<height
	if hi > n {
		hi = n
	}
	if hi <= from || lo >= to {
		digest, err := l.nodeDigest(height, i)
		if err != nil {
			return err
		}
		proof.Hashes = append(proof.Hashes, HashedEntry{Height: uint8(height), Index: i, Hash: digest})
		return nil
	}
	if height == 0 {
		data, ok, err := l.view.Get(index.SpaceValue, valueKey(i))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("list %q: missing value at %d", l.view.Name(), i)
		}
		proof.Entries = append(proof.Entries, Entry{Index: i, Value: data})
		return nil
	}
	if err := l.collect(height-1, 2*i, from, to, n, proof); err != nil {
		return err
	}
	if (2*i+1)<<(height-1) < n {
		return l.collect(height-1, 2*i+1, from, to, n, proof)
	}
	return nil
}

type layerItem struct {
	index uint64
	hash  common.Hash
}

// Root recomputes the list root from the proof contents alone. The
// proof is rejected as malformed if its items do not assemble into
// exactly one tree: out-of-bounds positions, duplicated positions and
// missing siblings all fail here.
func (p *Proof) Root() (common.Hash, error) {
	n := p.Length
	if n == 0 {
		if len(p.Entries) > 0 || len(p.Hashes) > 0 {
			return common.Hash{}, fmt.Errorf("%w: items in a proof for the empty list", index.ErrMalformedProof)
		}
		return EmptyListHash, nil
	}
	top := rootLevel(n)
	buckets := make([][]layerItem, top+1)
	for _, h := range p.Hashes {
		// The index bound is compared shift-free so that forged huge
		// indexes cannot wrap back into range.
		if int(h.Height) > top || h.Index > (n-1)>>h.Height {
			return common.Hash{}, fmt.Errorf("%w: node (%d, %d) outside a tree of %d leaves",
				index.ErrMalformedProof, h.Height, h.Index, n)
		}
		buckets[h.Height] = append(buckets[h.Height], layerItem{h.Index, h.Hash})
	}
	layer := make([]layerItem, 0, len(p.Entries)+1)
	for _, e := range p.Entries {
		if e.Index >= n {
			return common.Hash{}, fmt.Errorf("%w: element %d outside a list of %d",
				index.ErrMalformedProof, e.Index, n)
		}
		layer = append(layer, layerItem{e.Index, common.HashBytes([]byte{tagLeaf}, e.Value)})
	}
	for h := 0; ; h++ {
		layer = append(layer, buckets[h]...)
		slices.SortFunc(layer, func(a, b layerItem) bool {
			return a.index < b.index
		})
		for k := 1; k < len(layer); k++ {
			if layer[k].index == layer[k-1].index {
				return common.Hash{}, fmt.Errorf("%w: node (%d, %d) occurs twice",
					index.ErrMalformedProof, h, layer[k].index)
			}
		}
		if h == top {
			break
		}
		next := make([]layerItem, 0, (len(layer)+1)/2)
		for k := 0; k < len(layer); {
			item := layer[k]
			if item.index%2 == 1 {
				return common.Hash{}, fmt.Errorf("%w: node (%d, %d) misses its left sibling",
					index.ErrMalformedProof, h, item.index)
			}
			switch {
			case k+1 < len(layer) && layer[k+1].index == item.index+1:
				digest := common.HashBytes([]byte{tagBranch}, item.hash.ToBytes(), layer[k+1].hash.ToBytes())
				next = append(next, layerItem{item.index / 2, digest})
				k += 2
			case (item.index+1)<<h >= n:
				// The right sibling covers no leaves; the digest
				// passes through to the parent.
				next = append(next, layerItem{item.index / 2, item.hash})
				k++
			default:
				return common.Hash{}, fmt.Errorf("%w: node (%d, %d) misses its right sibling",
					index.ErrMalformedProof, h, item.index)
			}
		}
		layer = next
	}
	if len(layer) != 1 || layer[0].index != 0 {
		return common.Hash{}, fmt.Errorf("%w: proof does not assemble into a single root",
			index.ErrMalformedProof)
	}
	return layer[0].hash, nil
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
//	LEB128(length)
//	LEB128(#entries) then per entry LEB128(index) | LEB128(len) | bytes
//	LEB128(#hashes)  then per hash  height | LEB128(index) | digest

// MarshalBinary encodes the proof for transmission.
func (p *Proof) MarshalBinary() ([]byte, error) {
	buf := codec.AppendUleb128(nil, p.Length)
	buf = codec.AppendUleb128(buf, uint64(len(p.Entries)))
	for _, e := range p.Entries {
		buf = codec.AppendUleb128(buf, e.Index)
		buf = codec.AppendUleb128(buf, uint64(len(e.Value)))
		buf = append(buf, e.Value...)
	}
	buf = codec.AppendUleb128(buf, uint64(len(p.Hashes)))
	for _, h := range p.Hashes {
		buf = append(buf, h.Height)
		buf = codec.AppendUleb128(buf, h.Index)
		buf = append(buf, h.Hash.ToBytes()...)
	}
	return buf, nil
}

// UnmarshalBinary decodes a proof, rejecting any trailing garbage.
func (p *Proof) UnmarshalBinary(data []byte) error {
	r := proofReader{data: data}
	p.Length = r.uleb("length")
	p.Entries = nil
	for i, count := uint64(0), r.uleb("entry count"); i < count && r.err == nil; i++ {
		pos := r.uleb("entry index")
		value := r.bytes(r.uleb("entry size"), "entry value")
		p.Entries = append(p.Entries, Entry{Index: pos, Value: value})
	}
	p.Hashes = nil
	for i, count := uint64(0), r.uleb("hash count"); i < count && r.err == nil; i++ {
		height := r.byte("hash height")
		pos := r.uleb("hash index")
		var digest common.Hash
		digest.SetBytes(r.bytes(common.HashSize, "hash digest"))
		p.Hashes = append(p.Hashes, HashedEntry{Height: height, Index: pos, Hash: digest})
	}
	if r.err == nil && len(r.data) > 0 {
		r.err = fmt.Errorf("%w: %d trailing bytes", index.ErrMalformedProof, len(r.data))
	}
	return r.err
}

// proofReader consumes a proof encoding front to back, latching the
// first error.
type proofReader struct {
	data []byte
	err  error
}

func (r *proofReader) uleb(what string) uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := codec.Uleb128(r.data)
	if err != nil {
		r.err = fmt.Errorf("%w: %s: %v", index.ErrMalformedProof, what, err)
		return 0
	}
	r.data = r.data[n:]
	return v
}

func (r *proofReader) byte(what string) byte {
	b := r.bytes(1, what)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *proofReader) bytes(n uint64, what string) []byte {
	if r.err != nil {
		return nil
	}
	if uint64(len(r.data)) < n {
		r.err = fmt.Errorf("%w: %s truncated", index.ErrMalformedProof, what)
		return nil
	}
	out := make([]byte, n)
	copy(out, r.data[:n])
	r.data = r.data[n:]
	return out
}
