// Package proofmap implements a Merkelized key-value map: a binary
// Patricia trie over the bit paths of canonical key encodings, with
// every node digest folded into a single root digest. Membership and
// non-membership of a key can be proven against the root without access
// to the stored collection.
package proofmap

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/pavel-mukhanov/exonum/codec"
)

// Path is an immutable bit string addressing a trie node: the sequence
// of branch choices from the root, most significant bit of each byte
// first. A leaf's path is the full bit sequence of its key encoding.
// Bits past the length are kept zero, so equal paths are byte-equal.
type Path struct {
	data []byte
	bits int
}

// PathFromKey returns the full bit path of a canonical key encoding.
func PathFromKey(key []byte) Path {
	data := make([]byte, len(key))
	copy(data, key)
	return Path{data: data, bits: 8 * len(key)}
}

// BitLen returns the number of bits in the path.
func (p Path) BitLen() int {
	return p.bits
}

// Bit returns the bit at position i, the root-most bit being 0.
func (p Path) Bit(i int) byte {
	return p.data[i/8] >> (7 - i%8) & 1
}

// Prefix returns the path truncated to n bits.
func (p Path) Prefix(n int) Path {
	if n >= p.bits {
		return p
	}
	data := make([]byte, (n+7)/8)
	copy(data, p.data)
	if n%8 != 0 {
		data[len(data)-1] &= byte(0xff) << (8 - n%8)
	}
	return Path{data: data, bits: n}
}

// KeyBytes returns the key encoding a leaf path spells. The path length
// must be a multiple of 8.
func (p Path) KeyBytes() []byte {
	return p.data[:p.bits/8]
}

// CommonPrefixLen returns the number of leading bits shared with o.
func (p Path) CommonPrefixLen(o Path) int {
	limit := p.bits
	if o.bits < limit {
		limit = o.bits
	}
	common := 0
	for i := 0; common < limit; i++ {
		if diff := p.data[i] ^ o.data[i]; diff != 0 {
			common += bits.LeadingZeros8(diff)
			break
		}
		common += 8
	}
	if common > limit {
		common = limit
	}
	return common
}

// IsPrefixOf reports whether every bit of p opens o.
func (p Path) IsPrefixOf(o Path) bool {
	return p.bits <= o.bits && p.CommonPrefixLen(o) == p.bits
}

// Equal reports whether the paths spell the same bit sequence.
func (p Path) Equal(o Path) bool {
	return p.bits == o.bits && p.CommonPrefixLen(o) == p.bits
}

// Compare orders paths bit-lexicographically: a proper prefix sorts
// before its extensions; otherwise the first divergent bit decides.
func (p Path) Compare(o Path) int {
	common := p.CommonPrefixLen(o)
	switch {
	case common < p.bits && common < o.bits:
		return int(p.Bit(common)) - int(o.Bit(common))
	case p.bits < o.bits:
		return -1
	case p.bits > o.bits:
		return 1
	}
	return 0
}

// Compact appends the canonical path encoding to dst: the bit length as
// LEB128 followed by the packed bits.
func (p Path) Compact(dst []byte) []byte {
	dst = codec.AppendUleb128(dst, uint64(p.bits))
	return append(dst, p.data...)
}

// pathFromCompact decodes a compact path from the front of data,
// returning the number of bytes consumed. Unused trailing bits of the
// last byte must be zero, keeping the encoding injective.
func pathFromCompact(data []byte) (Path, int, error) {
	length, n, err := codec.Uleb128(data)
	if err != nil {
		return Path{}, 0, fmt.Errorf("path bit length: %w", err)
	}
	if length > uint64(8*len(data[n:])) {
		return Path{}, 0, fmt.Errorf("%w: path of %d bits truncated", codec.ErrDecode, length)
	}
	size := (int(length) + 7) / 8
	raw := make([]byte, size)
	copy(raw, data[n:n+size])
	if length%8 != 0 && raw[size-1]&^(byte(0xff)<<(8-length%8)) != 0 {
		return Path{}, 0, fmt.Errorf("%w: nonzero bits past the path length", codec.ErrDecode)
	}
	return Path{data: raw, bits: int(length)}, n + size, nil
}

// String renders the path as a bit string for diagnostics.
func (p Path) String() string {
	var sb strings.Builder
	for i := 0; i < p.bits; i++ {
		sb.WriteByte('0' + p.Bit(i))
	}
	return sb.String()
}
