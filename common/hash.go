package common

import (
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/sha3"
)

// HashSize is the width in bytes of all digests produced by this package.
const HashSize = 32

// Hash is the fixed-width digest identifying a node or a collection state.
type Hash [HashSize]byte

// ToBytes returns the digest as a freshly allocated byte slice.
func (h Hash) ToBytes() []byte {
	return h[:]
}

// SetBytes assigns the digest from a slice and reports whether the
// slice had the expected width.
func (h *Hash) SetBytes(b []byte) bool {
	if len(b) != HashSize {
		return false
	}
	copy(h[:], b)
	return true
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

var hasherPool = sync.Pool{New: func() any { return sha3.NewLegacyKeccak256() }}

type poolHasher interface {
	Reset()
	Write(in []byte) (int, error)
	Read(out []byte) (int, error)
}

// HashBytes computes the Keccak256 digest over the concatenation of the
// given chunks. The chunks are fed to the hasher in order, so
// HashBytes(a, b) == HashBytes(ab).
func HashBytes(chunks ...[]byte) Hash {
	hasher := hasherPool.Get().(poolHasher)
	hasher.Reset()
	for _, chunk := range chunks {
		hasher.Write(chunk)
	}
	var res Hash
	hasher.Read(res[:])
	hasherPool.Put(hasher)
	return res
}
