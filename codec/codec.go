// Package codec defines the canonical byte encoding contract for keys
// and values stored in authenticated collections.
//
// Every key type defines a deterministic, injective encoding; the order
// of keys is the byte-lexicographic order of their encodings, which is
// also the iteration order of collections and the source of trie bit
// paths. Decoding never substitutes defaults for malformed input; it
// fails with an error wrapping ErrDecode instead.
package codec

import "github.com/pavel-mukhanov/exonum/common"

// ErrDecode is wrapped by all errors reported for malformed or
// truncated input during key or value decoding.
const ErrDecode = common.ConstError("malformed encoding")

// KeyCodec describes the canonical encoding of a key type K.
type KeyCodec[K any] interface {
	// Size returns the exact encoded size of the key in bytes.
	Size(key K) int

	// Write stores the canonical encoding into buf and returns the
	// number of bytes written. The buffer must hold at least Size(key)
	// bytes. Callers use the returned count to validate length-prefixed
	// storage records.
	Write(key K, buf []byte) int

	// ToBytes returns the canonical encoding as a fresh slice.
	ToBytes(key K) []byte

	// Read decodes a key from its canonical encoding. The whole input
	// must be consumed; trailing or missing bytes are a decode error.
	Read(data []byte) (K, error)
}

// ValueCodec describes the canonical encoding of a value type V.
type ValueCodec[V any] interface {
	// ToBytes returns the canonical encoding as a fresh slice, leaving
	// the value untouched.
	ToBytes(value V) []byte

	// AppendTo appends the canonical encoding to dst and returns the
	// extended slice. This is the ownership-transfer variant of
	// ToBytes: the codec may capture dst's backing array.
	AppendTo(dst []byte, value V) []byte

	// FromBytes decodes a value from its canonical encoding.
	FromBytes(data []byte) (V, error)
}
