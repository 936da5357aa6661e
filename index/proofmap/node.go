package proofmap

import (
	"fmt"

	"github.com/pavel-mukhanov/exonum/codec"
	"github.com/pavel-mukhanov/exonum/common"
)

// Domain-separation prefixes of the map hashing protocol. The root wrap
// commits the root node's own path; branch digests commit only the
// paths of their children.
const (
	tagMapRoot = 0x03
	tagMapNode = 0x04
)

// EmptyMapHash is the root digest of a map without entries.
var EmptyMapHash = common.Hash{}

// leafDigest commits a key together with the digest of its value.
func leafDigest(key []byte, valueDigest common.Hash) common.Hash {
	return common.HashBytes([]byte{tagMapNode}, key, valueDigest.ToBytes())
}

// branchDigest commits the absolute paths and digests of both children.
func branchDigest(left, right child) common.Hash {
	return common.HashBytes([]byte{tagMapNode}, branchRecord(left, right))
}

// rootDigest wraps the digest of the trie root with its path.
func rootDigest(path Path, digest common.Hash) common.Hash {
	return common.HashBytes([]byte{tagMapRoot}, path.Compact(nil), digest.ToBytes())
}

// child is one side of a branch node: the absolute path of the child
// node and its digest.
type child struct {
	path   Path
	digest common.Hash
}

// A branch record stores exactly the bytes its digest is computed over:
// compact left path, left digest, compact right path, right digest.
// Leaf records hold the 32-byte value digest instead; a branch record
// is at least 68 bytes, so the length tells the two kinds apart.
func branchRecord(left, right child) []byte {
	buf := left.path.Compact(nil)
	buf = append(buf, left.digest.ToBytes()...)
	buf = right.path.Compact(buf)
	return append(buf, right.digest.ToBytes()...)
}

func branchFromRecord(data []byte) (left, right child, err error) {
	if left, data, err = childFromRecord(data); err != nil {
		return left, right, err
	}
	if right, data, err = childFromRecord(data); err != nil {
		return left, right, err
	}
	if len(data) > 0 {
		return left, right, fmt.Errorf("%w: %d trailing bytes in a branch record", codec.ErrDecode, len(data))
	}
	return left, right, nil
}

func childFromRecord(data []byte) (child, []byte, error) {
	path, n, err := pathFromCompact(data)
	if err != nil {
		return child{}, nil, err
	}
	if len(data)-n < common.HashSize {
		return child{}, nil, fmt.Errorf("%w: branch record misses a child digest", codec.ErrDecode)
	}
	var digest common.Hash
	digest.SetBytes(data[n : n+common.HashSize])
	return child{path: path, digest: digest}, data[n+common.HashSize:], nil
}
