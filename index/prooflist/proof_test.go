package prooflist_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pavel-mukhanov/exonum/common"
	"github.com/pavel-mukhanov/exonum/index"
	"github.com/pavel-mukhanov/exonum/index/prooflist"
)

func leaf(value string) common.Hash {
	return common.HashBytes([]byte{0x00}, []byte(value))
}

func branch(left, right common.Hash) common.Hash {
	return common.HashBytes([]byte{0x01}, left.ToBytes(), right.ToBytes())
}

func TestProofRoot_HandBuilt(t *testing.T) {
	t.Run("single element", func(t *testing.T) {
		proof := &prooflist.Proof{
			Length:  1,
			Entries: []prooflist.Entry{{Index: 0, Value: []byte("a")}},
		}
		root, err := proof.Root()
		require.NoError(t, err)
		require.Equal(t, leaf("a"), root)
	})

	t.Run("pair of elements", func(t *testing.T) {
		proof := &prooflist.Proof{
			Length: 2,
			Entries: []prooflist.Entry{
				{Index: 0, Value: []byte("a")},
				{Index: 1, Value: []byte("b")},
			},
		}
		root, err := proof.Root()
		require.NoError(t, err)
		require.Equal(t, branch(leaf("a"), leaf("b")), root)
	})

	t.Run("odd tail passes through", func(t *testing.T) {
		proof := &prooflist.Proof{
			Length: 3,
			Entries: []prooflist.Entry{{Index: 2, Value: []byte("c")}},
			Hashes: []prooflist.HashedEntry{
				{Height: 1, Index: 0, Hash: branch(leaf("a"), leaf("b"))},
			},
		}
		root, err := proof.Root()
		require.NoError(t, err)
		require.Equal(t, branch(branch(leaf("a"), leaf("b")), leaf("c")), root)
	})
}

func TestProofRoot_Malformed(t *testing.T) {
	tests := map[string]*prooflist.Proof{
		"entry outside the list": {
			Length:  2,
			Entries: []prooflist.Entry{{Index: 2, Value: []byte("x")}},
		},
		"hash node outside the tree": {
			Length:  2,
			Entries: []prooflist.Entry{{Index: 0, Value: []byte("a")}},
			Hashes:  []prooflist.HashedEntry{{Height: 5, Index: 0, Hash: leaf("b")}},
		},
		"duplicated element": {
			Length: 2,
			Entries: []prooflist.Entry{
				{Index: 0, Value: []byte("a")},
				{Index: 0, Value: []byte("a")},
			},
		},
		"element and hash at the same position": {
			Length:  2,
			Entries: []prooflist.Entry{{Index: 0, Value: []byte("a")}, {Index: 1, Value: []byte("b")}},
			Hashes:  []prooflist.HashedEntry{{Height: 0, Index: 1, Hash: leaf("b")}},
		},
		"missing left sibling": {
			Length: 2,
			Hashes: []prooflist.HashedEntry{{Height: 0, Index: 1, Hash: leaf("b")}},
		},
		"missing right sibling": {
			Length:  2,
			Entries: []prooflist.Entry{{Index: 0, Value: []byte("a")}},
		},
		"covering hash conflicts with an element": {
			Length:  2,
			Entries: []prooflist.Entry{{Index: 0, Value: []byte("a")}},
			Hashes:  []prooflist.HashedEntry{{Height: 1, Index: 0, Hash: leaf("x")}},
		},
		"hash node with a wrapped index": {
			Length:  4,
			Entries: []prooflist.Entry{{Index: 0, Value: []byte("a")}},
			Hashes:  []prooflist.HashedEntry{{Height: 2, Index: 1 << 62, Hash: leaf("b")}},
		},
		"items in a proof for the empty list": {
			Length: 0,
			Hashes: []prooflist.HashedEntry{{Height: 0, Index: 0, Hash: leaf("a")}},
		},
	}
	for name, proof := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := proof.Root()
			require.ErrorIs(t, err, index.ErrMalformedProof)
		})
	}
}
