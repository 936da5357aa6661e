package proofmap_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pavel-mukhanov/exonum/backend"
	"github.com/pavel-mukhanov/exonum/backend/memorydb"
	"github.com/pavel-mukhanov/exonum/codec"
	"github.com/pavel-mukhanov/exonum/common"
	"github.com/pavel-mukhanov/exonum/index"
	"github.com/pavel-mukhanov/exonum/index/proofmap"
)

func newTestMap(t *testing.T) *proofmap.Map[string, string] {
	t.Helper()
	fork := backend.NewFork(memorydb.NewDatabase())
	m, err := proofmap.New[string, string](
		index.NewView(fork, "test"), codec.StringCodec{}, codec.StringCodec{})
	if err != nil {
		t.Fatalf("failed to create map: %v", err)
	}
	return m
}

func put(t *testing.T, m *proofmap.Map[string, string], pairs map[string]string, order []string) {
	t.Helper()
	for _, key := range order {
		if err := m.Put(key, pairs[key]); err != nil {
			t.Fatalf("failed to put %q: %v", key, err)
		}
	}
}

func rootOf(t *testing.T, m *proofmap.Map[string, string]) common.Hash {
	t.Helper()
	root, err := m.RootHash()
	if err != nil {
		t.Fatalf("failed to get root: %v", err)
	}
	return root
}

var testPairs = map[string]string{
	"alpha": "1", "beta": "2", "gamma": "3", "delta": "4", "epsilon": "5",
}

func pairKeys() []string {
	return []string{"alpha", "beta", "gamma", "delta", "epsilon"}
}

func TestMap_PutGetRemove(t *testing.T) {
	m := newTestMap(t)
	put(t, m, testPairs, pairKeys())

	if n, err := m.Len(); err != nil || n != 5 {
		t.Fatalf("got length %d, %v, want 5", n, err)
	}
	for key, want := range testPairs {
		got, ok, err := m.Get(key)
		if err != nil || !ok {
			t.Fatalf("failed to get %q: %t, %v", key, ok, err)
		}
		if got != want {
			t.Errorf("value of %q is %q, want %q", key, got, want)
		}
	}
	if ok, err := m.Contains("zeta"); ok || err != nil {
		t.Errorf("contains an absent key: %t, %v", ok, err)
	}

	if err := m.Remove("beta"); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}
	if ok, err := m.Contains("beta"); ok || err != nil {
		t.Errorf("still contains a removed key: %t, %v", ok, err)
	}
	if n, err := m.Len(); err != nil || n != 4 {
		t.Errorf("got length %d, %v after removal, want 4", n, err)
	}
	// Removing an absent key changes nothing.
	before := rootOf(t, m)
	if err := m.Remove("beta"); err != nil {
		t.Fatalf("failed to remove an absent key: %v", err)
	}
	if after := rootOf(t, m); after != before {
		t.Errorf("root changed by removing an absent key")
	}
}

func TestMap_RootIndependentOfInsertionOrder(t *testing.T) {
	keys := pairKeys()
	orders := [][]string{
		{"alpha", "beta", "gamma", "delta", "epsilon"},
		{"epsilon", "delta", "gamma", "beta", "alpha"},
		{"gamma", "alpha", "epsilon", "beta", "delta"},
	}
	reference := func() common.Hash {
		m := newTestMap(t)
		put(t, m, testPairs, keys)
		return rootOf(t, m)
	}()
	for _, order := range orders {
		m := newTestMap(t)
		put(t, m, testPairs, order)
		if root := rootOf(t, m); root != reference {
			t.Errorf("insertion order %v produced root %v, want %v", order, root, reference)
		}
	}
	// Overwrites along the way do not leak into the root either.
	m := newTestMap(t)
	if err := m.Put("alpha", "stale"); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	put(t, m, testPairs, keys)
	if root := rootOf(t, m); root != reference {
		t.Errorf("overwritten map produced root %v, want %v", root, reference)
	}
}

func TestMap_RemoveRestoresRoot(t *testing.T) {
	m := newTestMap(t)
	pairs := map[string]string{"a-key": "1", "b-key": "2", "c-key": "3"}
	put(t, m, pairs, []string{"a-key", "b-key", "c-key"})
	full := rootOf(t, m)

	if err := m.Remove("b-key"); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}
	if root := rootOf(t, m); root == full {
		t.Fatalf("root unchanged by a removal")
	}
	if err := m.Put("b-key", "2"); err != nil {
		t.Fatalf("failed to re-insert: %v", err)
	}
	if root := rootOf(t, m); root != full {
		t.Errorf("got root %v after re-insertion, want %v", root, full)
	}
}

func TestMap_EmptyAfterRemovingEverything(t *testing.T) {
	m := newTestMap(t)
	put(t, m, testPairs, pairKeys())
	for _, key := range pairKeys() {
		if err := m.Remove(key); err != nil {
			t.Fatalf("failed to remove %q: %v", key, err)
		}
	}
	if root := rootOf(t, m); root != proofmap.EmptyMapHash {
		t.Errorf("got root %v after removing everything, want the empty map hash", root)
	}
	if n, err := m.Len(); err != nil || n != 0 {
		t.Errorf("got length %d, %v after removing everything", n, err)
	}
}

func TestMap_PrefixKeysRejected(t *testing.T) {
	m := newTestMap(t)
	if err := m.Put("ab", "1"); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	if err := m.Put("abc", "2"); !errors.Is(err, proofmap.ErrKeyPrefix) {
		t.Errorf("got %v extending an existing key, want a prefix error", err)
	}
	if err := m.Put("a", "3"); !errors.Is(err, proofmap.ErrKeyPrefix) {
		t.Errorf("got %v inserting a prefix of an existing key, want a prefix error", err)
	}
	// The failed insertions left no trace.
	if n, err := m.Len(); err != nil || n != 1 {
		t.Errorf("got length %d, %v after rejected insertions", n, err)
	}
	if ok, err := m.Contains("a"); ok || err != nil {
		t.Errorf("contains a rejected key: %t, %v", ok, err)
	}
}

func TestMap_EntriesOrderedByKey(t *testing.T) {
	m := newTestMap(t)
	put(t, m, testPairs, pairKeys())

	want := []string{"alpha", "beta", "delta", "epsilon", "gamma"}
	it := m.Entries()
	defer it.Release()
	var got []string
	for it.Next() {
		got = append(got, it.Key())
		if it.Value() != testPairs[it.Key()] {
			t.Errorf("value of %q is %q, want %q", it.Key(), it.Value(), testPairs[it.Key()])
		}
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got keys %v, want %v", got, want)
	}

	keys := m.Keys()
	defer keys.Release()
	got = nil
	for keys.Next() {
		got = append(got, keys.Key())
	}
	if err := keys.Error(); err != nil {
		t.Fatalf("key iteration failed: %v", err)
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got keys %v, want %v", got, want)
	}
}

func TestMap_TypeGuardsAgainstListMetadata(t *testing.T) {
	fork := backend.NewFork(memorydb.NewDatabase())
	view := index.NewView(fork, "shared")
	view.SetState(index.State{Type: index.TypeProofList})
	defer func() {
		if recover() == nil {
			t.Errorf("binding a map over list metadata did not panic")
		}
	}()
	proofmap.New[string, string](view, codec.StringCodec{}, codec.StringCodec{}) //nolint:errcheck
}

func TestMapProof_Existence(t *testing.T) {
	m := newTestMap(t)
	put(t, m, testPairs, pairKeys())
	root := rootOf(t, m)

	for key, value := range testPairs {
		proof, err := m.BuildProof(key)
		if err != nil {
			t.Fatalf("failed to prove %q: %v", key, err)
		}
		if string(proof.Key) != key || string(proof.Value) != value {
			t.Fatalf("proof claims (%q, %q), want (%q, %q)", proof.Key, proof.Value, key, value)
		}
		if err := proof.Verify(root); err != nil {
			t.Errorf("proof of %q rejected: %v", key, err)
		}
	}
}

func TestMapProof_Absence(t *testing.T) {
	m := newTestMap(t)
	put(t, m, testPairs, pairKeys())
	root := rootOf(t, m)

	for _, key := range []string{"zeta", "omega", "alphb", "bet"} {
		proof, err := m.BuildProof(key)
		if err != nil {
			t.Fatalf("failed to prove absence of %q: %v", key, err)
		}
		if proof.Value != nil {
			t.Fatalf("absence proof of %q carries a value", key)
		}
		if err := proof.Verify(root); err != nil {
			t.Errorf("absence proof of %q rejected: %v", key, err)
		}
	}
}

func TestMapProof_SingleEntryMap(t *testing.T) {
	m := newTestMap(t)
	if err := m.Put("only", "value"); err != nil {
		t.Fatalf("failed to put: %v", err)
	}
	root := rootOf(t, m)

	proof, err := m.BuildProof("only")
	if err != nil {
		t.Fatalf("failed to prove: %v", err)
	}
	if err := proof.Verify(root); err != nil {
		t.Errorf("proof rejected: %v", err)
	}
	absent, err := m.BuildProof("other")
	if err != nil {
		t.Fatalf("failed to prove absence: %v", err)
	}
	if err := absent.Verify(root); err != nil {
		t.Errorf("absence proof rejected: %v", err)
	}
}

func TestMapProof_EmptyMap(t *testing.T) {
	m := newTestMap(t)
	proof, err := m.BuildProof("anything")
	if err != nil {
		t.Fatalf("failed to prove: %v", err)
	}
	if err := proof.Verify(proofmap.EmptyMapHash); err != nil {
		t.Errorf("proof rejected: %v", err)
	}
	if err := proof.Verify(common.HashBytes([]byte("x"))); !errors.Is(err, index.ErrHashMismatch) {
		t.Errorf("got %v against a wrong root, want a hash mismatch", err)
	}
}

func TestMapProof_WrongRootFails(t *testing.T) {
	m := newTestMap(t)
	put(t, m, testPairs, pairKeys())
	proof, err := m.BuildProof("alpha")
	if err != nil {
		t.Fatalf("failed to prove: %v", err)
	}
	if err := proof.Verify(common.HashBytes([]byte("other"))); !errors.Is(err, index.ErrHashMismatch) {
		t.Errorf("got %v, want a hash mismatch", err)
	}
}

func TestMapProof_RetargetedAbsenceFails(t *testing.T) {
	m := newTestMap(t)
	put(t, m, testPairs, pairKeys())
	root := rootOf(t, m)

	proof, err := m.BuildProof("zeta")
	if err != nil {
		t.Fatalf("failed to prove absence: %v", err)
	}
	// Re-aiming a valid absence proof at a present key must fail: the
	// entry covering that key's leaf gives it away.
	proof.Key = []byte("gamma")
	if err := proof.Verify(root); !errors.Is(err, index.ErrMalformedProof) {
		t.Errorf("got %v, want malformed", err)
	}
}

func TestMapProof_ForgedRootEntryFails(t *testing.T) {
	m := newTestMap(t)
	put(t, m, testPairs, pairKeys())
	root := rootOf(t, m)

	// A single entry claiming the trusted digest at an arbitrary path
	// must not prove anything: the root wrap commits the real root
	// path.
	forged := &proofmap.Proof{
		Key: []byte("gamma"),
		Entries: []proofmap.ProofEntry{
			{Path: proofmap.PathFromKey([]byte{0xff}), Hash: root},
		},
	}
	if err := forged.Verify(root); err == nil {
		t.Errorf("a forged absence proof verified")
	}
}

func TestMapProof_MarshalRoundTrip(t *testing.T) {
	m := newTestMap(t)
	put(t, m, testPairs, pairKeys())
	root := rootOf(t, m)

	for _, key := range []string{"gamma", "zeta"} {
		proof, err := m.BuildProof(key)
		if err != nil {
			t.Fatalf("failed to prove %q: %v", key, err)
		}
		data, err := proof.MarshalBinary()
		if err != nil {
			t.Fatalf("failed to encode: %v", err)
		}
		var restored proofmap.Proof
		if err := restored.UnmarshalBinary(data); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if string(restored.Key) != key {
			t.Fatalf("decoded proof claims key %q, want %q", restored.Key, key)
		}
		if (restored.Value == nil) != (proof.Value == nil) {
			t.Fatalf("decoded proof changed the presence claim for %q", key)
		}
		if err := restored.Verify(root); err != nil {
			t.Errorf("decoded proof of %q rejected: %v", key, err)
		}
		if err := restored.UnmarshalBinary(append(data, 0)); !errors.Is(err, index.ErrMalformedProof) {
			t.Errorf("got %v decoding trailing garbage, want malformed", err)
		}
	}
}

func TestMapProof_CorruptionDetected(t *testing.T) {
	m := newTestMap(t)
	put(t, m, testPairs, pairKeys())
	root := rootOf(t, m)

	proof, err := m.BuildProof("gamma")
	if err != nil {
		t.Fatalf("failed to prove: %v", err)
	}
	data, err := proof.MarshalBinary()
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	for i := range data {
		for bit := 0; bit < 8; bit++ {
			corrupt := make([]byte, len(data))
			copy(corrupt, data)
			corrupt[i] ^= 1 << bit
			var restored proofmap.Proof
			if err := restored.UnmarshalBinary(corrupt); err != nil {
				continue
			}
			if err := restored.Verify(root); err != nil {
				continue
			}
			// The encoding is injective, so a changed byte either
			// fails to decode, fails to verify, or alters the claim.
			if string(restored.Key) != "gamma" || string(restored.Value) != "3" {
				t.Fatalf("flipping bit %d of byte %d changed the claim to (%q, %q) yet verified",
					bit, i, restored.Key, restored.Value)
			}
			t.Fatalf("flipping bit %d of byte %d went undetected", bit, i)
		}
	}
}

func TestMapProof_HugeKeyLengthRejected(t *testing.T) {
	// A ten-byte varint carrying the maximum uint64 as the key length.
	// The decoder must reject it instead of sizing a slice from it.
	data := codec.AppendUleb128(nil, ^uint64(0))
	var restored proofmap.Proof
	if err := restored.UnmarshalBinary(data); !errors.Is(err, index.ErrMalformedProof) {
		t.Errorf("decoding a proof with a 2^64-1 key length: got %v, want %v",
			err, index.ErrMalformedProof)
	}
}
