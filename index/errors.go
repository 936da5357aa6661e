package index

import "github.com/pavel-mukhanov/exonum/common"

// Proof verification error taxonomy, shared by the Merkle list and the
// Merkle map. Verification never resolves these internally; they are
// always returned to the caller.
const (
	// ErrHashMismatch reports that a structurally valid proof
	// recomputes to a different root digest than the claimed one.
	ErrHashMismatch = common.ConstError("proof does not match the root hash")

	// ErrMalformedProof reports structurally invalid proof input:
	// positions out of range, duplicate or unsorted entries, missing
	// siblings.
	ErrMalformedProof = common.ConstError("malformed proof")
)
