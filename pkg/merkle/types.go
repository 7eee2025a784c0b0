// Package merkle implements the binary Merkle commitment over a registered
// committee (spec.md §4.2): leaf hashing, single-leaf inclusion proofs, and
// batched inclusion proofs over an arbitrary set of leaf indices.
//
// Hashing uses keccak256 throughout (github.com/ethereum/go-ethereum/crypto),
// the same choice the teacher's merkle package makes for leaf and node
// hashing.
package merkle

// HashSize is the output length of the configured hash function.
const HashSize = 32

// Path is an ordered list of sibling hashes from a leaf to the root.
type Path [][HashSize]byte

// BatchPath is the minimal set of sibling hashes needed to recompute the
// root given the leaves at a sorted, deduplicated set of indices. It omits
// internal nodes that are recomputable from the supplied leaves themselves.
type BatchPath struct {
	Hashes [][HashSize]byte
}

// Tree is an immutable binary Merkle tree built over a fixed set of leaves,
// padded with a sentinel hash up to the next power of two.
type Tree struct {
	numLeaves int
	levels    [][][HashSize]byte // levels[0] is the padded leaf level
}
