// Package clerk implements the Clerk/Aggregator role (spec.md §4.6):
// collecting individual signer signatures into a compact aggregate with a
// batched Merkle inclusion proof, and verifying such an aggregate against
// an aggregate verification key.
package clerk

import (
	"github.com/stm-network/stm-go/pkg/merkle"
	"github.com/stm-network/stm-go/pkg/signer"
)

// AggregateKey is the aggregate verification key (spec.md §3, "Aggregate
// VK"): the committee's Merkle root, its signer count (needed to replay
// the batched-proof traversal; not recoverable from the root alone), and
// its total stake.
type AggregateKey struct {
	Root       [merkle.HashSize]byte
	NumSigners int
	TotalStake uint64
}

// Aggregate is the compact output of Aggregate: exactly K single
// signatures at distinct, ascending lottery indices, each without its
// individual Merkle path, plus one batched Merkle proof covering every
// participating signer index.
type Aggregate struct {
	Signatures []signer.Signature
	BatchProof merkle.BatchPath
}
