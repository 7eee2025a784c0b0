// Package registration implements the key-registration state machine: an
// Open registry accepts verification keys guarded by proofs of possession,
// and Close snapshots it into an immutable Closed registry with a fixed
// signer ordering, an aggregate verification key, and a Merkle commitment
// over the (verification key, stake) registry.
package registration

import (
	"fmt"
	"sync"

	"github.com/stm-network/stm-go/pkg/bls"
	"github.com/stm-network/stm-go/pkg/merkle"
	"github.com/stm-network/stm-go/pkg/stmerrors"
)

// Entry is one registered signer: its verification key and stake, in the
// order it was accepted.
type Entry struct {
	VerificationKey bls.VerificationKey
	Stake           uint64
}

// Open accumulates registrants before a run's signer set is fixed.
// Registration order determines the signer index every other component
// (signing, Merkle proofs, lottery indices) refers to a signer by.
type Open struct {
	mu      sync.Mutex
	entries []Entry
	seen    map[[bls.SizeG2]byte]int

	closeOnce sync.Once
	closed    *Closed
}

// NewOpen returns an empty registry ready to accept registrants.
func NewOpen() *Open {
	return &Open{seen: make(map[[bls.SizeG2]byte]int)}
}

// Register adds vk with the given stake, after checking pop verifies
// against vk. Registering the same verification key twice, after the
// registry has closed, or with zero stake, is rejected.
func (o *Open) Register(vk bls.VerificationKey, stake uint64, pop bls.ProofOfPossession) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed != nil {
		return 0, stmerrors.ErrAlreadyClosed
	}
	if stake == 0 {
		return 0, stmerrors.ErrStakeZero
	}
	if !bls.VerifyProofOfPossession(vk, pop) {
		return 0, stmerrors.ErrProofOfPossessionInvalid
	}

	key := vk.Bytes32()
	if _, ok := o.seen[key]; ok {
		return 0, stmerrors.ErrKeyAlreadyRegistered
	}

	index := len(o.entries)
	o.entries = append(o.entries, Entry{VerificationKey: vk, Stake: stake})
	o.seen[key] = index
	return index, nil
}

// Len reports how many signers have registered so far.
func (o *Open) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

// Close fixes the registry's signer set and returns the immutable snapshot.
// Close is idempotent: calling it more than once returns the same Closed
// value, built only once.
func (o *Open) Close() (*Closed, error) {
	o.mu.Lock()
	entries := append([]Entry(nil), o.entries...)
	o.mu.Unlock()

	var buildErr error
	o.closeOnce.Do(func() {
		c, err := newClosed(entries)
		if err != nil {
			buildErr = err
			return
		}
		o.mu.Lock()
		o.closed = c
		o.mu.Unlock()
	})
	if buildErr != nil {
		return nil, buildErr
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed == nil {
		return nil, fmt.Errorf("registration: close did not produce a snapshot")
	}
	return o.closed, nil
}

// Closed is an immutable, ordered registry snapshot: every signer's index,
// stake, and Merkle leaf position are fixed for the rest of the run.
type Closed struct {
	entries    []Entry
	index      map[[bls.SizeG2]byte]int
	tree       *merkle.Tree
	totalStake uint64
	aggregate  bls.VerificationKey
}

func newClosed(entries []Entry) (*Closed, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("registration: cannot close an empty registry")
	}

	leaves := make([][merkle.HashSize]byte, len(entries))
	vks := make([]bls.VerificationKey, len(entries))
	index := make(map[[bls.SizeG2]byte]int, len(entries))
	var total uint64
	for i, e := range entries {
		leaves[i] = merkle.LeafHash(e.VerificationKey.Marshal(), e.Stake)
		vks[i] = e.VerificationKey
		index[e.VerificationKey.Bytes32()] = i
		total += e.Stake
	}

	tree, err := merkle.New(leaves)
	if err != nil {
		return nil, fmt.Errorf("registration: building commitment tree: %w", err)
	}

	return &Closed{
		entries:    entries,
		index:      index,
		tree:       tree,
		totalStake: total,
		aggregate:  bls.AggregateVerificationKeys(vks),
	}, nil
}

// NumSigners returns the number of registered signers.
func (c *Closed) NumSigners() int { return len(c.entries) }

// TotalStake returns the sum of every registered signer's stake.
func (c *Closed) TotalStake() uint64 { return c.totalStake }

// Root returns the Merkle root over the (verification key, stake) registry.
func (c *Closed) Root() [merkle.HashSize]byte { return c.tree.Root() }

// AggregateVerificationKey returns the sum of every registered
// verification key.
func (c *Closed) AggregateVerificationKey() bls.VerificationKey { return c.aggregate }

// IndexOf returns the signer index vk was registered at.
func (c *Closed) IndexOf(vk bls.VerificationKey) (int, bool) {
	i, ok := c.index[vk.Bytes32()]
	return i, ok
}

// Entry returns the registered verification key and stake at index i.
func (c *Closed) Entry(i int) (Entry, error) {
	if i < 0 || i >= len(c.entries) {
		return Entry{}, fmt.Errorf("registration: index %d out of range [0,%d)", i, len(c.entries))
	}
	return c.entries[i], nil
}

// Prove returns the Merkle inclusion path for signer index i.
func (c *Closed) Prove(i int) (merkle.Path, error) {
	return c.tree.Prove(i)
}

// ProveBatch returns the minimal batched Merkle inclusion proof for the
// given signer indices.
func (c *Closed) ProveBatch(indices []int) (merkle.BatchPath, error) {
	return c.tree.ProveBatch(indices)
}

// Leaf returns the committed leaf hash for signer index i.
func (c *Closed) Leaf(i int) ([merkle.HashSize]byte, error) {
	return c.tree.Leaf(i)
}
