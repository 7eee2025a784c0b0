package merkle

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
)

// sentinel pads a leaf level to a power of two. The all-zero value never
// collides with a real keccak256 output with overwhelming probability, and
// the tree never treats a sentinel position as a genuine leaf (Prove and
// ProveBatch only ever accept indices below numLeaves).
var sentinel [HashSize]byte

// LeafHash computes the committed leaf hash H(vkBytes || stake_le), the
// exact byte layout spec.md §4.2 specifies.
func LeafHash(vkBytes []byte, stake uint64) [HashSize]byte {
	buf := make([]byte, len(vkBytes)+8)
	copy(buf, vkBytes)
	binary.LittleEndian.PutUint64(buf[len(vkBytes):], stake)
	return crypto.Keccak256Hash(buf)
}

func hashPair(left, right [HashSize]byte) [HashSize]byte {
	buf := make([]byte, 2*HashSize)
	copy(buf[:HashSize], left[:])
	copy(buf[HashSize:], right[:])
	return crypto.Keccak256Hash(buf)
}

// treeHeight returns the number of levels above the leaf level for n
// leaves (n >= 1), i.e. the padded leaf count is 1<<treeHeight(n).
func treeHeight(n int) int {
	if n <= 1 {
		return 0
	}
	h, size := 0, 1
	for size < n {
		size <<= 1
		h++
	}
	return h
}

// New builds a tree over the given leaf hashes. Leaf order is the caller's
// responsibility (pkg/registration fixes it at registry closure).
func New(leaves [][HashSize]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("merkle: cannot build a tree with zero leaves")
	}

	height := treeHeight(len(leaves))
	padded := 1 << height
	level := make([][HashSize]byte, padded)
	copy(level, leaves)
	for i := len(leaves); i < padded; i++ {
		level[i] = sentinel
	}

	levels := make([][][HashSize]byte, 0, height+1)
	levels = append(levels, level)
	for len(level) > 1 {
		next := make([][HashSize]byte, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = hashPair(level[i], level[i+1])
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{numLeaves: len(leaves), levels: levels}, nil
}

// Root returns the tree's root hash.
func (t *Tree) Root() [HashSize]byte {
	return t.levels[len(t.levels)-1][0]
}

// NumLeaves returns the number of real (unpadded) leaves.
func (t *Tree) NumLeaves() int {
	return t.numLeaves
}

// Leaf returns the hash stored at leaf index i.
func (t *Tree) Leaf(i int) ([HashSize]byte, error) {
	if i < 0 || i >= t.numLeaves {
		return [HashSize]byte{}, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", i, t.numLeaves)
	}
	return t.levels[0][i], nil
}

// Prove returns the sibling path from leaf i to the root.
func (t *Tree) Prove(i int) (Path, error) {
	if i < 0 || i >= t.numLeaves {
		return nil, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", i, t.numLeaves)
	}
	path := make(Path, 0, len(t.levels)-1)
	idx := i
	for level := 0; level < len(t.levels)-1; level++ {
		sibling := idx ^ 1
		path = append(path, t.levels[level][sibling])
		idx /= 2
	}
	return path, nil
}

// VerifyPath checks that leaf reconstructs root at index i via path.
func VerifyPath(root [HashSize]byte, i int, leaf [HashSize]byte, path Path) bool {
	if i < 0 {
		return false
	}
	cur := leaf
	idx := i
	for _, sibling := range path {
		if idx%2 == 0 {
			cur = hashPair(cur, sibling)
		} else {
			cur = hashPair(sibling, cur)
		}
		idx /= 2
	}
	return cur == root
}

// activeEntry is a (position, hash) pair tracked while walking the tree
// level by level during batched proof construction/verification.
type activeEntry struct {
	pos  int
	hash [HashSize]byte
}

// ProveBatch returns the minimal sibling-hash set needed to recompute the
// root given the leaves at indices (spec.md §4.2): at each level, sibling
// positions both present in the active set combine directly; any unpaired
// active position consumes one sibling hash from the batch path.
func (t *Tree) ProveBatch(indices []int) (BatchPath, error) {
	active, err := sortDedupIndices(indices, t.numLeaves)
	if err != nil {
		return BatchPath{}, err
	}

	var proof [][HashSize]byte
	for level := 0; level < len(t.levels)-1; level++ {
		next := make([]int, 0, (len(active)+1)/2)
		i := 0
		for i < len(active) {
			pos := active[i]
			siblingPos := pos ^ 1
			if i+1 < len(active) && active[i+1] == siblingPos {
				i += 2
			} else {
				proof = append(proof, t.levels[level][siblingPos])
				i++
			}
			next = appendUnique(next, pos/2)
		}
		active = next
	}
	return BatchPath{Hashes: proof}, nil
}

// VerifyBatch checks a batched inclusion proof against root. numLeaves is
// the committed committee size (not recoverable from root alone), carried
// alongside the root by the caller (pkg/clerk.AggregateKey).
func VerifyBatch(root [HashSize]byte, numLeaves int, indices []int, leaves [][HashSize]byte, batch BatchPath) bool {
	if numLeaves <= 0 || len(indices) != len(leaves) || len(indices) == 0 {
		return false
	}
	sorted, err := sortDedupPairs(indices, leaves, numLeaves)
	if err != nil {
		return false
	}

	active := make([]activeEntry, len(sorted))
	copy(active, sorted)

	height := treeHeight(numLeaves)
	hi := 0
	for level := 0; level < height; level++ {
		next := make([]activeEntry, 0, (len(active)+1)/2)
		i := 0
		for i < len(active) {
			pos := active[i].pos
			siblingPos := pos ^ 1
			var siblingHash [HashSize]byte
			paired := i+1 < len(active) && active[i+1].pos == siblingPos
			if paired {
				siblingHash = active[i+1].hash
			} else {
				if hi >= len(batch.Hashes) {
					return false
				}
				siblingHash = batch.Hashes[hi]
				hi++
			}

			var parentHash [HashSize]byte
			if pos%2 == 0 {
				parentHash = hashPair(active[i].hash, siblingHash)
			} else {
				parentHash = hashPair(siblingHash, active[i].hash)
			}
			next = append(next, activeEntry{pos: pos / 2, hash: parentHash})

			if paired {
				i += 2
			} else {
				i++
			}
		}
		active = next
	}

	if hi != len(batch.Hashes) || len(active) != 1 {
		return false
	}
	return active[0].hash == root
}

func sortDedupIndices(indices []int, numLeaves int) ([]int, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("merkle: batch proof requires at least one index")
	}
	out := append([]int(nil), indices...)
	sort.Ints(out)
	deduped := out[:0]
	for i, idx := range out {
		if idx < 0 || idx >= numLeaves {
			return nil, fmt.Errorf("merkle: index %d out of range [0,%d)", idx, numLeaves)
		}
		if i > 0 && idx == out[i-1] {
			continue
		}
		deduped = append(deduped, idx)
	}
	return deduped, nil
}

func sortDedupPairs(indices []int, leaves [][HashSize]byte, numLeaves int) ([]activeEntry, error) {
	pairs := make([]activeEntry, len(indices))
	for i, idx := range indices {
		pairs[i] = activeEntry{pos: idx, hash: leaves[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].pos < pairs[j].pos })
	for i, p := range pairs {
		if p.pos < 0 || p.pos >= numLeaves {
			return nil, fmt.Errorf("merkle: index %d out of range [0,%d)", p.pos, numLeaves)
		}
		if i > 0 && p.pos == pairs[i-1].pos {
			return nil, fmt.Errorf("merkle: duplicate index %d in batch", p.pos)
		}
	}
	return pairs, nil
}

func appendUnique(s []int, v int) []int {
	if len(s) > 0 && s[len(s)-1] == v {
		return s
	}
	return append(s, v)
}
